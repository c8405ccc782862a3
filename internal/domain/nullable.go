package domain

import "encoding/json"

// NullableString distinguishes an absent JSON field (Set=false) from an
// explicit null (Set=true, Value=nil) and from a value.
type NullableString struct {
	Set   bool
	Value *string
}

// UnmarshalJSON is only called when the field is present in the payload.
func (n *NullableString) UnmarshalJSON(b []byte) error {
	n.Set = true
	if string(b) == "null" {
		n.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	n.Value = &s
	return nil
}

// MarshalJSON renders the value or null.
func (n NullableString) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}

// Null returns an explicitly cleared NullableString.
func Null() NullableString {
	return NullableString{Set: true}
}

// Some returns a NullableString holding s.
func Some(s string) NullableString {
	return NullableString{Set: true, Value: &s}
}
