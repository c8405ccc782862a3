// Package validate turns request structs into domain field errors.
// Struct tags are checked by go-playground/validator; rules the tags cannot
// express (decimal magnitudes, date formats) are added as Checks.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/planeja-api-go/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	once sync.Once
	v    *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		v = validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return v
}

// Check adds field errors for rules outside the struct tags.
type Check func(fields domain.FieldErrors)

// Struct validates s and runs the extra checks. It returns a
// *domain.ErrValidation carrying every failed field, or nil.
func Struct(s any, checks ...Check) error {
	fields := domain.FieldErrors{}

	if err := instance().Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate %T: %w", s, err)
		}
		for _, fe := range verrs {
			fields.Add(fieldPath(fe.Namespace()), message(fe))
		}
	}

	for _, check := range checks {
		check(fields)
	}

	if len(fields) == 0 {
		return nil
	}
	return &domain.ErrValidation{Fields: fields}
}

// Positive requires d > 0.
func Positive(field string, d decimal.Decimal) Check {
	return func(fields domain.FieldErrors) {
		if !d.IsPositive() {
			fields.Add(field, "Valor deve ser positivo")
		}
	}
}

// OptionalPositive requires d > 0 when d is present.
func OptionalPositive(field string, d *decimal.Decimal) Check {
	return func(fields domain.FieldErrors) {
		if d != nil && !d.IsPositive() {
			fields.Add(field, "Valor deve ser positivo")
		}
	}
}

// Money limits for monetary inputs: at most MaxIntegerDigits digits before
// the point and MaxDecimalPlaces after it.
const (
	MaxIntegerDigits = 15
	MaxDecimalPlaces = 2
)

// Money requires d to fit the monetary precision. It inspects the exponent
// and digit count only, so values like 1e20000000 are rejected without being
// expanded.
func Money(field string, d decimal.Decimal) Check {
	return func(fields domain.FieldErrors) {
		if msg := moneyError(d); msg != "" {
			fields.Add(field, msg)
		}
	}
}

// OptionalMoney applies Money when d is present.
func OptionalMoney(field string, d *decimal.Decimal) Check {
	return func(fields domain.FieldErrors) {
		if d == nil {
			return
		}
		if msg := moneyError(*d); msg != "" {
			fields.Add(field, msg)
		}
	}
}

func moneyError(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	d = d.Abs()
	exp := int(d.Exponent())
	if d.NumDigits()+exp > MaxIntegerDigits {
		return fmt.Sprintf("Valor excede o limite de %d dígitos inteiros", MaxIntegerDigits)
	}
	if exp >= -MaxDecimalPlaces {
		return ""
	}
	// Trailing zeros ("1.500") are fine; anything finer than cents is not.
	// The integer-digit bound above keeps this rescale small.
	if exp < -(MaxIntegerDigits+MaxDecimalPlaces+20) || !d.Equal(d.Truncate(MaxDecimalPlaces)) {
		return fmt.Sprintf("Valor deve ter no máximo %d casas decimais", MaxDecimalPlaces)
	}
	return ""
}

// Date requires s, when present, to parse with ParseDate.
func Date(field string, s *string) Check {
	return func(fields domain.FieldErrors) {
		if s == nil {
			return
		}
		if _, err := ParseDate(*s); err != nil {
			fields.Add(field, "Data inválida (use RFC 3339 ou AAAA-MM-DD)")
		}
	}
}

// NonEmpty requires a present nullable string to be non-empty.
func NonEmpty(field string, n domain.NullableString) Check {
	return func(fields domain.FieldErrors) {
		if n.Set && n.Value != nil && strings.TrimSpace(*n.Value) == "" {
			fields.Add(field, "Campo não pode ser vazio")
		}
	}
}

// ParseDate accepts an RFC 3339 timestamp or a YYYY-MM-DD day (midnight UTC).
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// fieldPath drops the top-level struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ""
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Campo obrigatório"
	case "min":
		return fmt.Sprintf("Deve ter pelo menos %s caractere(s)", fe.Param())
	case "max":
		return fmt.Sprintf("Deve ter no máximo %s caracteres", fe.Param())
	case "email":
		return "E-mail inválido"
	case "hexcolor", "len":
		if fe.Field() == "color" {
			return "Cor deve ser um código hex válido (#RRGGBB)"
		}
		return fmt.Sprintf("Deve ter exatamente %s caracteres", fe.Param())
	case "oneof":
		return fmt.Sprintf("Deve ser um de: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("Valor inválido (%s)", fe.Tag())
	}
}
