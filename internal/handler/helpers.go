package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/boddenberg/planeja-api-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

const maxBodyBytes = 1 << 20

// errorResponse is the failure body: details carries messages that are not
// tied to a field, fields carries per-field validation messages.
type errorResponse struct {
	StatusCode int                 `json:"statusCode"`
	Details    []string            `json:"details"`
	Fields     map[string][]string `json:"fields"`
}

func writeError(w http.ResponseWriter, status int, details ...string) {
	writeErrorFields(w, status, nil, details...)
}

func writeErrorFields(w http.ResponseWriter, status int, fields domain.FieldErrors, details ...string) {
	if details == nil {
		details = []string{}
	}
	if fields == nil {
		fields = domain.FieldErrors{}
	}
	writeJSON(w, status, errorResponse{StatusCode: status, Details: details, Fields: fields})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a JSON body into dst. A malformed body is reported as a
// validation failure on "root".
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		fields := domain.FieldErrors{}
		if errors.Is(err, io.EOF) {
			fields.Add("", "Corpo da requisição vazio")
		} else {
			fields.Add("", "JSON inválido")
		}
		return &domain.ErrValidation{Fields: fields}
	}
	return nil
}

// optionalQuery returns a pointer to the query value, or nil when it is
// absent or empty.
func optionalQuery(r *http.Request, key string) *string {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	return &v
}

// handleServiceError maps domain errors to HTTP responses. Anything that is
// not a domain error is logged and answered with a generic 500 so storage
// details never reach the client.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var validation *domain.ErrValidation
	var conflict *domain.ErrConflict
	var inUse *domain.ErrCategoryInUse
	var invalid *domain.ErrInvalidArgument
	var unauthorized *domain.ErrUnauthorized
	var circuitOpen *domain.ErrCircuitOpen

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, notFound.Message())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.Any("fields", validation.Fields))
		writeErrorFields(w, http.StatusBadRequest, validation.Fields)
	case errors.As(err, &inUse):
		logger.Debug("category in use",
			zap.String("category_id", inUse.CategoryID),
			zap.Int("transactions", inUse.Transactions),
		)
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &invalid):
		logger.Debug("invalid argument", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Serviço temporariamente indisponível")
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Erro interno do servidor")
	}
}
