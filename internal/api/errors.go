package api

import (
	"errors"
	"net/http"

	"transform-registry/internal/domain"
)

// kindInvalidRequest marks malformed requests rejected before reaching the service.
const kindInvalidRequest = "InvalidRequest"

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Field   string `json:"field,omitempty"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var validation *domain.ValidationError
	var notFound *domain.NotFoundError
	var referential *domain.ReferentialError

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &referential):
		return http.StatusConflict
	default:
		// Cycles found in stored data, and storage failures.
		return http.StatusInternalServerError
	}
}

// errorBodyFromError builds the response body for err. Untyped errors are
// reported generically so driver messages stay in the logs.
func errorBodyFromError(err error) ErrorBody {
	body := ErrorBody{Code: httpStatusFromDomainError(err)}

	var (
		ve *domain.ValidationError
		re *domain.ReferentialError
		ie *domain.IntegrityError
		ne *domain.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		body.Kind, body.Field, body.Message = string(ve.Kind), ve.Field, ve.Message
	case errors.As(err, &re):
		body.Kind, body.ID, body.Message = string(re.Kind), re.ID, re.Message
	case errors.As(err, &ie):
		body.Kind, body.ID, body.Message = string(ie.Kind), ie.ID, ie.Message
	case errors.As(err, &ne):
		body.Kind, body.ID, body.Message = string(ne.Kind), ne.ID, ne.Message
	default:
		body.Message = "internal error"
	}
	return body
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBodyFromError(err)
	if body.Code >= http.StatusInternalServerError && !isClientGone(err) {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, body.Code, body)
}

func writeBadRequest(w http.ResponseWriter, field, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorBody{
		Code:    http.StatusBadRequest,
		Kind:    kindInvalidRequest,
		Field:   field,
		Message: message,
	})
}
