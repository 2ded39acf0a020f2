package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/guitaripod/pixie/internal/imggen"
	"github.com/guitaripod/pixie/internal/repository"
	"github.com/guitaripod/pixie/internal/service"
)

// moderationMessage replaces raw provider refusals with something a
// person can act on.
const moderationMessage = "Our AI backend is being a bit too cautious with this request. Try rephrasing your prompt or removing anything that could be misread."

// ErrorDetail is the OpenAI-style error payload.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

// AppError is the wire error envelope. It satisfies huma.StatusError so
// typed handlers can return it directly.
type AppError struct {
	status int
	Detail ErrorDetail `json:"error"`
}

func (e *AppError) Error() string { return e.Detail.Message }

// GetStatus implements huma.StatusError.
func (e *AppError) GetStatus() int { return e.status }

// ContentType implements huma.ContentTypeFilter so the envelope goes
// out as plain application/json rather than problem+json.
func (e *AppError) ContentType(string) string { return "application/json" }

// NewAppError builds an error envelope.
func NewAppError(status int, errType, code, message string) *AppError {
	return &AppError{
		status: status,
		Detail: ErrorDetail{Message: message, Type: errType, Code: code},
	}
}

func badRequest(message string) *AppError {
	return NewAppError(http.StatusBadRequest, "invalid_request_error", "bad_request", message)
}

func notFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, "not_found", "not_found", message)
}

func unauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, "authentication_error", "unauthorized", message)
}

func forbidden(message string) *AppError {
	return NewAppError(http.StatusForbidden, "permission_denied", "forbidden", message)
}

func internalError() *AppError {
	return NewAppError(http.StatusInternalServerError, "internal_error", "internal_error", "An unexpected error occurred")
}

// mapError translates service and provider errors onto the wire
// taxonomy. Anything unrecognized becomes an opaque 500.
func mapError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, imggen.ErrModerated):
		return badRequest(moderationMessage)

	case errors.Is(err, service.ErrStreamingUnsupported):
		return badRequest("Streaming is not supported yet")

	case errors.Is(err, repository.ErrInsufficientCredits):
		return NewAppError(http.StatusPaymentRequired, "insufficient_credits", "insufficient_credits",
			"Insufficient credits for this request. Purchase more at /v1/credits/packs")

	case errors.Is(err, repository.ErrLockHeld):
		return NewAppError(http.StatusTooManyRequests, "rate_limit_exceeded", "rate_limit_exceeded",
			"Another request is already in progress")

	case errors.Is(err, service.ErrInvalidToken):
		return NewAppError(http.StatusUnauthorized, "authentication_error", "unauthorized", err.Error())

	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrUnknownPack),
		errors.Is(err, service.ErrDuplicatePurchase),
		errors.Is(err, imggen.ErrUnsupportedModel),
		errors.Is(err, imggen.ErrEditUnsupported),
		errors.Is(err, imggen.ErrMissingAPIKey):
		return badRequest(capitalizeMessage(err))

	default:
		return internalError()
	}
}

func capitalizeMessage(err error) string {
	msg := err.Error()
	if msg == "" {
		return msg
	}
	if msg[0] >= 'a' && msg[0] <= 'z' {
		return string(msg[0]-'a'+'A') + msg[1:]
	}
	return msg
}

// writeError writes the envelope from a raw (non-huma) handler.
func writeError(w http.ResponseWriter, appErr *AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.status)
	_ = json.NewEncoder(w).Encode(appErr)
}
