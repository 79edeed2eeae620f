package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/dentaldesk/internal/billing/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if field, code, message, ok := fieldError(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  []ValidationError{{Field: field, Code: code, Message: message}},
		}
	}

	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, billingdomain.ErrClinicNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, billingdomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many checkout attempts, try again later",
		}
	case errors.Is(err, billingdomain.ErrProviderUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_unavailable",
			Message: "payment provider unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func fieldError(err error) (field, code, message string, ok bool) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "request", "invalid_request", "invalid request", true
	case errors.Is(err, billingdomain.ErrMissingClinicID):
		return "clinicId", "required", "clinicId is required", true
	case errors.Is(err, billingdomain.ErrInvalidPlan):
		return "plan", "invalid_plan", "unknown plan", true
	default:
		return "", "", "", false
	}
}

// webhookErrorMessage is the body of a rejected delivery. Store errors are
// not echoed back to the provider.
func webhookErrorMessage(err error) string {
	for _, known := range []error{
		billingdomain.ErrInvalidSignature,
		billingdomain.ErrInvalidPayload,
		billingdomain.ErrMissingClinicID,
		billingdomain.ErrClinicNotFound,
		billingdomain.ErrInvalidEvent,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "webhook_processing_failed"
}

func classifyErrorForLog(err error) (string, string) {
	switch {
	case errors.Is(err, billingdomain.ErrInvalidSignature):
		return "authentication_error", billingdomain.ErrInvalidSignature.Error()
	case errors.Is(err, billingdomain.ErrInvalidPayload),
		billingdomain.IsValidation(err):
		return "validation_error", webhookErrorMessage(err)
	}

	status, payload := mapError(err)
	if status >= http.StatusInternalServerError && payload.Type == "internal_error" {
		return "internal_error", err.Error()
	}
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}
