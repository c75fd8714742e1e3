package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	receiptdomain "github.com/smallbiznis/receiptpoints/internal/receipt/domain"
)

const (
	msgInvalidReceipt  = "The receipt is invalid."
	msgReceiptNotFound = "No receipt found for that ID."
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors reports input that could not be decoded into a receipt.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v *ValidationErrors) Error() string {
	return "validation error"
}

func (v *ValidationErrors) add(field, code, message string) {
	v.Errors = append(v.Errors, ValidationError{Field: field, Code: code, Message: message})
}

func (v *ValidationErrors) empty() bool {
	return v == nil || len(v.Errors) == 0
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
	ErrInternal       = errors.New("internal_error")
	ErrRouteNotFound  = errors.New("route_not_found")
	ErrRateLimited    = errors.New("rate_limited")
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
	return newValidationError("request", "invalid_request", "request body is not a receipt document")
}

func newValidationError(field, code, message string) error {
	v := &ValidationErrors{}
	v.add(field, code, message)
	return v
}

func mapError(err error) (int, errorPayload) {
	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: msgInvalidReceipt,
			Errors:  vErr.Errors,
		}
	}

	switch {
	case errors.Is(err, receiptdomain.ErrInvalidReceipt):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_receipt",
			Message: msgInvalidReceipt,
		}
	case errors.Is(err, receiptdomain.ErrMalformedReceipt),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: msgInvalidReceipt,
		}
	case errors.Is(err, receiptdomain.ErrNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: msgReceiptNotFound,
		}
	case errors.Is(err, ErrRouteNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many receipt submissions, retry later",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the response type and the most specific code
// for the request log line.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}
