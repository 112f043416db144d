package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/procurement-tracker/internal/domain/apperr"
)

// ErrorResponse is the body of every failed call
type ErrorResponse struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// statusFor maps an error kind to its HTTP status
func statusFor(err error) int {
	kind, ok := apperr.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindInvalidState:
		return http.StatusConflict
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindTransactionFailure:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes err without internals. Unclassified errors are logged
// and reported generically.
func (h *Handlers) respondError(c *gin.Context, op string, err error) {
	status := statusFor(err)

	var appErr *apperr.Error
	if status == http.StatusInternalServerError || !errors.As(err, &appErr) {
		h.logger.Error("Request failed", "op", op, "error", err)
		c.JSON(status, ErrorResponse{Error: "internal error"})
		return
	}

	if status == http.StatusServiceUnavailable {
		h.logger.Error("Transaction failed", "op", op, "error", err)
	}
	c.JSON(status, ErrorResponse{Error: appErr.Message, Details: appErr.Details})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}
