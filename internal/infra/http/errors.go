package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dealroom/internal/domain"
)

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeError(c *gin.Context, err error) {
	status, code, message := http.StatusInternalServerError, "INTERNAL", "internal error"
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, code, message = http.StatusNotFound, "NOT_FOUND", "not found"
	case errors.Is(err, domain.ErrForbidden):
		status, code, message = http.StatusForbidden, "FORBIDDEN", "forbidden"
	case errors.Is(err, domain.ErrInvalidState):
		status, code, message = http.StatusConflict, "INVALID_STATE", "request is no longer pending"
	case errors.Is(err, domain.ErrPolicyMismatch):
		status, code, message = http.StatusUnprocessableEntity, "POLICY_MISMATCH", "operation does not apply to the document policy"
	case errors.Is(err, domain.ErrUnavailable):
		status, code, message = http.StatusServiceUnavailable, "UNAVAILABLE", "storage unavailable"
		c.Header("Retry-After", "1")
	case errors.Is(err, domain.ErrInvalidArgument):
		status, code, message = http.StatusBadRequest, "INVALID_ARGUMENT", err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		status, code, message = http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized"
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	writeErrorCode(c, status, code, message)
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func writeDecisionDenied(c *gin.Context, documentID string, decision domain.Decision) {
	code := "ACCESS_DENIED"
	switch decision.Reason {
	case domain.ReasonNDARequired:
		code = "NDA_REQUIRED"
	case domain.ReasonRequestPending:
		code = "REQUEST_PENDING"
	}
	c.JSON(http.StatusForbidden, errorResponse{
		Code:    code,
		Message: decision.Message(),
		Details: map[string]any{
			"document_id": documentID,
			"verdict":     decision.Verdict,
			"reason":      decision.Reason,
		},
	})
}
