package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes carried in the error envelope
const (
	CodeInvalidLimit       = "invalid_limit"
	CodeSearchUnavailable  = "search_unavailable"
	CodeBackfillInProgress = "backfill_in_progress"
	CodeBackfillFailed     = "backfill_failed"
	CodeStatusUnavailable  = "status_unavailable"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
