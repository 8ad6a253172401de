package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	pkgerrors "github.com/plotwise/plotwise-backend/internal/pkg/errors"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondErrorDetails is RespondError with a structured payload attached,
// used for the payment prompt on exhausted credits.
func RespondErrorDetails(c *gin.Context, status int, code string, err error, details any) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
			Details: details,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondTaxonomy maps the retrieval error taxonomy onto HTTP statuses and
// stable error codes. Unknown errors become opaque 500s.
func RespondTaxonomy(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pkgerrors.ErrInvalidPreference):
		RespondError(c, http.StatusBadRequest, "invalid_preference", err)
	case errors.Is(err, pkgerrors.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, pkgerrors.ErrInsufficientCredits):
		RespondError(c, http.StatusPaymentRequired, "insufficient_credits", err)
	case errors.Is(err, pkgerrors.ErrRetrievalUnavailable):
		RespondError(c, http.StatusServiceUnavailable, "retrieval_unavailable", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
