package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	pkgerrors "github.com/plotwise/plotwise-backend/internal/pkg/errors"
)

func respond(t *testing.T, err error) (*httptest.ResponseRecorder, ErrorEnvelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondTaxonomy(c, err)

	var envelope ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return w, envelope
}

func TestRespondTaxonomy_StatusAndCodeMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: bad area", pkgerrors.ErrInvalidPreference), http.StatusBadRequest, "invalid_preference"},
		{pkgerrors.ErrNotFound, http.StatusNotFound, "not_found"},
		{pkgerrors.ErrInsufficientCredits, http.StatusPaymentRequired, "insufficient_credits"},
		{fmt.Errorf("%w: all branches", pkgerrors.ErrRetrievalUnavailable), http.StatusServiceUnavailable, "retrieval_unavailable"},
		{fmt.Errorf("something else"), http.StatusInternalServerError, "internal"},
	}
	for _, c := range cases {
		w, envelope := respond(t, c.err)
		if w.Code != c.status {
			t.Fatalf("error %v: expected status %d, got %d", c.err, c.status, w.Code)
		}
		if envelope.Error.Code != c.code {
			t.Fatalf("error %v: expected code %q, got %q", c.err, c.code, envelope.Error.Code)
		}
	}
}

func TestRespondErrorDetails_CarriesPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondErrorDetails(c, http.StatusPaymentRequired, "insufficient_credits",
		pkgerrors.ErrInsufficientCredits, map[string]any{"required_credits": 1})

	var envelope ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	details, ok := envelope.Error.Details.(map[string]any)
	if !ok || details["required_credits"] != float64(1) {
		t.Fatalf("expected structured details, got %+v", envelope.Error.Details)
	}
}
