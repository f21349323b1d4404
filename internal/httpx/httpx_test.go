package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/toricodesthings/ocr-ingest-service/internal/apperr"
)

func ok(w http.ResponseWriter, r *http.Request) { WriteJSON(w, http.StatusOK, map[string]bool{"ok": true}) }

func TestWithAPIKey(t *testing.T) {
	h := WithAPIKey("s3cret", ok)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"ok":false,"code":"unauthorized","message":"Invalid API key"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("x-api-key", "s3cret")
	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWithAPIKeyDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	WithAPIKey("", ok)(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWithMethod(t *testing.T) {
	rec := httptest.NewRecorder()
	WithMethod(http.MethodPost, ok)(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "POST", rec.Header().Get("Allow"))
}

func TestWithRecovery(t *testing.T) {
	h := WithRecovery(zap.NewNop(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map write")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "nil map")
}

func TestWithLoggingSetsRequestID(t *testing.T) {
	h := WithLogging(zap.NewNop(), http.HandlerFunc(ok))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

type payload struct {
	Text string `json:"text"`
}

func TestParseJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"x","extra":1}`))
	p, err := ParseJSON[payload](rec, req, 1024)
	require.NoError(t, err)
	assert.Equal(t, "x", p.Text)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"x"} {}`))
	_, err = ParseJSON[payload](rec, req, 1024)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":`))
	_, err = ParseJSON[payload](rec, req, 1024)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"`+strings.Repeat("a", 100)+`"}`))
	_, err = ParseJSON[payload](rec, req, 16)
	assert.Equal(t, apperr.PayloadTooLarge, apperr.KindOf(err))
}
