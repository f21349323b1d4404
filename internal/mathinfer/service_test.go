package mathinfer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/toricodesthings/ocr-ingest-service/internal/apperr"
)

type scriptedModel struct {
	reply   func(prompt string) string
	err     error
	prompts []string
}

func (m *scriptedModel) Generate(ctx context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	return m.reply(prompt), nil
}

func newTestService(m *scriptedModel, loads *atomic.Int32) *Service {
	return NewService(func(ctx context.Context) (Model, error) {
		if loads != nil {
			loads.Add(1)
		}
		return m, nil
	}, zap.NewNop())
}

func TestVerifyParsesModelJSON(t *testing.T) {
	m := &scriptedModel{reply: func(prompt string) string {
		return prompt + "\n" + `{"cleaned_text":"∫ x^2 dx","latex":"\\int x^2\\,dx","explanation":"integral of x squared"}`
	}}
	svc := newTestService(m, nil)

	hint := "calculus_ocr"
	resp, err := svc.Verify(context.Background(), VerifyRequest{OCRText: "J x^2 dx", PromptHint: &hint})
	require.NoError(t, err)

	assert.True(t, resp.OK)
	assert.Equal(t, "∫ x^2 dx", resp.CleanedText)
	require.NotNil(t, resp.LaTeX)
	assert.Equal(t, `\int x^2\,dx`, *resp.LaTeX)
	assert.Nil(t, resp.MathML)
	assert.Equal(t, "integral of x squared", *resp.Explanation)
	require.NotNil(t, resp.RawModelOutput)
	assert.True(t, strings.HasPrefix(resp.RawModelOutput.Text, "{"), "prompt echo stripped")
	assert.Equal(t, "∫ x^2 dx", resp.RawModelOutput.JSON["cleaned_text"])

	require.Len(t, m.prompts, 1)
	assert.Contains(t, m.prompts[0], "Context: calculus_ocr")
}

func TestVerifyWithoutJSONKeepsInput(t *testing.T) {
	m := &scriptedModel{reply: func(string) string { return "I think this is x squared." }}
	svc := newTestService(m, nil)

	resp, err := svc.Verify(context.Background(), VerifyRequest{OCRText: "x2"})
	require.NoError(t, err)
	assert.Equal(t, "x2", resp.CleanedText)
	assert.Nil(t, resp.LaTeX)
	assert.Nil(t, resp.MathML)
	assert.Nil(t, resp.Explanation)
	assert.Equal(t, "I think this is x squared.", resp.RawModelOutput.Text)
	assert.Nil(t, resp.RawModelOutput.JSON)

	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"cleaned_text":"x2","latex":null,"mathml":null,"explanation":null,
		"raw_model_output":{"text":"I think this is x squared."}}`, string(b))
}

func TestVerifyMissingCleanedTextKeepsInput(t *testing.T) {
	m := &scriptedModel{reply: func(string) string { return `{"latex":"x^{2}"}` }}
	resp, err := newTestService(m, nil).Verify(context.Background(), VerifyRequest{OCRText: "x2"})
	require.NoError(t, err)
	assert.Equal(t, "x2", resp.CleanedText)
	assert.Equal(t, "x^{2}", *resp.LaTeX)
}

func TestVerifyEmptyText(t *testing.T) {
	var loads atomic.Int32
	svc := newTestService(&scriptedModel{}, &loads)

	_, err := svc.Verify(context.Background(), VerifyRequest{OCRText: "  \n"})
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
	assert.Zero(t, loads.Load(), "validation happens before the model loads")
	assert.False(t, svc.ModelLoaded())
}

func TestVerifyModelFailure(t *testing.T) {
	svc := newTestService(&scriptedModel{err: errors.New("runner crashed")}, nil)
	_, err := svc.Verify(context.Background(), VerifyRequest{OCRText: "x"})
	assert.Equal(t, apperr.UpstreamFailed, apperr.KindOf(err))
	assert.Equal(t, "Math inference failed", apperr.PublicMessage(err))
}

func TestHandler(t *testing.T) {
	var loads atomic.Int32
	m := &scriptedModel{reply: func(string) string { return `{"cleaned_text":"a+b"}` }}
	h := Handler(newTestService(m, &loads), HandlerConfig{APIKey: "k"}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","component":"math-inference","model_loaded":false}`, rec.Body.String())
	assert.Zero(t, loads.Load(), "health never loads the model")

	post := func(body, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/math-verify", strings.NewReader(body))
		if key != "" {
			req.Header.Set("x-api-key", key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, post(`{"ocr_text":"a+b"}`, "").Code)

	rec = post(`{"ocr_text":""}`, "k")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_error")

	rec = post(`{"ocr_text":"a+ b","format":"latex"}`, "k")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp VerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a+b", resp.CleanedText)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"ok","component":"math-inference","model_loaded":true}`, rec.Body.String())
	assert.EqualValues(t, 1, loads.Load())
}
