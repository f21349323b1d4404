package server

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/toricodesthings/ocr-ingest-service/internal/apperr"
	"github.com/toricodesthings/ocr-ingest-service/internal/classify"
	"github.com/toricodesthings/ocr-ingest-service/internal/httpx"
	"github.com/toricodesthings/ocr-ingest-service/internal/types"
)

// multipart framing allowance on top of the file limit
const multipartOverhead = 1 << 20

const maxFormFieldBytes = 4 << 10

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, active := s.metrics.get()
	status := "healthy"
	code := http.StatusOK

	ratio := s.cfg.HealthDegradeRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.9
	}

	threshold := int64(float64(s.cfg.MaxConcurrentRequests) * ratio)
	if threshold < 1 {
		threshold = 1
	}
	if active >= threshold {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	httpx.WriteJSON(w, code, map[string]any{
		"status":        status,
		"active":        active,
		"ocr_available": s.proc.OCRAvailable(),
		"ocr_engine":    s.proc.OCREngine(),
		"pdf_available": s.proc.PDFAvailable(),
		"pdf_backend":   s.proc.PDFBackend(),
		"version":       Version,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	total, active := s.metrics.get()

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"activeRequests": active,
		"totalRequests":  total,
		"goroutines":     runtime.NumGoroutine(),
		"memAllocMB":     m.Alloc / (1 << 20),
		"memSysMB":       m.Sys / (1 << 20),
	})
}

func (s *Server) handleOCRFile(w http.ResponseWriter, r *http.Request) {
	if !s.proc.OCRAvailable() {
		httpx.WriteError(w, r, s.log, apperr.New(apperr.DependencyUnavailable,
			"OCR engine not available on this server.", errors.New("ocr engine "+s.proc.OCREngine()+" unavailable")))
		return
	}

	up, err := s.readUpload(w, r)
	if err != nil {
		httpx.WriteError(w, r, s.log, err)
		return
	}

	kind, err := uploadEnrichKind(up.fields["enrich"], up.contentType)
	if err != nil {
		httpx.WriteError(w, r, s.log, err)
		return
	}

	s.process(w, r, types.IngestRequest{
		Data:        up.data,
		ContentType: up.contentType,
		Filename:    up.filename,
		PromptHint:  strings.TrimSpace(up.fields["prompt_hint"]),
		Enrich:      kind,
	})
}

func (s *Server) handleOCRJSON(w http.ResponseWriter, r *http.Request) {
	body, err := httpx.ParseJSON[types.OCRJSONRequest](w, r, s.cfg.MaxJSONBodyBytes)
	if err != nil {
		httpx.WriteError(w, r, s.log, err)
		return
	}

	req, err := s.jsonIngestRequest(body)
	if err != nil {
		httpx.WriteError(w, r, s.log, err)
		return
	}
	s.process(w, r, req)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		httpx.WriteError(w, r, s.log, err)
		return
	}

	ctx, cancel := s.processContext(r)
	defer cancel()

	res, err := s.proc.Preview(ctx, up.contentType, up.data)
	if err != nil {
		httpx.WriteError(w, r, s.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) process(w http.ResponseWriter, r *http.Request, req types.IngestRequest) {
	ctx, cancel := s.processContext(r)
	defer cancel()

	resp, err := s.proc.Process(ctx, req)
	if err != nil {
		httpx.WriteError(w, r, s.log, err)
		return
	}

	s.log.Debug("ingested",
		zap.String("filename", httpx.SanitizeLogString(req.Filename)),
		zap.String("type", string(resp.Type)),
		zap.Int("pages", resp.Pages),
		zap.Bool("math", resp.Math != nil),
		zap.Bool("ai", resp.AI != nil),
	)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) processContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.cfg.ProcessTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.cfg.ProcessTimeout)
}

// ---------- Request building ----------

type upload struct {
	data        []byte
	contentType string
	filename    string
	fields      map[string]string
}

// readUpload streams a multipart body. The file part is read through a
// limit of MaxUploadBytes+1 so an oversized upload fails before any parsing.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (upload, error) {
	limit := s.cfg.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		return upload{}, apperr.New(apperr.Validation, "Expected a multipart/form-data body with a file field.", err)
	}

	up := upload{fields: map[string]string{}}
	found := false
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return upload{}, s.bodyError(err)
		}

		name := part.FormName()
		switch {
		case name == "file" && !found:
			data, err := io.ReadAll(io.LimitReader(part, limit+1))
			if err != nil {
				part.Close()
				return upload{}, s.bodyError(err)
			}
			if int64(len(data)) > limit {
				part.Close()
				return upload{}, s.tooLarge()
			}
			found = true
			up.data = data
			up.filename = part.FileName()
			up.contentType = part.Header.Get("Content-Type")
		case name != "":
			v, err := io.ReadAll(io.LimitReader(part, maxFormFieldBytes))
			if err != nil {
				part.Close()
				return upload{}, s.bodyError(err)
			}
			up.fields[name] = string(v)
		}
		part.Close()
	}

	if !found {
		return upload{}, apperr.Validationf("file is required")
	}
	if up.contentType == "" {
		up.contentType = "application/octet-stream"
	}
	return up, nil
}

func (s *Server) bodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return s.tooLarge()
	}
	return apperr.New(apperr.Validation, "Malformed multipart body.", err)
}

func (s *Server) tooLarge() error {
	return apperr.New(apperr.PayloadTooLarge,
		fmt.Sprintf("File exceeds the %d MiB upload limit.", s.cfg.MaxUploadBytes>>20), nil)
}

func uploadEnrichKind(field, contentType string) (types.EnrichKind, error) {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "":
		if strings.HasPrefix(classify.MediaType(contentType), "image/") {
			return types.EnrichMath, nil
		}
		return types.EnrichNone, nil
	case "none":
		return types.EnrichNone, nil
	case "ai":
		return types.EnrichAI, nil
	case "math":
		return types.EnrichMath, nil
	default:
		return types.EnrichNone, apperr.Validationf("enrich must be one of none, ai, math")
	}
}

// jsonIngestRequest maps the /ocr-json body onto the pipeline request. PDF
// and image payloads arrive hex-encoded in the text field.
func (s *Server) jsonIngestRequest(body types.OCRJSONRequest) (types.IngestRequest, error) {
	req := types.IngestRequest{
		ContentType: deref(body.ContentType),
		Filename:    deref(body.Filename),
		PromptHint:  strings.TrimSpace(deref(body.PromptHint)),
	}
	switch {
	case derefBool(body.MathCleanup):
		req.Enrich = types.EnrichMath
	case derefBool(body.AIVerify):
		req.Enrich = types.EnrichAI
	}

	text := deref(body.Text)
	mt := classify.MediaType(req.ContentType)
	if mt != "application/pdf" && !strings.HasPrefix(mt, "image/") {
		req.Text = text
		return req, nil
	}

	digits := stripSpace(text)
	if int64(len(digits)) > 2*s.cfg.MaxUploadBytes {
		return types.IngestRequest{}, s.tooLarge()
	}
	data, err := hex.DecodeString(digits)
	if err != nil {
		return types.IngestRequest{}, apperr.New(apperr.Validation, "text must be the hex-encoded file bytes", err)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return types.IngestRequest{}, s.tooLarge()
	}
	req.Data = data
	return req, nil
}

func stripSpace(s string) string {
	if strings.IndexFunc(s, unicode.IsSpace) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefBool(p *bool) bool { return p != nil && *p }
