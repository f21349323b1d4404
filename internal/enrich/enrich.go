// Package enrich forwards extracted text to an optional external service and
// returns its structured answer. Every failure here is soft: it is logged and
// the caller gets no enrichment.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/toricodesthings/ocr-ingest-service/internal/types"
)

const (
	DefaultContextLabel = "calculus_ocr"
	mathVerifyPath      = "/v1/math-verify"
	maxResponseBytes    = 1 << 20
)

type Endpoint struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

func (e Endpoint) configured() bool { return strings.TrimSpace(e.URL) != "" }

type Config struct {
	AI           Endpoint
	Math         Endpoint
	ContextLabel string
}

type Dispatcher struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger
}

func New(cfg Config, client *http.Client, log *zap.Logger) *Dispatcher {
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ContextLabel == "" {
		cfg.ContextLabel = DefaultContextLabel
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 10 * time.Second
	}
	if cfg.Math.Timeout <= 0 {
		cfg.Math.Timeout = 20 * time.Second
	}
	return &Dispatcher{cfg: cfg, client: client, log: log}
}

// Configured reports whether an endpoint exists for kind.
func (d *Dispatcher) Configured(kind types.EnrichKind) bool {
	switch kind {
	case types.EnrichAI:
		return d.cfg.AI.configured()
	case types.EnrichMath:
		return d.cfg.Math.configured()
	}
	return false
}

// Enrich sends text to the endpoint for kind. It returns nil when enrichment
// is disabled, the text is blank, or the upstream call fails in any way.
func (d *Dispatcher) Enrich(ctx context.Context, kind types.EnrichKind, text, hint string) *types.EnrichmentResult {
	if strings.TrimSpace(text) == "" || !d.Configured(kind) {
		return nil
	}
	switch kind {
	case types.EnrichAI:
		return d.aiVerify(ctx, text)
	case types.EnrichMath:
		return d.mathCleanup(ctx, text, hint)
	}
	return nil
}

func (d *Dispatcher) aiVerify(ctx context.Context, text string) *types.EnrichmentResult {
	ep := d.cfg.AI
	body := map[string]any{"text": text, "context": d.cfg.ContextLabel}
	headers := map[string]string{}
	if ep.APIKey != "" {
		headers["Authorization"] = "Bearer " + ep.APIKey
	}

	raw, err := d.post(ctx, ep, ep.URL, body, headers)
	if err != nil {
		d.log.Warn("ai verification failed", zap.Error(err))
		return nil
	}
	if !json.Valid(raw) {
		d.log.Warn("ai verification returned invalid json", zap.Int("bytes", len(raw)))
		return nil
	}
	return &types.EnrichmentResult{Kind: types.EnrichAI, Raw: json.RawMessage(raw)}
}

type mathWire struct {
	OK          *bool   `json:"ok"`
	CleanedText *string `json:"cleaned_text"`
	LaTeX       *string `json:"latex"`
	MathML      *string `json:"mathml"`
	Explanation *string `json:"explanation"`
}

func (d *Dispatcher) mathCleanup(ctx context.Context, text, hint string) *types.EnrichmentResult {
	ep := d.cfg.Math
	if hint == "" {
		hint = d.cfg.ContextLabel
	}
	body := map[string]any{"ocr_text": text, "prompt_hint": hint, "format": "latex"}
	headers := map[string]string{}
	if ep.APIKey != "" {
		headers["x-api-key"] = ep.APIKey
		headers["Authorization"] = "Bearer " + ep.APIKey
	}

	url := strings.TrimRight(ep.URL, "/") + mathVerifyPath
	raw, err := d.post(ctx, ep, url, body, headers)
	if err != nil {
		d.log.Warn("math-inference call failed", zap.Error(err))
		return nil
	}

	var w mathWire
	if err := json.Unmarshal(raw, &w); err != nil {
		d.log.Warn("math-inference returned invalid json", zap.Error(err))
		return nil
	}
	if w.OK == nil || w.CleanedText == nil {
		d.log.Warn("math-inference response missing required fields", zap.ByteString("body", truncate(raw, 512)))
		return nil
	}

	return &types.EnrichmentResult{
		Kind:        types.EnrichMath,
		CleanedText: *w.CleanedText,
		LaTeX:       w.LaTeX,
		MathML:      w.MathML,
		Explanation: w.Explanation,
		Raw:         json.RawMessage(raw),
	}
}

func (d *Dispatcher) post(ctx context.Context, ep Endpoint, url string, body any, headers map[string]string) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, ep.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upstream responded %d: %s", resp.StatusCode, truncate(raw, 512))
	}

	d.log.Debug("enrichment ok",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)
	return raw, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
