package mathinfer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// Model produces one completion for a prompt.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type OllamaConfig struct {
	ModelID      string // Hugging Face style ids are pulled through hf.co
	Device       string // "cpu" keeps every layer off the GPU
	MaxNewTokens int
	Pull         bool
	KeepAlive    time.Duration
}

// OllamaModel runs greedy, non-streaming generations against an Ollama server.
type OllamaModel struct {
	cli  *api.Client
	name string
	cfg  OllamaConfig
	log  *zap.Logger
}

// ModelName maps a configured model id to an Ollama model reference.
// "org/name" ids without a registry host resolve through hf.co.
func ModelName(id string) string {
	id = strings.TrimSpace(id)
	first, _, hasSlash := strings.Cut(id, "/")
	if !hasSlash || strings.Contains(first, ".") {
		return id
	}
	return "hf.co/" + id
}

// LoadOllama makes sure the model exists on the server, pulling it when
// allowed, and warms it into memory.
func LoadOllama(ctx context.Context, cli *api.Client, cfg OllamaConfig, log *zap.Logger) (*OllamaModel, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m := &OllamaModel{cli: cli, name: ModelName(cfg.ModelID), cfg: cfg, log: log}

	_, err := cli.Show(ctx, &api.ShowRequest{Model: m.name})
	var se api.StatusError
	switch {
	case err == nil:
	case errors.As(err, &se) && se.StatusCode == http.StatusNotFound && cfg.Pull:
		if err := m.pull(ctx); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("show model %s: %w", m.name, err)
	}

	// an empty prompt only loads the model
	start := time.Now()
	warm := &api.GenerateRequest{Model: m.name, KeepAlive: m.keepAlive(), Options: m.options()}
	if err := cli.Generate(ctx, warm, func(api.GenerateResponse) error { return nil }); err != nil {
		return nil, fmt.Errorf("load model %s: %w", m.name, err)
	}

	log.Info("math model loaded",
		zap.String("model", m.name),
		zap.String("device", cfg.Device),
		zap.Duration("took", time.Since(start)),
	)
	return m, nil
}

func (m *OllamaModel) pull(ctx context.Context) error {
	m.log.Info("pulling math model", zap.String("model", m.name))
	last := ""
	err := m.cli.Pull(ctx, &api.PullRequest{Model: m.name}, func(p api.ProgressResponse) error {
		if p.Status != last {
			last = p.Status
			m.log.Debug("pull", zap.String("model", m.name), zap.String("status", p.Status))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("pull model %s: %w", m.name, err)
	}
	return nil
}

func (m *OllamaModel) Generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:     m.name,
		Prompt:    prompt,
		Stream:    &stream,
		KeepAlive: m.keepAlive(),
		Options:   m.options(),
	}

	var out strings.Builder
	err := m.cli.Generate(ctx, req, func(r api.GenerateResponse) error {
		out.WriteString(r.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return out.String(), nil
}

func (m *OllamaModel) options() map[string]any {
	opts := map[string]any{"temperature": 0}
	if m.cfg.MaxNewTokens > 0 {
		opts["num_predict"] = m.cfg.MaxNewTokens
	}
	if strings.EqualFold(m.cfg.Device, "cpu") {
		opts["num_gpu"] = 0
	}
	return opts
}

func (m *OllamaModel) keepAlive() *api.Duration {
	if m.cfg.KeepAlive <= 0 {
		return nil
	}
	return &api.Duration{Duration: m.cfg.KeepAlive}
}
