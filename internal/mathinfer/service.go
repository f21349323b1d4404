package mathinfer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/toricodesthings/ocr-ingest-service/internal/apperr"
)

type VerifyRequest struct {
	OCRText    string  `json:"ocr_text"`
	PromptHint *string `json:"prompt_hint"`
	Format     *string `json:"format"`
}

type RawOutput struct {
	Text string         `json:"text"`
	JSON map[string]any `json:"json,omitempty"`
}

type VerifyResponse struct {
	OK             bool       `json:"ok"`
	CleanedText    string     `json:"cleaned_text"`
	LaTeX          *string    `json:"latex"`
	MathML         *string    `json:"mathml"`
	Explanation    *string    `json:"explanation"`
	RawModelOutput *RawOutput `json:"raw_model_output"`
}

type Service struct {
	model *Lazy[Model]
	log   *zap.Logger
}

// NewService wraps load in a lazy cell; nothing is loaded until the first
// Verify call.
func NewService(load func(ctx context.Context) (Model, error), log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{model: NewLazy(load), log: log}
}

func (s *Service) ModelLoaded() bool { return s.model.Loaded() }

// Verify runs one greedy generation and pulls structured fields out of the
// reply. Unparseable replies keep the input text as cleaned_text.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (VerifyResponse, error) {
	if strings.TrimSpace(req.OCRText) == "" {
		return VerifyResponse{}, apperr.Validationf("ocr_text must not be empty")
	}

	model, err := s.model.Get(ctx)
	if err != nil {
		return VerifyResponse{}, apperr.New(apperr.UpstreamFailed, "Math inference failed", err)
	}

	format := FormatLaTeX
	if req.Format != nil && *req.Format != "" {
		format = *req.Format
	}
	hint := ""
	if req.PromptHint != nil {
		hint = *req.PromptHint
	}
	prompt := BuildPrompt(req.OCRText, hint, format)

	full, err := model.Generate(ctx, prompt)
	if err != nil {
		return VerifyResponse{}, apperr.New(apperr.UpstreamFailed, "Math inference failed", err)
	}
	text := StripEcho(full, prompt)

	resp := VerifyResponse{
		OK:             true,
		CleanedText:    req.OCRText,
		RawModelOutput: &RawOutput{Text: text},
	}

	obj, ok := ExtractJSON(text)
	if !ok {
		s.log.Warn("model reply has no parseable JSON object", zap.Int("reply_len", len(text)))
		return resp, nil
	}
	if c := stringField(obj, "cleaned_text"); c != nil {
		resp.CleanedText = *c
	}
	resp.LaTeX = stringField(obj, "latex")
	resp.MathML = stringField(obj, "mathml")
	resp.Explanation = stringField(obj, "explanation")
	resp.RawModelOutput.JSON = obj
	return resp, nil
}
