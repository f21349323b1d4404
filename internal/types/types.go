package types

import "encoding/json"

// Branch is the extraction strategy picked by the classifier.
type Branch string

const (
	BranchText       Branch = "text"
	BranchImage      Branch = "image"
	BranchPDFText    Branch = "pdf_text"
	BranchPDFScanned Branch = "pdf_scanned"
)

// EnrichKind selects the optional downstream enrichment service.
type EnrichKind string

const (
	EnrichNone EnrichKind = ""
	EnrichAI   EnrichKind = "ai"
	EnrichMath EnrichKind = "math"
)

// IngestRequest is built once per HTTP request and never modified afterwards.
type IngestRequest struct {
	Data        []byte
	Text        string
	ContentType string
	Filename    string
	PromptHint  string
	Enrich      EnrichKind
}

type PageResult struct {
	Index int    `json:"index"` // 0-based
	Text  string `json:"text"`
}

// EnrichmentResult is the outcome of a successful enrichment call.
type EnrichmentResult struct {
	Kind        EnrichKind
	CleanedText string
	LaTeX       *string
	MathML      *string
	Explanation *string
	Raw         json.RawMessage
}

type MathCleanup struct {
	OK          bool    `json:"ok"`
	CleanedText string  `json:"cleaned_text"`
	LaTeX       *string `json:"latex"`
	MathML      *string `json:"mathml"`
	Explanation *string `json:"explanation"`
}

type IngestResponse struct {
	OK    bool            `json:"ok"`
	Type  Branch          `json:"type"`
	Pages int             `json:"pages"`
	Text  string          `json:"text"`
	AI    json.RawMessage `json:"ai"`
	Math  *MathCleanup    `json:"math,omitempty"`
}

// ── HTTP wire types ─────────────────────────────────────────────────────────

type OCRJSONRequest struct {
	Filename    *string `json:"filename"`
	ContentType *string `json:"content_type"`
	Text        *string `json:"text"` // plain text, or hex-encoded PDF/image bytes
	AIVerify    *bool   `json:"ai_verify"`
	MathCleanup *bool   `json:"math_cleanup"`
	PromptHint  *string `json:"prompt_hint"`
}

type PreviewPage struct {
	Index     int  `json:"index"`
	WordCount int  `json:"wordCount"`
	HasText   bool `json:"hasText"`
}

type PreviewResult struct {
	OK             bool          `json:"ok"`
	Type           Branch        `json:"type"`
	Pages          int           `json:"pages"`
	TextLayerPages int           `json:"textLayerPages"`
	NeedsOCR       bool          `json:"needsOcr"`
	PageDetails    []PreviewPage `json:"pageDetails"`
}

type ErrorResponse struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
