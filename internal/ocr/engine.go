// Package ocr wraps the OCR engines the service can run over page images.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"regexp"
	"strings"
)

// Engine recognises text in a single image. dpi is a resolution hint; zero
// means unknown.
type Engine interface {
	Name() string
	Available() bool
	Recognize(ctx context.Context, img image.Image, dpi int) (string, error)
}

// Options are shared by the tesseract-backed engines.
type Options struct {
	Languages   []string
	TessdataDir string
}

func (o Options) langs() []string {
	if len(o.Languages) == 0 {
		return []string{"eng"}
	}
	return o.Languages
}

// Noop is used when no OCR engine is configured. It reports itself
// unavailable and recognises nothing.
type Noop struct{}

func (Noop) Name() string    { return "none" }
func (Noop) Available() bool { return false }
func (Noop) Recognize(ctx context.Context, img image.Image, dpi int) (string, error) {
	return "", nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	zeroWidthChars = regexp.MustCompile("[\u200B-\u200D\uFEFF\u00AD\u2060]")
	trailingSpaces = regexp.MustCompile(`(?m)[ \t]+$`)
)

// Clean applies light-touch normalisation to raw OCR output:
//   - strips zero-width / invisible unicode characters
//   - normalises line endings and drops form feeds
//   - removes trailing spaces on each line
func Clean(text string) string {
	if text == "" {
		return ""
	}
	text = zeroWidthChars.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\f", "")
	text = trailingSpaces.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
