// Package ingesttest provides in-memory PDF backends and OCR engines for
// pipeline and handler tests.
package ingesttest

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"

	"github.com/toricodesthings/ocr-ingest-service/internal/pdfdoc"
)

// PDFHeader prefixes every fake PDF payload so magic checks pass.
var PDFHeader = []byte("%PDF-1.7\n")

// Doc is an in-memory document: one text layer string per page.
type Doc struct {
	Pages      []string
	FailText   int // page whose Text call fails, -1 for none
	FailRender int // page whose Render call fails, -1 for none

	mu       sync.Mutex
	Rendered []int
	DPIs     []float64
	Closed   bool
}

func NewDoc(pages ...string) *Doc {
	return &Doc{Pages: pages, FailText: -1, FailRender: -1}
}

func (d *Doc) NumPage() int { return len(d.Pages) }

func (d *Doc) Text(ctx context.Context, page int) (string, error) {
	if page == d.FailText {
		return "", errors.New("text layer unreadable")
	}
	return d.Pages[page], nil
}

func (d *Doc) Render(ctx context.Context, page int, dpi float64) (image.Image, error) {
	if page == d.FailRender {
		return nil, errors.New("unsupported shading type")
	}
	d.mu.Lock()
	d.Rendered = append(d.Rendered, page)
	d.DPIs = append(d.DPIs, dpi)
	d.mu.Unlock()

	// encode the page index in the pixel so engines can tell pages apart
	w, h := pdfdoc.ScaledSize(36, 36, dpi)
	img := image.NewGray(image.Rect(0, 0, w, h))
	img.SetGray(0, 0, color.Gray{Y: uint8(page)})
	return img, nil
}

func (d *Doc) Close() error {
	d.mu.Lock()
	d.Closed = true
	d.mu.Unlock()
	return nil
}

// Opener hands out Doc regardless of payload, after a magic check.
type Opener struct {
	Doc         *Doc
	Unavailable bool
	Opens       atomic.Int32
}

func (o *Opener) Name() string    { return "fake" }
func (o *Opener) Available() bool { return !o.Unavailable }

func (o *Opener) Open(ctx context.Context, data []byte) (pdfdoc.Document, error) {
	o.Opens.Add(1)
	if err := pdfdoc.CheckMagic(data); err != nil {
		return nil, err
	}
	return o.Doc, nil
}

// Engine returns Texts[pageIndex] where the page index is read back from the
// top-left pixel written by Doc.Render. Uploaded images decode to index 0.
type Engine struct {
	Texts       []string
	Unavailable bool
	Err         error
	Calls       atomic.Int32
}

func (e *Engine) Name() string    { return "fake" }
func (e *Engine) Available() bool { return !e.Unavailable }

func (e *Engine) Recognize(ctx context.Context, img image.Image, dpi int) (string, error) {
	e.Calls.Add(1)
	if e.Err != nil {
		return "", e.Err
	}
	r, _, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	idx := int(r >> 8)
	if idx >= len(e.Texts) {
		idx = 0
	}
	if len(e.Texts) == 0 {
		return "", nil
	}
	return e.Texts[idx], nil
}

// PNG returns a small encoded black image.
func PNG() []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, image.NewGray(image.Rect(0, 0, 16, 16)))
	return buf.Bytes()
}
