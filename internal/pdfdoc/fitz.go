package pdfdoc

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// FitzOpener uses MuPDF through go-fitz for both text and rendering.
type FitzOpener struct{}

func NewFitzOpener() *FitzOpener { return &FitzOpener{} }

func (FitzOpener) Name() string    { return "fitz" }
func (FitzOpener) Available() bool { return true }

func (FitzOpener) Open(ctx context.Context, data []byte) (Document, error) {
	if err := CheckMagic(data); err != nil {
		return nil, err
	}
	d, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("fitz open: %w", err)
	}
	return &fitzDoc{d: d}, nil
}

type fitzDoc struct {
	d *fitz.Document
}

func (f *fitzDoc) NumPage() int { return f.d.NumPage() }

func (f *fitzDoc) Text(ctx context.Context, page int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.d.Text(page)
}

func (f *fitzDoc) Render(ctx context.Context, page int, dpi float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.d.ImageDPI(page, dpi)
}

func (f *fitzDoc) Close() error { return f.d.Close() }
