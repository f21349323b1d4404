// Package pdfdoc opens PDF documents through a pluggable backend and exposes
// the two capabilities the ingestion pipeline needs: the per-page text layer
// and page rasterisation.
package pdfdoc

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// PointsPerInch is the native PDF user-space unit.
const PointsPerInch = 72.0

// DefaultDPI is the rasterisation resolution used for scanned documents.
const DefaultDPI = 200.0

var ErrNotPDF = errors.New("payload is not a PDF")

// Document is an opened PDF. Pages are 0-indexed.
type Document interface {
	NumPage() int
	Text(ctx context.Context, page int) (string, error)
	Render(ctx context.Context, page int, dpi float64) (image.Image, error)
	Close() error
}

// Opener opens PDF bytes into a Document.
type Opener interface {
	Name() string
	Available() bool
	Open(ctx context.Context, data []byte) (Document, error)
}

// Scale is the linear zoom applied to both axes when rendering at dpi.
func Scale(dpi float64) float64 {
	return dpi / PointsPerInch
}

// ScaledSize returns the pixel size of a page of w x h points rendered at dpi.
func ScaledSize(w, h, dpi float64) (int, int) {
	s := Scale(dpi)
	return int(w*s + 0.5), int(h*s + 0.5)
}

// Flatten composites img over white and returns an opaque RGBA copy.
func Flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// CheckMagic verifies that data carries a PDF header near its start.
func CheckMagic(data []byte) error {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if !bytes.Contains(head, []byte("%PDF-")) {
		return ErrNotPDF
	}
	return nil
}
