package pdfdoc

import (
	"context"
	"fmt"
	"image"
)

type PageImage struct {
	Index int
	Image image.Image
}

// RenderPages rasterises every page in order. The first failing page aborts
// the whole document.
func RenderPages(ctx context.Context, doc Document, dpi float64) ([]PageImage, error) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	n := doc.NumPage()
	out := make([]PageImage, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.Render(ctx, i, dpi)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}
		out = append(out, PageImage{Index: i, Image: Flatten(img)})
	}
	return out, nil
}
