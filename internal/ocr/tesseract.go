package ocr

import (
	"context"
	"fmt"
	"image"
	"strconv"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract runs libtesseract in-process through gosseract. A fresh client is
// created per image so concurrent pages never share one.
type Tesseract struct {
	opts          Options
	clientFactory func() *gosseract.Client
}

func NewTesseract(opts Options) *Tesseract {
	return &Tesseract{opts: opts, clientFactory: gosseract.NewClient}
}

func (t *Tesseract) Name() string    { return "tesseract" }
func (t *Tesseract) Available() bool { return true }

func (t *Tesseract) Recognize(ctx context.Context, img image.Image, dpi int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}

	c := t.clientFactory()
	defer c.Close()

	if t.opts.TessdataDir != "" {
		if err := c.SetTessdataPrefix(t.opts.TessdataDir); err != nil {
			return "", fmt.Errorf("set tessdata: %w", err)
		}
	}
	if err := c.SetLanguage(t.opts.langs()...); err != nil {
		return "", fmt.Errorf("set languages: %w", err)
	}
	if dpi > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(dpi)); err != nil {
			return "", fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return Clean(text), nil
}
