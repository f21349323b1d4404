package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/toricodesthings/ocr-ingest-service/internal/execrun"
)

var rePages = regexp.MustCompile(`(?m)^Pages:\s+(\d+)\s*$`)

// PopplerBins names the poppler-utils binaries.
type PopplerBins struct {
	Pdfinfo   string
	Pdftotext string
	Pdftoppm  string
}

// PopplerOpener shells out to poppler-utils. The document is spooled to a
// private temp dir that Close removes.
type PopplerOpener struct {
	bins      PopplerBins
	runner    execrun.Runner
	available bool
}

func NewPopplerOpener(bins PopplerBins, runner execrun.Runner) *PopplerOpener {
	if bins.Pdfinfo == "" {
		bins.Pdfinfo = "pdfinfo"
	}
	if bins.Pdftotext == "" {
		bins.Pdftotext = "pdftotext"
	}
	if bins.Pdftoppm == "" {
		bins.Pdftoppm = "pdftoppm"
	}
	return &PopplerOpener{
		bins:      bins,
		runner:    runner,
		available: execrun.Available(bins.Pdfinfo, bins.Pdftotext, bins.Pdftoppm),
	}
}

func (p *PopplerOpener) Name() string    { return "poppler" }
func (p *PopplerOpener) Available() bool { return p.available }

func (p *PopplerOpener) Open(ctx context.Context, data []byte) (Document, error) {
	if err := CheckMagic(data); err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "pdfdoc-*")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }

	path := filepath.Join(tmpDir, "doc.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		cleanup()
		return nil, fmt.Errorf("spool pdf: %w", err)
	}

	out, _, err := p.runner.Run(ctx, p.bins.Pdfinfo, path)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("pdfinfo: %w", err)
	}
	m := rePages.FindSubmatch(out)
	if len(m) != 2 {
		cleanup()
		return nil, fmt.Errorf("pdfinfo: pages not found")
	}
	n, err := strconv.Atoi(string(m[1]))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("pdfinfo: %w", err)
	}

	return &popplerDoc{opener: p, dir: tmpDir, path: path, pages: n}, nil
}

type popplerDoc struct {
	opener *PopplerOpener
	dir    string
	path   string
	pages  int
}

func (d *popplerDoc) NumPage() int { return d.pages }

func (d *popplerDoc) Text(ctx context.Context, page int) (string, error) {
	if page < 0 || page >= d.pages {
		return "", fmt.Errorf("page %d out of range", page)
	}
	n := strconv.Itoa(page + 1)
	out, _, err := d.opener.runner.Run(ctx, d.opener.bins.Pdftotext,
		"-f", n, "-l", n,
		"-enc", "UTF-8", "-eol", "unix",
		d.path, "-",
	)
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	// pdftotext terminates every page with a form feed
	return strings.TrimSuffix(string(out), "\f"), nil
}

func (d *popplerDoc) Render(ctx context.Context, page int, dpi float64) (image.Image, error) {
	if page < 0 || page >= d.pages {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	n := strconv.Itoa(page + 1)
	prefix := filepath.Join(d.dir, "page-"+n)

	// pdftoppm -f N -l N -r DPI -png -singlefile <in.pdf> <prefix>  ->  <prefix>.png
	_, errb, err := d.opener.runner.Run(ctx, d.opener.bins.Pdftoppm,
		"-f", n, "-l", n,
		"-r", strconv.FormatFloat(dpi, 'f', -1, 64),
		"-png", "-singlefile",
		d.path, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(string(errb)))
	}

	pngPath := prefix + ".png"
	defer os.Remove(pngPath)
	raw, err := os.ReadFile(pngPath)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm produced no image: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode page image: %w", err)
	}
	return img, nil
}

func (d *popplerDoc) Close() error {
	return os.RemoveAll(d.dir)
}
