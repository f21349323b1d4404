package ocr

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/toricodesthings/ocr-ingest-service/internal/execrun"
)

// CLI shells out to the tesseract binary. Useful where libtesseract cannot be
// linked but the executable is installed.
type CLI struct {
	bin       string
	opts      Options
	runner    execrun.Runner
	available bool
}

func NewCLI(bin string, opts Options, runner execrun.Runner) *CLI {
	if bin == "" {
		bin = "tesseract"
	}
	return &CLI{bin: bin, opts: opts, runner: runner, available: execrun.Available(bin)}
}

func (c *CLI) Name() string    { return "cli" }
func (c *CLI) Available() bool { return c.available }

func (c *CLI) Recognize(ctx context.Context, img image.Image, dpi int) (string, error) {
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}

	tmpDir, err := os.MkdirTemp("", "ocr-*")
	if err != nil {
		return "", fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	in := filepath.Join(tmpDir, "page.png")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}

	// tesseract <file> stdout -l <lang>
	args := []string{in, "stdout", "-l", strings.Join(c.opts.langs(), "+")}
	if dpi > 0 {
		args = append(args, "--dpi", strconv.Itoa(dpi))
	}
	if c.opts.TessdataDir != "" {
		args = append(args, "--tessdata-dir", c.opts.TessdataDir)
	}

	out, errb, err := c.runner.Run(ctx, c.bin, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(string(errb)))
	}
	return Clean(string(out)), nil
}
