// Package ingest runs the document pipeline: classify, extract per page,
// enrich, and assemble the response envelope.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/toricodesthings/ocr-ingest-service/internal/apperr"
	"github.com/toricodesthings/ocr-ingest-service/internal/classify"
	"github.com/toricodesthings/ocr-ingest-service/internal/format"
	"github.com/toricodesthings/ocr-ingest-service/internal/ocr"
	"github.com/toricodesthings/ocr-ingest-service/internal/pdfdoc"
	"github.com/toricodesthings/ocr-ingest-service/internal/types"
)

const (
	msgPDFFailed   = "PDF processing failed"
	msgImageFailed = "OCR failed while processing the uploaded image."
	msgPDFMissing  = "PDF support is not available on this server."
)

// Enricher is the optional post-extraction step.
type Enricher interface {
	Enrich(ctx context.Context, kind types.EnrichKind, text, hint string) *types.EnrichmentResult
}

type Options struct {
	DPI            float64
	MaxPageWorkers int
	MaxOCR         int64
}

type Processor struct {
	pdf      pdfdoc.Opener
	engine   ocr.Engine
	enricher Enricher
	ocrSem   *semaphore.Weighted
	opts     Options
	log      *zap.Logger
}

func New(pdf pdfdoc.Opener, engine ocr.Engine, enricher Enricher, opts Options, log *zap.Logger) *Processor {
	if opts.DPI <= 0 {
		opts.DPI = pdfdoc.DefaultDPI
	}
	if opts.MaxPageWorkers <= 0 {
		opts.MaxPageWorkers = 1
	}
	if opts.MaxOCR <= 0 {
		opts.MaxOCR = 1
	}
	if engine == nil {
		engine = ocr.Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		pdf:      pdf,
		engine:   engine,
		enricher: enricher,
		ocrSem:   semaphore.NewWeighted(opts.MaxOCR),
		opts:     opts,
		log:      log,
	}
}

func (p *Processor) OCRAvailable() bool { return p.engine.Available() }
func (p *Processor) OCREngine() string  { return p.engine.Name() }
func (p *Processor) PDFAvailable() bool { return p.pdf != nil && p.pdf.Available() }
func (p *Processor) PDFBackend() string {
	if p.pdf == nil {
		return "none"
	}
	return p.pdf.Name()
}

// Process runs one request through the pipeline. Returned errors are
// *apperr.Error values except for context cancellation.
func (p *Processor) Process(ctx context.Context, req types.IngestRequest) (types.IngestResponse, error) {
	family, err := classify.Detect(req.ContentType, req.Text != "")
	if err != nil {
		return types.IngestResponse{}, err
	}

	var resp types.IngestResponse
	switch family {
	case classify.FamilyText:
		resp = types.IngestResponse{OK: true, Type: types.BranchText, Pages: 1, Text: req.Text}
	case classify.FamilyImage:
		resp, err = p.processImage(ctx, req.Data)
	case classify.FamilyPDF:
		resp, err = p.processPDF(ctx, req.Data)
	}
	if err != nil {
		return types.IngestResponse{}, err
	}

	p.attachEnrichment(ctx, &resp, req)
	return resp, nil
}

func (p *Processor) processImage(ctx context.Context, data []byte) (types.IngestResponse, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return types.IngestResponse{}, apperr.New(apperr.UpstreamFailed, msgImageFailed, err)
	}

	texts, err := p.recognize(ctx, []pdfdoc.PageImage{{Index: 0, Image: img}}, 0)
	if err != nil {
		return types.IngestResponse{}, apperr.New(apperr.UpstreamFailed, msgImageFailed, err)
	}
	return types.IngestResponse{OK: true, Type: types.BranchImage, Pages: 1, Text: texts[0]}, nil
}

func (p *Processor) processPDF(ctx context.Context, data []byte) (types.IngestResponse, error) {
	if !p.PDFAvailable() {
		return types.IngestResponse{}, apperr.New(apperr.DependencyUnavailable, msgPDFMissing, errors.New("no pdf backend"))
	}

	doc, err := p.pdf.Open(ctx, data)
	if err != nil {
		return types.IngestResponse{}, apperr.New(apperr.UpstreamFailed, msgPDFFailed, err)
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil {
			p.log.Warn("close pdf", zap.Error(cerr))
		}
	}()

	branch, err := classify.PDFBranch(ctx, doc)
	if err != nil {
		return types.IngestResponse{}, apperr.New(apperr.UpstreamFailed, msgPDFFailed, err)
	}

	var pages []types.PageResult
	if branch == types.BranchPDFScanned {
		pages, err = p.extractScanned(ctx, doc)
	} else {
		pages, err = p.extractTextLayer(ctx, doc)
	}
	if err != nil {
		return types.IngestResponse{}, apperr.New(apperr.UpstreamFailed, msgPDFFailed, err)
	}

	p.log.Debug("pdf extracted",
		zap.String("type", string(branch)),
		zap.Int("pages", len(pages)),
		zap.String("backend", p.pdf.Name()),
	)

	return types.IngestResponse{
		OK:    true,
		Type:  branch,
		Pages: len(pages),
		Text:  format.Combine(pages),
	}, nil
}

func (p *Processor) extractTextLayer(ctx context.Context, doc pdfdoc.Document) ([]types.PageResult, error) {
	n := doc.NumPage()
	out := make([]types.PageResult, 0, n)
	for i := 0; i < n; i++ {
		txt, err := doc.Text(ctx, i)
		if err != nil {
			return nil, err
		}
		out = append(out, types.PageResult{Index: i, Text: txt})
	}
	return out, nil
}

func (p *Processor) extractScanned(ctx context.Context, doc pdfdoc.Document) ([]types.PageResult, error) {
	imgs, err := pdfdoc.RenderPages(ctx, doc, p.opts.DPI)
	if err != nil {
		return nil, err
	}
	texts, err := p.recognize(ctx, imgs, int(math.Round(p.opts.DPI)))
	if err != nil {
		return nil, err
	}
	out := make([]types.PageResult, len(imgs))
	for i, pi := range imgs {
		out[i] = types.PageResult{Index: pi.Index, Text: texts[i]}
	}
	return out, nil
}

// recognize OCRs images with a bounded worker group. texts[i] belongs to
// imgs[i]. An unavailable engine yields empty strings.
func (p *Processor) recognize(ctx context.Context, imgs []pdfdoc.PageImage, dpi int) ([]string, error) {
	texts := make([]string, len(imgs))
	if len(imgs) == 0 || !p.engine.Available() {
		return texts, nil
	}

	if err := p.ocrSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.ocrSem.Release(1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.MaxPageWorkers)
	for i := range imgs {
		g.Go(func() error {
			txt, err := p.engine.Recognize(gctx, imgs[i].Image, dpi)
			if err != nil {
				return err
			}
			texts[i] = txt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return texts, nil
}

func (p *Processor) attachEnrichment(ctx context.Context, resp *types.IngestResponse, req types.IngestRequest) {
	if p.enricher == nil || req.Enrich == types.EnrichNone {
		return
	}
	res := p.enricher.Enrich(ctx, req.Enrich, resp.Text, req.PromptHint)
	if res == nil {
		return
	}
	switch res.Kind {
	case types.EnrichAI:
		resp.AI = res.Raw
	case types.EnrichMath:
		resp.Math = &types.MathCleanup{
			OK:          true,
			CleanedText: res.CleanedText,
			LaTeX:       res.LaTeX,
			MathML:      res.MathML,
			Explanation: res.Explanation,
		}
	}
}
