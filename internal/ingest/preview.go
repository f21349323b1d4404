package ingest

import (
	"context"
	"errors"
	"strings"

	"github.com/toricodesthings/ocr-ingest-service/internal/apperr"
	"github.com/toricodesthings/ocr-ingest-service/internal/classify"
	"github.com/toricodesthings/ocr-ingest-service/internal/format"
	"github.com/toricodesthings/ocr-ingest-service/internal/types"
)

// Preview classifies a PDF and reports per-page text-layer word counts
// without rendering or OCR.
func (p *Processor) Preview(ctx context.Context, contentType string, data []byte) (types.PreviewResult, error) {
	family, err := classify.Detect(contentType, false)
	if err != nil {
		return types.PreviewResult{}, err
	}
	if family != classify.FamilyPDF {
		return types.PreviewResult{}, apperr.Validationf("preview only supports application/pdf")
	}
	if !p.PDFAvailable() {
		return types.PreviewResult{}, apperr.New(apperr.DependencyUnavailable, msgPDFMissing, errors.New("no pdf backend"))
	}

	doc, err := p.pdf.Open(ctx, data)
	if err != nil {
		return types.PreviewResult{}, apperr.New(apperr.UpstreamFailed, msgPDFFailed, err)
	}
	defer doc.Close()

	branch, err := classify.PDFBranch(ctx, doc)
	if err != nil {
		return types.PreviewResult{}, apperr.New(apperr.UpstreamFailed, msgPDFFailed, err)
	}

	n := doc.NumPage()
	details := make([]types.PreviewPage, 0, n)
	textLayer := 0
	for i := 0; i < n; i++ {
		txt, err := doc.Text(ctx, i)
		if err != nil {
			return types.PreviewResult{}, apperr.New(apperr.UpstreamFailed, msgPDFFailed, err)
		}
		has := strings.TrimSpace(txt) != ""
		if has {
			textLayer++
		}
		details = append(details, types.PreviewPage{Index: i, WordCount: format.CountWords(txt), HasText: has})
	}

	return types.PreviewResult{
		OK:             true,
		Type:           branch,
		Pages:          n,
		TextLayerPages: textLayer,
		NeedsOCR:       branch == types.BranchPDFScanned,
		PageDetails:    details,
	}, nil
}
