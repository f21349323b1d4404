// Package classify decides which extraction branch a payload takes.
package classify

import (
	"context"
	"fmt"
	"mime"
	"strings"

	"github.com/toricodesthings/ocr-ingest-service/internal/apperr"
	"github.com/toricodesthings/ocr-ingest-service/internal/types"
)

// Family is the coarse payload family derived from the declared content type.
type Family int

const (
	FamilyText Family = iota
	FamilyImage
	FamilyPDF
)

// PageTexter is the slice of a PDF document the scanned-page check needs.
type PageTexter interface {
	NumPage() int
	Text(ctx context.Context, page int) (string, error)
}

// MediaType normalises a declared content type: lower-cased, parameters
// dropped. Unparseable values are returned trimmed and lower-cased.
func MediaType(contentType string) string {
	ct := strings.TrimSpace(contentType)
	if ct == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return strings.ToLower(ct)
}

// Detect maps a declared content type to a payload family. hasText reports
// whether raw text was supplied directly.
func Detect(contentType string, hasText bool) (Family, error) {
	mt := MediaType(contentType)
	switch {
	case mt == "":
		if !hasText {
			return 0, apperr.Validationf("text is required when content_type is not set")
		}
		return FamilyText, nil
	case strings.HasPrefix(mt, "image/"):
		return FamilyImage, nil
	case mt == "application/pdf":
		return FamilyPDF, nil
	default:
		return 0, apperr.New(apperr.Validation, "Unsupported content_type", fmt.Errorf("unsupported_content_type: %q", mt))
	}
}

// PDFBranch inspects the first page's text layer. Empty documents count as
// text-native; a whitespace-only first page marks the document as scanned.
func PDFBranch(ctx context.Context, doc PageTexter) (types.Branch, error) {
	if doc.NumPage() == 0 {
		return types.BranchPDFText, nil
	}
	txt, err := doc.Text(ctx, 0)
	if err != nil {
		return "", fmt.Errorf("read first page text: %w", err)
	}
	if strings.TrimSpace(txt) == "" {
		return types.BranchPDFScanned, nil
	}
	return types.BranchPDFText, nil
}
