package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toricodesthings/ocr-ingest-service/internal/apperr"
	"github.com/toricodesthings/ocr-ingest-service/internal/types"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		ct      string
		hasText bool
		want    Family
		wantErr bool
	}{
		{"plain text", "", true, FamilyText, false},
		{"missing text", "", false, 0, true},
		{"png", "image/png", false, FamilyImage, false},
		{"jpeg upper", "IMAGE/JPEG", false, FamilyImage, false},
		{"pdf", "application/pdf", false, FamilyPDF, false},
		{"pdf with params", "application/pdf; name=notes.pdf", false, FamilyPDF, false},
		{"text/plain is unsupported", "text/plain", true, 0, true},
		{"docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", false, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(tt.ct, tt.hasText)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperr.Validation, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type pages []string

func (p pages) NumPage() int { return len(p) }
func (p pages) Text(ctx context.Context, i int) (string, error) {
	if p[i] == "<err>" {
		return "", errors.New("broken page")
	}
	return p[i], nil
}

func TestPDFBranch(t *testing.T) {
	ctx := context.Background()

	b, err := PDFBranch(ctx, pages{"Chapter 1\nLimits", ""})
	require.NoError(t, err)
	assert.Equal(t, types.BranchPDFText, b)

	b, err = PDFBranch(ctx, pages{" \n\t ", "text on page two"})
	require.NoError(t, err)
	assert.Equal(t, types.BranchPDFScanned, b, "only the first page is inspected")

	b, err = PDFBranch(ctx, pages{})
	require.NoError(t, err)
	assert.Equal(t, types.BranchPDFText, b)

	_, err = PDFBranch(ctx, pages{"<err>"})
	assert.Error(t, err)
}
