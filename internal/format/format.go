package format

import (
	"fmt"
	"sort"
	"strings"

	"github.com/toricodesthings/ocr-ingest-service/internal/types"
)

// PageLabel is the prefix written before each page's text.
func PageLabel(index int) string {
	return fmt.Sprintf("[page %d]", index+1)
}

// Combine folds page results into a single text, ordered by page index, each
// page prefixed with its 1-based label and joined by newlines. Page text is
// kept verbatim.
func Combine(pages []types.PageResult) string {
	sorted := make([]types.PageResult, len(pages))
	copy(sorted, pages)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	parts := make([]string, 0, len(sorted))
	for _, p := range sorted {
		parts = append(parts, PageLabel(p.Index)+" "+p.Text)
	}
	return strings.Join(parts, "\n")
}

func CountWords(s string) int {
	return len(strings.Fields(s))
}
