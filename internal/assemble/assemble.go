// Package assemble merges per-page native and OCR outcomes into one ordered
// document result. The merge is deterministic: native text wins where it
// exists, OCR substitutes where the page was flagged empty, and a page both
// attempts failed on stays "none" with its error retained.
package assemble

import (
	"strings"

	"github.com/workspace-tools/doc-extraction-service/internal/types"
)

// DefaultPageSeparator keeps a clear boundary between pages without touching
// the page text itself.
const DefaultPageSeparator = "\n\n---\n\n"

// Merge combines native and OCR page outcomes. ocrPages is keyed by 1-based
// page index and holds only the pages that went through fallback; every native
// page index appears exactly once in the output, in document order.
func Merge(nativePages []types.NativePage, ocrPages map[int]types.OCRPage, sep string) types.DocumentResult {
	if sep == "" {
		sep = DefaultPageSeparator
	}

	pages := make([]types.PageResult, 0, len(nativePages))
	for _, np := range nativePages {
		pages = append(pages, mergePage(np, ocrPages))
	}

	return Finalize(pages, sep)
}

func mergePage(np types.NativePage, ocrPages map[int]types.OCRPage) types.PageResult {
	if !np.Empty {
		return types.PageResult{Index: np.Index, Method: types.MethodNative, Text: np.Text}
	}

	op, ok := ocrPages[np.Index]
	if ok && strings.TrimSpace(op.Text) != "" {
		conf := op.Confidence
		return types.PageResult{
			Index:      np.Index,
			Method:     types.MethodOCR,
			Text:       op.Text,
			Confidence: &conf,
			Error:      op.Error,
		}
	}

	// Both routes came up empty. Prefer the OCR error when fallback ran,
	// otherwise keep whatever the native attempt recorded.
	errMsg := np.Error
	if ok && op.Error != nil {
		errMsg = op.Error
	}
	return types.PageResult{Index: np.Index, Method: types.MethodNone, Text: "", Error: errMsg}
}

// Finalize computes the document-level fields from an ordered page set:
// concatenated content, reduced method, success flag and partial status.
func Finalize(pages []types.PageResult, sep string) types.DocumentResult {
	if sep == "" {
		sep = DefaultPageSeparator
	}

	var parts []string
	failed := 0
	for _, p := range pages {
		if p.Method == types.MethodNone || p.Text == "" {
			if p.Method == types.MethodNone {
				failed++
			}
			continue
		}
		parts = append(parts, p.Text)
	}

	res := types.DocumentResult{
		Success: len(parts) > 0,
		Content: strings.Join(parts, sep),
		Method:  types.ReduceMethod(pages),
		Pages:   pages,
	}

	if res.Success && failed > 0 {
		res.Status = types.StatusPartial
	}
	if !res.Success {
		msg := documentError(pages)
		res.Error = &msg
	}
	return res
}

// documentError summarizes why nothing usable came out. The first page-level
// error stands in for the document when present.
func documentError(pages []types.PageResult) string {
	for _, p := range pages {
		if p.Error != nil {
			return *p.Error
		}
	}
	return "no extractable text"
}
