package native

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/workspace-tools/doc-extraction-service/internal/quality"
	"github.com/workspace-tools/doc-extraction-service/internal/types"
)

// ExtractPDF walks every page of a PDF and pulls the embedded text layer.
// A page whose text falls below the minimum-signal threshold is flagged Empty,
// which triggers OCR fallback for that page only. A corrupt page is recorded
// and the walk continues; a document that cannot be opened at all is the only
// hard error.
func ExtractPDF(data []byte, minTextLen int) ([]types.NativePage, error) {
	reader, total, err := openPDF(data)
	if err != nil {
		return nil, err
	}

	pages := make([]types.NativePage, 0, total)
	for i := 1; i <= total; i++ {
		text, pageErr := pageText(reader, i)
		if pageErr != nil {
			msg := types.ErrString(types.ErrCorruptPage, pageErr.Error())
			pages = append(pages, types.NativePage{Index: i, Empty: true, Error: &msg})
			continue
		}
		d := quality.Score(text, minTextLen)
		pages = append(pages, types.NativePage{Index: i, Text: text, Empty: d.NeedsOCR})
	}
	return pages, nil
}

// openPDF parses the document trailer. The parser panics on some malformed
// inputs instead of returning an error, so the recover turns both shapes into
// one "cannot open" failure.
func openPDF(data []byte) (reader *pdf.Reader, total int, err error) {
	defer func() {
		if r := recover(); r != nil {
			reader, total, err = nil, 0, fmt.Errorf("open pdf: %v", r)
		}
	}()

	reader, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("open pdf: %w", err)
	}
	total = reader.NumPage()
	if total <= 0 {
		return nil, 0, fmt.Errorf("pdf has no pages")
	}
	return reader, total, nil
}

// pageText extracts one page's text layer. The parser can panic on malformed
// content streams, so the recover here keeps a bad page from sinking its
// siblings.
func pageText(reader *pdf.Reader, num int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: %v", num, r)
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d: missing page object", num)
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("page %d: %w", num, err)
	}
	return text, nil
}
