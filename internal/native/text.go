// Package native holds the native text extractors: direct decode for the text
// family (txt, md, html, xml, json, csv) and a per-page text-layer walk for
// PDFs. Native extraction never calls OCR; it only flags the pages that need it.
package native

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"

	"github.com/workspace-tools/doc-extraction-service/internal/types"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DecodeText decodes a text-family file into a string. UTF-8 (with or without
// BOM) and BOM-marked UTF-16 are accepted; anything else is a decode failure.
// Returned text is the input verbatim after decoding, no cleanup applied.
func DecodeText(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return "", fmt.Errorf("utf-16 decode: %w", err)
		}
		return string(out), nil
	case bytes.HasPrefix(data, bomUTF8):
		data = data[len(bomUTF8):]
	}

	// NUL bytes mean binary content mislabeled as text.
	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("binary content in text file")
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("invalid utf-8")
	}
	return string(data), nil
}

// ExtractText runs the text-family extractor: exactly one implicit page.
// A decode failure is recorded on the page, not raised. The minimum-signal
// gate does not apply here: text files have no raster to fall back to, and
// the decoded content is returned verbatim however short.
func ExtractText(data []byte) []types.NativePage {
	text, err := DecodeText(data)
	if err != nil {
		msg := types.ErrString(types.ErrDecode, err.Error())
		return []types.NativePage{{Index: 1, Empty: true, Error: &msg}}
	}
	return []types.NativePage{{Index: 1, Text: text, Empty: strings.TrimSpace(text) == ""}}
}
