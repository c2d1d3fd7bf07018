package native

import (
	"strings"
	"testing"

	"golang.org/x/text/encoding/unicode"

	"github.com/workspace-tools/doc-extraction-service/internal/types"
)

func TestDecodeTextRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"ascii", "plain ascii text\nwith two lines"},
		{"utf8", "naïve café — über 漢字"},
		{"json body", `{"key": "value", "n": 42}`},
		{"csv body", "a,b,c\n1,2,3\n"},
		{"trailing whitespace preserved", "line one  \nline two\t\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeText([]byte(tt.in))
			if err != nil {
				t.Fatalf("DecodeText: %v", err)
			}
			if got != tt.in {
				t.Errorf("DecodeText round-trip mismatch:\n got %q\nwant %q", got, tt.in)
			}
		})
	}
}

func TestDecodeTextUTF8BOM(t *testing.T) {
	in := append([]byte{0xEF, 0xBB, 0xBF}, []byte("bom stripped")...)
	got, err := DecodeText(in)
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if got != "bom stripped" {
		t.Errorf("got %q, want %q", got, "bom stripped")
	}
}

func TestDecodeTextUTF16(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	in, err := enc.Bytes([]byte("utf-16 content with ümlauts"))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	got, err := DecodeText(in)
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if got != "utf-16 content with ümlauts" {
		t.Errorf("got %q", got)
	}
}

func TestDecodeTextRejectsBinary(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"nul bytes", []byte("pretend\x00text")},
		{"invalid utf8", []byte{0xC3, 0x28, 0xA0, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeText(tt.in); err == nil {
				t.Error("expected decode error, got nil")
			}
		})
	}
}

func TestExtractTextSinglePage(t *testing.T) {
	body := strings.Repeat("a sensible amount of text. ", 10)
	pages := ExtractText([]byte(body))

	if len(pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(pages))
	}
	p := pages[0]
	if p.Index != 1 || p.Empty || p.Text != body || p.Error != nil {
		t.Errorf("unexpected page: %+v", p)
	}
}

func TestExtractTextShortContentKeptVerbatim(t *testing.T) {
	pages := ExtractText([]byte("ok"))

	if len(pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(pages))
	}
	p := pages[0]
	if p.Empty || p.Text != "ok" {
		t.Errorf("short text must stay native and verbatim: %+v", p)
	}
}

func TestExtractTextBlankContentFlaggedEmpty(t *testing.T) {
	pages := ExtractText([]byte("  \n\t "))

	if len(pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(pages))
	}
	if !pages[0].Empty {
		t.Errorf("whitespace-only file should be flagged empty: %+v", pages[0])
	}
}

func TestExtractTextDecodeFailureRecordedOnPage(t *testing.T) {
	pages := ExtractText([]byte("bad\x00bytes"))

	if len(pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(pages))
	}
	p := pages[0]
	if !p.Empty || p.Text != "" || p.Error == nil {
		t.Fatalf("unexpected page: %+v", p)
	}
	if !strings.HasPrefix(*p.Error, types.ErrDecode) {
		t.Errorf("error %q should carry kind %s", *p.Error, types.ErrDecode)
	}
}
