package classify

import (
	"testing"

	"github.com/workspace-tools/doc-extraction-service/internal/types"
)

func TestFile(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		mimeType string
		want     types.CapabilityTag
	}{
		{"plain text", "notes.txt", "", types.NativeText},
		{"markdown", "README.md", "", types.NativeText},
		{"html", "page.html", "", types.NativeText},
		{"xml", "feed.xml", "", types.NativeText},
		{"json", "data.json", "", types.NativeText},
		{"csv", "table.csv", "", types.NativeText},
		{"pdf by extension", "report.pdf", "", types.MayNeedOCR},
		{"pdf by mime", "report", "application/pdf", types.MayNeedOCR},
		{"png", "scan.png", "", types.ImageOnly},
		{"jpeg", "photo.jpeg", "", types.ImageOnly},
		{"gif", "anim.gif", "", types.ImageOnly},
		{"bmp", "pic.bmp", "", types.ImageOnly},
		{"tiff", "fax.tiff", "", types.ImageOnly},
		{"webp", "shot.webp", "", types.ImageOnly},
		{"docx unsupported", "contract.docx", "", types.Unsupported},
		{"xlsx unsupported", "sheet.xlsx", "", types.Unsupported},
		{"odt unsupported", "letter.odt", "", types.Unsupported},
		{"uppercase extension", "NOTES.TXT", "", types.NativeText},
		{"extension wins over mime", "scan.png", "text/plain", types.ImageOnly},
		{"text mime family", "blob", "text/x-log", types.NativeText},
		{"image mime family", "blob", "image/heic", types.ImageOnly},
		{"mime with params", "blob", "text/plain; charset=utf-8", types.NativeText},
		{"office mime", "blob", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", types.Unsupported},
		{"unknown extension", "archive.tar.gz", "", types.Unsupported},
		{"nothing at all", "", "", types.Unsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := File(tt.filename, tt.mimeType); got != tt.want {
				t.Errorf("File(%q, %q) = %v, want %v", tt.filename, tt.mimeType, got, tt.want)
			}
		})
	}
}

func TestFileIsTotal(t *testing.T) {
	// Any garbage input still maps to a tag.
	for _, in := range []string{"", ".", "...", "no-extension", "weird.\x00ext"} {
		if got := File(in, in); got == "" {
			t.Errorf("File(%q, %q) returned empty tag", in, in)
		}
	}
}

func TestHints(t *testing.T) {
	tests := []struct {
		tag             types.CapabilityTag
		textExtractable bool
		mayNeedOCR      bool
	}{
		{types.NativeText, true, false},
		{types.MayNeedOCR, true, true},
		{types.ImageOnly, true, true},
		{types.Unsupported, false, false},
	}

	for _, tt := range tests {
		h := Hints(tt.tag)
		if h.TextExtractable != tt.textExtractable || h.MayNeedOCR != tt.mayNeedOCR {
			t.Errorf("Hints(%v) = %+v, want extractable=%v mayNeedOCR=%v",
				tt.tag, h, tt.textExtractable, tt.mayNeedOCR)
		}
	}
}
