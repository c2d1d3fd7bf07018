// Package classify maps a file's declared MIME type or extension to a
// capability tag. Pure and total: every input maps to a tag, Unsupported is
// the default for anything not recognized. No I/O.
package classify

import (
	"path/filepath"
	"strings"

	"github.com/workspace-tools/doc-extraction-service/internal/types"
)

var extTags = map[string]types.CapabilityTag{
	// directly decodable text formats
	"txt":      types.NativeText,
	"text":     types.NativeText,
	"md":       types.NativeText,
	"markdown": types.NativeText,
	"html":     types.NativeText,
	"htm":      types.NativeText,
	"xml":      types.NativeText,
	"json":     types.NativeText,
	"csv":      types.NativeText,
	"rtf":      types.NativeText,

	// text layer per page, OCR decided at extraction time
	"pdf": types.MayNeedOCR,

	// raster formats, OCR is the only route
	"png":  types.ImageOnly,
	"jpg":  types.ImageOnly,
	"jpeg": types.ImageOnly,
	"gif":  types.ImageOnly,
	"bmp":  types.ImageOnly,
	"tiff": types.ImageOnly,
	"tif":  types.ImageOnly,
	"webp": types.ImageOnly,

	// office / spreadsheet formats are explicitly unsupported
	"doc":  types.Unsupported,
	"docx": types.Unsupported,
	"odt":  types.Unsupported,
	"xls":  types.Unsupported,
	"xlsx": types.Unsupported,
	"ods":  types.Unsupported,
	"ppt":  types.Unsupported,
	"pptx": types.Unsupported,
}

var mimeTags = map[string]types.CapabilityTag{
	"application/pdf":  types.MayNeedOCR,
	"application/json": types.NativeText,
	"application/xml":  types.NativeText,
	"application/csv":  types.NativeText,
}

// File classifies by filename extension first, then by declared MIME type.
// Either argument may be empty.
func File(filename, mimeType string) types.CapabilityTag {
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."); ext != "" {
		if tag, ok := extTags[ext]; ok {
			return tag
		}
	}
	return Mime(mimeType)
}

// Mime classifies by MIME type alone.
func Mime(mimeType string) types.CapabilityTag {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt == "" {
		return types.Unsupported
	}
	if tag, ok := mimeTags[mt]; ok {
		return tag
	}
	switch {
	case strings.HasPrefix(mt, "text/"):
		return types.NativeText
	case strings.HasPrefix(mt, "image/"):
		return types.ImageOnly
	case strings.Contains(mt, "officedocument"), strings.Contains(mt, "msword"),
		strings.Contains(mt, "ms-excel"), strings.Contains(mt, "spreadsheet"):
		return types.Unsupported
	}
	return types.Unsupported
}

// Hints derives the pre-extraction hint pair surfaced to callers.
func Hints(tag types.CapabilityTag) types.ClassifyResult {
	return types.ClassifyResult{
		Tag:             tag,
		TextExtractable: tag.TextExtractable(),
		MayNeedOCR:      tag.NeedsOCRHint(),
	}
}
