package types

import "strings"

// CapabilityTag classifies a file's extraction strategy before any bytes are
// read. It is a pure function of the declared MIME type / extension.
type CapabilityTag string

const (
	NativeText  CapabilityTag = "native_text"  // direct text decode
	MayNeedOCR  CapabilityTag = "may_need_ocr" // PDF: decided per page at extraction time
	ImageOnly   CapabilityTag = "image_only"   // raster image, OCR is the only route
	Unsupported CapabilityTag = "unsupported"
)

// TextExtractable reports the pre-extraction "can we get text at all" hint.
func (t CapabilityTag) TextExtractable() bool {
	return t == NativeText || t == MayNeedOCR || t == ImageOnly
}

// NeedsOCRHint reports whether OCR may be involved for this tag.
func (t CapabilityTag) NeedsOCRHint() bool {
	return t == MayNeedOCR || t == ImageOnly
}

// Extraction methods, per page and document-wide.
const (
	MethodNative = "native"
	MethodOCR    = "ocr"
	MethodMixed  = "mixed" // document-level only
	MethodNone   = "none"
)

// Error kinds. Page-level kinds are recorded on the PageResult and never abort
// sibling pages; only UnsupportedFormat and a fully-empty extraction produce a
// document-level failure.
const (
	ErrUnsupportedFormat = "UnsupportedFormat"
	ErrDownloadFailure   = "DownloadFailure"
	ErrDecode            = "DecodeError"
	ErrCorruptPage       = "CorruptPage"
	ErrRasterization     = "RasterizationError"
	ErrOCRTimeout        = "OCRTimeout"
	ErrOCRUnavailable    = "OCRUnavailable"

	// StatusPartial marks a successful document where some pages failed.
	StatusPartial = "PartialExtraction"
)

// ErrString formats an error kind with optional detail, e.g. "DecodeError: bad utf-8".
func ErrString(kind, detail string) string {
	if strings.TrimSpace(detail) == "" {
		return kind
	}
	return kind + ": " + detail
}

// FileDescriptor identifies a file handed to the pipeline by the surrounding
// workspace integration. Immutable; the pipeline reads it, never mutates it.
type FileDescriptor struct {
	RequestID string `json:"requestId"` // correlation id, assigned per request
	Filename  string `json:"filename"`
	MimeType  string `json:"mimeType"` // declared, not trusted
	Size      int64  `json:"size"`
	SourceURL string `json:"sourceUrl,omitempty"` // opaque download handle
}

// PageResult is the outcome for one page. Index is 1-based and sequence order
// is significant. Text is never null: empty string on failure.
type PageResult struct {
	Index      int      `json:"index"`
	Method     string   `json:"method"` // native | ocr | none
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"` // set only when Method == ocr
	Error      *string  `json:"error"`
}

// DocumentResult is the final contract returned to the caller.
type DocumentResult struct {
	Success         bool         `json:"success"`
	Content         string       `json:"content"` // concatenated, page-separated
	Method          string       `json:"extraction_method"`
	Pages           []PageResult `json:"pages"`
	MayNeedOCR      bool         `json:"may_need_ocr"`     // classifier hint
	TextExtractable bool         `json:"text_extractable"` // classifier hint
	Status          string       `json:"status,omitempty"` // PartialExtraction when applicable
	Error           *string      `json:"error"`
}

// ReduceMethod derives the document-wide extraction method from the per-page
// methods. Deterministic, no side information.
func ReduceMethod(pages []PageResult) string {
	var native, ocr, none int
	for _, p := range pages {
		switch p.Method {
		case MethodNative:
			native++
		case MethodOCR:
			ocr++
		default:
			none++
		}
	}
	switch {
	case native+ocr == 0:
		return MethodNone
	case ocr == 0 && none == 0:
		return MethodNative
	case native == 0 && none == 0:
		return MethodOCR
	default:
		return MethodMixed
	}
}

// NativePage is a native-extraction outcome for one page, before assembly.
// Empty marks a page whose text fell below the minimum-signal threshold; it is
// the trigger for OCR fallback on that page only.
type NativePage struct {
	Index int
	Text  string
	Empty bool
	Error *string
}

// OCRPage is a recognition outcome for one page flagged empty.
type OCRPage struct {
	Index      int
	Text       string
	Confidence float64
	Error      *string
}

// ExtractOptions are the per-request knobs. Zero values mean "use configured
// default"; the pipeline fills them in via ApplyDefaults.
type ExtractOptions struct {
	// OCREnabled opts out of the OCR fallback. Fallback is the default: a nil
	// (omitted) value means enabled; only an explicit false disables it.
	OCREnabled    *bool  `json:"ocrEnabled,omitempty"`
	MinTextLen    int    `json:"minTextLen"`    // minimum-signal threshold per page
	RasterDPI     int    `json:"rasterDpi"`     // PDF page render resolution
	PageSeparator string `json:"pageSeparator"` // boundary between pages in Content
}

// ExtractRequest is the HTTP input contract. Exactly one of SourceURL or
// ContentBase64 must be set.
type ExtractRequest struct {
	SourceURL     string         `json:"sourceUrl,omitempty"`
	ContentBase64 string         `json:"contentBase64,omitempty"`
	Filename      string         `json:"filename"`
	MimeType      string         `json:"mimeType,omitempty"`
	Options       ExtractOptions `json:"options"`
}

// BatchExtractRequest extracts several documents with bounded concurrency.
type BatchExtractRequest struct {
	Files []ExtractRequest `json:"files"`
}

// BatchExtractResult pairs each input with its result, input order preserved.
type BatchExtractResult struct {
	Results []DocumentResult `json:"results"`
}

// ClassifyRequest asks for pre-flight hints only; nothing is downloaded.
type ClassifyRequest struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType,omitempty"`
}

// ClassifyResult echoes the capability tag and derived hints.
type ClassifyResult struct {
	Tag             CapabilityTag `json:"tag"`
	TextExtractable bool          `json:"text_extractable"`
	MayNeedOCR      bool          `json:"may_need_ocr"`
}
