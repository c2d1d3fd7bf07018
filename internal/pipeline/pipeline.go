// Package pipeline orchestrates extraction for one document: classification,
// the native attempt, the per-page OCR fallback decision, and final assembly.
//
// States run strictly in order: Classified -> NativeAttempted ->
// (OCRAttempted)? -> Assembled. OCR is a fallback, never a default: pages with
// usable native text are not re-processed.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/workspace-tools/doc-extraction-service/internal/assemble"
	"github.com/workspace-tools/doc-extraction-service/internal/classify"
	"github.com/workspace-tools/doc-extraction-service/internal/config"
	"github.com/workspace-tools/doc-extraction-service/internal/native"
	"github.com/workspace-tools/doc-extraction-service/internal/ocr"
	"github.com/workspace-tools/doc-extraction-service/internal/raster"
	"github.com/workspace-tools/doc-extraction-service/internal/types"
)

// PageRenderer renders one 1-based PDF page to an OCR-ready raster.
type PageRenderer interface {
	RenderPage(ctx context.Context, pdfPath string, page int, dpi int) (raster.Raster, func(), error)
}

// Coordinator runs the extraction state machine. One instance serves all
// requests; per-document state lives on the stack of Extract.
type Coordinator struct {
	cfg    config.Config
	engine ocr.Engine
	render PageRenderer

	// fromImage is the ImageOnly rasterization hook; swapped in tests.
	fromImage func(data []byte) (raster.Raster, func(), error)

	// ocrSem bounds in-flight recognitions service-wide: OCR is the dominant
	// latency cost and the backend has finite capacity.
	ocrSem *semaphore.Weighted

	log *slog.Logger
}

func New(cfg config.Config, engine ocr.Engine, render PageRenderer, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	max := cfg.MaxOCRConcurrent
	if max <= 0 {
		max = 4
	}
	return &Coordinator{
		cfg:       cfg,
		engine:    engine,
		render:    render,
		fromImage: raster.FromImage,
		ocrSem:    semaphore.NewWeighted(max),
		log:       log,
	}
}

// WithImageRasterizer swaps the ImageOnly rasterization hook; test hook.
func (c *Coordinator) WithImageRasterizer(fn func([]byte) (raster.Raster, func(), error)) *Coordinator {
	c.fromImage = fn
	return c
}

// ApplyDefaults fills zero-valued request options from config. An omitted
// OCREnabled means the fallback runs; callers must opt out explicitly.
func (c *Coordinator) ApplyDefaults(o types.ExtractOptions) types.ExtractOptions {
	if o.OCREnabled == nil {
		on := true
		o.OCREnabled = &on
	}
	if o.MinTextLen <= 0 {
		o.MinTextLen = c.cfg.DefaultMinTextLen
	}
	if o.RasterDPI <= 0 {
		o.RasterDPI = c.cfg.DefaultRasterDPI
	}
	if o.PageSeparator == "" {
		o.PageSeparator = c.cfg.DefaultPageSeparator
	}
	return o
}

// Extract runs the full pipeline for one document. It never returns an error:
// every failure mode resolves to a structured DocumentResult.
func (c *Coordinator) Extract(ctx context.Context, desc types.FileDescriptor, data []byte, opts types.ExtractOptions) types.DocumentResult {
	opts = c.ApplyDefaults(opts)
	start := time.Now()

	// Classified
	tag := classify.File(desc.Filename, desc.MimeType)
	hints := classify.Hints(tag)

	log := c.log.With("request_id", desc.RequestID, "filename", desc.Filename, "tag", string(tag))

	if tag == types.Unsupported {
		msg := types.ErrUnsupportedFormat
		log.Info("extraction rejected", "error", msg)
		return withHints(types.DocumentResult{
			Success: false,
			Method:  types.MethodNone,
			Pages:   []types.PageResult{},
			Error:   &msg,
		}, hints)
	}

	// NativeAttempted
	var (
		nativePages []types.NativePage
		pdfPath     string
		pdfCleanup  func()
	)
	switch tag {
	case types.NativeText:
		nativePages = native.ExtractText(data)
	case types.MayNeedOCR:
		var err error
		nativePages, err = native.ExtractPDF(data, opts.MinTextLen)
		if err != nil {
			msg := types.ErrString(types.ErrCorruptPage, err.Error())
			log.Warn("pdf unreadable", "error", err)
			return withHints(types.DocumentResult{
				Success: false,
				Method:  types.MethodNone,
				Pages:   []types.PageResult{},
				Error:   &msg,
			}, hints)
		}
		pdfPath, pdfCleanup = c.spoolPDF(data)
		if pdfCleanup != nil {
			defer pdfCleanup()
		}
	case types.ImageOnly:
		// No native text to attempt: the whole image is one page flagged empty.
		nativePages = []types.NativePage{{Index: 1, Empty: true}}
	}

	// OCRAttempted (conditional)
	ocrPages := map[int]types.OCRPage{}
	empties := fallbackCandidates(tag, nativePages)
	if len(empties) > 0 {
		if *opts.OCREnabled {
			ocrPages = c.runFallback(ctx, log, tag, data, pdfPath, empties, opts)
		} else {
			log.Info("ocr fallback disabled by caller", "empty_pages", len(empties))
		}
	}

	// Assembled
	res := withHints(assemble.Merge(nativePages, ocrPages, opts.PageSeparator), hints)

	// An OCR-only document with fallback disabled has no route to text;
	// surface why instead of a bare empty result.
	if !res.Success && !*opts.OCREnabled && len(empties) > 0 && res.Error != nil && *res.Error == "no extractable text" {
		msg := types.ErrString(types.ErrOCRUnavailable, "ocr disabled by caller")
		res.Error = &msg
	}

	log.Info("extraction complete",
		"success", res.Success,
		"method", res.Method,
		"pages", len(res.Pages),
		"ocr_pages", len(ocrPages),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res
}

// Document is one unit of batch work.
type Document struct {
	Desc types.FileDescriptor
	Data []byte
	Opts types.ExtractOptions
}

// ExtractBatch runs several documents with bounded concurrency. Results keep
// input order. Documents are independent; one failing never aborts the rest.
func (c *Coordinator) ExtractBatch(ctx context.Context, docs []Document) []types.DocumentResult {
	limit := c.cfg.MaxBatchWorkers
	if limit <= 0 {
		limit = 4
	}

	results := make([]types.DocumentResult, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			results[i] = c.Extract(gctx, doc.Desc, doc.Data, doc.Opts)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// fallbackCandidates picks the pages eligible for OCR. Text-family files have
// nothing to rasterize, so low-signal text pages stay native rather than
// pretending OCR could help.
func fallbackCandidates(tag types.CapabilityTag, pages []types.NativePage) []types.NativePage {
	if tag == types.NativeText {
		return nil
	}
	var out []types.NativePage
	for _, p := range pages {
		if p.Empty {
			out = append(out, p)
		}
	}
	return out
}

// runFallback rasterizes and recognizes every empty page, concurrently up to
// the service-wide OCR bound, inside the document's time budget. Pages the
// budget cuts off come back as OCR timeouts; completed pages survive.
func (c *Coordinator) runFallback(ctx context.Context, log *slog.Logger, tag types.CapabilityTag, data []byte, pdfPath string, empties []types.NativePage, opts types.ExtractOptions) map[int]types.OCRPage {
	budget := c.cfg.ExtractTimeout
	if budget <= 0 {
		budget = 160 * time.Second
	}
	docCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	out := make([]types.OCRPage, len(empties))
	g, gctx := errgroup.WithContext(docCtx)
	for i, page := range empties {
		i, page := i, page
		g.Go(func() error {
			out[i] = c.ocrPage(gctx, log, tag, data, pdfPath, page.Index, opts)
			return nil // page errors live on the page, never abort siblings
		})
	}
	_ = g.Wait()

	merged := make(map[int]types.OCRPage, len(out))
	for _, p := range out {
		merged[p.Index] = p
	}
	return merged
}

// ocrPage runs rasterize -> recognize for one page. Each worker owns its page
// exclusively; results meet only at the assembly join point.
func (c *Coordinator) ocrPage(ctx context.Context, log *slog.Logger, tag types.CapabilityTag, data []byte, pdfPath string, index int, opts types.ExtractOptions) types.OCRPage {
	if err := c.ocrSem.Acquire(ctx, 1); err != nil {
		msg := types.ErrString(types.ErrOCRTimeout, "document budget exhausted before recognition")
		return types.OCRPage{Index: index, Error: &msg}
	}
	defer c.ocrSem.Release(1)

	var (
		page    raster.Raster
		cleanup func()
		err     error
	)
	if tag == types.ImageOnly {
		page, cleanup, err = c.fromImage(data)
	} else {
		page, cleanup, err = c.render.RenderPage(ctx, pdfPath, index, opts.RasterDPI)
	}
	if err != nil {
		kind := types.ErrRasterization
		if ctx.Err() != nil {
			kind = types.ErrOCRTimeout
		}
		msg := types.ErrString(kind, err.Error())
		log.Warn("rasterization failed", "page", index, "error", err)
		return types.OCRPage{Index: index, Error: &msg}
	}
	defer cleanup()

	res, err := c.engine.Recognize(ctx, page.Path)
	if err != nil {
		msg := types.ErrString(ocrErrKind(ctx, err), err.Error())
		log.Warn("recognition failed", "page", index, "error", err)
		return types.OCRPage{Index: index, Error: &msg}
	}

	log.Debug("page recognized", "page", index, "confidence", res.Confidence, "chars", len(res.Text))
	return types.OCRPage{Index: index, Text: res.Text, Confidence: res.Confidence}
}

func ocrErrKind(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, ocr.ErrTimeout), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return types.ErrOCRTimeout
	case errors.Is(err, ocr.ErrUnavailable):
		return types.ErrOCRUnavailable
	default:
		return types.ErrOCRUnavailable
	}
}

// spoolPDF writes the document bytes to a scoped temp file for the page
// renderer; poppler reads from disk, not memory.
func (c *Coordinator) spoolPDF(data []byte) (string, func()) {
	tmpDir, err := os.MkdirTemp("", "extract-pdf-*")
	if err != nil {
		c.log.Error("pdf spool failed", "error", err)
		return "", nil
	}
	path := filepath.Join(tmpDir, "doc.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		_ = os.RemoveAll(tmpDir)
		c.log.Error("pdf spool failed", "error", err)
		return "", nil
	}
	return path, func() { _ = os.RemoveAll(tmpDir) }
}

func withHints(res types.DocumentResult, hints types.ClassifyResult) types.DocumentResult {
	res.MayNeedOCR = hints.MayNeedOCR
	res.TextExtractable = hints.TextExtractable
	return res
}
