package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// Runner executes an external command; split out so tests can stub poppler.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	err := cmd.Run()
	return out.Bytes(), errb.Bytes(), err
}

// PDFRenderer renders single PDF pages to PNG via poppler's pdftoppm.
type PDFRenderer struct {
	Pdftoppm string // binary name or absolute path; "" means "pdftoppm"
	DPI      int    // render resolution, tuned for OCR legibility
	runner   Runner
}

// NewPDFRenderer builds a renderer backed by the real pdftoppm binary.
func NewPDFRenderer(pdftoppm string, dpi int) *PDFRenderer {
	if pdftoppm == "" {
		pdftoppm = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 300
	}
	return &PDFRenderer{Pdftoppm: pdftoppm, DPI: dpi, runner: execRunner{}}
}

// WithRunner swaps the command runner; test hook.
func (r *PDFRenderer) WithRunner(run Runner) *PDFRenderer {
	r.runner = run
	return r
}

// RenderPage rasterizes one 1-based PDF page to a grayscale PNG at the
// configured DPI. The cleanup func removes the temp dir holding the image.
func (r *PDFRenderer) RenderPage(ctx context.Context, pdfPath string, page int, dpi int) (Raster, func(), error) {
	if dpi <= 0 {
		dpi = r.DPI
	}

	tmpDir, err := os.MkdirTemp("", "extract-render-*")
	if err != nil {
		return Raster{}, nil, fmt.Errorf("temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -f N -l N -r DPI -gray -png <in.pdf> <tmp/page>
	_, errb, err := r.runner.Run(ctx, r.Pdftoppm,
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-r", strconv.Itoa(dpi),
		"-gray", "-png",
		pdfPath, prefix,
	)
	if err != nil {
		cleanup()
		return Raster{}, nil, fmt.Errorf("pdftoppm page %d: %w (%s)", page, err, truncate(errb, 512))
	}

	// pdftoppm names output page-N.png with zero padding depending on total
	// page count, so glob rather than guessing the width.
	matches, _ := filepath.Glob(prefix + "-*.png")
	if len(matches) == 0 {
		cleanup()
		return Raster{}, nil, fmt.Errorf("pdftoppm page %d: no image produced", page)
	}

	out := matches[0]
	w, h := pngSize(out)
	return Raster{Path: out, Width: w, Height: h}, cleanup, nil
}

func pngSize(path string) (int, int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func truncate(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "...(truncated)"
}
