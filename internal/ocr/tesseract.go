package ocr

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Tesseract runs the local tesseract binary on a page raster. Text comes from
// a plain stdout pass; confidence is the mean word confidence from a second
// TSV pass when enabled.
type Tesseract struct {
	Binary        string // binary name or absolute path; "" means "tesseract"
	Lang          string // default "eng"
	TessdataDir   string
	PSM           int // page segmentation mode; 0 keeps tesseract's default
	TSVConfidence bool
	CallTimeout   time.Duration

	runner Runner
}

// NewTesseract builds an engine backed by the real tesseract binary.
func NewTesseract(binary, lang string, callTimeout time.Duration) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	if lang == "" {
		lang = "eng"
	}
	return &Tesseract{
		Binary:        binary,
		Lang:          lang,
		TSVConfidence: true,
		CallTimeout:   callTimeout,
		runner:        execRunner{},
	}
}

// WithRunner swaps the command runner; test hook.
func (t *Tesseract) WithRunner(r Runner) *Tesseract {
	t.runner = r
	return t
}

func (t *Tesseract) Recognize(ctx context.Context, rasterPath string) (Result, error) {
	return withTimeout(ctx, t.CallTimeout, func(ctx context.Context) (Result, error) {
		text, err := t.recognizeText(ctx, rasterPath)
		if err != nil {
			return Result{}, err
		}

		conf := 0.0
		if t.TSVConfidence {
			// Confidence failures never discard recognized text.
			if c, err := t.tsvConfidence(ctx, rasterPath); err == nil {
				conf = c
			}
		}
		if conf == 0 {
			conf = heuristicConfidence(text)
		}
		return Result{Text: strings.TrimSpace(text), Confidence: conf}, nil
	})
}

func (t *Tesseract) recognizeText(ctx context.Context, path string) (string, error) {
	out, errb, err := t.runner.Run(ctx, t.Binary, t.args(path)...)
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s not installed", ErrUnavailable, t.Binary)
		}
		return "", fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 512))
	}
	return string(out), nil
}

// tsvConfidence runs tesseract in TSV mode and returns mean word conf in 0..1.
func (t *Tesseract) tsvConfidence(ctx context.Context, path string) (float64, error) {
	args := append(t.args(path), "tsv")
	out, _, err := t.runner.Run(ctx, t.Binary, args...)
	if err != nil {
		return 0, fmt.Errorf("tesseract tsv: %w", err)
	}

	var sum, n float64
	for i, ln := range strings.Split(string(out), "\n") {
		if i == 0 || ln == "" {
			continue // header
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := cols[10] // conf column, 0..100 or -1 for non-word rows
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return (sum / n) / 100.0, nil
}

func (t *Tesseract) args(path string) []string {
	args := []string{path, "stdout", "-l", t.Lang}
	if t.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.PSM))
	}
	if t.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.TessdataDir)
	}
	return args
}

func isNotFound(err error) bool {
	var execErr *exec.Error
	return errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound)
}
