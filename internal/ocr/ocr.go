// Package ocr wraps the OCR backends. Recognition runs under a bounded
// per-call timeout and reports a 0..1 confidence signal alongside the text.
// Confidence is observability only: low-confidence text is still returned,
// tagged, and the caller decides what to do with it.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel failures, mapped to page-level error kinds by the pipeline.
var (
	ErrTimeout     = errors.New("ocr: timed out")
	ErrUnavailable = errors.New("ocr: backend unavailable")
)

// Result is one recognition outcome.
type Result struct {
	Text       string
	Confidence float64 // 0..1; 0 means the backend reported none
}

// Engine recognizes text in a single page raster.
type Engine interface {
	Recognize(ctx context.Context, rasterPath string) (Result, error)
}

// withTimeout bounds a backend call and translates the context verdict into
// the package sentinels.
func withTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) (Result, error)) (Result, error) {
	if d <= 0 {
		d = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	res, err := fn(callCtx)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return Result{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, err
	}
	return res, nil
}
