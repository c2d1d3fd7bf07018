// Package raster converts extraction sources into OCR-ready page images:
// decode + grayscale normalization for raster files, poppler page rendering
// for PDF pages. Every produced raster lives in a temp dir owned by the
// returned cleanup func; callers must run it on all exit paths.
package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Raster is one OCR-ready page image on disk.
type Raster struct {
	Path   string
	Width  int
	Height int
}

// FromImage decodes a raster file (PNG, JPEG, GIF, BMP, TIFF, WEBP), converts
// it to 8-bit grayscale and writes it back out as PNG. OCR engines behave
// consistently on grayscale regardless of the source color space.
func FromImage(data []byte) (Raster, func(), error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Raster{}, nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, src, bounds.Min, draw.Src)

	tmpDir, err := os.MkdirTemp("", "extract-raster-*")
	if err != nil {
		return Raster{}, nil, fmt.Errorf("temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }

	out := filepath.Join(tmpDir, "page.png")
	f, err := os.Create(out)
	if err != nil {
		cleanup()
		return Raster{}, nil, fmt.Errorf("create raster: %w", err)
	}
	if err := png.Encode(f, gray); err != nil {
		_ = f.Close()
		cleanup()
		return Raster{}, nil, fmt.Errorf("encode raster: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return Raster{}, nil, fmt.Errorf("close raster: %w", err)
	}

	return Raster{Path: out, Width: bounds.Dx(), Height: bounds.Dy()}, cleanup, nil
}
