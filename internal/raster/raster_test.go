package raster

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 13), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestFromImageProducesGrayscalePNG(t *testing.T) {
	data := encodePNG(t, 40, 25)

	r, cleanup, err := FromImage(data)
	if err != nil {
		t.Fatalf("FromImage: %v", err)
	}
	defer cleanup()

	if r.Width != 40 || r.Height != 25 {
		t.Errorf("dimensions = %dx%d, want 40x25", r.Width, r.Height)
	}

	f, err := os.Open(r.Path)
	if err != nil {
		t.Fatalf("open raster: %v", err)
	}
	defer f.Close()
	out, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode raster: %v", err)
	}
	if _, ok := out.(*image.Gray); !ok {
		t.Errorf("raster is %T, want *image.Gray", out)
	}
}

func TestFromImageCleanupRemovesFiles(t *testing.T) {
	r, cleanup, err := FromImage(encodePNG(t, 4, 4))
	if err != nil {
		t.Fatalf("FromImage: %v", err)
	}

	cleanup()

	if _, err := os.Stat(r.Path); !os.IsNotExist(err) {
		t.Errorf("raster still on disk after cleanup: %v", err)
	}
}

func TestFromImageRejectsGarbage(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("not an image at all"), []byte("\x89PNG truncated")} {
		if _, _, err := FromImage(data); err == nil {
			t.Errorf("FromImage(%q) accepted undecodable bytes", data)
		}
	}
}

// stubRunner fakes pdftoppm by writing a PNG at the output prefix.
type stubRunner struct {
	err      error
	stderr   string
	skipFile bool
	gotName  string
	gotArgs  []string
}

func (s *stubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.gotName = name
	s.gotArgs = args
	if s.err != nil {
		return nil, []byte(s.stderr), s.err
	}
	if !s.skipFile {
		prefix := args[len(args)-1]
		img := image.NewGray(image.Rect(0, 0, 8, 8))
		var buf bytes.Buffer
		_ = png.Encode(&buf, img)
		if err := os.WriteFile(prefix+"-1.png", buf.Bytes(), 0o600); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, nil
}

func TestRenderPage(t *testing.T) {
	stub := &stubRunner{}
	r := NewPDFRenderer("pdftoppm", 300).WithRunner(stub)

	got, cleanup, err := r.RenderPage(context.Background(), "/tmp/doc.pdf", 3, 150)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	defer cleanup()

	if got.Width != 8 || got.Height != 8 {
		t.Errorf("dimensions = %dx%d, want 8x8", got.Width, got.Height)
	}
	if _, err := os.Stat(got.Path); err != nil {
		t.Errorf("raster missing: %v", err)
	}

	if stub.gotName != "pdftoppm" {
		t.Errorf("binary = %q", stub.gotName)
	}
	want := []string{"-f", "3", "-l", "3", "-r", "150", "-gray", "-png", "/tmp/doc.pdf"}
	for i, arg := range want {
		if stub.gotArgs[i] != arg {
			t.Errorf("arg %d = %q, want %q", i, stub.gotArgs[i], arg)
		}
	}
}

func TestRenderPageZeroDPIUsesDefault(t *testing.T) {
	stub := &stubRunner{}
	r := NewPDFRenderer("", 200).WithRunner(stub)

	_, cleanup, err := r.RenderPage(context.Background(), "/tmp/doc.pdf", 1, 0)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	defer cleanup()

	if stub.gotArgs[5] != "200" {
		t.Errorf("dpi arg = %q, want configured default 200", stub.gotArgs[5])
	}
}

func TestRenderPageCommandFailure(t *testing.T) {
	stub := &stubRunner{err: errors.New("exit status 1"), stderr: "Syntax Error: couldn't read xref table"}
	r := NewPDFRenderer("pdftoppm", 300).WithRunner(stub)

	_, _, err := r.RenderPage(context.Background(), "/tmp/doc.pdf", 1, 300)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "xref table") {
		t.Errorf("stderr not surfaced: %v", err)
	}
}

func TestRenderPageNoOutput(t *testing.T) {
	stub := &stubRunner{skipFile: true}
	r := NewPDFRenderer("pdftoppm", 300).WithRunner(stub)

	_, _, err := r.RenderPage(context.Background(), "/tmp/doc.pdf", 7, 300)
	if err == nil || !strings.Contains(err.Error(), "no image produced") {
		t.Errorf("err = %v, want no-image error", err)
	}
}
