package ocr

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

// stubRunner replays canned outputs keyed by the trailing arg shape.
type stubRunner struct {
	text    string
	tsv     string
	textErr error
	tsvErr  error
	delay   time.Duration
	calls   []string
}

func (s *stubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, strings.Join(args, " "))
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	if len(args) > 0 && args[len(args)-1] == "tsv" {
		return []byte(s.tsv), nil, s.tsvErr
	}
	return []byte(s.text), nil, s.textErr
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t100\t100\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t40\t12\t90\thello\n" +
	"5\t1\t1\t1\t1\t2\t55\t10\t40\t12\t70\tworld\n"

func TestTesseractRecognize(t *testing.T) {
	stub := &stubRunner{text: "hello world\n", tsv: sampleTSV}
	eng := NewTesseract("tesseract", "eng", 5*time.Second).WithRunner(stub)

	res, err := eng.Recognize(context.Background(), "/tmp/page.png")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if res.Text != "hello world" {
		t.Errorf("text = %q", res.Text)
	}
	// mean of 90 and 70 is 80 -> 0.8
	if res.Confidence < 0.79 || res.Confidence > 0.81 {
		t.Errorf("confidence = %v, want ~0.8", res.Confidence)
	}
	if len(stub.calls) != 2 {
		t.Errorf("expected text + tsv passes, got calls %v", stub.calls)
	}
}

func TestTesseractConfidenceFailureKeepsText(t *testing.T) {
	stub := &stubRunner{text: "still useful text output here", tsvErr: errors.New("tsv exploded")}
	eng := NewTesseract("", "", 5*time.Second).WithRunner(stub)

	res, err := eng.Recognize(context.Background(), "/tmp/page.png")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if res.Text == "" {
		t.Fatal("text discarded on confidence failure")
	}
	if res.Confidence <= 0 {
		t.Errorf("expected heuristic confidence fallback, got %v", res.Confidence)
	}
}

func TestTesseractTimeout(t *testing.T) {
	stub := &stubRunner{text: "late", delay: time.Second}
	eng := NewTesseract("", "", 20*time.Millisecond).WithRunner(stub)

	_, err := eng.Recognize(context.Background(), "/tmp/page.png")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestTesseractNotInstalled(t *testing.T) {
	stub := &stubRunner{textErr: &exec.Error{Name: "tesseract", Err: exec.ErrNotFound}}
	eng := NewTesseract("", "", 5*time.Second).WithRunner(stub)

	_, err := eng.Recognize(context.Background(), "/tmp/page.png")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestTesseractArgs(t *testing.T) {
	eng := NewTesseract("tesseract", "deu", 0)
	eng.PSM = 6
	eng.TessdataDir = "/opt/tessdata"

	args := eng.args("/tmp/page.png")
	want := []string{"/tmp/page.png", "stdout", "-l", "deu", "--psm", "6", "--tessdata-dir", "/opt/tessdata"}
	if strings.Join(args, " ") != strings.Join(want, " ") {
		t.Errorf("args = %v, want %v", args, want)
	}
}
