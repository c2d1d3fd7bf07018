// Package fetch downloads file bytes for an opaque URL handle supplied by the
// surrounding workspace integration. The pipeline itself never talks to the
// messaging API; it receives a handle and raw bytes.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client downloads files with a size cap and per-call timeout.
type Client struct {
	MaxBytes int64
	Timeout  time.Duration

	http *http.Client
}

func NewClient(maxBytes int64, timeout time.Duration) *Client {
	if maxBytes <= 0 {
		maxBytes = 100 << 20
	}
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &Client{
		MaxBytes: maxBytes,
		Timeout:  timeout,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// Download fetches the handle into memory, enforcing the byte cap. A PDF
// declared by filename gets a magic-byte check: object stores hand back XML
// error pages on expired presigned URLs, and those would otherwise flow into
// the PDF parser.
func (c *Client) Download(ctx context.Context, url, filename string) ([]byte, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("source url must be http/https")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "doc-extraction-service/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	lr := &io.LimitedReader{R: resp.Body, N: c.MaxBytes + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > c.MaxBytes {
		return nil, fmt.Errorf("file exceeds %dMB limit", c.MaxBytes/(1<<20))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty download")
	}

	if strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		if err := validatePDFMagic(data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// validatePDFMagic checks that the payload starts with %PDF.
func validatePDFMagic(data []byte) error {
	if len(data) < 5 {
		return fmt.Errorf("downloaded file is too small to be a valid PDF")
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		preview := string(data[:min(len(data), 40)])
		return fmt.Errorf("downloaded file is not a PDF (starts with %q)", preview)
	}
	return nil
}
