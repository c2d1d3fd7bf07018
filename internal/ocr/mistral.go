package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const mistralEndpoint = "https://api.mistral.ai/v1/ocr"

// Mistral sends page rasters to the Mistral OCR API as base64 data URLs.
// Remote alternative to the local tesseract backend for deployments without
// poppler/tesseract on the box.
type Mistral struct {
	APIKey      string
	Model       string // default "mistral-ocr-latest"
	Endpoint    string
	CallTimeout time.Duration

	client *http.Client
}

// NewMistral builds the remote engine. The API key may be empty at
// construction; Recognize fails with ErrUnavailable if it still is at call time.
func NewMistral(apiKey, model string, callTimeout time.Duration) *Mistral {
	if model == "" {
		model = "mistral-ocr-latest"
	}
	return &Mistral{
		APIKey:      apiKey,
		Model:       model,
		Endpoint:    mistralEndpoint,
		CallTimeout: callTimeout,
		client:      &http.Client{},
	}
}

type mistralPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type mistralResponse struct {
	Pages []mistralPage `json:"pages"`
}

func (m *Mistral) Recognize(ctx context.Context, rasterPath string) (Result, error) {
	if strings.TrimSpace(m.APIKey) == "" {
		return Result{}, fmt.Errorf("%w: missing MISTRAL_API_KEY", ErrUnavailable)
	}

	raw, err := os.ReadFile(rasterPath)
	if err != nil {
		return Result{}, fmt.Errorf("read raster: %w", err)
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)

	return withTimeout(ctx, m.CallTimeout, func(ctx context.Context) (Result, error) {
		body, _ := json.Marshal(map[string]any{
			"model": m.Model,
			"document": map[string]any{
				"type":      "image_url",
				"image_url": dataURL,
			},
		})

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(body))
		if err != nil {
			return Result{}, err
		}
		req.Header.Set("Authorization", "Bearer "+m.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.client.Do(req)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return Result{}, fmt.Errorf("%w: mistral ocr %d: %s", ErrUnavailable, resp.StatusCode, slurp)
			}
			return Result{}, fmt.Errorf("mistral ocr %d: %s", resp.StatusCode, slurp)
		}

		var parsed mistralResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return Result{}, fmt.Errorf("mistral ocr decode: %w", err)
		}

		var parts []string
		for _, p := range parsed.Pages {
			if md := strings.TrimSpace(p.Markdown); md != "" && md != "." {
				parts = append(parts, md)
			}
		}
		text := strings.Join(parts, "\n\n")
		// The API reports no confidence signal; score the shape of the text.
		return Result{Text: text, Confidence: heuristicConfidence(text)}, nil
	})
}
