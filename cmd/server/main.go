package main

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/workspace-tools/doc-extraction-service/internal/classify"
	"github.com/workspace-tools/doc-extraction-service/internal/config"
	"github.com/workspace-tools/doc-extraction-service/internal/fetch"
	"github.com/workspace-tools/doc-extraction-service/internal/ocr"
	"github.com/workspace-tools/doc-extraction-service/internal/pipeline"
	"github.com/workspace-tools/doc-extraction-service/internal/raster"
	"github.com/workspace-tools/doc-extraction-service/internal/types"
)

var (
	cfg config.Config
	log *slog.Logger

	requestSem *semaphore.Weighted

	// Per-IP rate limiters. Swept in place; the variable itself is never
	// reassigned, so handlers and the cleanup loop can touch it concurrently.
	limiters sync.Map

	metrics = &serverMetrics{}
)

type serverMetrics struct {
	mu            sync.RWMutex
	totalRequests int64
	activeReqs    int64
}

func (m *serverMetrics) incActive() {
	m.mu.Lock()
	m.activeReqs++
	m.totalRequests++
	m.mu.Unlock()
}
func (m *serverMetrics) decActive() {
	m.mu.Lock()
	m.activeReqs--
	m.mu.Unlock()
}
func (m *serverMetrics) get() (total, active int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalRequests, m.activeReqs
}

func main() {
	cfg = config.Load()
	log = config.NewLogger(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	requestSem = semaphore.NewWeighted(cfg.MaxConcurrentRequests)

	coord := pipeline.New(cfg, newEngine(cfg), raster.NewPDFRenderer(cfg.PdftoppmPath, cfg.DefaultRasterDPI), log)
	fetcher := fetch.NewClient(cfg.MaxFileBytes, cfg.DownloadTimeout)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           withLogging(withRecovery(buildMux(coord, fetcher))),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go cleanupRateLimiters()

	log.Info("extraction service listening",
		"addr", srv.Addr,
		"max_concurrent", cfg.MaxConcurrentRequests,
		"ocr_backend", cfg.OCRBackend,
		"max_ocr_concurrent", cfg.MaxOCRConcurrent,
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func newEngine(cfg config.Config) ocr.Engine {
	if cfg.OCRBackend == "mistral" {
		return ocr.NewMistral(cfg.MistralAPIKey, cfg.DefaultOCRModel, cfg.OCRCallTimeout)
	}
	t := ocr.NewTesseract(cfg.TesseractPath, cfg.TesseractLang, cfg.OCRCallTimeout)
	return t
}

func buildMux(coord *pipeline.Coordinator, fetcher *fetch.Client) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/metrics", withInternalAuth(handleMetrics))

	mux.HandleFunc("/classify",
		withInternalAuth(
			withRateLimit(
				withMethod("POST", handleClassify))))

	mux.HandleFunc("/extract",
		withInternalAuth(
			withRateLimit(
				withMethod("POST",
					withConcurrencyLimit(func(w http.ResponseWriter, r *http.Request) {
						handleExtract(w, r, coord, fetcher)
					})))))

	mux.HandleFunc("/extract/batch",
		withInternalAuth(
			withRateLimit(
				withMethod("POST",
					withConcurrencyLimit(func(w http.ResponseWriter, r *http.Request) {
						handleBatch(w, r, coord, fetcher)
					})))))

	return mux
}

func cleanupRateLimiters() {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		total, active := metrics.get()
		log.Info("stats",
			"active", active,
			"total", total,
			"goroutines", runtime.NumGoroutine(),
			"mem_mb", m.Alloc/(1<<20),
		)

		sweepRateLimiters()
	}
}

// sweepRateLimiters drops all per-IP limiter entries so the map cannot grow
// without bound. A client seen again simply gets a fresh limiter.
func sweepRateLimiters() {
	limiters.Range(func(k, _ any) bool {
		limiters.Delete(k)
		return true
	})
}

// ---------- Handlers ----------

func handleHealth(w http.ResponseWriter, r *http.Request) {
	_, active := metrics.get()
	status := "healthy"
	code := http.StatusOK

	ratio := cfg.HealthDegradeRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.9
	}

	if active >= int64(float64(cfg.MaxConcurrentRequests)*ratio) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"active":  active,
		"version": "1.0.0",
	})
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	total, active := metrics.get()

	writeJSON(w, http.StatusOK, map[string]any{
		"activeRequests": active,
		"totalRequests":  total,
		"goroutines":     runtime.NumGoroutine(),
		"memAllocMB":     m.Alloc / (1 << 20),
		"memSysMB":       m.Sys / (1 << 20),
	})
}

func handleClassify(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[types.ClassifyRequest](r, cfg.MaxJSONBodyBytes)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", sanitizeError(err))
		return
	}
	if strings.TrimSpace(req.Filename) == "" && strings.TrimSpace(req.MimeType) == "" {
		writeErr(w, http.StatusBadRequest, "validation_failed", "filename or mimeType required")
		return
	}

	writeJSON(w, http.StatusOK, classify.Hints(classify.File(req.Filename, req.MimeType)))
}

func handleExtract(w http.ResponseWriter, r *http.Request, coord *pipeline.Coordinator, fetcher *fetch.Client) {
	req, err := parseJSON[types.ExtractRequest](r, cfg.MaxJSONBodyBytes)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", sanitizeError(err))
		return
	}
	if err := validateExtractRequest(req); err != nil {
		writeErr(w, http.StatusBadRequest, "validation_failed", sanitizeError(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), cfg.ExtractTimeout)
	defer cancel()

	doc, errResult := resolveDocument(ctx, req, fetcher)
	if errResult != nil {
		writeJSON(w, http.StatusOK, *errResult)
		return
	}

	writeJSON(w, http.StatusOK, coord.Extract(ctx, doc.Desc, doc.Data, doc.Opts))
}

func handleBatch(w http.ResponseWriter, r *http.Request, coord *pipeline.Coordinator, fetcher *fetch.Client) {
	req, err := parseJSON[types.BatchExtractRequest](r, cfg.MaxJSONBodyBytes)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", sanitizeError(err))
		return
	}
	if len(req.Files) == 0 {
		writeErr(w, http.StatusBadRequest, "validation_failed", "files required")
		return
	}
	for i, f := range req.Files {
		if err := validateExtractRequest(f); err != nil {
			writeErr(w, http.StatusBadRequest, "validation_failed",
				fmt.Sprintf("files[%d]: %s", i, sanitizeError(err)))
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), cfg.ExtractTimeout)
	defer cancel()

	// Downloads happen up front so each pipeline run owns plain bytes; a file
	// that fails to resolve gets a structured failure in its slot.
	docs := make([]pipeline.Document, 0, len(req.Files))
	results := make([]*types.DocumentResult, len(req.Files))
	slots := make([]int, 0, len(req.Files))
	for i, f := range req.Files {
		doc, errResult := resolveDocument(ctx, f, fetcher)
		if errResult != nil {
			results[i] = errResult
			continue
		}
		docs = append(docs, doc)
		slots = append(slots, i)
	}

	extracted := coord.ExtractBatch(ctx, docs)
	for j, res := range extracted {
		res := res
		results[slots[j]] = &res
	}

	out := types.BatchExtractResult{Results: make([]types.DocumentResult, len(results))}
	for i, res := range results {
		out.Results[i] = *res
	}
	writeJSON(w, http.StatusOK, out)
}

// resolveDocument turns a request into descriptor + bytes, downloading when a
// source URL was given. Failures come back as a structured DocumentResult so
// batch slots and single requests share the same error shape.
func resolveDocument(ctx context.Context, req types.ExtractRequest, fetcher *fetch.Client) (pipeline.Document, *types.DocumentResult) {
	var (
		data []byte
		err  error
	)
	switch {
	case req.SourceURL != "":
		data, err = fetcher.Download(ctx, req.SourceURL, req.Filename)
	default:
		data, err = base64.StdEncoding.DecodeString(req.ContentBase64)
		if err == nil && int64(len(data)) > cfg.MaxFileBytes {
			err = fmt.Errorf("file exceeds %dMB limit", cfg.MaxFileBytes/(1<<20))
		}
	}
	if err != nil {
		hints := classify.Hints(classify.File(req.Filename, req.MimeType))
		msg := types.ErrString(types.ErrDownloadFailure, sanitizeError(err))
		return pipeline.Document{}, &types.DocumentResult{
			Success:         false,
			Method:          types.MethodNone,
			Pages:           []types.PageResult{},
			MayNeedOCR:      hints.MayNeedOCR,
			TextExtractable: hints.TextExtractable,
			Error:           &msg,
		}
	}

	return pipeline.Document{
		Desc: types.FileDescriptor{
			RequestID: uuid.NewString(),
			Filename:  req.Filename,
			MimeType:  req.MimeType,
			Size:      int64(len(data)),
			SourceURL: req.SourceURL,
		},
		Data: data,
		Opts: req.Options,
	}, nil
}

// ---------- Middleware ----------

func withMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeErr(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method must be "+method)
			return
		}
		next(w, r)
	}
}

func withInternalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Internal-Auth")
		if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.InternalSharedSecret)) != 1 {
			writeErr(w, http.StatusUnauthorized, "unauthorized", "Invalid authentication")
			return
		}
		next(w, r)
	}
}

func withConcurrencyLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := requestSem.Acquire(r.Context(), 1); err != nil {
			writeErr(w, http.StatusServiceUnavailable, "capacity", "Service at capacity")
			return
		}
		defer requestSem.Release(1)

		metrics.incActive()
		defer metrics.decActive()

		next(w, r)
	}
}

func withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		limiter := getRateLimiter(ip)

		if !limiter.Allow() {
			w.Header().Set("Retry-After", "60")
			writeErr(w, http.StatusTooManyRequests, "rate_limit", "Rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Error("panic recovered", "error", fmt.Sprint(err))
				writeErr(w, http.StatusInternalServerError, "internal_error", "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &wrapWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)

		log.Info("request",
			"method", r.Method,
			"path", sanitizeLogString(r.URL.Path),
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type wrapWriter struct {
	http.ResponseWriter
	status int
}

func (w *wrapWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ---------- Helpers ----------

func getRateLimiter(ip string) *rate.Limiter {
	if v, ok := limiters.Load(ip); ok {
		return v.(*rate.Limiter)
	}

	every := cfg.RateLimitEvery
	if every <= 0 {
		every = 600 * time.Millisecond // ~100/min
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 20
	}

	limiter := rate.NewLimiter(rate.Every(every), burst)
	limiters.Store(ip, limiter)
	return limiter
}

func getClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if idx := strings.Index(ip, ","); idx > 0 {
			return strings.TrimSpace(ip[:idx])
		}
		return strings.TrimSpace(ip)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func validateExtractRequest(req types.ExtractRequest) error {
	hasURL := strings.TrimSpace(req.SourceURL) != ""
	hasContent := strings.TrimSpace(req.ContentBase64) != ""
	if hasURL == hasContent {
		return fmt.Errorf("exactly one of sourceUrl or contentBase64 required")
	}
	if hasURL {
		url := strings.TrimSpace(req.SourceURL)
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return fmt.Errorf("sourceUrl must be http/https")
		}
		if len(url) > 2048 {
			return fmt.Errorf("sourceUrl too long")
		}
	}
	if strings.TrimSpace(req.Filename) == "" && strings.TrimSpace(req.MimeType) == "" {
		return fmt.Errorf("filename or mimeType required")
	}
	return nil
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = strings.ReplaceAll(msg, os.TempDir(), "[tmp]")
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}

func sanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func parseJSON[T any](r *http.Request, limit int64) (T, error) {
	var out T
	dec := json.NewDecoder(io.LimitReader(r.Body, limit))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&out); err != nil {
		return out, err
	}

	// Ensure there's nothing else after the first JSON value
	if err := dec.Decode(new(any)); err != io.EOF {
		if err == nil {
			return out, fmt.Errorf("unexpected trailing data")
		}
		return out, err
	}

	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
