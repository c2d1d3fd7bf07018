package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string

	// Secrets
	InternalSharedSecret string
	MistralAPIKey        string

	// OCR backend selection: "tesseract" (local CLI) or "mistral" (remote API)
	OCRBackend string

	// External binaries
	TesseractPath string
	TesseractLang string
	PdftoppmPath  string

	// Limits
	MaxJSONBodyBytes int64
	MaxFileBytes     int64

	// Concurrency
	MaxConcurrentRequests int64
	MaxOCRConcurrent      int64
	MaxBatchWorkers       int

	// Server timeouts
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	// Request timeouts
	ExtractTimeout  time.Duration // whole-document budget
	DownloadTimeout time.Duration
	OCRCallTimeout  time.Duration // per page recognition call

	// Extraction defaults (request options may override)
	DefaultMinTextLen    int // minimum-signal threshold per page, in runes
	DefaultRasterDPI     int
	DefaultPageSeparator string
	DefaultOCRModel      string

	// rate limiting (per IP)
	RateLimitEvery time.Duration
	RateLimitBurst int

	// housekeeping
	CleanupInterval time.Duration

	// health
	HealthDegradeRatio float64

	// http
	MaxHeaderBytes int

	// logging
	LogLevel string
}

func Load() Config {
	// Local dev convenience; absent .env is fine.
	_ = godotenv.Load()

	return Config{
		Port: envStr("PORT", "8080"),

		InternalSharedSecret: envStr("INTERNAL_SHARED_SECRET", ""),
		MistralAPIKey:        envStr("MISTRAL_API_KEY", ""),

		OCRBackend: envStr("OCR_BACKEND", "tesseract"),

		TesseractPath: envStr("TESSERACT_PATH", "tesseract"),
		TesseractLang: envStr("TESSERACT_LANG", "eng"),
		PdftoppmPath:  envStr("PDFTOPPM_PATH", "pdftoppm"),

		MaxJSONBodyBytes: int64(envInt("MAX_JSON_BODY_BYTES", 32<<20)),
		MaxFileBytes:     int64(envInt("MAX_FILE_BYTES", 100<<20)),

		MaxConcurrentRequests: int64(envInt("MAX_CONCURRENT_REQUESTS", 15)),
		MaxOCRConcurrent:      int64(envInt("MAX_OCR_CONCURRENT", 4)),
		MaxBatchWorkers:       envInt("MAX_BATCH_WORKERS", 4),

		ReadHeaderTimeout: envDur("READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:       envDur("READ_TIMEOUT", 60*time.Second),
		WriteTimeout:      envDur("WRITE_TIMEOUT", 180*time.Second),
		IdleTimeout:       envDur("IDLE_TIMEOUT", 60*time.Second),

		ExtractTimeout:  envDur("EXTRACT_TIMEOUT", 160*time.Second),
		DownloadTimeout: envDur("DOWNLOAD_TIMEOUT", 25*time.Second),
		OCRCallTimeout:  envDur("OCR_CALL_TIMEOUT", 30*time.Second),

		DefaultMinTextLen:    envInt("DEFAULT_MIN_TEXT_LEN", 32),
		DefaultRasterDPI:     envInt("DEFAULT_RASTER_DPI", 300),
		DefaultPageSeparator: envStr("DEFAULT_PAGE_SEPARATOR", "\n\n---\n\n"),
		DefaultOCRModel:      envStr("DEFAULT_OCR_MODEL", "mistral-ocr-latest"),

		RateLimitEvery: envDur("RATE_LIMIT_EVERY", 600*time.Millisecond),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 20),

		CleanupInterval: envDur("CLEANUP_INTERVAL", 5*time.Minute),

		HealthDegradeRatio: envFloat("HEALTH_DEGRADE_RATIO", 0.9),

		MaxHeaderBytes: envInt("MAX_HEADER_BYTES", 1<<20),

		LogLevel: envStr("LOG_LEVEL", "info"),
	}
}

func (c Config) Validate() error {
	if len(strings.TrimSpace(c.InternalSharedSecret)) < 32 {
		return fmt.Errorf("INTERNAL_SHARED_SECRET must be at least 32 characters")
	}
	switch c.OCRBackend {
	case "tesseract", "mistral":
	default:
		return fmt.Errorf("OCR_BACKEND must be tesseract or mistral, got %q", c.OCRBackend)
	}
	if c.OCRBackend == "mistral" && strings.TrimSpace(c.MistralAPIKey) == "" {
		return fmt.Errorf("OCR_BACKEND=mistral requires MISTRAL_API_KEY")
	}
	return nil
}

func envStr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
