package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.OCRBackend != "tesseract" {
		t.Errorf("OCRBackend = %q", cfg.OCRBackend)
	}
	if cfg.ExtractTimeout != 160*time.Second {
		t.Errorf("ExtractTimeout = %v", cfg.ExtractTimeout)
	}
	if cfg.DefaultMinTextLen != 32 {
		t.Errorf("DefaultMinTextLen = %d", cfg.DefaultMinTextLen)
	}
	if cfg.DefaultPageSeparator != "\n\n---\n\n" {
		t.Errorf("DefaultPageSeparator = %q", cfg.DefaultPageSeparator)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("OCR_BACKEND", "mistral")
	t.Setenv("MAX_OCR_CONCURRENT", "8")
	t.Setenv("EXTRACT_TIMEOUT", "30s")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.OCRBackend != "mistral" {
		t.Errorf("OCRBackend = %q", cfg.OCRBackend)
	}
	if cfg.MaxOCRConcurrent != 8 {
		t.Errorf("MaxOCRConcurrent = %d", cfg.MaxOCRConcurrent)
	}
	if cfg.ExtractTimeout != 30*time.Second {
		t.Errorf("ExtractTimeout = %v", cfg.ExtractTimeout)
	}
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_REQUESTS", "not-a-number")
	t.Setenv("EXTRACT_TIMEOUT", "-5s")
	t.Setenv("HEALTH_DEGRADE_RATIO", "zero")

	cfg := Load()

	if cfg.MaxConcurrentRequests != 15 {
		t.Errorf("MaxConcurrentRequests = %d, want default", cfg.MaxConcurrentRequests)
	}
	if cfg.ExtractTimeout != 160*time.Second {
		t.Errorf("ExtractTimeout = %v, want default", cfg.ExtractTimeout)
	}
	if cfg.HealthDegradeRatio != 0.9 {
		t.Errorf("HealthDegradeRatio = %v, want default", cfg.HealthDegradeRatio)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		InternalSharedSecret: strings.Repeat("s", 32),
		OCRBackend:           "tesseract",
	}

	if err := base.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	short := base
	short.InternalSharedSecret = "too-short"
	if err := short.Validate(); err == nil {
		t.Error("short secret accepted")
	}

	badBackend := base
	badBackend.OCRBackend = "clippy"
	if err := badBackend.Validate(); err == nil {
		t.Error("unknown backend accepted")
	}

	mistral := base
	mistral.OCRBackend = "mistral"
	if err := mistral.Validate(); err == nil {
		t.Error("mistral backend without key accepted")
	}
	mistral.MistralAPIKey = "key"
	if err := mistral.Validate(); err != nil {
		t.Errorf("mistral with key rejected: %v", err)
	}
}
