package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var keys = []string{
	"HTTP_ADDR", "GRPC_ADDR", "LOG_LEVEL", "APP_ENV", "CORS_ORIGINS",
	"OCR_BASE_DIR", "OCR_ENGINE_PATH", "OCR_ENGINE_SCRIPT", "OCR_BACKEND",
	"CAPTURE_RATE", "CAPTURE_DISPLAY", "CAPTURE_CROP_HEIGHT", "CAPTURE_SCALE", "CAPTURE_SKIP_SIMILAR",
	"MATCH_POLICY", "HISTORY_SIZE", "BREAKER_THRESHOLD", "BREAKER_RESET", "WS_RATE_LIMIT", "ENV_FILE",
}

// clearEnv unsets every key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			t.Cleanup(func() { os.Setenv(k, v) })
		} else {
			t.Cleanup(func() { os.Unsetenv(k) })
		}
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	if cfg.HTTPAddr != ":8000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8000")
	}
	if cfg.GRPCAddr != ":50061" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":50061")
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if cfg.Production() {
		t.Error("default APP_ENV should be development")
	}
	if cfg.OCRBackend != BackendEngine {
		t.Errorf("OCRBackend = %q, want %q", cfg.OCRBackend, BackendEngine)
	}
	if cfg.OCRBaseDir == "" {
		t.Error("OCRBaseDir should default to the executable directory")
	}
	if cfg.CaptureRate != 1.0 || cfg.CaptureCropHeight != 400 || cfg.CaptureScale != 1.0 {
		t.Errorf("capture = %v/%d/%v, want 1/400/1", cfg.CaptureRate, cfg.CaptureCropHeight, cfg.CaptureScale)
	}
	if !cfg.CaptureSkipSimilar {
		t.Error("CaptureSkipSimilar should default to true")
	}
	if cfg.MatchPolicy != "shared" {
		t.Errorf("MatchPolicy = %q, want shared", cfg.MatchPolicy)
	}
	if cfg.HistorySize != 30 || cfg.BreakerThreshold != 3 || cfg.BreakerReset != 30*time.Second {
		t.Errorf("history/breaker = %d/%d/%v", cfg.HistorySize, cfg.BreakerThreshold, cfg.BreakerReset)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadWithEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("GRPC_ADDR", "")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("OCR_BACKEND", "Tesseract")
	t.Setenv("CAPTURE_RATE", "2.5")
	t.Setenv("CAPTURE_SKIP_SIMILAR", "false")
	t.Setenv("MATCH_POLICY", "EXCLUSIVE")
	t.Setenv("BREAKER_RESET", "1m")
	t.Setenv("CORS_ORIGINS", "http://localhost:3000, app://overlay")

	cfg := Load()

	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9000")
	}
	if cfg.GRPCAddr != "" {
		t.Errorf("GRPCAddr = %q, want empty (disabled)", cfg.GRPCAddr)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if !cfg.Production() {
		t.Error("APP_ENV=Production should select production")
	}
	if cfg.OCRBackend != BackendTesseract {
		t.Errorf("OCRBackend = %q", cfg.OCRBackend)
	}
	if cfg.CaptureRate != 2.5 {
		t.Errorf("CaptureRate = %v, want 2.5", cfg.CaptureRate)
	}
	if cfg.CaptureSkipSimilar {
		t.Error("CaptureSkipSimilar should be false")
	}
	if cfg.MatchPolicy != "exclusive" {
		t.Errorf("MatchPolicy = %q, want exclusive", cfg.MatchPolicy)
	}
	if cfg.BreakerReset != time.Minute {
		t.Errorf("BreakerReset = %v, want 1m", cfg.BreakerReset)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "app://overlay" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "overlay.env")
	content := "CAPTURE_DISPLAY=1\nHISTORY_SIZE=5\nHTTP_ADDR=:7000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", path)
	t.Setenv("HTTP_ADDR", ":9100")

	cfg := Load()

	if cfg.CaptureDisplay != 1 || cfg.HistorySize != 5 {
		t.Errorf("file values not applied: display=%d history=%d", cfg.CaptureDisplay, cfg.HistorySize)
	}
	if cfg.HTTPAddr != ":9100" {
		t.Errorf("HTTPAddr = %q, environment should win over the file", cfg.HTTPAddr)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"backend", func(c *Config) { c.OCRBackend = "paddle" }, "OCR_BACKEND"},
		{"policy", func(c *Config) { c.MatchPolicy = "greedy" }, "MATCH_POLICY"},
		{"script without path", func(c *Config) { c.OCREngineScript = "ocr.py" }, "OCR_ENGINE_SCRIPT"},
		{"rate", func(c *Config) { c.CaptureRate = 0 }, "CAPTURE_RATE"},
		{"scale", func(c *Config) { c.CaptureScale = 0.5 }, "CAPTURE_SCALE"},
		{"history", func(c *Config) { c.HistorySize = 0 }, "HISTORY_SIZE"},
		{"breaker", func(c *Config) { c.BreakerThreshold = -1 }, "BREAKER_THRESHOLD"},
		{"ws rate", func(c *Config) { c.WSRateLimit = 0 }, "WS_RATE_LIMIT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %s", err, tt.want)
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT_INVALID", "not-a-number")
	if v := getEnvInt("TEST_INT_INVALID", 100); v != 100 {
		t.Errorf("getEnvInt with invalid = %d, want %d", v, 100)
	}

	t.Setenv("TEST_BOOL_ONE", "1")
	t.Setenv("TEST_BOOL_JUNK", "maybe")
	if !getEnvBool("TEST_BOOL_ONE", false) {
		t.Error("getEnvBool should return true for '1'")
	}
	if !getEnvBool("TEST_BOOL_JUNK", true) {
		t.Error("getEnvBool should fall back on unparsable values")
	}

	t.Setenv("TEST_SECONDS", "2.5")
	if v := getEnvDuration("TEST_SECONDS", 0); v != 2500*time.Millisecond {
		t.Errorf("getEnvDuration(bare seconds) = %v, want 2.5s", v)
	}

	t.Setenv("TEST_LEVEL", "loud")
	if v := getEnvLevel("TEST_LEVEL", slog.LevelWarn); v != slog.LevelWarn {
		t.Errorf("getEnvLevel(invalid) = %v, want warn", v)
	}
}
