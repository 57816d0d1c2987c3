// Package config loads service configuration from the environment and an optional dotenv file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// OCR backends.
const (
	BackendEngine    = "engine"
	BackendTesseract = "tesseract"
)

type Config struct {
	HTTPAddr    string
	GRPCAddr    string // empty disables the health server
	LogLevel    slog.Level
	AppEnv      string
	CORSOrigins []string

	OCRBaseDir      string
	OCREnginePath   string
	OCREngineScript string
	OCRBackend      string

	CaptureRate        float64 // Hz
	CaptureDisplay     int
	CaptureCropHeight  int
	CaptureScale       float64
	CaptureSkipSimilar bool

	MatchPolicy      string
	HistorySize      int
	BreakerThreshold int
	BreakerReset     time.Duration
	WSRateLimit      float64 // inbound messages per second per connection
}

// Load reads the dotenv file (if any) and then the environment. Variables already set in
// the environment win over the file.
func Load() *Config {
	loadDotenv()
	return &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8000"),
		GRPCAddr:    getEnvOptional("GRPC_ADDR", ":50061"),
		LogLevel:    getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		AppEnv:      getEnv("APP_ENV", "development"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),

		OCRBaseDir:      getEnv("OCR_BASE_DIR", executableDir()),
		OCREnginePath:   os.Getenv("OCR_ENGINE_PATH"),
		OCREngineScript: os.Getenv("OCR_ENGINE_SCRIPT"),
		OCRBackend:      strings.ToLower(getEnv("OCR_BACKEND", BackendEngine)),

		CaptureRate:        getEnvFloat("CAPTURE_RATE", 1.0),
		CaptureDisplay:     getEnvInt("CAPTURE_DISPLAY", 0),
		CaptureCropHeight:  getEnvInt("CAPTURE_CROP_HEIGHT", 400),
		CaptureScale:       getEnvFloat("CAPTURE_SCALE", 1.0),
		CaptureSkipSimilar: getEnvBool("CAPTURE_SKIP_SIMILAR", true),

		MatchPolicy:      strings.ToLower(getEnv("MATCH_POLICY", "shared")),
		HistorySize:      getEnvInt("HISTORY_SIZE", 30),
		BreakerThreshold: getEnvInt("BREAKER_THRESHOLD", 3),
		BreakerReset:     getEnvDuration("BREAKER_RESET", 30*time.Second),
		WSRateLimit:      getEnvFloat("WS_RATE_LIMIT", 5),
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("HTTP_ADDR must not be empty"))
	}
	if c.OCRBackend != BackendEngine && c.OCRBackend != BackendTesseract {
		errs = append(errs, fmt.Errorf("OCR_BACKEND %q: want %s or %s", c.OCRBackend, BackendEngine, BackendTesseract))
	}
	if c.MatchPolicy != "shared" && c.MatchPolicy != "exclusive" {
		errs = append(errs, fmt.Errorf("MATCH_POLICY %q: want shared or exclusive", c.MatchPolicy))
	}
	if c.OCREngineScript != "" && c.OCREnginePath == "" {
		errs = append(errs, errors.New("OCR_ENGINE_SCRIPT requires OCR_ENGINE_PATH"))
	}
	if c.CaptureRate <= 0 || c.CaptureRate > 20 {
		errs = append(errs, fmt.Errorf("CAPTURE_RATE %v: want (0, 20]", c.CaptureRate))
	}
	if c.CaptureDisplay < 0 {
		errs = append(errs, fmt.Errorf("CAPTURE_DISPLAY %d: must not be negative", c.CaptureDisplay))
	}
	if c.CaptureCropHeight <= 0 {
		errs = append(errs, fmt.Errorf("CAPTURE_CROP_HEIGHT %d: must be positive", c.CaptureCropHeight))
	}
	if c.CaptureScale < 1 || c.CaptureScale > 4 {
		errs = append(errs, fmt.Errorf("CAPTURE_SCALE %v: want [1, 4]", c.CaptureScale))
	}
	if c.HistorySize <= 0 {
		errs = append(errs, fmt.Errorf("HISTORY_SIZE %d: must be positive", c.HistorySize))
	}
	if c.BreakerThreshold <= 0 {
		errs = append(errs, fmt.Errorf("BREAKER_THRESHOLD %d: must be positive", c.BreakerThreshold))
	}
	if c.BreakerReset <= 0 {
		errs = append(errs, fmt.Errorf("BREAKER_RESET %v: must be positive", c.BreakerReset))
	}
	if c.WSRateLimit <= 0 {
		errs = append(errs, fmt.Errorf("WS_RATE_LIMIT %v: must be positive", c.WSRateLimit))
	}
	return errors.Join(errs...)
}

// Production reports whether APP_ENV selects the packaged engine.
func (c *Config) Production() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// loadDotenv loads ENV_FILE, or the first .env found in the working directory or next
// to the executable.
func loadDotenv() {
	if path := os.Getenv("ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			slog.Warn("env file not loaded", "path", path, "error", err)
		}
		return
	}
	for _, dir := range []string{".", executableDir()} {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			slog.Warn("env file not loaded", "path", path, "error", err)
		}
		return
	}
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvOptional distinguishes an empty value from an unset variable.
func getEnvOptional(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return def
}

func getEnvLevel(key string, def slog.Level) slog.Level {
	if v := os.Getenv(key); v != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(v)); err == nil {
			return lvl
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
