// Command analyze runs OCR and resource analysis once, on an image file or a fresh capture.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/resource-overlay/internal/analyzer"
	"github.com/GriffinCanCode/resource-overlay/internal/config"
	apperrors "github.com/GriffinCanCode/resource-overlay/internal/errors"
	"github.com/GriffinCanCode/resource-overlay/internal/ocr"
	screencap "github.com/GriffinCanCode/resource-overlay/internal/screen"
	"github.com/GriffinCanCode/resource-overlay/pkg/detection"
)

type output struct {
	Text     string                   `json:"text"`
	Result   *analyzer.AnalysisResult `json:"result"`
	Summary  string                   `json:"summary"`
	Display  []string                 `json:"display"`
	Duration string                   `json:"duration"`
}

func main() {
	cfg := config.Load()

	imagePath := flag.String("image", "", "image file to analyze (png or jpeg)")
	capture := flag.Bool("capture", false, "capture the configured display instead of reading a file")
	asJSON := flag.Bool("json", false, "print the full analysis as JSON")
	policy := flag.String("policy", cfg.MatchPolicy, "numeric matching policy: shared or exclusive")
	verbose := flag.Bool("v", false, "debug logging to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, *imagePath, *capture, *asJSON, *policy, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if appErr, ok := apperrors.As(err); ok && appErr.Metadata["stderr"] != "" {
			fmt.Fprintln(os.Stderr, "engine stderr:\n"+appErr.Metadata["stderr"])
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, imagePath string, capture, asJSON bool, policyName string, w io.Writer) error {
	policy, err := analyzer.ParsePolicy(policyName)
	if err != nil {
		return apperrors.Wrap(err, apperrors.InvalidArgument, "policy")
	}

	img, err := loadImage(ctx, cfg, imagePath, capture)
	if err != nil {
		return err
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	if c, ok := engine.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	res, err := engine.Recognize(ctx, img)
	if err != nil {
		return err
	}
	result := analyzer.New(policy).Analyze(res.Detections)

	out := output{
		Text:     res.Text,
		Result:   result,
		Summary:  analyzer.Summary(result),
		Display:  analyzer.FormatForUI(result),
		Duration: res.Duration.String(),
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintln(w, out.Summary)
	for _, line := range out.Display {
		fmt.Fprintln(w, "  "+line)
	}
	return nil
}

func loadImage(ctx context.Context, cfg *config.Config, path string, capture bool) (detection.ImagePayload, error) {
	switch {
	case capture && path != "":
		return detection.ImagePayload{}, apperrors.New(apperrors.InvalidArgument, "use either -image or -capture")
	case capture:
		c := screencap.New(screencap.Options{Display: cfg.CaptureDisplay, CropHeight: cfg.CaptureCropHeight, Scale: cfg.CaptureScale})
		defer c.Close()
		return c.CaptureAlways(ctx)
	case path == "":
		return detection.ImagePayload{}, apperrors.New(apperrors.InvalidArgument, "one of -image or -capture is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return detection.ImagePayload{}, apperrors.Wrapf(err, apperrors.NotFound, "read %s", path)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "jpg" {
		format = "jpeg"
	}
	return detection.ImagePayload{Data: data, Format: format}, nil
}

func newEngine(cfg *config.Config) (ocr.Recognizer, error) {
	if cfg.OCRBackend == config.BackendTesseract {
		t, err := ocr.NewTesseractRecognizer()
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return ocr.NewWorker(ocr.NewResolver(ocr.ResolverConfig{
		Mode:         ocr.ParseMode(cfg.AppEnv),
		BaseDir:      cfg.OCRBaseDir,
		EnginePath:   cfg.OCREnginePath,
		EngineScript: cfg.OCREngineScript,
	})), nil
}
