//go:build tesseract

package ocr

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/otiai10/gosseract/v2"

	apperrors "github.com/GriffinCanCode/resource-overlay/internal/errors"
	"github.com/GriffinCanCode/resource-overlay/pkg/detection"
)

// TesseractRecognizer runs recognition in-process through libtesseract.
type TesseractRecognizer struct {
	mu      sync.Mutex
	client  *gosseract.Client
	created time.Time
}

// NewTesseractRecognizer creates a recognizer for the given languages (default "eng").
func NewTesseractRecognizer(languages ...string) (*TesseractRecognizer, error) {
	client := gosseract.NewClient()
	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			_ = client.Close()
			return nil, apperrors.Wrap(err, apperrors.OCRResolutionFailed, "set tesseract language")
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		_ = client.Close()
		return nil, apperrors.Wrap(err, apperrors.OCRResolutionFailed, "set tesseract page mode")
	}
	return &TesseractRecognizer{client: client, created: time.Now()}, nil
}

// Recognize implements Recognizer. Word boxes become clockwise quads.
func (t *TesseractRecognizer) Recognize(ctx context.Context, img detection.ImagePayload) (*Result, error) {
	if img.Empty() {
		return nil, apperrors.New(apperrors.InvalidArgument, "empty image payload")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.Cancelled, "tesseract run cancelled")
	}

	start := time.Now()
	if err := t.client.SetImageFromBytes(img.Data); err != nil {
		return nil, apperrors.Wrap(err, apperrors.InvalidArgument, "set tesseract image")
	}
	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.OCREngineReported, "tesseract recognition failed")
	}

	dets := make([]detection.Detection, 0, len(boxes))
	words := make([]string, 0, len(boxes))
	var total float64
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}
		r := b.Box
		dets = append(dets, detection.Detection{
			Text:       word,
			Confidence: b.Confidence / 100,
			BoundingBox: detection.Polygon{
				{X: float64(r.Min.X), Y: float64(r.Min.Y)},
				{X: float64(r.Max.X), Y: float64(r.Min.Y)},
				{X: float64(r.Max.X), Y: float64(r.Max.Y)},
				{X: float64(r.Min.X), Y: float64(r.Max.Y)},
			},
		})
		words = append(words, word)
		total += b.Confidence / 100
	}

	res := &Result{Text: strings.Join(words, " "), Detections: dets, Duration: time.Since(start)}
	if len(dets) > 0 {
		res.Confidence = total / float64(len(dets))
	}
	return res, nil
}

// Resolve reports the linked library; there is nothing to locate.
func (t *TesseractRecognizer) Resolve(context.Context) (Executable, error) {
	return t.Status().Executable, nil
}

// Status implements Engine.
func (t *TesseractRecognizer) Status() Status {
	return Status{Resolved: true, Executable: Executable{Path: "libtesseract " + gosseract.Version()}, ResolvedAt: t.created}
}

// SelfTest implements Engine.
func (t *TesseractRecognizer) SelfTest(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.Wrap(err, apperrors.Cancelled, "self-test cancelled")
	}
	return "tesseract " + gosseract.Version() + " loaded", nil
}

// Close releases the tesseract handle.
func (t *TesseractRecognizer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
