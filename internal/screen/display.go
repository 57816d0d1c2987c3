package screen

import (
	"context"
	"image"
	"log/slog"

	"github.com/kbinani/screenshot"

	apperrors "github.com/GriffinCanCode/resource-overlay/internal/errors"
)

// Options selects the captured region and how it is prepared for OCR.
type Options struct {
	Display    int
	CropHeight int
	Scale      float64
}

type displayBackend struct {
	display    int
	cropHeight int
}

func (d *displayBackend) grab(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.Cancelled, "capture cancelled")
	}
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, apperrors.New(apperrors.CaptureFailed, "no active displays")
	}
	if d.display < 0 || d.display >= n {
		return nil, apperrors.Newf(apperrors.CaptureFailed, "display %d out of range (%d active)", d.display, n)
	}

	rect := TopStrip(screenshot.GetDisplayBounds(d.display), d.cropHeight)
	img, err := screenshot.CaptureRect(rect)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CaptureFailed, "capture %v", rect)
	}
	return img, nil
}

func (d *displayBackend) close() {}

// New creates a capturer for the top strip of a display.
func New(opts Options) Capturer {
	slog.Debug("screen capturer created", "display", opts.Display, "crop_height", opts.CropHeight, "scale", opts.Scale)
	return newBase(&displayBackend{display: opts.Display, cropHeight: opts.CropHeight}, opts.Scale)
}

// Displays returns the bounds of every active display.
func Displays() []image.Rectangle {
	n := screenshot.NumActiveDisplays()
	out := make([]image.Rectangle, n)
	for i := range out {
		out[i] = screenshot.GetDisplayBounds(i)
	}
	return out
}
