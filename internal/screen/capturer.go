// Package screen captures the resource strip of a display as an encoded image.
package screen

import (
	"bytes"
	"context"
	"crypto/md5"
	"image"
	"image/png"
	"sync"

	apperrors "github.com/GriffinCanCode/resource-overlay/internal/errors"
	"github.com/GriffinCanCode/resource-overlay/pkg/detection"
)

// Capturer captures screenshots with change detection.
type Capturer interface {
	// Capture returns the frame and whether it differs from the previous one.
	Capture(ctx context.Context) (detection.ImagePayload, bool, error)
	CaptureAlways(ctx context.Context) (detection.ImagePayload, error)
	Close()
}

// backend grabs raw frames.
type backend interface {
	grab(ctx context.Context) (image.Image, error)
	close()
}

// baseCapturer provides preparation, encoding and hash-based change detection.
type baseCapturer struct {
	backend
	scale float64

	mu       sync.Mutex
	lastHash [16]byte
}

func newBase(b backend, scale float64) *baseCapturer {
	return &baseCapturer{backend: b, scale: scale}
}

func (c *baseCapturer) Capture(ctx context.Context) (detection.ImagePayload, bool, error) {
	payload, hash, err := c.frame(ctx)
	if err != nil {
		return detection.ImagePayload{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if hash == c.lastHash {
		return payload, false, nil
	}
	c.lastHash = hash
	return payload, true, nil
}

func (c *baseCapturer) CaptureAlways(ctx context.Context) (detection.ImagePayload, error) {
	payload, hash, err := c.frame(ctx)
	if err != nil {
		return detection.ImagePayload{}, err
	}
	c.mu.Lock()
	c.lastHash = hash
	c.mu.Unlock()
	return payload, nil
}

func (c *baseCapturer) Close() {
	c.close()
}

func (c *baseCapturer) frame(ctx context.Context) (detection.ImagePayload, [16]byte, error) {
	img, err := c.grab(ctx)
	if err != nil {
		return detection.ImagePayload{}, [16]byte{}, err
	}
	data, err := Encode(Upscale(img, c.scale))
	if err != nil {
		return detection.ImagePayload{}, [16]byte{}, err
	}
	return detection.ImagePayload{Data: data, Format: "png"}, md5.Sum(data), nil
}

// Encode renders img as PNG.
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CaptureFailed, "encode png")
	}
	return buf.Bytes(), nil
}
