//go:build !tesseract

package ocr

import (
	"context"

	apperrors "github.com/GriffinCanCode/resource-overlay/internal/errors"
	"github.com/GriffinCanCode/resource-overlay/pkg/detection"
)

// TesseractRecognizer is unavailable without the tesseract build tag.
type TesseractRecognizer struct{}

// NewTesseractRecognizer reports that the binary was built without tesseract support.
func NewTesseractRecognizer(...string) (*TesseractRecognizer, error) {
	return nil, apperrors.New(apperrors.OCRResolutionFailed, "built without tesseract support (use -tags tesseract)")
}

// Recognize implements Recognizer.
func (*TesseractRecognizer) Recognize(context.Context, detection.ImagePayload) (*Result, error) {
	return nil, apperrors.New(apperrors.OCRResolutionFailed, "built without tesseract support")
}

// Resolve implements Engine.
func (*TesseractRecognizer) Resolve(context.Context) (Executable, error) {
	return Executable{}, apperrors.New(apperrors.OCRResolutionFailed, "built without tesseract support")
}

// Status implements Engine.
func (*TesseractRecognizer) Status() Status {
	return Status{Error: "built without tesseract support"}
}

// SelfTest implements Engine.
func (*TesseractRecognizer) SelfTest(context.Context) (string, error) {
	return "", apperrors.New(apperrors.OCRResolutionFailed, "built without tesseract support")
}

// Close is a no-op.
func (*TesseractRecognizer) Close() error { return nil }
