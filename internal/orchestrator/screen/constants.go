package screen

import "time"

const (
	// MaxHashDistance is the largest perceptual hash Hamming distance (out of 64 bits)
	// at which two frames count as the same screen.
	MaxHashDistance = 3

	DefaultCaptureRate = 1.0

	// minInterval bounds the ticker for very high capture rates.
	minInterval = 50 * time.Millisecond
)
