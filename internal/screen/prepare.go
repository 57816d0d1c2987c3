package screen

import (
	"image"

	"github.com/nfnt/resize"
)

// TopStrip returns the top height pixels of bounds; height <= 0 keeps the full bounds.
func TopStrip(bounds image.Rectangle, height int) image.Rectangle {
	if height <= 0 || bounds.Dy() <= height {
		return bounds
	}
	return image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Min.Y+height)
}

// Upscale enlarges img by factor with Lanczos resampling; small UI digits recognize better.
// Factors <= 1 return img unchanged.
func Upscale(img image.Image, factor float64) image.Image {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	w := uint(float64(b.Dx()) * factor)
	h := uint(float64(b.Dy()) * factor)
	return resize.Resize(w, h, img, resize.Lanczos3)
}
