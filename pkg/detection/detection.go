// Package detection holds the types exchanged between the OCR engine and the analyzer.
package detection

import "math"

// Point is a pixel position in the captured image.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polygon is a bounding shape as emitted by the engine (TL, TR, BR, BL for quads).
type Polygon []Point

// Detection is one recognized text fragment.
type Detection struct {
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	BoundingBox Polygon `json:"bounding_box"`
}

// Coordinates returns the first polygon point, the anchor used for spatial matching.
func (d Detection) Coordinates() (Point, bool) {
	if len(d.BoundingBox) == 0 {
		return Point{}, false
	}
	return d.BoundingBox[0], true
}

// Distance returns the euclidean distance between two points.
func Distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Manhattan returns |dx| + |dy|.
func Manhattan(a, b Point) float64 {
	return math.Abs(a.X-b.X) + math.Abs(a.Y-b.Y)
}

// ImagePayload is an encoded image handed to a recognizer. Not retained after the request.
type ImagePayload struct {
	Data   []byte `json:"-"`
	Format string `json:"format"`
}

// Empty reports whether the payload carries no image bytes.
func (p ImagePayload) Empty() bool { return len(p.Data) == 0 }
