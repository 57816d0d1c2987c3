package analyzer

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/GriffinCanCode/resource-overlay/pkg/detection"
)

// Normalize trims surrounding whitespace and uppercases.
func Normalize(text string) string {
	return strings.ToUpper(strings.TrimSpace(text))
}

// MatchResource returns the first vocabulary word equal to or contained in the normalized text.
func MatchResource(text string) (Resource, bool) {
	norm := Normalize(text)
	if norm == "" {
		return "", false
	}
	for _, r := range Vocabulary {
		if strings.Contains(norm, string(r)) {
			return r, true
		}
	}
	return "", false
}

// stripNumeric removes commas and whitespace.
func stripNumeric(text string) string {
	return strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
}

// IsNumeric reports whether text is non-empty ASCII digits after stripping commas and whitespace.
func IsNumeric(text string) bool {
	s := stripNumeric(text)
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ParseNumeric returns the integer value of a numeric text.
// Texts that are not numeric, or overflow int64, report false.
func ParseNumeric(text string) (int64, bool) {
	if !IsNumeric(text) {
		return 0, false
	}
	v, err := strconv.ParseInt(stripNumeric(text), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// boxSize derives width (p0→p1) and height (p0→bottom-left) for polygons with at least three points.
// Quads arrive clockwise from the engine, so bottom-left is the last point; a triangle lists it third.
func boxSize(poly detection.Polygon) *BoxSize {
	if len(poly) < 3 {
		return nil
	}
	bottomLeft := poly[2]
	if len(poly) >= 4 {
		bottomLeft = poly[3]
	}
	return &BoxSize{
		Width:  detection.Distance(poly[0], poly[1]),
		Height: detection.Distance(poly[0], bottomLeft),
	}
}

func coordinates(d detection.Detection) *detection.Point {
	p, ok := d.Coordinates()
	if !ok {
		return nil
	}
	return &p
}

// Classify splits detections into resource labels and numerics, in input order.
// The resource check wins, so a detection never lands in both lists; anything else is dropped.
func Classify(dets []detection.Detection) ([]ResourceReading, []NumericDetection) {
	var resources []ResourceReading
	var numerics []NumericDetection

	for i, d := range dets {
		norm := Normalize(d.Text)
		if r, ok := MatchResource(norm); ok {
			resources = append(resources, ResourceReading{
				Resource:    r,
				Text:        norm,
				Coordinates: coordinates(d),
				BoxSize:     boxSize(d.BoundingBox),
				Confidence:  d.Confidence,
				Index:       i,
			})
		} else if v, ok := ParseNumeric(norm); ok {
			numerics = append(numerics, NumericDetection{
				Text:        norm,
				Value:       v,
				Coordinates: coordinates(d),
				Confidence:  d.Confidence,
				Index:       i,
			})
		}
	}
	return resources, numerics
}
