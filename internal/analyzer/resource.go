// Package analyzer turns OCR detections into per-resource readings.
// It is pure: no I/O, no logging, safe for concurrent use.
package analyzer

// Resource is one label of the closed resource vocabulary.
type Resource string

const (
	Food  Resource = "FOOD"
	Wood  Resource = "WOOD"
	Stone Resource = "STONE"
	Gold  Resource = "GOLD"
)

// Vocabulary lists resources in match priority order.
var Vocabulary = []Resource{Food, Wood, Stone, Gold}

// Icons are the glyphs shown for a resource and its gatherers.
type Icons struct {
	Resource string
	Worker   string
}

var icons = map[Resource]Icons{
	Food:  {Resource: "🥩", Worker: "🏹"},
	Wood:  {Resource: "🪵", Worker: "🪓"},
	Stone: {Resource: "🪨", Worker: "👷🏼‍♂️"},
	Gold:  {Resource: "🧈", Worker: "👷🏼‍♂️"},
}

// Icons returns the display glyphs for r.
func (r Resource) Icons() Icons { return icons[r] }

func (r Resource) String() string { return string(r) }
