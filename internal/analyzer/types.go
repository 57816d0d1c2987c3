package analyzer

import "github.com/GriffinCanCode/resource-overlay/pkg/detection"

// Status is the outcome of matching numbers to one resource label.
type Status string

const (
	StatusComplete            Status = "complete"
	StatusInsufficientNumbers Status = "insufficient_numbers"
	StatusNoCoordinates       Status = "no_coordinates"
)

// BoxSize is the label's width and height derived from its polygon.
type BoxSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NumericDetection is a detection whose text is digits only once commas and spaces are removed.
type NumericDetection struct {
	Text        string           `json:"text"`
	Value       int64            `json:"value"`
	Coordinates *detection.Point `json:"coordinates,omitempty"`
	Confidence  float64          `json:"confidence"`
	Index       int              `json:"detection_index"`
}

// Value is a number assigned to a resource slot.
type Value struct {
	Value       int64           `json:"value"`
	Coordinates detection.Point `json:"coordinates"`
	Confidence  float64         `json:"confidence"`
}

// NumericValues is exactly one of three states; Stockpile and Workers are set only when complete,
// Available only when insufficient.
type NumericValues struct {
	Status    Status `json:"status"`
	Stockpile *Value `json:"stockpile,omitempty"`
	Workers   *Value `json:"workers,omitempty"`
	Available int    `json:"available,omitempty"`
}

// Complete reports whether both slots were resolved.
func (n NumericValues) Complete() bool { return n.Status == StatusComplete }

// ResourceReading is one matched resource label.
type ResourceReading struct {
	Resource      Resource         `json:"resource"`
	Text          string           `json:"text"`
	Coordinates   *detection.Point `json:"coordinates,omitempty"`
	BoxSize       *BoxSize         `json:"box_size,omitempty"`
	Confidence    float64          `json:"confidence"`
	Index         int              `json:"detection_index"`
	NumericValues NumericValues    `json:"numeric_values"`
}

// AnalysisResult is the immutable output of one analysis. Resources are in reading order (by x).
type AnalysisResult struct {
	Resources       []ResourceReading  `json:"resources"`
	Numerics        []NumericDetection `json:"numerics"`
	TotalDetections int                `json:"total_detections"`
	ResourceCount   int                `json:"resource_count"`
	NumericCount    int                `json:"numeric_count"`
}
