package ocr

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/GriffinCanCode/resource-overlay/pkg/detection"
)

// request is written to the engine's stdin, followed by EOF.
type request struct {
	Image string `json:"image"`
}

// response is the single object the engine prints to stdout.
type response struct {
	Success    *bool           `json:"success"`
	Text       string          `json:"text"`
	Confidence float64         `json:"confidence"`
	Detections []wireDetection `json:"detections"`
	Error      string          `json:"error"`
	Message    string          `json:"message"`
}

type wireDetection struct {
	Text        string      `json:"text"`
	Confidence  float64     `json:"confidence"`
	BoundingBox [][]float64 `json:"bounding_box"`
}

func encodeRequest(img detection.ImagePayload) ([]byte, error) {
	return json.Marshal(request{Image: base64.StdEncoding.EncodeToString(img.Data)})
}

// decodeResponse parses stdout. A missing success flag counts as malformed.
func decodeResponse(raw []byte) (*response, error) {
	var resp response
	if err := json.Unmarshal(bytes.TrimSpace(raw), &resp); err != nil {
		return nil, err
	}
	if resp.Success == nil {
		return nil, fmt.Errorf("response has no success flag")
	}
	return &resp, nil
}

func (r *response) detections() ([]detection.Detection, error) {
	out := make([]detection.Detection, 0, len(r.Detections))
	for i, d := range r.Detections {
		poly := make(detection.Polygon, 0, len(d.BoundingBox))
		for j, pt := range d.BoundingBox {
			if len(pt) < 2 {
				return nil, fmt.Errorf("detection %d: point %d has %d coordinates", i, j, len(pt))
			}
			poly = append(poly, detection.Point{X: pt[0], Y: pt[1]})
		}
		out = append(out, detection.Detection{Text: d.Text, Confidence: d.Confidence, BoundingBox: poly})
	}
	return out, nil
}
