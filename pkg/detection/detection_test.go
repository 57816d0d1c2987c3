package detection

import "testing"

func TestCoordinates(t *testing.T) {
	d := Detection{Text: "FOOD", BoundingBox: Polygon{{X: 10, Y: 20}, {X: 50, Y: 20}}}
	p, ok := d.Coordinates()
	if !ok || p.X != 10 || p.Y != 20 {
		t.Errorf("Coordinates() = (%v, %v), want ({10 20}, true)", p, ok)
	}

	if _, ok := (Detection{Text: "x"}).Coordinates(); ok {
		t.Error("Coordinates() on empty polygon should report false")
	}
}

func TestDistances(t *testing.T) {
	a, b := Point{X: 0, Y: 0}, Point{X: 3, Y: 4}
	if got := Distance(a, b); got != 5 {
		t.Errorf("Distance = %v, want 5", got)
	}
	if got := Manhattan(a, b); got != 7 {
		t.Errorf("Manhattan = %v, want 7", got)
	}
}

func TestImagePayloadEmpty(t *testing.T) {
	if !(ImagePayload{}).Empty() {
		t.Error("zero payload should be empty")
	}
	if (ImagePayload{Data: []byte{1}}).Empty() {
		t.Error("payload with data should not be empty")
	}
}
