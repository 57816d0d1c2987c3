package analyzer

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/GriffinCanCode/resource-overlay/pkg/detection"
)

// Policy decides whether a numeric detection may be claimed by more than one resource.
type Policy int

const (
	// PolicyShared matches every resource against the full pool (greedy, non-exclusive).
	PolicyShared Policy = iota
	// PolicyExclusive removes the two numerics claimed by a resource before matching the next one.
	PolicyExclusive
)

func (p Policy) String() string {
	switch p {
	case PolicyExclusive:
		return "exclusive"
	default:
		return "shared"
	}
}

// ParsePolicy accepts "shared" or "exclusive" (case-insensitive).
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "shared":
		return PolicyShared, nil
	case "exclusive":
		return PolicyExclusive, nil
	default:
		return PolicyShared, fmt.Errorf("unknown match policy %q", s)
	}
}

// MatchNumerics picks the stockpile and worker numbers for resource.
// Candidates lie strictly right of the resource and, when next has coordinates, strictly left of next.
// The two nearest by Manhattan distance win; the one higher on screen (smaller or equal y) is the stockpile.
func MatchNumerics(resource ResourceReading, next *ResourceReading, pool []NumericDetection) NumericValues {
	nv, _ := match(resource, next, pool)
	return nv
}

// match also returns the detection indexes it claimed.
func match(resource ResourceReading, next *ResourceReading, pool []NumericDetection) (NumericValues, []int) {
	if resource.Coordinates == nil {
		return NumericValues{Status: StatusNoCoordinates}, nil
	}
	origin := *resource.Coordinates

	candidates := window(origin, next, pool)
	if len(candidates) < 2 {
		return NumericValues{Status: StatusInsufficientNumbers, Available: len(candidates)}, nil
	}

	slices.SortStableFunc(candidates, func(a, b NumericDetection) int {
		return cmp.Compare(
			detection.Manhattan(origin, *a.Coordinates),
			detection.Manhattan(origin, *b.Coordinates),
		)
	})

	stockpile, workers := candidates[0], candidates[1]
	if stockpile.Coordinates.Y > workers.Coordinates.Y {
		stockpile, workers = workers, stockpile
	}
	return NumericValues{
		Status:    StatusComplete,
		Stockpile: toValue(stockpile),
		Workers:   toValue(workers),
	}, []int{stockpile.Index, workers.Index}
}

func window(origin detection.Point, next *ResourceReading, pool []NumericDetection) []NumericDetection {
	var out []NumericDetection
	for _, n := range pool {
		if n.Coordinates == nil || n.Coordinates.X <= origin.X {
			continue
		}
		if next != nil && next.Coordinates != nil && n.Coordinates.X >= next.Coordinates.X {
			continue
		}
		out = append(out, n)
	}
	return out
}

func toValue(n NumericDetection) *Value {
	return &Value{Value: n.Value, Coordinates: *n.Coordinates, Confidence: n.Confidence}
}

// without returns pool minus the detections at the claimed indexes.
func without(pool []NumericDetection, claimed []int) []NumericDetection {
	if len(claimed) == 0 {
		return pool
	}
	return slices.DeleteFunc(slices.Clone(pool), func(n NumericDetection) bool {
		return slices.Contains(claimed, n.Index)
	})
}
