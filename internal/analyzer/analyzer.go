package analyzer

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/GriffinCanCode/resource-overlay/pkg/detection"
)

// Analyzer correlates resource labels with their numbers under a matching policy.
type Analyzer struct {
	policy Policy
}

// New creates an analyzer.
func New(policy Policy) *Analyzer {
	return &Analyzer{policy: policy}
}

// Policy returns the configured matching policy.
func (a *Analyzer) Policy() Policy { return a.policy }

// Analyze uses the shared policy.
func Analyze(dets []detection.Detection) *AnalysisResult {
	return New(PolicyShared).Analyze(dets)
}

// Analyze classifies dets, orders labels left to right and matches each with its numbers.
func (a *Analyzer) Analyze(dets []detection.Detection) *AnalysisResult {
	resources, numerics := Classify(dets)

	slices.SortStableFunc(resources, func(x, y ResourceReading) int {
		return cmp.Compare(xOf(x), xOf(y))
	})

	pool := numerics
	for i := range resources {
		var next *ResourceReading
		if i+1 < len(resources) {
			next = &resources[i+1]
		}
		nv, claimed := match(resources[i], next, pool)
		resources[i].NumericValues = nv
		if a.policy == PolicyExclusive {
			pool = without(pool, claimed)
		}
	}

	return &AnalysisResult{
		Resources:       resources,
		Numerics:        numerics,
		TotalDetections: len(dets),
		ResourceCount:   len(resources),
		NumericCount:    len(numerics),
	}
}

// xOf treats a missing coordinate as 0.
func xOf(r ResourceReading) float64 {
	if r.Coordinates == nil {
		return 0
	}
	return r.Coordinates.X
}

// Summary renders "Found N resources: FOOD(complete), ..." or "No resource words found".
func Summary(result *AnalysisResult) string {
	if result == nil || len(result.Resources) == 0 {
		return "No resource words found"
	}
	parts := make([]string, len(result.Resources))
	for i, r := range result.Resources {
		parts[i] = fmt.Sprintf("%s(%s)", r.Resource, r.NumericValues.Status)
	}
	return fmt.Sprintf("Found %d resources: %s", result.ResourceCount, strings.Join(parts, ", "))
}

// FormatForUI renders one overlay line per reading, in reading order.
func FormatForUI(result *AnalysisResult) []string {
	if result == nil {
		return nil
	}
	lines := make([]string, len(result.Resources))
	for i, r := range result.Resources {
		lines[i] = FormatReading(r)
	}
	return lines
}

// FormatReading renders "<icon> <stockpile> <workerIcon> <workers>", or question marks and the status.
func FormatReading(r ResourceReading) string {
	ic := r.Resource.Icons()
	nv := r.NumericValues
	if nv.Complete() {
		return fmt.Sprintf("%s %d %s %d", ic.Resource, nv.Stockpile.Value, ic.Worker, nv.Workers.Value)
	}
	return fmt.Sprintf("%s ? %s ? (%s)", ic.Resource, ic.Worker, nv.Status)
}
