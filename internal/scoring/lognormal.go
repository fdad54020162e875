// Package scoring maps raw page metrics onto a [0,1] score.
package scoring

import (
	"fmt"
	"math"
)

// P10Z is the standard normal quantile for the 10th percentile, |Φ⁻¹(0.1)|.
// Scoring a value equal to the reference p10 yields 0.9.
const P10Z = 1.2815515655446004

// Reference describes the expected log-normal distribution of a metric.
type Reference struct {
	Name   string  `yaml:"name" json:"name"`
	Median float64 `yaml:"median" json:"median" validate:"gt=0"`
	P10    float64 `yaml:"p10" json:"p10" validate:"gt=0"`
}

// Validate checks that median > p10 > 0.
func (r Reference) Validate() error {
	if r.P10 <= 0 || r.Median <= 0 {
		return fmt.Errorf("reference %q: median and p10 must be positive", r.Name)
	}
	if r.Median <= r.P10 {
		return fmt.Errorf("reference %q: median %.4g must exceed p10 %.4g", r.Name, r.Median, r.P10)
	}
	return nil
}

// LogNormal returns the complementary log-normal CDF of value for ref,
// clamped to [0,1]. Lower values score higher; a value at the median scores
// 0.5 and a value at p10 scores 0.9. Non-positive values score 1.
//
// An invalid reference degrades to a pass/fail against the median.
func LogNormal(ref Reference, value float64) float64 {
	if math.IsNaN(value) {
		return 0
	}
	if value <= 0 {
		return 1
	}
	if ref.Validate() != nil {
		return Binary(value <= ref.Median)
	}

	sigma := math.Log(ref.Median/ref.P10) / P10Z
	z := (math.Log(value) - math.Log(ref.Median)) / (sigma * math.Sqrt2)
	return clamp01(0.5 * math.Erfc(z))
}

// Binary scores a pass/fail predicate.
func Binary(cond bool) float64 {
	if cond {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
