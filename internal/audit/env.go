package audit

import (
	"fmt"

	"github.com/dgnsrekt/ecoaudit/internal/scoring"
)

// Thresholds decide whether a score counts as a pass when choosing titles.
type Thresholds struct {
	Binary  float64 `yaml:"binary" json:"binary" validate:"gte=0,lte=1"`
	Numeric float64 `yaml:"numeric" json:"numeric" validate:"gte=0,lte=1"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Binary: 1, Numeric: 0.5}
}

// Passed applies the threshold for mode.
func (t Thresholds) Passed(score float64, mode DisplayMode) bool {
	switch mode {
	case ModeBinary:
		return score >= t.Binary
	case ModeNumeric:
		return score >= t.Numeric
	}
	return false
}

// CarbonModel holds the energy and emission constants of the transfer
// footprint estimate.
type CarbonModel struct {
	// DataCenterKWhPerGB and CoreNetworkKWhPerGB split the energy cost of
	// one gigabyte transferred.
	DataCenterKWhPerGB  float64 `yaml:"data_center_kwh_per_gb" json:"data_center_kwh_per_gb" validate:"gte=0"`
	CoreNetworkKWhPerGB float64 `yaml:"core_network_kwh_per_gb" json:"core_network_kwh_per_gb" validate:"gte=0"`
	// CarbonIntensity is grams CO2eq per kWh.
	CarbonIntensity float64 `yaml:"carbon_intensity" json:"carbon_intensity" validate:"gt=0"`
	// DailyVisitors scales the per-view figure; the reference distribution is
	// calibrated for 100 views.
	DailyVisitors float64 `yaml:"daily_visitors" json:"daily_visitors" validate:"gt=0"`
}

func DefaultCarbonModel() CarbonModel {
	return CarbonModel{
		DataCenterKWhPerGB:  0.1215,
		CoreNetworkKWhPerGB: 0.1134,
		CarbonIntensity:     442,
		DailyVisitors:       100,
	}
}

// Env is the read-only configuration audits compute against.
type Env struct {
	References map[string]scoring.Reference
	Thresholds Thresholds
	Carbon     CarbonModel
	// PixelPowerLimit is the panel power, in watts, a page may draw and
	// still pass.
	PixelPowerLimit float64
}

// DefaultEnv returns the built-in calibration.
func DefaultEnv() Env {
	return Env{
		References: map[string]scoring.Reference{
			RefCarbonFootprint: {Name: "Carbon footprint", Median: 4, P10: 1.2},
		},
		Thresholds:      DefaultThresholds(),
		Carbon:          DefaultCarbonModel(),
		PixelPowerLimit: 20,
	}
}

// Reference looks up a named reference distribution.
func (e Env) Reference(name string) (scoring.Reference, error) {
	ref, ok := e.References[name]
	if !ok {
		return scoring.Reference{}, fmt.Errorf("reference distribution %q not configured", name)
	}
	return ref, nil
}
