package planner

import (
	"fmt"
)

// Step of a step function of the area: applies to areas under MaxKm2
type Step struct {
	MaxKm2 float64 `mapstructure:"max_km2" json:"max_km2"`
	Value  int     `mapstructure:"value" json:"value"`
}

// Policy are the tunable thresholds of the planner
type Policy struct {
	WarnKm2        float64 `mapstructure:"warn_km2"`
	RejectKm2      float64 `mapstructure:"reject_km2"`
	DefaultDays    int     `mapstructure:"default_days"`
	RetryExtraDays int     `mapstructure:"retry_extra_days"`
	// LimitSteps: number of items to search. Area must be strictly lower than MaxKm2.
	LimitSteps []Step `mapstructure:"limit_steps"`
	// ScaleSteps: resolution downscaling factor. Area must be lower or equal to MaxKm2.
	ScaleSteps []Step `mapstructure:"scale_steps"`
}

// DefaultPolicy returns the thresholds calibrated for the Planetary Computer collections
func DefaultPolicy() Policy {
	return Policy{
		WarnKm2:        100,
		RejectKm2:      1000,
		DefaultDays:    7,
		RetryExtraDays: 7,
		LimitSteps: []Step{
			{MaxKm2: 10, Value: 1},
			{MaxKm2: 50, Value: 2},
			{MaxKm2: 100, Value: 5},
			{MaxKm2: 500, Value: 10},
			{MaxKm2: 1000, Value: 20},
		},
		ScaleSteps: []Step{
			{MaxKm2: 10, Value: 1},
			{MaxKm2: 50, Value: 2},
			{MaxKm2: 100, Value: 4},
			{MaxKm2: 500, Value: 8},
			{MaxKm2: 1000, Value: 16},
		},
	}
}

// Validate checks that the step functions are monotonic and the scale factors never increase the resolution
func (p Policy) Validate() error {
	if p.WarnKm2 <= 0 || p.RejectKm2 <= 0 {
		return fmt.Errorf("policy: thresholds must be positive")
	}
	if p.WarnKm2 >= p.RejectKm2 {
		return fmt.Errorf("policy: warn_km2 (%g) must be lower than reject_km2 (%g)", p.WarnKm2, p.RejectKm2)
	}
	if p.DefaultDays <= 0 || p.RetryExtraDays < 0 {
		return fmt.Errorf("policy: default_days must be positive and retry_extra_days non-negative")
	}
	if err := validateSteps("limit_steps", p.LimitSteps, 1); err != nil {
		return err
	}
	return validateSteps("scale_steps", p.ScaleSteps, 1)
}

func validateSteps(name string, steps []Step, min int) error {
	if len(steps) == 0 {
		return fmt.Errorf("policy.%s: at least one step is required", name)
	}
	for i, s := range steps {
		if s.Value < min {
			return fmt.Errorf("policy.%s[%d]: value must be >= %d", name, i, min)
		}
		if i > 0 && (s.MaxKm2 <= steps[i-1].MaxKm2 || s.Value < steps[i-1].Value) {
			return fmt.Errorf("policy.%s[%d]: steps must be sorted by area and non-decreasing", name, i)
		}
	}
	return nil
}

// SearchLimit returns the number of items to search for an area
func (p Policy) SearchLimit(areaKm2 float64) int {
	for _, s := range p.LimitSteps {
		if areaKm2 < s.MaxKm2 {
			return s.Value
		}
	}
	return p.LimitSteps[len(p.LimitSteps)-1].Value
}

// ResolutionScale returns the downscaling factor of the native resolution for an area
func (p Policy) ResolutionScale(areaKm2 float64) int {
	for _, s := range p.ScaleSteps {
		if areaKm2 <= s.MaxKm2 {
			return s.Value
		}
	}
	return p.ScaleSteps[len(p.ScaleSteps)-1].Value
}
