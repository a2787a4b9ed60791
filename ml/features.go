package ml

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	FeatureTopSpeed     = "top_speed_kmh"
	FeatureBattery      = "battery_capacity_kWh"
	FeatureCells        = "number_of_cells"
	FeatureTorque       = "torque_nm"
	FeatureAcceleration = "acceleration_0_100_s"
	FeatureFastCharge   = "fast_charging_power_kw_dc"
	FeatureTowing       = "towing_capacity_kg"
	FeatureLength       = "length_mm"
	FeatureWidth        = "width_mm"

	Target = "range_km"
)

// FeatureRow maps feature names to raw (unscaled) values.
type FeatureRow map[string]float64

// FeatureNames returns the model columns in their fitted order.
func FeatureNames() []string {
	return []string{
		FeatureTopSpeed,
		FeatureBattery,
		FeatureCells,
		FeatureTorque,
		FeatureAcceleration,
		FeatureFastCharge,
		FeatureTowing,
		FeatureLength,
		FeatureWidth,
	}
}

// DefaultFeatureValues holds the fields the form and the chat never ask for.
func DefaultFeatureValues() FeatureRow {
	return FeatureRow{
		FeatureCells:      400,
		FeatureTorque:     300,
		FeatureFastCharge: 120,
		FeatureTowing:     0,
		FeatureWidth:      1820,
	}
}

// SchemaMismatchError reports a row whose columns differ from the fitted ones.
type SchemaMismatchError struct {
	Missing    []string
	Unexpected []string
}

func (e *SchemaMismatchError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing columns: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected columns: "+strings.Join(e.Unexpected, ", "))
	}
	return "feature schema mismatch: " + strings.Join(parts, "; ")
}

// FeatureVector lays a row out in the given column order. The row must carry
// exactly those columns.
func FeatureVector(row FeatureRow, columns []string) ([]float64, error) {
	mismatch := &SchemaMismatchError{}
	vector := make([]float64, len(columns))
	expected := make(map[string]struct{}, len(columns))
	for i, name := range columns {
		expected[name] = struct{}{}
		value, ok := row[name]
		if !ok {
			mismatch.Missing = append(mismatch.Missing, name)
			continue
		}
		vector[i] = value
	}
	for name := range row {
		if _, ok := expected[name]; !ok {
			mismatch.Unexpected = append(mismatch.Unexpected, name)
		}
	}
	if len(mismatch.Missing) > 0 || len(mismatch.Unexpected) > 0 {
		sort.Strings(mismatch.Unexpected)
		return nil, mismatch
	}
	return vector, nil
}

// Bound is an inclusive numeric range for a form field.
type Bound struct {
	Min float64
	Max float64
}

// FormInput is what the user fills in on the prediction form.
type FormInput struct {
	BatteryKWh    float64 `json:"battery_capacity_kWh"`
	TopSpeedKmh   float64 `json:"top_speed_kmh"`
	LengthMM      float64 `json:"length_mm"`
	AccelerationS float64 `json:"acceleration_0_100_s"`
}

// FormBounds are the accepted ranges of the four form fields.
var FormBounds = map[string]Bound{
	FeatureBattery:      {Min: 20, Max: 150},
	FeatureTopSpeed:     {Min: 80, Max: 350},
	FeatureLength:       {Min: 3000, Max: 6000},
	FeatureAcceleration: {Min: 2, Max: 15},
}

// DefaultFormInput is what the form shows before the first submit.
func DefaultFormInput() FormInput {
	return FormInput{
		BatteryKWh:    60,
		TopSpeedKmh:   150,
		LengthMM:      4500,
		AccelerationS: 8,
	}
}

func (f FormInput) values() map[string]float64 {
	return map[string]float64{
		FeatureBattery:      f.BatteryKWh,
		FeatureTopSpeed:     f.TopSpeedKmh,
		FeatureLength:       f.LengthMM,
		FeatureAcceleration: f.AccelerationS,
	}
}

// Validate rejects non-finite values and values outside FormBounds.
func (f FormInput) Validate() error {
	values := f.values()
	for _, name := range []string{FeatureBattery, FeatureTopSpeed, FeatureLength, FeatureAcceleration} {
		bound := FormBounds[name]
		v := values[name]
		if math.IsNaN(v) || math.IsInf(v, 0) || v < bound.Min || v > bound.Max {
			return fmt.Errorf("%s must be between %g and %g, got %g", name, bound.Min, bound.Max, v)
		}
	}
	return nil
}

// Row completes the form input with the hidden defaults.
func (f FormInput) Row() FeatureRow {
	row := DefaultFeatureValues()
	for name, value := range f.values() {
		row[name] = value
	}
	return row
}
