package zarr

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Range selects the indices [Start, Stop) of a dimension
type Range struct {
	Start, Stop int
}

// Len of the range
func (r Range) Len() int {
	if r.Stop < r.Start {
		return 0
	}
	return r.Stop - r.Start
}

// Info describes an array of a store without reading it
type Info struct {
	Dims  []string
	Shape []int
	Attrs map[string]interface{}
}

// Store is a lazily opened multidimensional dataset
type Store interface {
	// DataVariables returns the sorted names of the arrays that are not coordinates
	DataVariables() []string
	// Array returns the description of an array (data variable or coordinate)
	Array(name string) (Info, bool)
	// Read materializes the selection of an array. Unselected dimensions are read entirely.
	Read(ctx context.Context, name string, sel map[string]Range) (*Variable, error)
}

// Opener opens a store with the storage options of the catalog asset
type Opener interface {
	Open(ctx context.Context, href string, options map[string]interface{}) (Store, error)
}

// Variable is a materialized array
type Variable struct {
	Name  string
	Dims  []string
	Shape []int
	Data  []float64 // C order, NaN for missing values
	Attrs map[string]interface{}
	Times []time.Time // Decoded values of a CF time coordinate
}

// Len returns the number of elements
func (v *Variable) Len() int {
	return len(v.Data)
}

// Size of a dimension, -1 if the variable does not have the dimension
func (v *Variable) Size(dim string) int {
	for i, d := range v.Dims {
		if d == dim {
			return v.Shape[i]
		}
	}
	return -1
}

// MinMax returns the extrema of the valid values
func (v *Variable) MinMax() (min, max float64, ok bool) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, x := range v.Data {
		if math.IsNaN(x) {
			continue
		}
		ok = true
		min, max = math.Min(min, x), math.Max(max, x)
	}
	return min, max, ok
}

// Units returns the units attribute
func (v *Variable) Units() string {
	s, _ := v.Attrs["units"].(string)
	return s
}

// Dataset is a materialized subset of a store
type Dataset struct {
	Coords    []*Variable
	Variables []*Variable
	Attrs     map[string]interface{}
}

// Coord returns the coordinate or nil
func (d *Dataset) Coord(name string) *Variable {
	for _, c := range d.Coords {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// VariableNames returns the names of the data variables
func (d *Dataset) VariableNames() []string {
	names := make([]string, len(d.Variables))
	for i, v := range d.Variables {
		names[i] = v.Name
	}
	return names
}

// CoordNames returns the names of the coordinates
func (d *Dataset) CoordNames() []string {
	names := make([]string, len(d.Coords))
	for i, v := range d.Coords {
		names[i] = v.Name
	}
	return names
}

// Sizes returns the size of every dimension
func (d *Dataset) Sizes() map[string]int {
	sizes := map[string]int{}
	for _, vars := range [][]*Variable{d.Coords, d.Variables} {
		for _, v := range vars {
			for i, dim := range v.Dims {
				sizes[dim] = v.Shape[i]
			}
		}
	}
	return sizes
}

// Empty returns true if there is no data variable or no element to read
func (d *Dataset) Empty() bool {
	if len(d.Variables) == 0 {
		return true
	}
	for _, v := range d.Variables {
		if v.Len() == 0 {
			return true
		}
	}
	return false
}

// timeUnits parses CF units "days since 1900-01-01 00:00:00"
func timeUnits(units string) (time.Duration, time.Time, bool) {
	parts := strings.SplitN(units, " since ", 2)
	if len(parts) != 2 {
		return 0, time.Time{}, false
	}
	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "days", "day", "d":
		step = 24 * time.Hour
	case "hours", "hour", "h":
		step = time.Hour
	case "minutes", "minute", "min":
		step = time.Minute
	case "seconds", "second", "s":
		step = time.Second
	default:
		return 0, time.Time{}, false
	}
	ref := strings.TrimSpace(parts[1])
	ref = strings.TrimSuffix(strings.TrimSuffix(ref, " UTC"), "Z")
	origin, err := dateparse.ParseIn(ref, time.UTC)
	if err != nil {
		return 0, time.Time{}, false
	}
	return step, origin.UTC(), true
}

// DecodeTimes decodes the values of a CF time coordinate. Only the standard calendars are supported.
func DecodeTimes(values []float64, attrs map[string]interface{}) ([]time.Time, error) {
	units, _ := attrs["units"].(string)
	step, origin, ok := timeUnits(units)
	if !ok {
		return nil, fmt.Errorf("DecodeTimes: unsupported units %q", units)
	}
	switch cal, _ := attrs["calendar"].(string); strings.ToLower(cal) {
	case "", "standard", "gregorian", "proleptic_gregorian":
	default:
		return nil, fmt.Errorf("DecodeTimes: unsupported calendar %q", cal)
	}
	times := make([]time.Time, len(values))
	for i, v := range values {
		times[i] = origin.Add(time.Duration(v * float64(step)))
	}
	return times, nil
}

// IsTime returns true if the attributes are those of a CF time coordinate
func IsTime(attrs map[string]interface{}) bool {
	units, _ := attrs["units"].(string)
	_, _, ok := timeUnits(units)
	return ok
}
