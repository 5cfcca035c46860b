// Package reading defines the sensor sample model shared by the live feed,
// the rolling history and the historical overlay. Sensor values are
// optional: an absent value is never the same thing as a zero reading.
package reading

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LabelLayout is the display format used for chart labels.
const LabelLayout = "02.01.2006, 15:04:05"

// Value is an optional numeric sensor value.
type Value struct {
	V     float64
	Valid bool
}

// Of returns a present value.
func Of(v float64) Value {
	return Value{V: v, Valid: true}
}

// Absent is the missing value.
var Absent = Value{}

// UnmarshalJSON accepts numbers, numeric strings and null.
func (v *Value) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		*v = Value{}
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
		if s == "" {
			*v = Value{}
			return nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("sensor value %s: %w", data, err)
	}
	*v = Of(f)
	return nil
}

// MarshalJSON writes absent values as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(v.V, 'f', -1, 64)), nil
}

// String renders the value for popups, "-" when absent.
func (v Value) String() string {
	if !v.Valid {
		return "-"
	}
	return strconv.FormatFloat(v.V, 'f', -1, 64)
}

// Reading is one time-stamped sample of a device.
type Reading struct {
	Time        time.Time // zero when the source timestamp did not parse
	Label       string    // chart label, formatted or raw source text
	Temperature Value
	Humidity    Value
	Moisture    Value
}

// Get returns the value of one metric.
func (r Reading) Get(m Metric) Value {
	switch m {
	case Temperature:
		return r.Temperature
	case Humidity:
		return r.Humidity
	case Moisture:
		return r.Moisture
	}
	return Absent
}

// Empty reports whether no sensor value is present.
func (r Reading) Empty() bool {
	return !r.Temperature.Valid && !r.Humidity.Valid && !r.Moisture.Valid
}

// ZeroPolicy decides whether a numeric 0 counts as a reading.
type ZeroPolicy int

const (
	// ZeroIsReading keeps 0 as a real measurement.
	ZeroIsReading ZeroPolicy = iota
	// ZeroIsAbsent treats 0 like a missing value, matching the browser
	// dashboard this front end replaces.
	ZeroIsAbsent
)

// ParseZeroPolicy maps config text to a policy. Empty means ZeroIsReading.
func ParseZeroPolicy(s string) (ZeroPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reading":
		return ZeroIsReading, nil
	case "absent":
		return ZeroIsAbsent, nil
	}
	return ZeroIsReading, fmt.Errorf("unknown zero policy %q", s)
}

func (p ZeroPolicy) String() string {
	if p == ZeroIsAbsent {
		return "absent"
	}
	return "reading"
}

// Normalize applies the policy to a value.
func (p ZeroPolicy) Normalize(v Value) Value {
	if p == ZeroIsAbsent && v.Valid && v.V == 0 {
		return Absent
	}
	return v
}

// FormatTime formats a timestamp as a chart label.
func FormatTime(t time.Time) string {
	return t.Local().Format(LabelLayout)
}
