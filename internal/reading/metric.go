package reading

// Metric identifies one of the charted sensor channels.
type Metric int

const (
	Temperature Metric = iota
	Humidity
	Moisture
)

// Metrics lists the charted channels in display order.
var Metrics = []Metric{Temperature, Humidity, Moisture}

var metricInfo = []struct {
	name  string
	label string
	unit  string
	color string
}{
	{"temperature", "Air temperature", "°C", "220"},
	{"humidity", "Air humidity", "%", "33"},
	{"moisture", "Soil moisture", "%", "34"},
}

// Name returns the JSON field name of the metric.
func (m Metric) Name() string {
	if m < 0 || int(m) >= len(metricInfo) {
		return "unknown"
	}
	return metricInfo[m].name
}

// Label returns a human-readable name.
func (m Metric) Label() string {
	if m < 0 || int(m) >= len(metricInfo) {
		return "Sensor"
	}
	return metricInfo[m].label
}

// Unit returns the display unit.
func (m Metric) Unit() string {
	if m < 0 || int(m) >= len(metricInfo) {
		return ""
	}
	return metricInfo[m].unit
}

// Color returns the ANSI 256 color code used for the metric's chart.
func (m Metric) Color() string {
	if m < 0 || int(m) >= len(metricInfo) {
		return "252"
	}
	return metricInfo[m].color
}
