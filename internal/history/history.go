// Package history provides the bounded per-device reading buffers and the
// registry that maps device ids to them.
package history

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/luki/fieldview/internal/reading"
)

// DefaultCapacity is the number of samples kept per device.
const DefaultCapacity = 50

// ErrUnknownDevice is returned when a device id has no series.
var ErrUnknownDevice = errors.New("unknown device")

// Series stores a rolling window of readings for one device as four
// parallel sequences of equal length.
type Series struct {
	mu          sync.RWMutex
	id          string
	max         int
	policy      reading.ZeroPolicy
	times       []time.Time
	labels      []string
	temperature []reading.Value
	humidity    []reading.Value
	moisture    []reading.Value
}

// NewSeries creates an empty series with the given capacity.
func NewSeries(id string, capacity int, policy reading.ZeroPolicy) *Series {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Series{
		id:          id,
		max:         capacity,
		policy:      policy,
		times:       make([]time.Time, 0, capacity+1),
		labels:      make([]string, 0, capacity+1),
		temperature: make([]reading.Value, 0, capacity+1),
		humidity:    make([]reading.Value, 0, capacity+1),
		moisture:    make([]reading.Value, 0, capacity+1),
	}
}

// ID returns the device id the series belongs to.
func (s *Series) ID() string { return s.id }

// Cap returns the capacity.
func (s *Series) Cap() int { return s.max }

// Append adds one reading and evicts the oldest once the capacity is
// exceeded. Humidity and moisture pass through the zero policy.
func (s *Series) Append(r reading.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.times = append(s.times, r.Time)
	s.labels = append(s.labels, r.Label)
	s.temperature = append(s.temperature, r.Temperature)
	s.humidity = append(s.humidity, s.policy.Normalize(r.Humidity))
	s.moisture = append(s.moisture, s.policy.Normalize(r.Moisture))

	if len(s.labels) > s.max {
		s.times = shift(s.times)
		s.labels = shift(s.labels)
		s.temperature = shift(s.temperature)
		s.humidity = shift(s.humidity)
		s.moisture = shift(s.moisture)
	}
}

// shift drops index 0 in place so the backing array does not grow.
func shift[T any](xs []T) []T {
	copy(xs, xs[1:])
	var zero T
	xs[len(xs)-1] = zero
	return xs[:len(xs)-1]
}

// Len returns the current number of samples.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.labels)
}

// Snapshot is a consistent copy of a series' sequences.
type Snapshot struct {
	ID          string          `json:"id"`
	Times       []time.Time     `json:"-"`
	Labels      []string        `json:"labels"`
	Temperature []reading.Value `json:"temperature"`
	Humidity    []reading.Value `json:"humidity"`
	Moisture    []reading.Value `json:"moisture"`
}

// Len returns the number of samples in the snapshot.
func (sn Snapshot) Len() int { return len(sn.Labels) }

// Values returns the sequence of one metric.
func (sn Snapshot) Values(m reading.Metric) []reading.Value {
	switch m {
	case reading.Temperature:
		return sn.Temperature
	case reading.Humidity:
		return sn.Humidity
	case reading.Moisture:
		return sn.Moisture
	}
	return nil
}

// Snapshot copies the four sequences under the lock.
func (s *Series) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:          s.id,
		Times:       append([]time.Time(nil), s.times...),
		Labels:      append([]string(nil), s.labels...),
		Temperature: append([]reading.Value(nil), s.temperature...),
		Humidity:    append([]reading.Value(nil), s.humidity...),
		Moisture:    append([]reading.Value(nil), s.moisture...),
	}
}

// Last returns the most recent reading.
func (s *Series) Last() (reading.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.labels)
	if n == 0 {
		return reading.Reading{}, false
	}
	return reading.Reading{
		Time:        s.times[n-1],
		Label:       s.labels[n-1],
		Temperature: s.temperature[n-1],
		Humidity:    s.humidity[n-1],
		Moisture:    s.moisture[n-1],
	}, true
}

// Stats summarizes the present values of one metric.
type Stats struct {
	Min   float64
	Peak  float64
	Avg   float64
	Count int
}

// Stats computes min, peak and average over present values. Count is 0 when
// the window holds no value for the metric.
func (sn Snapshot) Stats(m reading.Metric) Stats {
	st := Stats{Min: math.MaxFloat64, Peak: -math.MaxFloat64}
	sum := 0.0
	for _, v := range sn.Values(m) {
		if !v.Valid {
			continue
		}
		st.Count++
		sum += v.V
		if v.V < st.Min {
			st.Min = v.V
		}
		if v.V > st.Peak {
			st.Peak = v.V
		}
	}
	if st.Count == 0 {
		return Stats{}
	}
	st.Avg = sum / float64(st.Count)
	return st
}

// Registry manages the series of all devices seen in a session.
type Registry struct {
	mu       sync.RWMutex
	data     map[string]*Series
	order    []string
	capacity int
	policy   reading.ZeroPolicy
}

// NewRegistry creates a registry whose series hold capacity samples.
func NewRegistry(capacity int, policy reading.ZeroPolicy) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		data:     make(map[string]*Series),
		capacity: capacity,
		policy:   policy,
	}
}

// Policy returns the zero policy applied to new series.
func (r *Registry) Policy() reading.ZeroPolicy { return r.policy }

// Find returns the series for id without creating it.
func (r *Registry) Find(id string) (*Series, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.data[id]
	return s, ok
}

// Ensure returns the series for id, creating and registering it on first
// sight. created reports whether this call registered it.
func (r *Registry) Ensure(id string) (s *Series, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.data[id]; ok {
		return s, false
	}
	s = NewSeries(id, r.capacity, r.policy)
	r.data[id] = s
	r.order = append(r.order, id)
	return s, true
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// IDs returns device ids in first-sight order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
