// Package feed routes live device events into the rolling history and keeps
// the per-view selection state.
package feed

import (
	"fmt"
	"strings"
	"sync"

	"github.com/luki/fieldview/internal/history"
)

// SelectionPolicy decides what happens when the first device shows up.
type SelectionPolicy int

const (
	// SelectAuto charts the first device seen until the user picks another.
	SelectAuto SelectionPolicy = iota
	// SelectManual waits for an explicit selection.
	SelectManual
)

// ParseSelectionPolicy maps config text to a policy. Empty means SelectAuto.
func ParseSelectionPolicy(s string) (SelectionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return SelectAuto, nil
	case "manual":
		return SelectManual, nil
	}
	return SelectAuto, fmt.Errorf("unknown selection policy %q", s)
}

// Session is the state behind one view: the device registry and the
// device currently bound to the chart.
type Session struct {
	Registry *history.Registry
	Policy   SelectionPolicy

	mu       sync.RWMutex
	selected string

	// OnRefresh is called whenever the charted data changed: after an
	// accepted event and after a selection change.
	OnRefresh func()
	// OnDevices is called with the new device count when a device is
	// seen for the first time.
	OnDevices func(count int)
}

// NewSession creates a session over reg.
func NewSession(reg *history.Registry, policy SelectionPolicy) *Session {
	return &Session{Registry: reg, Policy: policy}
}

// Selected returns the device bound to the chart.
func (s *Session) Selected() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected, s.selected != ""
}

// Select binds the chart to id and triggers a refresh.
func (s *Session) Select(id string) error {
	if _, ok := s.Registry.Find(id); !ok {
		return fmt.Errorf("select %q: %w", id, history.ErrUnknownDevice)
	}
	s.mu.Lock()
	s.selected = id
	s.mu.Unlock()
	s.refresh()
	return nil
}

// autoSelect binds id if the policy allows it and nothing is selected yet.
func (s *Session) autoSelect(id string) bool {
	if s.Policy != SelectAuto {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected != "" {
		return false
	}
	s.selected = id
	return true
}

// Cycle moves the selection delta steps through the device list, wrapping
// around. With nothing selected it starts at the first device.
func (s *Session) Cycle(delta int) (string, bool) {
	ids := s.Registry.IDs()
	if len(ids) == 0 {
		return "", false
	}
	cur, ok := s.Selected()
	idx := 0
	if ok {
		for i, id := range ids {
			if id == cur {
				idx = ((i+delta)%len(ids) + len(ids)) % len(ids)
				break
			}
		}
	}
	if err := s.Select(ids[idx]); err != nil {
		return "", false
	}
	return ids[idx], true
}

// Chart returns a snapshot of the selected device's series.
func (s *Session) Chart() (history.Snapshot, bool) {
	id, ok := s.Selected()
	if !ok {
		return history.Snapshot{}, false
	}
	series, ok := s.Registry.Find(id)
	if !ok {
		return history.Snapshot{}, false
	}
	return series.Snapshot(), true
}

func (s *Session) refresh() {
	if s.OnRefresh != nil {
		s.OnRefresh()
	}
}

// CountText renders the device counter.
func CountText(n int) string {
	if n == 1 {
		return "1 device"
	}
	return fmt.Sprintf("%d devices", n)
}
