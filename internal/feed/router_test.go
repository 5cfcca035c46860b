package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luki/fieldview/internal/history"
	"github.com/luki/fieldview/internal/reading"
)

type fakeTracker struct {
	fixes [][2]float64
}

func (f *fakeTracker) Update(_ context.Context, lat, lon float64) bool {
	f.fixes = append(f.fixes, [2]float64{lat, lon})
	return true
}

func newTestRouter(policy reading.ZeroPolicy, sel SelectionPolicy) (*Router, *fakeTracker) {
	tr := &fakeTracker{}
	s := NewSession(history.NewRegistry(50, policy), sel)
	return NewRouter(s, tr, nil), tr
}

func TestRouterRejectsMissingDate(t *testing.T) {
	r, _ := newTestRouter(reading.ZeroIsReading, SelectAuto)
	res := r.Handle(context.Background(), []byte(`{"DeviceId":"d1","IotData":{"temperature":21}}`))

	require.False(t, res.Accepted)
	require.Equal(t, ReasonNoDate, res.Reason)
	require.Equal(t, 0, r.Session().Registry.Count())
}

func TestRouterRejectsEmptyPayload(t *testing.T) {
	r, tr := newTestRouter(reading.ZeroIsReading, SelectAuto)
	res := r.Handle(context.Background(), []byte(`{"DeviceId":"d1","MessageDate":"t","Latitude":"1","Longitude":"2","IotData":{}}`))

	require.False(t, res.Accepted)
	require.Equal(t, ReasonEmpty, res.Reason)
	require.Equal(t, 0, r.Session().Registry.Count())
	require.Empty(t, tr.fixes, "rejected message must not move the map")
}

func TestRouterRejectsMalformed(t *testing.T) {
	r, _ := newTestRouter(reading.ZeroIsReading, SelectAuto)
	refreshed := false
	r.Session().OnRefresh = func() { refreshed = true }

	res := r.Handle(context.Background(), []byte(`{not json`))
	require.Equal(t, ReasonMalformed, res.Reason)
	require.False(t, refreshed)
	require.Equal(t, 0, r.Session().Registry.Count())
}

func TestRouterZeroPolicy(t *testing.T) {
	msg := []byte(`{"DeviceId":"d1","MessageDate":"2024-01-01T00:00:00Z","IotData":{"temperature":0}}`)

	r, _ := newTestRouter(reading.ZeroIsReading, SelectAuto)
	require.True(t, r.Handle(context.Background(), msg).Accepted)

	r, _ = newTestRouter(reading.ZeroIsAbsent, SelectAuto)
	require.False(t, r.Handle(context.Background(), msg).Accepted)
}

func TestRouterSingleValueAdmits(t *testing.T) {
	r, _ := newTestRouter(reading.ZeroIsReading, SelectAuto)
	res := r.Handle(context.Background(), []byte(`{"DeviceId":"d1","MessageDate":"x","IotData":{"moisture":12}}`))
	require.True(t, res.Accepted)

	s, ok := r.Session().Registry.Find("d1")
	require.True(t, ok)
	last, _ := s.Last()
	require.Equal(t, reading.Of(12), last.Moisture)
	require.False(t, last.Temperature.Valid)
}

func TestRouterCreatesAndAutoSelects(t *testing.T) {
	r, _ := newTestRouter(reading.ZeroIsReading, SelectAuto)
	var counts []int
	refreshes := 0
	r.Session().OnDevices = func(n int) { counts = append(counts, n) }
	r.Session().OnRefresh = func() { refreshes++ }

	res := r.Handle(context.Background(), []byte(`{"DeviceId":"d1","MessageDate":"2024-01-01T00:00:00Z","IotData":{"temperature":20}}`))
	require.True(t, res.NewDevice)
	require.True(t, res.Selected)

	res = r.Handle(context.Background(), []byte(`{"DeviceId":"d2","MessageDate":"2024-01-01T00:00:01Z","IotData":{"temperature":21}}`))
	require.True(t, res.NewDevice)
	require.False(t, res.Selected, "only the first device is auto-selected")

	res = r.Handle(context.Background(), []byte(`{"DeviceId":"d1","MessageDate":"2024-01-01T00:00:02Z","IotData":{"temperature":22}}`))
	require.False(t, res.NewDevice)

	require.Equal(t, []int{1, 2}, counts)
	require.Equal(t, 3, refreshes)

	sel, ok := r.Session().Selected()
	require.True(t, ok)
	require.Equal(t, "d1", sel)

	chart, ok := r.Session().Chart()
	require.True(t, ok)
	require.Equal(t, 2, chart.Len())
}

func TestRouterManualSelection(t *testing.T) {
	r, _ := newTestRouter(reading.ZeroIsReading, SelectManual)
	res := r.Handle(context.Background(), []byte(`{"DeviceId":"d1","MessageDate":"t","IotData":{"humidity":50}}`))
	require.True(t, res.Accepted)
	require.False(t, res.Selected)

	_, ok := r.Session().Selected()
	require.False(t, ok)

	require.ErrorIs(t, r.Session().Select("nope"), history.ErrUnknownDevice)
	require.NoError(t, r.Session().Select("d1"))
}

func TestRouterGPS(t *testing.T) {
	r, tr := newTestRouter(reading.ZeroIsReading, SelectAuto)

	res := r.Handle(context.Background(), []byte(`{"DeviceId":"d1","MessageDate":"t","Latitude":"47.07","Longitude":"15.43","IotData":{"temperature":1}}`))
	require.True(t, res.Moved)
	require.Equal(t, [][2]float64{{47.07, 15.43}}, tr.fixes)

	res = r.Handle(context.Background(), []byte(`{"DeviceId":"d1","MessageDate":"t","Latitude":"north","Longitude":"15.43","IotData":{"temperature":1}}`))
	require.True(t, res.Accepted, "bad gps must not block sensor data")
	require.Len(t, tr.fixes, 1)

	res = r.Handle(context.Background(), []byte(`{"DeviceId":"d1","MessageDate":"t","Latitude":"47.07","IotData":{"temperature":1}}`))
	require.True(t, res.Accepted)
	require.Len(t, tr.fixes, 1)
}

func TestSessionCycle(t *testing.T) {
	r, _ := newTestRouter(reading.ZeroIsReading, SelectManual)
	for _, id := range []string{"a", "b", "c"} {
		r.Handle(context.Background(), []byte(`{"DeviceId":"`+id+`","MessageDate":"t","IotData":{"temperature":1}}`))
	}
	s := r.Session()

	id, ok := s.Cycle(1)
	require.True(t, ok)
	require.Equal(t, "a", id)

	id, _ = s.Cycle(1)
	require.Equal(t, "b", id)
	id, _ = s.Cycle(-1)
	require.Equal(t, "a", id)
	id, _ = s.Cycle(-1)
	require.Equal(t, "c", id)
}

func TestCountText(t *testing.T) {
	require.Equal(t, "1 device", CountText(1))
	require.Equal(t, "3 devices", CountText(3))
	require.Equal(t, "0 devices", CountText(0))
}

func TestParseSelectionPolicy(t *testing.T) {
	p, err := ParseSelectionPolicy("manual")
	require.NoError(t, err)
	require.Equal(t, SelectManual, p)
	_, err = ParseSelectionPolicy("sometimes")
	require.Error(t, err)
}
