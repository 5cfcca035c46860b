package feed

import (
	"context"
	"log/slog"

	"github.com/luki/fieldview/internal/reading"
)

// PositionUpdater receives parsed GPS fixes.
type PositionUpdater interface {
	Update(ctx context.Context, lat, lon float64) bool
}

// Rejection reasons reported in Result.
const (
	ReasonMalformed = "malformed"
	ReasonNoDate    = "missing MessageDate"
	ReasonNoDevice  = "missing DeviceId"
	ReasonEmpty     = "empty sensor payload"
)

// Result describes what Handle did with one message.
type Result struct {
	Accepted  bool
	Reason    string
	DeviceID  string
	NewDevice bool
	Selected  bool
	Moved     bool
}

// Router validates live messages and applies them to a session. Handle is
// meant to be called from a single goroutine in arrival order.
type Router struct {
	session *Session
	tracker PositionUpdater
	log     *slog.Logger
}

// NewRouter creates a router. tracker may be nil when no map is shown.
func NewRouter(session *Session, tracker PositionUpdater, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{session: session, tracker: tracker, log: log}
}

// Session returns the session the router writes to.
func (r *Router) Session() *Session { return r.session }

// Handle processes one raw message. Invalid messages are logged and leave no
// trace in the session.
func (r *Router) Handle(ctx context.Context, raw []byte) Result {
	ev, err := reading.DecodeEvent(raw)
	if err != nil {
		r.log.Warn("dropping malformed message", "error", err)
		return Result{Reason: ReasonMalformed}
	}
	return r.HandleEvent(ctx, ev)
}

// HandleEvent processes one decoded event.
func (r *Router) HandleEvent(ctx context.Context, ev reading.Event) Result {
	res := Result{DeviceID: ev.DeviceID}

	if ev.MessageDate == "" {
		res.Reason = ReasonNoDate
		r.log.Debug("dropping message", "device", ev.DeviceID, "reason", res.Reason)
		return res
	}
	rd := ev.Reading()
	policy := r.session.Registry.Policy()
	if !policy.Normalize(rd.Temperature).Valid &&
		!policy.Normalize(rd.Humidity).Valid &&
		!policy.Normalize(rd.Moisture).Valid {
		res.Reason = ReasonEmpty
		r.log.Debug("dropping message", "device", ev.DeviceID, "reason", res.Reason)
		return res
	}
	if ev.DeviceID == "" {
		res.Reason = ReasonNoDevice
		r.log.Warn("dropping message", "reason", res.Reason)
		return res
	}

	if ev.Latitude.Present() && ev.Longitude.Present() {
		lat, latErr := ev.Latitude.Float()
		lon, lonErr := ev.Longitude.Float()
		switch {
		case latErr != nil || lonErr != nil:
			r.log.Warn("invalid gps data", "device", ev.DeviceID,
				"latitude", string(ev.Latitude), "longitude", string(ev.Longitude))
		case r.tracker != nil:
			res.Moved = r.tracker.Update(ctx, lat, lon)
		}
	}

	series, created := r.session.Registry.Ensure(ev.DeviceID)
	series.Append(rd)
	res.Accepted = true

	if created {
		res.NewDevice = true
		count := r.session.Registry.Count()
		r.log.Info("new device", "device", ev.DeviceID, "devices", CountText(count))
		if r.session.OnDevices != nil {
			r.session.OnDevices(count)
		}
		res.Selected = r.session.autoSelect(ev.DeviceID)
	}

	r.session.refresh()
	return res
}
