package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketSource reads live messages from the relay's websocket.
type WebSocketSource struct {
	URL    string
	Dialer *websocket.Dialer
	Log    *slog.Logger

	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// NewWebSocketSource creates a source for url.
func NewWebSocketSource(url string, log *slog.Logger) *WebSocketSource {
	if log == nil {
		log = slog.Default()
	}
	return &WebSocketSource{
		URL:        url,
		Dialer:     websocket.DefaultDialer,
		Log:        log,
		MinBackoff: time.Second,
		MaxBackoff: 30 * time.Second,
	}
}

// Run connects and reads until ctx is done, reconnecting on failure.
func (s *WebSocketSource) Run(ctx context.Context, deliver func([]byte)) error {
	bo := newBackoff(s.MinBackoff, s.MaxBackoff)
	for {
		err := s.session(ctx, deliver, bo)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.Log.Warn("websocket disconnected", "url", s.URL, "error", err)
		if !bo.wait(ctx) {
			return ctx.Err()
		}
	}
}

func (s *WebSocketSource) session(ctx context.Context, deliver func([]byte), bo *backoff) error {
	conn, _, err := s.Dialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	s.Log.Info("websocket connected", "url", s.URL)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		bo.reset()
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		deliver(data)
	}
}
