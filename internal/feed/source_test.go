package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/luki/fieldview/internal/history"
	"github.com/luki/fieldview/internal/reading"
)

func TestWebSocketSourcePump(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range []string{
			`{"DeviceId":"d1","MessageDate":"2024-01-01T00:00:00Z","IotData":{"temperature":20}}`,
			`garbage`,
			`{"DeviceId":"d1","MessageDate":"2024-01-01T00:00:01Z","IotData":{"temperature":21}}`,
			`{"DeviceId":"d2","MessageDate":"2024-01-01T00:00:02Z","IotData":{"humidity":40}}`,
		} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		conn.ReadMessage()
	}))
	defer srv.Close()

	session := NewSession(history.NewRegistry(50, reading.ZeroIsReading), SelectAuto)
	router := NewRouter(session, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(chan struct{}, 16)
	src := NewWebSocketSource("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	done := make(chan error, 1)
	go func() {
		done <- src.Run(ctx, func(raw []byte) {
			router.Handle(ctx, raw)
			seen <- struct{}{}
		})
	}()

	for i := 0; i < 4; i++ {
		select {
		case <-seen:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d messages", i)
		}
	}
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	require.Equal(t, 2, session.Registry.Count())
	s, _ := session.Registry.Find("d1")
	require.Equal(t, 2, s.Len())
}

func TestBrokerAddr(t *testing.T) {
	for in, want := range map[string]string{
		"localhost:1883":        "localhost:1883",
		"tcp://broker:1883":     "broker:1883",
		"mqtt://10.0.0.5:18830": "10.0.0.5:18830",
	} {
		got, err := brokerAddr(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := brokerAddr("ws://broker:80")
	require.Error(t, err)
}

func TestNewMQTTSourceClientID(t *testing.T) {
	s := NewMQTTSource("localhost:1883", "devices/+/telemetry", "", nil)
	require.True(t, strings.HasPrefix(s.ClientID, "fieldview-"))

	s = NewMQTTSource("localhost:1883", "devices/+/telemetry", "viewer-1", nil)
	require.Equal(t, "viewer-1", s.ClientID)
}

func TestForwardPublishReleasesOnSessionEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	msgs := make(chan []byte, 1)
	handle := forwardPublish(ctx, msgs)

	pub := paho.PublishReceived{Packet: &paho.Publish{Payload: []byte("a")}}
	ok, err := handle(pub)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("a"), <-msgs)

	msgs <- []byte("queued")
	returned := make(chan struct{})
	go func() {
		handle(paho.PublishReceived{Packet: &paho.Publish{Payload: []byte("b")}})
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("handler must wait while the queue is full and the session is live")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("handler still blocked after the session ended")
	}
}
