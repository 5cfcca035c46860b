package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
)

// MQTTSource subscribes to device telemetry on an MQTT broker.
type MQTTSource struct {
	Broker   string // host:port or tcp://host:port
	Topic    string
	ClientID string
	QoS      byte
	Log      *slog.Logger

	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// NewMQTTSource creates a source. An empty clientID gets a random one.
func NewMQTTSource(broker, topic, clientID string, log *slog.Logger) *MQTTSource {
	if log == nil {
		log = slog.Default()
	}
	if clientID == "" {
		clientID = "fieldview-" + uuid.NewString()
	}
	return &MQTTSource{
		Broker:     broker,
		Topic:      topic,
		ClientID:   clientID,
		Log:        log,
		MinBackoff: time.Second,
		MaxBackoff: 30 * time.Second,
	}
}

func brokerAddr(broker string) (string, error) {
	if !strings.Contains(broker, "://") {
		return broker, nil
	}
	u, err := url.Parse(broker)
	if err != nil {
		return "", fmt.Errorf("broker url: %w", err)
	}
	if u.Scheme != "tcp" && u.Scheme != "mqtt" {
		return "", fmt.Errorf("broker url: unsupported scheme %q", u.Scheme)
	}
	return u.Host, nil
}

// Run connects, subscribes and delivers payloads until ctx is done,
// reconnecting on failure.
func (s *MQTTSource) Run(ctx context.Context, deliver func([]byte)) error {
	addr, err := brokerAddr(s.Broker)
	if err != nil {
		return err
	}
	bo := newBackoff(s.MinBackoff, s.MaxBackoff)
	for {
		err := s.session(ctx, addr, deliver, bo)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.Log.Warn("mqtt disconnected", "broker", addr, "error", err)
		if !bo.wait(ctx) {
			return ctx.Err()
		}
	}
}

// forwardPublish queues payloads for delivery. It gives up when ctx ends
// so a full queue never blocks paho's shutdown.
func forwardPublish(ctx context.Context, msgs chan<- []byte) func(paho.PublishReceived) (bool, error) {
	return func(pr paho.PublishReceived) (bool, error) {
		select {
		case msgs <- pr.Packet.Payload:
		case <-ctx.Done():
		}
		return true, nil
	}
}

func (s *MQTTSource) session(ctx context.Context, addr string, deliver func([]byte), bo *backoff) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	// sctx unblocks the publish handler once this session ends, so
	// Disconnect can wait for paho's workers.
	sctx, cancel := context.WithCancel(ctx)

	msgs := make(chan []byte, 256)
	errc := make(chan error, 2)

	client := paho.NewClient(paho.ClientConfig{
		Conn:     conn,
		ClientID: s.ClientID,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			forwardPublish(sctx, msgs),
		},
		OnClientError: func(err error) {
			select {
			case errc <- err:
			default:
			}
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			select {
			case errc <- fmt.Errorf("server disconnect, reason %d", d.ReasonCode):
			default:
			}
		},
	})

	if _, err := client.Connect(ctx, &paho.Connect{
		ClientID:   s.ClientID,
		KeepAlive:  30,
		CleanStart: true,
	}); err != nil {
		cancel()
		conn.Close()
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	defer cancel()

	if _, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: s.Topic, QoS: s.QoS}},
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.Topic, err)
	}
	s.Log.Info("mqtt subscribed", "broker", addr, "topic", s.Topic, "client", s.ClientID)
	bo.reset()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			return err
		case payload := <-msgs:
			deliver(payload)
		}
	}
}
