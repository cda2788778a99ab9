package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes events to NATS subjects.
// Connect to RELAY_NATS_URL, publish JSON-encoded events to the given topic.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return p.conn.Publish(topic, data)
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NATSSubscriber consumes relay events from NATS. The connection retries
// forever; Reconnects signals when it comes back up so consumers can re-query
// whatever state they missed while disconnected.
type NATSSubscriber struct {
	conn       *nats.Conn
	reconnects chan struct{}
}

func NewNATSSubscriber(url string) (*NATSSubscriber, error) {
	s := &NATSSubscriber{reconnects: make(chan struct{}, 1)}
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("nats reconnected")
			select {
			case s.reconnects <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	s.conn = nc
	return s, nil
}

// Reconnects delivers one signal per re-established connection. Events
// published while the link was down are gone, so consumers should refresh
// from the API on receipt.
func (s *NATSSubscriber) Reconnects() <-chan struct{} {
	return s.reconnects
}

// Subscribe opens a subscription for topic (NATS wildcards like "relay.>"
// work). Payloads arrive on the subscription's C channel.
func (s *NATSSubscriber) Subscribe(topic string) (*Subscription, error) {
	out := &Subscription{ch: make(chan []byte, 64)}
	out.C = out.ch

	sub, err := s.conn.Subscribe(topic, out.deliver)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	out.sub = sub

	// Wait for the server to register the interest before returning, so
	// events published on other connections are routed from the start.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flushing subscription: %w", err)
	}
	return out, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}

// Subscription is one live topic subscription. Read payloads from C; Close
// unsubscribes and closes C.
type Subscription struct {
	C <-chan []byte

	sub  *nats.Subscription
	ch   chan []byte
	mu   sync.Mutex
	done bool
	once sync.Once
}

func (s *Subscription) deliver(msg *nats.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	select {
	case s.ch <- msg.Data:
	default:
		// A slow reader loses events rather than blocking the NATS client;
		// it can re-query current state instead.
	}
}

// Close unsubscribes, drains any buffered payloads and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		_ = s.sub.Unsubscribe()
		s.mu.Lock()
		s.done = true
		s.mu.Unlock()
		for {
			select {
			case <-s.ch:
			default:
				close(s.ch)
				return
			}
		}
	})
}
