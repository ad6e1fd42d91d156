package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// flushTimeout bounds how long Close waits for buffered publishes.
const flushTimeout = 2 * time.Second

// connect dials NATS with reconnection enabled; opts override the defaults.
func connect(url, name string, opts ...nats.Option) (*nats.Conn, error) {
	defaults := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher publishes JSON-encoded events to NATS subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects a publisher. Events published while the
// connection is down are buffered by the client and sent on reconnect.
func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := connect(url, "newsdigest-publisher", opts...)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", topic, err)
	}
	return p.conn.Publish(topic, data)
}

// Close flushes buffered events before closing the connection. A failed
// flush is returned after the connection is closed.
func (p *NATSPublisher) Close() error {
	var err error
	if p.conn.IsConnected() {
		err = p.conn.FlushTimeout(flushTimeout)
	}
	p.conn.Close()
	return err
}

// NATSSubscriber subscribes to events from NATS subjects.
type NATSSubscriber struct {
	conn *nats.Conn
}

// NewNATSSubscriber connects with automatic reconnection. Extra options
// (e.g. disconnect/reconnect handlers) are applied after the defaults.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	nc, err := connect(url, "newsdigest-subscriber", opts...)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc}, nil
}

// subscription bridges NATS callbacks onto a bounded channel. Messages that
// arrive while the channel is full are dropped rather than stall the client.
type subscription struct {
	sub *nats.Subscription
	ch  chan []byte

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func (s *subscription) deliver(msg *nats.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- msg.Data:
	default:
	}
}

// cancel unsubscribes and closes the channel. It is safe to call twice.
func (s *subscription) cancel() {
	s.once.Do(func() {
		_ = s.sub.Unsubscribe()
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		// Drop anything still buffered so readers see the close at once.
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

// Subscribe returns a channel of raw payloads for topic, which may use NATS
// wildcards such as "newsdigest.>".
func (s *NATSSubscriber) Subscribe(topic string) (<-chan []byte, func(), error) {
	sn := &subscription{ch: make(chan []byte, 64)}

	sub, err := s.conn.Subscribe(topic, sn.deliver)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	sn.sub = sub

	// The subscription must reach the server before messages published on
	// other connections are routed to it.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, nil, fmt.Errorf("flushing subscription to %s: %w", topic, err)
	}
	return sn.ch, sn.cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
