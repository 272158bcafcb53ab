// Package websocket streams territory events to a realtime gateway.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stravx/conquest/internal/territory"
)

// ErrClosed is returned by Notify after Close.
var ErrClosed = errors.New("websocket streamer closed")

// Config holds the gateway connection settings.
type Config struct {
	URL     string `mapstructure:"url"`
	Secret  string `mapstructure:"secret"`
	Channel string `mapstructure:"channel"`
}

// Streamer publishes territory events as JSON envelopes. Delivery is
// fire-and-forget; only the hello handshake waits for an ack.
type Streamer struct {
	conn *connection
	cfg  Config
}

func New(cfg Config, logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{
		conn: newConnection(logger.With("component", "websocket")),
		cfg:  cfg,
	}
}

// Init connects and performs the hello handshake.
func (s *Streamer) Init() error {
	if err := s.conn.dial(s.cfg.URL, s.cfg.Secret); err != nil {
		return err
	}
	data, err := marshalEnvelope(TypeHello, HelloPayload{Service: "conquest", Channel: s.cfg.Channel})
	if err != nil {
		return err
	}

	s.conn.mu.Lock()
	s.conn.hello = data
	s.conn.mu.Unlock()

	return s.conn.sendAndWait(data, TypeHello, ackTimeout)
}

// Close says goodbye and disconnects.
func (s *Streamer) Close() error {
	if data, err := marshalEnvelope(TypeGoodbye, nil); err == nil {
		_ = s.conn.sendAndWait(data, TypeGoodbye, ackTimeout/5)
	}
	return s.conn.close()
}

func (s *Streamer) Notify(ctx context.Context, e territory.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Publish(string(e.Kind), eventPayload(e))
}

// Publish sends an arbitrary payload under msgType.
func (s *Streamer) Publish(msgType string, payload any) error {
	s.conn.mu.Lock()
	closed := s.conn.closed
	s.conn.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	if !s.conn.send(data) {
		return fmt.Errorf("send queue full, dropped %s", msgType)
	}
	return nil
}

// Dropped returns how many messages were discarded because the queue was full.
func (s *Streamer) Dropped() int {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.conn.dropped
}

func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		raw = b
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}
