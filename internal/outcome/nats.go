package outcome

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSSink publishes each event on <prefix>.<room code>.<kind>.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

func NewNATSSink(url, prefix string) (*NATSSink, error) {
	conn, err := nats.Connect(url, nats.Name("timeauction"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSSink{conn: conn, prefix: prefix}, nil
}

func Subject(prefix string, ev Event) string {
	return prefix + "." + ev.Code + "." + string(ev.Kind)
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Send(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.conn.Publish(Subject(s.prefix, ev), data); err != nil {
		return fmt.Errorf("publish %s: %w", Subject(s.prefix, ev), err)
	}
	return nil
}

func (s *NATSSink) Close() error {
	return s.conn.Drain()
}
