package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
	"github.com/ff-einsatz/hydrantmap/internal/core/ports"
)

var _ ports.EventSubscriber = (*Subscriber)(nil)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	if err := ensureStream(js); err != nil {
		return nil, err
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeImportFinished delivers every new import event to handler.
// The consumer is ephemeral: each API instance sees every event once.
func (s *Subscriber) SubscribeImportFinished(ctx context.Context, handler func(ctx context.Context, event *domain.ImportEvent) error) error {
	sub, err := s.js.Subscribe(ImportSubjects, func(msg *nats.Msg) {
		event, err := decodeImportEvent(msg.Data)
		if err != nil {
			slog.Warn("dropping malformed import event", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, event); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.DeliverNew(),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

func decodeImportEvent(data []byte) (*domain.ImportEvent, error) {
	var event domain.ImportEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	if event.Collection == "" {
		return nil, fmt.Errorf("import event without collection")
	}
	return &event, nil
}

// Connected reports whether the connection is up, for readiness probes.
func (s *Subscriber) Connected() bool {
	return s.conn.IsConnected()
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
