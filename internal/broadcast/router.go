// Package broadcast delivers outbound messages to live connections, relaying them to
// other server instances when the room store is shared.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sharetube/watchsync/internal/repository/connection"
	"github.com/sharetube/watchsync/pkg/protocol"
)

type Message struct {
	Type       string
	Payload    any
	Recipients []string
}

type iConnRepo interface {
	GetConn(connectionId string) (connection.Sender, error)
}

type iMetrics interface {
	RecordDelivered(msgType string)
	RecordDropped(msgType string)
}

type iRelay interface {
	Publish(ctx context.Context, frame *Frame) error
	Subscribe(ctx context.Context) (*Subscription, error)
}

type Router struct {
	conns   iConnRepo
	relay   iRelay
	metrics iMetrics
	logger  *slog.Logger
}

// NewRouter creates a router delivering to conns. relay and metrics may be nil.
func NewRouter(conns iConnRepo, relay iRelay, metrics iMetrics, logger *slog.Logger) *Router {
	return &Router{
		conns:   conns,
		relay:   relay,
		metrics: metrics,
		logger:  logger,
	}
}

// Send writes msg to every recipient connected to this instance and relays the rest.
// A failed write to one recipient does not stop delivery to the others.
func (r *Router) Send(ctx context.Context, msg *Message) error {
	if len(msg.Recipients) == 0 {
		return nil
	}

	data, err := json.Marshal(&protocol.Envelope{
		Type:    msg.Type,
		Payload: msg.Payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	missing := r.deliver(ctx, msg.Type, data, msg.Recipients)
	if len(missing) == 0 {
		return nil
	}

	if r.relay == nil {
		for range missing {
			r.recordDropped(msg.Type)
		}
		r.logger.DebugContext(ctx, "recipients not connected", "type", msg.Type, "connection_ids", missing)
		return nil
	}

	if err := r.relay.Publish(ctx, &Frame{
		Type:       msg.Type,
		Recipients: missing,
		Data:       data,
	}); err != nil {
		for range missing {
			r.recordDropped(msg.Type)
		}
		return fmt.Errorf("failed to relay message: %w", err)
	}

	return nil
}

// deliver returns the recipients that are not connected to this instance.
func (r *Router) deliver(ctx context.Context, msgType string, data []byte, recipients []string) []string {
	var missing []string
	for _, connectionId := range recipients {
		conn, err := r.conns.GetConn(connectionId)
		if err != nil {
			if errors.Is(err, connection.ErrNotFound) {
				missing = append(missing, connectionId)
				continue
			}

			r.logger.WarnContext(ctx, "failed to get connection", "connection_id", connectionId, "error", err)
			r.recordDropped(msgType)
			continue
		}

		if err := conn.WriteMessage(data); err != nil {
			r.logger.InfoContext(ctx, "failed to write message",
				"connection_id", connectionId,
				"type", msgType,
				"error", err,
			)
			r.recordDropped(msgType)
			continue
		}

		r.recordDelivered(msgType)
	}

	return missing
}

// RunRelay receives messages relayed by other instances until ctx is done.
// The subscription is active when RunRelay returns, delivery continues in the background.
func (r *Router) RunRelay(ctx context.Context) error {
	if r.relay == nil {
		return nil
	}

	sub, err := r.relay.Subscribe(ctx)
	if err != nil {
		return err
	}

	go sub.Run(ctx, func(frame *Frame) {
		r.deliver(ctx, frame.Type, frame.Data, frame.Recipients)
	})

	return nil
}

func (r *Router) recordDelivered(msgType string) {
	if r.metrics != nil {
		r.metrics.RecordDelivered(msgType)
	}
}

func (r *Router) recordDropped(msgType string) {
	if r.metrics != nil {
		r.metrics.RecordDropped(msgType)
	}
}
