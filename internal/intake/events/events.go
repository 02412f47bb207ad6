// Package events publishes application lifecycle events. The service drops
// events into a channel; a background worker drains the channel to a sink
// (Kafka in production, a log sink in dev mode), so publishing never blocks
// a request on broker I/O.
package events

import (
	"context"
	"log/slog"
	"time"

	dErrors "ppdb/pkg/domain-errors"
)

// Type names a lifecycle event on the wire.
type Type string

const (
	TypeRegistered Type = "application.registered"
	TypeAnnounced  Type = "application.announced"
	TypeAccepted   Type = "application.accepted"
	TypeRejected   Type = "application.rejected"
	TypeCancelled  Type = "application.cancelled"
)

// Event is the wire form. Partitioning keys on TenantID so one tenant's
// events stay ordered.
type Event struct {
	Type           Type      `json:"type"`
	TenantID       string    `json:"tenant_id"`
	ApplicationID  string    `json:"application_id"`
	RegistrationID string    `json:"registration_id,omitempty"`
	TotalScore     *float64  `json:"total_score,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher accepts events from the service layer.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards every event. Used when no broker is configured and the
// channel worker is not running.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// ChannelPublisher hands events to the worker through a buffered channel.
// A full buffer fails the publish instead of blocking the request; the
// caller decides whether that is fatal (it never is for intake operations).
type ChannelPublisher struct {
	inbox chan Event
}

func NewChannelPublisher(buffer int) *ChannelPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelPublisher{inbox: make(chan Event, buffer)}
}

func (p *ChannelPublisher) Publish(_ context.Context, event Event) error {
	select {
	case p.inbox <- event:
		return nil
	default:
		return dErrors.Newf(dErrors.CodeInternal, "event buffer full, dropping %s", event.Type)
	}
}

// Inbox is the worker's read side.
func (p *ChannelPublisher) Inbox() <-chan Event { return p.inbox }

// Sink delivers one event to the outside world.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// LogSink writes events to the structured log. Dev-mode stand-in for the
// broker.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Deliver(ctx context.Context, event Event) error {
	s.Logger.InfoContext(ctx, "application event",
		"type", string(event.Type),
		"tenant_id", event.TenantID,
		"application_id", event.ApplicationID,
		"registration_id", event.RegistrationID,
	)
	return nil
}

// Worker drains the publisher's channel into the sink. Delivery failures
// are logged and dropped; lifecycle events are observability, not state.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Deliver(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "failed to deliver application event",
					"type", string(event.Type),
					"application_id", event.ApplicationID,
					"error", err,
				)
			}
		}
	}
}
