// Package events publishes task lifecycle events so external observers can
// follow orchestration without polling the store.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/workflowd/internal/workflow"
)

// Type names one kind of lifecycle event.
type Type string

const (
	TypeSubmitted    Type = "submitted"
	TypePhaseStarted Type = "phase_started"
	TypeGatePassed   Type = "gate_passed"
	TypeRetried      Type = "retried"
	TypeEscalated    Type = "escalated"
	TypeDeEscalated  Type = "de_escalated"
	TypeBlocked      Type = "blocked"
	TypeCompleted    Type = "completed"
	TypeFailed       Type = "failed"
)

// Event is one task lifecycle transition.
type Event struct {
	TaskID string                   `json:"task_id"`
	Type   Type                     `json:"type"`
	Phase  workflow.Phase           `json:"phase,omitempty"`
	Level  workflow.ComplexityLevel `json:"level,omitempty"`
	Status workflow.TaskStatus      `json:"status,omitempty"`
	Reason string                   `json:"reason,omitempty"`
	At     time.Time                `json:"at"`
}

// Publisher emits task lifecycle events. Publishing is best-effort from the
// orchestrator's perspective; a failed publish never fails a transition.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher discards all events. Used when no broker is configured.
type NopPublisher struct{}

// Publish discards the event.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close is a no-op.
func (NopPublisher) Close() error { return nil }

// NATSPublisher emits events on workflowd.task.<id>.events subjects.
type NATSPublisher struct {
	nc            *nats.Conn
	subjectPrefix string
	logger        *zap.Logger
}

// NewNATSPublisher creates a publisher over an existing NATS connection.
// The connection is owned by the caller; Close does not disconnect it.
func NewNATSPublisher(nc *nats.Conn, logger *zap.Logger) (*NATSPublisher, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{
		nc:            nc,
		subjectPrefix: "workflowd.task",
		logger:        logger,
	}, nil
}

// Publish emits the event as JSON.
func (p *NATSPublisher) Publish(_ context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s.events", p.subjectPrefix, event.TaskID)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("published event",
		zap.String("subject", subject),
		zap.String("type", string(event.Type)),
	)
	return nil
}

// Close flushes pending publishes.
func (p *NATSPublisher) Close() error {
	return p.nc.Flush()
}
