// Package events delivers violation lifecycle events to downstream consumers.
//
// Publishing is best effort: the service hands events to a Dispatcher after a
// write has been applied, and the Dispatcher forwards them to a Sink in the
// background. A full buffer or a failing sink never affects the write.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"trafficwatch/internal/violation/models"
)

// Type names a lifecycle event.
type Type string

const (
	TypeCreated       Type = "violation.created"
	TypeStatusChanged Type = "violation.status_changed"
)

// Event is the payload published for every applied write.
type Event struct {
	ID             string           `json:"id"`
	Type           Type             `json:"type"`
	OccurredAt     time.Time        `json:"occurred_at"`
	RequestID      string           `json:"request_id,omitempty"`
	PreviousStatus models.Status    `json:"previous_status,omitempty"`
	Violation      models.Violation `json:"violation"`
}

// Created builds the event for a newly inserted record.
func Created(v models.Violation, requestID string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       TypeCreated,
		OccurredAt: v.CreatedAt,
		RequestID:  requestID,
		Violation:  v,
	}
}

// StatusChanged builds the event for an applied transition.
func StatusChanged(v models.Violation, previous models.Status, requestID string) Event {
	return Event{
		ID:             uuid.NewString(),
		Type:           TypeStatusChanged,
		OccurredAt:     v.UpdatedAt,
		RequestID:      requestID,
		PreviousStatus: previous,
		Violation:      v,
	}
}

// Sink accepts a batch of events for delivery.
type Sink interface {
	Send(ctx context.Context, batch []Event) error
	Close() error
}
