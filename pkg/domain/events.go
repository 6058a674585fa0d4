package domain

import "time"

// EventType identifies a batch lifecycle event.
type EventType string

const (
	EventTypeBatchStarted     EventType = "batch:started"
	EventTypeMessageCompleted EventType = "message:completed"
	EventTypeMessageFailed    EventType = "message:failed"
	EventTypeBatchCompleted   EventType = "batch:completed"
	EventTypeBatchAborted     EventType = "batch:aborted"
)

// Event is a batch lifecycle notification published on the event bus.
// The orchestrator emits events for external progress reporting and does
// not depend on anything consuming them.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	BatchID   string         `json:"batch_id"`
	MessageID string         `json:"message_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}
