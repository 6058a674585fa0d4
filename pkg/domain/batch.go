package domain

import "time"

// WaitStrategy controls when ExecuteBatch returns relative to message outcomes.
type WaitStrategy string

const (
	// WaitAll completes only once every message has reached a terminal state.
	WaitAll WaitStrategy = "all"
	// WaitAny completes as soon as the first message in the current
	// dependency level succeeds.
	WaitAny WaitStrategy = "any"
	// WaitNone dispatches without waiting; outcomes are reported only via
	// lifecycle events.
	WaitNone WaitStrategy = "none"
)

// Valid reports whether s is one of the known wait strategies.
func (s WaitStrategy) Valid() bool {
	switch s {
	case WaitAll, WaitAny, WaitNone:
		return true
	}
	return false
}

// ResultStatus is the terminal state of a single message.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
	StatusTimeout ResultStatus = "timeout"
)

// BatchMessage is one instruction addressed to a worker agent.
type BatchMessage struct {
	// ID is unique within the batch.
	ID            string `json:"id"`
	TargetAgentID string `json:"targetAgentId"`
	Content       string `json:"content"`

	// TargetProjectID defaults to the batch's source project when empty.
	TargetProjectID string `json:"targetProjectId,omitempty"`

	// DependencyIDs reference other message IDs in the same batch. The
	// message is not dispatched until every referenced message has reached
	// a terminal state.
	DependencyIDs []string `json:"dependencyIds,omitempty"`

	// Timeout overrides the project and default reply timeouts when > 0.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// EffectiveTarget returns the project the message is delivered to.
func (m BatchMessage) EffectiveTarget(sourceProjectID string) string {
	if m.TargetProjectID != "" {
		return m.TargetProjectID
	}
	return sourceProjectID
}

// BatchRequest is one client-submitted set of messages executed together.
type BatchRequest struct {
	Messages        []BatchMessage `json:"messages"`
	SourceAgentID   string         `json:"sourceAgentId"`
	SourceProjectID string         `json:"sourceProjectId"`
	WaitStrategy    WaitStrategy   `json:"waitStrategy,omitempty"`

	// ConcurrencyLimit bounds concurrent deliveries within a dependency
	// level. Zero means the default of 5.
	ConcurrencyLimit int `json:"concurrencyLimit,omitempty"`

	// GlobalTimeout bounds the whole batch when > 0.
	GlobalTimeout time.Duration `json:"globalTimeout,omitempty"`
}

// DefaultConcurrencyLimit applies when BatchRequest.ConcurrencyLimit is zero.
const DefaultConcurrencyLimit = 5

// BatchResult records the terminal outcome of one message.
type BatchResult struct {
	ID       string        `json:"id"`
	Status   ResultStatus  `json:"status"`
	Payload  any           `json:"payload,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// BatchSummary aggregates terminal statuses across the whole batch.
type BatchSummary struct {
	Total      int           `json:"total"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	TimedOut   int           `json:"timedOut"`
	Duration   time.Duration `json:"duration"`
}

// BatchResponse is the immutable result of one batch execution.
type BatchResponse struct {
	BatchID      string                 `json:"batchId"`
	WaitStrategy WaitStrategy           `json:"waitStrategy"`
	Results      map[string]BatchResult `json:"results"`
	Summary      BatchSummary           `json:"summary"`
	StartedAt    time.Time              `json:"startedAt"`
	CompletedAt  time.Time              `json:"completedAt"`
}
