package ports

import (
	"context"
	"time"

	"github.com/aescanero/bago/pkg/domain"
)

// EventHandler processes a single event from a subscription.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes and subscribes to batch lifecycle events. The
// orchestrator only publishes; consumers (WebSocket streams, external
// progress reporters) subscribe.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Unsubscribe(ctx context.Context, topic string) error
	Close() error
}

// MetricsCollector records orchestration metrics.
type MetricsCollector interface {
	RecordBatchSubmitted(status string)
	RecordBatchCompleted(status string, duration time.Duration)
	RecordMessageDelivered(status string, duration time.Duration)
	RecordPermissionDenied(sourceProject, targetProject string)
	RecordRateLimited(agentID string)
	SetActiveBatches(n int)
	SetPendingCorrelations(n int)
}

// ResponseStore archives completed batch responses for later retrieval.
type ResponseStore interface {
	Save(ctx context.Context, resp *domain.BatchResponse) error
	Get(ctx context.Context, batchID string) (*domain.BatchResponse, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, batchID string) error
}

// Deliverer contacts a target worker agent with one message. A non-nil
// payload is a synchronous reply; (nil, nil) means the dispatch was
// accepted and the reply will arrive later through the correlation
// tracker under correlationID.
type Deliverer interface {
	Deliver(ctx context.Context, msg domain.BatchMessage, correlationID string) (any, error)
}
