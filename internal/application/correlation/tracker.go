package correlation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/bago/pkg/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// outcome is the settled result of a ticket.
type outcome struct {
	payload any
	err     error
}

// Ticket is a pending correlated reply. It is owned by the tracker from
// Open until resolution, rejection or expiry, at which point it is removed
// from the ticket map. A ticket settles exactly once.
type Ticket struct {
	CorrelationID   string
	TargetAgentID   string
	TargetProjectID string
	CreatedAt       time.Time
	Deadline        time.Time

	done  chan outcome
	timer *time.Timer
}

// Wait suspends until the ticket settles or ctx is cancelled. On
// cancellation the underlying work may still complete; the tracker's
// sweep reclaims the abandoned ticket.
func (t *Ticket) Wait(ctx context.Context) (any, error) {
	select {
	case out := <-t.done:
		return out.payload, out.err
	case <-ctx.Done():
		return nil, domain.ErrCancelled
	}
}

// Tracker maps correlation ids to pending tickets. The ticket map is the
// only mutable shared state; every insert, remove and sweep holds the
// mutex.
type Tracker struct {
	mu      sync.Mutex
	tickets map[string]*Ticket

	maxPending    int
	sweepInterval time.Duration
	logger        *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewTracker creates a correlation tracker. maxPending bounds open
// tickets; sweepInterval is how often expired tickets are reclaimed.
func NewTracker(maxPending int, sweepInterval time.Duration, logger *zap.Logger) *Tracker {
	return &Tracker{
		tickets:       make(map[string]*Ticket),
		maxPending:    maxPending,
		sweepInterval: sweepInterval,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the background sweep.
func (t *Tracker) Start() {
	t.wg.Add(1)
	go t.sweepLoop()
}

// Stop terminates the sweep and rejects every open ticket.
func (t *Tracker) Stop() {
	close(t.stopCh)
	t.wg.Wait()

	t.mu.Lock()
	open := make([]*Ticket, 0, len(t.tickets))
	for _, ticket := range t.tickets {
		open = append(open, ticket)
	}
	t.tickets = make(map[string]*Ticket)
	t.mu.Unlock()

	for _, ticket := range open {
		ticket.timer.Stop()
		ticket.done <- outcome{err: domain.ErrCancelled}
	}
}

// Open creates a ticket with a fresh correlation id and a timeout timer.
// It fails fast when the pending-ticket cap would be exceeded.
func (t *Tracker) Open(targetAgentID, targetProjectID string, timeout time.Duration) (*Ticket, error) {
	t.mu.Lock()
	if len(t.tickets) >= t.maxPending {
		pending := len(t.tickets)
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %d pending correlations", domain.ErrCapacityExceeded, pending)
	}

	now := time.Now()
	ticket := &Ticket{
		CorrelationID:   uuid.New().String(),
		TargetAgentID:   targetAgentID,
		TargetProjectID: targetProjectID,
		CreatedAt:       now,
		Deadline:        now.Add(timeout),
		done:            make(chan outcome, 1),
	}
	ticket.timer = time.AfterFunc(timeout, func() {
		t.Reject(ticket.CorrelationID, fmt.Errorf("%w after %s", domain.ErrTimeout, timeout))
	})
	t.tickets[ticket.CorrelationID] = ticket
	t.mu.Unlock()

	t.logger.Debug("correlation ticket opened",
		zap.String("correlation_id", ticket.CorrelationID),
		zap.String("target_agent_id", targetAgentID),
		zap.Duration("timeout", timeout))

	return ticket, nil
}

// Resolve fulfills the ticket with a successful payload. Unknown ids are
// a logged no-op: duplicate replies and replies racing a timeout must
// never raise.
func (t *Tracker) Resolve(correlationID string, payload any) {
	ticket, ok := t.take(correlationID)
	if !ok {
		t.logger.Debug("resolve for unknown correlation id",
			zap.String("correlation_id", correlationID))
		return
	}

	ticket.done <- outcome{payload: payload}
}

// Reject fulfills the ticket with a failure. Same removal semantics as
// Resolve: unknown ids are ignored.
func (t *Tracker) Reject(correlationID string, err error) {
	ticket, ok := t.take(correlationID)
	if !ok {
		t.logger.Debug("reject for unknown correlation id",
			zap.String("correlation_id", correlationID))
		return
	}

	ticket.done <- outcome{err: err}
}

// Pending returns the number of open tickets.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tickets)
}

// take removes and returns a ticket under the mutex. Removal is atomic,
// so a ticket settles at most once even when a reply races the timer.
func (t *Tracker) take(correlationID string) (*Ticket, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ticket, ok := t.tickets[correlationID]
	if !ok {
		return nil, false
	}
	delete(t.tickets, correlationID)
	ticket.timer.Stop()
	return ticket, true
}

// sweepLoop reclaims tickets whose deadline passed. The per-ticket timer
// normally fires first; the sweep bounds memory if a timer is lost.
func (t *Tracker) sweepLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.sweep(time.Now())
		}
	}
}

// sweep rejects every ticket whose deadline is before now.
func (t *Tracker) sweep(now time.Time) {
	t.mu.Lock()
	var expired []*Ticket
	for id, ticket := range t.tickets {
		if ticket.Deadline.Before(now) {
			delete(t.tickets, id)
			ticket.timer.Stop()
			expired = append(expired, ticket)
		}
	}
	t.mu.Unlock()

	for _, ticket := range expired {
		t.logger.Warn("correlation ticket expired",
			zap.String("correlation_id", ticket.CorrelationID),
			zap.String("target_agent_id", ticket.TargetAgentID),
			zap.Time("deadline", ticket.Deadline))
		ticket.done <- outcome{err: fmt.Errorf("%w: ticket expired", domain.ErrTimeout)}
	}
}
