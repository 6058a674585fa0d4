package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aescanero/bago/internal/application/correlation"
	"github.com/aescanero/bago/internal/application/permissions"
	"github.com/aescanero/bago/internal/application/ratelimit"
	"github.com/aescanero/bago/internal/config"
	"github.com/aescanero/bago/pkg/domain"
	"github.com/aescanero/bago/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// EventTopic is the event bus topic for batch lifecycle events.
const EventTopic = "batch.events"

// DeliverFunc contacts the target worker agent with one message. A non-nil
// payload is a synchronous reply. (nil, nil) means the dispatch was
// accepted and the reply will arrive later through the correlation tracker
// under correlationID. A non-nil error is an immediate delivery failure.
type DeliverFunc func(ctx context.Context, msg domain.BatchMessage, correlationID string) (any, error)

// Executor coordinates batch execution
type Executor struct {
	store       *config.Store
	tracker     *correlation.Tracker
	permissions *permissions.Resolver
	validator   *Validator
	limiter     *ratelimit.Limiter
	eventBus    ports.EventBus
	metrics     ports.MetricsCollector
	responses   ports.ResponseStore
	logger      *zap.Logger

	// Track active batches
	batches sync.Map // map[string]*activeBatch
	active  atomic.Int64
}

// activeBatch is the registry entry for one in-flight batch
type activeBatch struct {
	batchID   string
	startedAt time.Time
	cancel    context.CancelFunc
	aborted   atomic.Bool
}

// NewExecutor creates a new batch executor
func NewExecutor(
	store *config.Store,
	tracker *correlation.Tracker,
	resolver *permissions.Resolver,
	validator *Validator,
	limiter *ratelimit.Limiter,
	eventBus ports.EventBus,
	metrics ports.MetricsCollector,
	responses ports.ResponseStore,
	logger *zap.Logger,
) *Executor {
	return &Executor{
		store:       store,
		tracker:     tracker,
		permissions: resolver,
		validator:   validator,
		limiter:     limiter,
		eventBus:    eventBus,
		metrics:     metrics,
		responses:   responses,
		logger:      logger,
	}
}

// ExecuteBatch validates and executes a batch of messages under the
// requested wait strategy.
//
// Configuration and permission violations reject the whole call before any
// message is sent. Per-message delivery failures and timeouts are recorded
// in the returned response and never propagate as errors. An abort or
// global timeout returns the partial response together with the
// terminating error.
func (e *Executor) ExecuteBatch(ctx context.Context, req domain.BatchRequest, deliver DeliverFunc) (*domain.BatchResponse, error) {
	cfg := e.store.Snapshot()

	if !cfg.Permissions.BatchOperationsEnabled {
		e.metrics.RecordBatchSubmitted("rejected")
		return nil, domain.ErrBatchOperationsDisabled
	}

	resolved := cfg.Effective(req.SourceProjectID)
	if resolved.Disabled {
		e.metrics.RecordBatchSubmitted("rejected")
		return nil, fmt.Errorf("%w: %s", domain.ErrProjectDisabled, req.SourceProjectID)
	}

	if !e.limiter.Allow(req.SourceAgentID) {
		e.metrics.RecordBatchSubmitted("rejected")
		e.metrics.RecordRateLimited(req.SourceAgentID)
		return nil, fmt.Errorf("%w: agent %s", domain.ErrRateLimited, req.SourceAgentID)
	}

	if len(req.Messages) > resolved.MaxBatchSize {
		e.metrics.RecordBatchSubmitted("rejected")
		return nil, fmt.Errorf("%w: batch size %d exceeds limit %d",
			domain.ErrCapacityExceeded, len(req.Messages), resolved.MaxBatchSize)
	}

	strategy := req.WaitStrategy
	if strategy == "" {
		strategy = resolved.WaitStrategy
	}
	if !strategy.Valid() {
		e.metrics.RecordBatchSubmitted("rejected")
		return nil, fmt.Errorf("invalid wait strategy: %s", strategy)
	}

	if err := e.validator.Validate(req.Messages); err != nil {
		e.metrics.RecordBatchSubmitted("rejected")
		e.logger.Error("batch validation failed",
			zap.String("source_agent_id", req.SourceAgentID),
			zap.Error(err))
		return nil, err
	}

	// Permission pre-flight: a single denied message rejects the whole
	// batch before anything is dispatched.
	for _, msg := range req.Messages {
		target := msg.EffectiveTarget(req.SourceProjectID)
		if !e.permissions.CanDeliver(cfg, req.SourceProjectID, target) {
			e.metrics.RecordBatchSubmitted("rejected")
			e.metrics.RecordPermissionDenied(req.SourceProjectID, target)
			return nil, fmt.Errorf("%w: message %q from project %q to project %q",
				domain.ErrPermissionDenied, msg.ID, req.SourceProjectID, target)
		}
	}

	if e.tracker.Pending()+len(req.Messages) > cfg.Defaults.MaxPendingResponses {
		e.metrics.RecordBatchSubmitted("rejected")
		return nil, fmt.Errorf("%w: %d pending correlations", domain.ErrCapacityExceeded, e.tracker.Pending())
	}

	if int(e.active.Add(1)) > cfg.Defaults.MaxConcurrentBatches {
		e.active.Add(-1)
		e.metrics.RecordBatchSubmitted("rejected")
		return nil, fmt.Errorf("%w: too many concurrent batches", domain.ErrCapacityExceeded)
	}

	// Generate batch ID and register for abort
	batchID := uuid.New().String()
	startedAt := time.Now()

	globalTimeout := req.GlobalTimeout
	if globalTimeout <= 0 {
		globalTimeout = cfg.Defaults.BatchTimeout
	}
	parent := ctx
	if strategy == domain.WaitNone {
		// Detached dispatch must outlive the caller's request context.
		parent = context.WithoutCancel(ctx)
	}
	batchCtx, cancel := context.WithTimeout(parent, globalTimeout)

	ab := &activeBatch{
		batchID:   batchID,
		startedAt: startedAt,
		cancel:    cancel,
	}
	e.batches.Store(batchID, ab)
	e.metrics.SetActiveBatches(int(e.active.Load()))
	e.metrics.RecordBatchSubmitted("accepted")

	e.publishEvent(ctx, batchID, "", domain.EventTypeBatchStarted, map[string]any{
		"total":           len(req.Messages),
		"wait_strategy":   string(strategy),
		"source_agent_id": req.SourceAgentID,
	})

	e.logger.Info("batch started",
		zap.String("batch_id", batchID),
		zap.String("source_agent_id", req.SourceAgentID),
		zap.String("wait_strategy", string(strategy)),
		zap.Int("messages", len(req.Messages)))

	levels := buildLevels(req.Messages)

	run := &execution{
		executor: e,
		req:      req,
		resolved: resolved,
		strategy: strategy,
		batchID:  batchID,
		deliver:  deliver,
		results:  make(map[string]domain.BatchResult, len(req.Messages)),
	}
	limit := req.ConcurrencyLimit
	if limit <= 0 {
		limit = domain.DefaultConcurrencyLimit
	}
	if limit > cfg.Permissions.MaxGlobalConcurrency {
		limit = cfg.Permissions.MaxGlobalConcurrency
	}
	run.sem = semaphore.NewWeighted(int64(limit))

	if strategy == domain.WaitNone {
		// Fire-and-forget: the caller gets an immediate dispatch-accepted
		// response; outcomes surface only through lifecycle events.
		results := make(map[string]domain.BatchResult, len(req.Messages))
		for _, msg := range req.Messages {
			results[msg.ID] = domain.BatchResult{ID: msg.ID, Status: domain.StatusSuccess}
		}
		resp := e.buildResponse(batchID, strategy, req.Messages, results, startedAt, time.Now())
		if err := e.responses.Save(ctx, resp); err != nil {
			e.logger.Error("failed to archive batch response",
				zap.String("batch_id", batchID),
				zap.Error(err))
		}

		go func() {
			run.runLevels(batchCtx, levels)
			e.finish(batchCtx, ab, "completed")
		}()

		return resp, nil
	}

	execErr := run.runLevels(batchCtx, levels)
	completedAt := time.Now()

	// Messages never dispatched (abort, timeout or an early "any" return)
	// still get a terminal result so the response stays well-formed.
	run.fillMissing(req.Messages, execErr)

	resp := e.buildResponse(batchID, strategy, req.Messages, run.results, startedAt, completedAt)

	if err := e.responses.Save(ctx, resp); err != nil {
		e.logger.Error("failed to archive batch response",
			zap.String("batch_id", batchID),
			zap.Error(err))
	}

	if execErr != nil {
		e.finish(ctx, ab, "aborted")
		e.logger.Warn("batch terminated",
			zap.String("batch_id", batchID),
			zap.Error(execErr))
		return resp, execErr
	}

	e.finish(ctx, ab, "completed")
	e.logger.Info("batch completed",
		zap.String("batch_id", batchID),
		zap.Int("successful", resp.Summary.Successful),
		zap.Int("failed", resp.Summary.Failed),
		zap.Int("timed_out", resp.Summary.TimedOut),
		zap.Duration("duration", resp.Summary.Duration))

	return resp, nil
}

// AbortBatch signals an active batch to cancel. It reports whether an
// active batch was found.
func (e *Executor) AbortBatch(ctx context.Context, batchID string) bool {
	val, ok := e.batches.Load(batchID)
	if !ok {
		return false
	}

	ab := val.(*activeBatch)
	ab.aborted.Store(true)
	ab.cancel()

	e.publishEvent(ctx, batchID, "", domain.EventTypeBatchAborted, nil)
	e.logger.Info("batch aborted", zap.String("batch_id", batchID))
	return true
}

// ActiveBatches returns the ids of currently executing batches.
func (e *Executor) ActiveBatches() []string {
	var ids []string
	e.batches.Range(func(key, _ any) bool {
		ids = append(ids, key.(string))
		return true
	})
	return ids
}

// Shutdown cancels all active batches.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.logger.Info("shutting down batch executor")

	e.batches.Range(func(_, value any) bool {
		ab := value.(*activeBatch)
		ab.aborted.Store(true)
		ab.cancel()
		return true
	})

	e.logger.Info("batch executor shut down complete")
	return nil
}

// finish deregisters a batch and emits the terminal lifecycle event.
func (e *Executor) finish(ctx context.Context, ab *activeBatch, status string) {
	ab.cancel()
	e.batches.Delete(ab.batchID)
	e.active.Add(-1)
	e.metrics.SetActiveBatches(int(e.active.Load()))
	e.metrics.SetPendingCorrelations(e.tracker.Pending())
	e.metrics.RecordBatchCompleted(status, time.Since(ab.startedAt))

	if status == "completed" {
		e.publishEvent(ctx, ab.batchID, "", domain.EventTypeBatchCompleted, map[string]any{
			"duration_ms": time.Since(ab.startedAt).Milliseconds(),
		})
	}
}

// buildResponse assembles the immutable batch response with its summary.
func (e *Executor) buildResponse(
	batchID string,
	strategy domain.WaitStrategy,
	messages []domain.BatchMessage,
	results map[string]domain.BatchResult,
	startedAt, completedAt time.Time,
) *domain.BatchResponse {
	summary := domain.BatchSummary{
		Total:    len(messages),
		Duration: completedAt.Sub(startedAt),
	}
	for _, res := range results {
		switch res.Status {
		case domain.StatusSuccess:
			summary.Successful++
		case domain.StatusTimeout:
			summary.TimedOut++
		default:
			summary.Failed++
		}
	}

	return &domain.BatchResponse{
		BatchID:      batchID,
		WaitStrategy: strategy,
		Results:      results,
		Summary:      summary,
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
	}
}

// publishEvent publishes a lifecycle event to the event bus
func (e *Executor) publishEvent(ctx context.Context, batchID, messageID string, eventType domain.EventType, data map[string]any) {
	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		BatchID:   batchID,
		MessageID: messageID,
		Timestamp: time.Now(),
		Data:      data,
	}

	if err := e.eventBus.Publish(ctx, EventTopic, event); err != nil {
		e.logger.Error("failed to publish event",
			zap.String("batch_id", batchID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

// execution holds the mutable state of one batch run.
type execution struct {
	executor *Executor
	req      domain.BatchRequest
	resolved config.ResolvedProjectConfig
	strategy domain.WaitStrategy
	batchID  string
	deliver  DeliverFunc
	sem      *semaphore.Weighted

	mu      sync.Mutex
	results map[string]domain.BatchResult
}

// runLevels executes dependency levels strictly in order. Within a level,
// deliveries run concurrently behind the semaphore. Under the "any"
// strategy the first success cancels the level's siblings and completes
// the batch.
func (x *execution) runLevels(ctx context.Context, levels [][]domain.BatchMessage) error {
	for _, level := range levels {
		levelCtx, cancelLevel := context.WithCancel(ctx)

		var wg sync.WaitGroup
		var anySuccess atomic.Bool
		for _, msg := range level {
			wg.Add(1)
			go func(msg domain.BatchMessage) {
				defer wg.Done()

				if err := x.sem.Acquire(levelCtx, 1); err != nil {
					// Queued behind the semaphore when the level was
					// cancelled; fillMissing records the outcome.
					return
				}
				defer x.sem.Release(1)

				res := x.deliverOne(levelCtx, msg)
				x.record(ctx, res)

				if res.Status == domain.StatusSuccess && x.strategy == domain.WaitAny {
					anySuccess.Store(true)
					cancelLevel()
				}
			}(msg)
		}
		wg.Wait()
		cancelLevel()

		if x.strategy == domain.WaitAny && anySuccess.Load() {
			return nil
		}

		if err := ctx.Err(); err != nil {
			if x.isAborted() {
				return fmt.Errorf("%w: batch %s", domain.ErrCancelled, x.batchID)
			}
			return fmt.Errorf("%w: batch deadline exceeded", domain.ErrTimeout)
		}
	}

	return nil
}

// deliverOne opens a correlation ticket, invokes the delivery function and
// waits for the correlated reply.
func (x *execution) deliverOne(ctx context.Context, msg domain.BatchMessage) domain.BatchResult {
	start := time.Now()

	timeout := msg.Timeout
	if timeout <= 0 {
		timeout = x.resolved.ReplyTimeout
	}

	target := msg.EffectiveTarget(x.req.SourceProjectID)
	ticket, err := x.executor.tracker.Open(msg.TargetAgentID, target, timeout)
	if err != nil {
		return domain.BatchResult{
			ID:       msg.ID,
			Status:   domain.StatusError,
			Error:    err.Error(),
			Duration: time.Since(start),
		}
	}

	payload, err := x.deliver(ctx, msg, ticket.CorrelationID)
	if err != nil {
		// Synchronous delivery failure: the ticket is never awaited.
		x.executor.tracker.Reject(ticket.CorrelationID, err)
		deliveryErr := &domain.DeliveryError{MessageID: msg.ID, Err: err}
		return domain.BatchResult{
			ID:       msg.ID,
			Status:   domain.StatusError,
			Error:    deliveryErr.Error(),
			Duration: time.Since(start),
		}
	}

	if payload != nil {
		// Synchronous reply: settle the ticket ourselves.
		x.executor.tracker.Resolve(ticket.CorrelationID, payload)
		return domain.BatchResult{
			ID:       msg.ID,
			Status:   domain.StatusSuccess,
			Payload:  payload,
			Duration: time.Since(start),
		}
	}

	reply, err := ticket.Wait(ctx)
	if err != nil {
		status := domain.StatusError
		if errors.Is(err, domain.ErrTimeout) {
			status = domain.StatusTimeout
		}
		if errors.Is(err, domain.ErrCancelled) {
			// The waiter is gone; remove the abandoned ticket.
			x.executor.tracker.Reject(ticket.CorrelationID, err)
		}
		return domain.BatchResult{
			ID:       msg.ID,
			Status:   status,
			Error:    err.Error(),
			Duration: time.Since(start),
		}
	}

	return domain.BatchResult{
		ID:       msg.ID,
		Status:   domain.StatusSuccess,
		Payload:  reply,
		Duration: time.Since(start),
	}
}

// record stores a terminal result and emits the per-message event.
func (x *execution) record(ctx context.Context, res domain.BatchResult) {
	x.mu.Lock()
	x.results[res.ID] = res
	x.mu.Unlock()

	x.executor.metrics.RecordMessageDelivered(string(res.Status), res.Duration)

	eventType := domain.EventTypeMessageCompleted
	data := map[string]any{"status": string(res.Status), "duration_ms": res.Duration.Milliseconds()}
	if res.Status != domain.StatusSuccess {
		eventType = domain.EventTypeMessageFailed
		data["error"] = res.Error
	}
	x.executor.publishEvent(ctx, x.batchID, res.ID, eventType, data)
}

// fillMissing records a terminal result for every message that never got
// one: messages behind an abort, a batch timeout or an "any" early return.
func (x *execution) fillMissing(messages []domain.BatchMessage, execErr error) {
	reason := domain.ErrCancelled
	if execErr != nil && errors.Is(execErr, domain.ErrTimeout) {
		reason = domain.ErrTimeout
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	for _, msg := range messages {
		if _, ok := x.results[msg.ID]; ok {
			continue
		}
		status := domain.StatusError
		if errors.Is(reason, domain.ErrTimeout) {
			status = domain.StatusTimeout
		}
		x.results[msg.ID] = domain.BatchResult{
			ID:     msg.ID,
			Status: status,
			Error:  fmt.Sprintf("not dispatched: %v", reason),
		}
	}
}

// isAborted reports whether the batch was explicitly aborted (as opposed
// to hitting its global deadline).
func (x *execution) isAborted() bool {
	val, ok := x.executor.batches.Load(x.batchID)
	if !ok {
		return false
	}
	return val.(*activeBatch).aborted.Load()
}
