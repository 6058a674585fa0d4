package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aescanero/bago/internal/application/correlation"
	"github.com/aescanero/bago/internal/application/permissions"
	"github.com/aescanero/bago/internal/application/ratelimit"
	"github.com/aescanero/bago/internal/config"
	storagememory "github.com/aescanero/bago/pkg/adapters/storage/memory"
	"github.com/aescanero/bago/pkg/domain"
	"github.com/aescanero/bago/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// nopMetrics implements ports.MetricsCollector for tests.
type nopMetrics struct{}

func (nopMetrics) RecordBatchSubmitted(string)                  {}
func (nopMetrics) RecordBatchCompleted(string, time.Duration)   {}
func (nopMetrics) RecordMessageDelivered(string, time.Duration) {}
func (nopMetrics) RecordPermissionDenied(string, string)        {}
func (nopMetrics) RecordRateLimited(string)                     {}
func (nopMetrics) SetActiveBatches(int)                         {}
func (nopMetrics) SetPendingCorrelations(int)                   {}

// recordingBus implements ports.EventBus, capturing published events.
type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string, ports.EventHandler) error {
	return nil
}
func (b *recordingBus) Unsubscribe(context.Context, string) error { return nil }
func (b *recordingBus) Close() error                              { return nil }

func (b *recordingBus) byType(t domain.EventType) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, ev := range b.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type testEnv struct {
	executor  *Executor
	tracker   *correlation.Tracker
	bus       *recordingBus
	responses *storagememory.InMemoryResponseStore
}

func testOrchestration() *config.Orchestration {
	return &config.Orchestration{
		Defaults: config.DefaultsConfig{
			MentionTimeout:          2 * time.Second,
			BatchTimeout:            5 * time.Second,
			MaxBatchSize:            100,
			WaitStrategy:            "all",
			MaxConcurrentBatches:    10,
			ResponseCleanupInterval: 50 * time.Millisecond,
			MaxPendingResponses:     100,
		},
		Permissions: config.PermissionsConfig{
			CrossProjectMode:       config.CrossProjectAll,
			BatchOperationsEnabled: true,
			MaxGlobalConcurrency:   20,
		},
		Projects: map[string]config.ProjectOverride{},
	}
}

func newTestEnv(t *testing.T, mutate func(*config.Orchestration)) *testEnv {
	t.Helper()

	o := testOrchestration()
	if mutate != nil {
		mutate(o)
	}

	tracker := correlation.NewTracker(o.Defaults.MaxPendingResponses, o.Defaults.ResponseCleanupInterval, zap.NewNop())
	tracker.Start()
	t.Cleanup(tracker.Stop)

	bus := &recordingBus{}
	responses := storagememory.NewInMemoryResponseStore()

	executor := NewExecutor(
		config.NewStaticStore(o),
		tracker,
		permissions.NewResolver(),
		NewValidator(),
		ratelimit.NewLimiter(o.RateLimit),
		bus,
		nopMetrics{},
		responses,
		zap.NewNop(),
	)

	return &testEnv{executor: executor, tracker: tracker, bus: bus, responses: responses}
}

func request(messages ...domain.BatchMessage) domain.BatchRequest {
	return domain.BatchRequest{
		Messages:        messages,
		SourceAgentID:   "agent-src",
		SourceProjectID: "proj-a",
		WaitStrategy:    domain.WaitAll,
	}
}

// echoDeliver replies synchronously with the message content.
func echoDeliver(ctx context.Context, msg domain.BatchMessage, correlationID string) (any, error) {
	return "echo: " + msg.Content, nil
}

func assertWellFormed(t *testing.T, resp *domain.BatchResponse, total int) {
	t.Helper()
	require.NotNil(t, resp)
	assert.Equal(t, total, resp.Summary.Total)
	assert.Len(t, resp.Results, total)
	assert.Equal(t, total, resp.Summary.Successful+resp.Summary.Failed+resp.Summary.TimedOut)
}

func TestExecuteBatch_AllIndependentSucceed(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.executor.ExecuteBatch(context.Background(), request(
		msg("a"), msg("b"), msg("c"),
	), echoDeliver)
	require.NoError(t, err)

	assertWellFormed(t, resp, 3)
	assert.Equal(t, 3, resp.Summary.Successful)
	assert.Equal(t, 0, resp.Summary.Failed)
	assert.Equal(t, 0, resp.Summary.TimedOut)
	assert.Equal(t, "echo: do b", resp.Results["b"].Payload)

	// Lifecycle events were emitted and the response archived.
	assert.Len(t, env.bus.byType(domain.EventTypeBatchStarted), 1)
	assert.Len(t, env.bus.byType(domain.EventTypeMessageCompleted), 3)
	assert.Len(t, env.bus.byType(domain.EventTypeBatchCompleted), 1)

	archived, err := env.responses.Get(context.Background(), resp.BatchID)
	require.NoError(t, err)
	assert.Equal(t, resp.BatchID, archived.BatchID)
}

func TestExecuteBatch_DependentAttemptedAfterFailure(t *testing.T) {
	env := newTestEnv(t, nil)

	var mu sync.Mutex
	var order []string
	deliver := func(ctx context.Context, m domain.BatchMessage, correlationID string) (any, error) {
		mu.Lock()
		order = append(order, m.ID)
		mu.Unlock()
		if m.ID == "y" {
			return nil, errors.New("agent unavailable")
		}
		return "ok", nil
	}

	resp, err := env.executor.ExecuteBatch(context.Background(), request(
		msg("x", "y"),
		msg("y"),
	), deliver)
	require.NoError(t, err)

	// A failed dependency is still terminal: x must be attempted, strictly
	// after y.
	assert.Equal(t, []string{"y", "x"}, order)

	assertWellFormed(t, resp, 2)
	assert.Equal(t, domain.StatusError, resp.Results["y"].Status)
	assert.Contains(t, resp.Results["y"].Error, "agent unavailable")
	assert.Equal(t, domain.StatusSuccess, resp.Results["x"].Status)
}

func TestExecuteBatch_MultiLevelChainOrdering(t *testing.T) {
	env := newTestEnv(t, nil)

	var mu sync.Mutex
	var order []string
	deliver := func(ctx context.Context, m domain.BatchMessage, correlationID string) (any, error) {
		mu.Lock()
		order = append(order, m.ID)
		mu.Unlock()
		return "ok", nil
	}

	resp, err := env.executor.ExecuteBatch(context.Background(), request(
		msg("c", "b"),
		msg("b", "a"),
		msg("a"),
	), deliver)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 3, resp.Summary.Successful)
}

func TestExecuteBatch_AnyCompletesOnFirstSuccess(t *testing.T) {
	env := newTestEnv(t, nil)

	deliver := func(ctx context.Context, m domain.BatchMessage, correlationID string) (any, error) {
		delay := 30 * time.Millisecond
		if m.ID == "slow" {
			delay = 500 * time.Millisecond
		}
		time.AfterFunc(delay, func() {
			env.tracker.Resolve(correlationID, "reply from "+m.ID)
		})
		return nil, nil // reply arrives via the side channel
	}

	req := request(msg("fast"), msg("slow"))
	req.WaitStrategy = domain.WaitAny

	start := time.Now()
	resp, err := env.executor.ExecuteBatch(context.Background(), req, deliver)
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Less(t, elapsed, 300*time.Millisecond, "any must not wait for the slow sibling")

	assertWellFormed(t, resp, 2)
	assert.Equal(t, 1, resp.Summary.Successful)
	assert.Equal(t, domain.StatusSuccess, resp.Results["fast"].Status)
	assert.Equal(t, "reply from fast", resp.Results["fast"].Payload)
}

func TestExecuteBatch_AnySearchesLaterLevels(t *testing.T) {
	env := newTestEnv(t, nil)

	deliver := func(ctx context.Context, m domain.BatchMessage, correlationID string) (any, error) {
		if m.ID == "first" {
			return nil, errors.New("boom")
		}
		return "ok", nil
	}

	req := request(msg("first"), msg("second", "first"))
	req.WaitStrategy = domain.WaitAny

	resp, err := env.executor.ExecuteBatch(context.Background(), req, deliver)
	require.NoError(t, err)

	// The failed level is not the end of the search: the dependent level
	// still runs and its success completes the batch.
	assert.Equal(t, 1, resp.Summary.Successful)
	assert.Equal(t, domain.StatusSuccess, resp.Results["second"].Status)
}

func TestExecuteBatch_AnyAllFailedZeroSuccesses(t *testing.T) {
	env := newTestEnv(t, nil)

	deliver := func(ctx context.Context, m domain.BatchMessage, correlationID string) (any, error) {
		return nil, errors.New("boom")
	}

	req := request(msg("a"), msg("b"))
	req.WaitStrategy = domain.WaitAny

	resp, err := env.executor.ExecuteBatch(context.Background(), req, deliver)
	require.NoError(t, err)

	assertWellFormed(t, resp, 2)
	assert.Equal(t, 0, resp.Summary.Successful)
	assert.Equal(t, 2, resp.Summary.Failed)
}

func TestExecuteBatch_NoneReturnsImmediately(t *testing.T) {
	env := newTestEnv(t, nil)

	deliver := func(ctx context.Context, m domain.BatchMessage, correlationID string) (any, error) {
		time.Sleep(100 * time.Millisecond)
		return "late result", nil
	}

	req := request(msg("a"), msg("b"))
	req.WaitStrategy = domain.WaitNone

	start := time.Now()
	resp, err := env.executor.ExecuteBatch(context.Background(), req, deliver)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 80*time.Millisecond, "none must not wait for deliveries")

	// The returned response marks every message dispatched.
	assertWellFormed(t, resp, 2)
	assert.Equal(t, 2, resp.Summary.Successful)
	for _, res := range resp.Results {
		assert.Equal(t, time.Duration(0), res.Duration)
	}

	// Real outcomes surface through events only.
	require.Eventually(t, func() bool {
		return len(env.bus.byType(domain.EventTypeMessageCompleted)) == 2 &&
			len(env.bus.byType(domain.EventTypeBatchCompleted)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestExecuteBatch_PerMessageTimeout(t *testing.T) {
	env := newTestEnv(t, nil)

	deliver := func(ctx context.Context, m domain.BatchMessage, correlationID string) (any, error) {
		return nil, nil // dispatch accepted, reply never arrives
	}

	m := msg("silent")
	m.Timeout = 50 * time.Millisecond

	start := time.Now()
	resp, err := env.executor.ExecuteBatch(context.Background(), request(m), deliver)
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assertWellFormed(t, resp, 1)
	assert.Equal(t, 1, resp.Summary.TimedOut)
	assert.Equal(t, domain.StatusTimeout, resp.Results["silent"].Status)
	assert.Equal(t, 0, env.tracker.Pending(), "expired ticket must be reclaimed")
}

func TestExecuteBatch_ExceedsMaxBatchSize(t *testing.T) {
	env := newTestEnv(t, func(o *config.Orchestration) {
		o.Defaults.MaxBatchSize = 2
	})

	var delivered atomic.Int32
	deliver := func(ctx context.Context, m domain.BatchMessage, correlationID string) (any, error) {
		delivered.Add(1)
		return "ok", nil
	}

	resp, err := env.executor.ExecuteBatch(context.Background(), request(
		msg("a"), msg("b"), msg("c"),
	), deliver)
	require.ErrorIs(t, err, domain.ErrCapacityExceeded)
	assert.Nil(t, resp)
	assert.Equal(t, int32(0), delivered.Load(), "nothing may be dispatched")
}

func TestExecuteBatch_CrossProjectDeniedBeforeDispatch(t *testing.T) {
	env := newTestEnv(t, func(o *config.Orchestration) {
		o.Permissions.CrossProjectMode = config.CrossProjectExplicit
	})

	var delivered atomic.Int32
	deliver := func(ctx context.Context, m domain.BatchMessage, correlationID string) (any, error) {
		delivered.Add(1)
		return "ok", nil
	}

	cross := msg("cross")
	cross.TargetProjectID = "proj-b"

	resp, err := env.executor.ExecuteBatch(context.Background(), request(msg("local"), cross), deliver)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Nil(t, resp)
	assert.Equal(t, int32(0), delivered.Load())
}

func TestExecuteBatch_ValidationRejectsBeforeDispatch(t *testing.T) {
	env := newTestEnv(t, nil)

	var delivered atomic.Int32
	deliver := func(ctx context.Context, m domain.BatchMessage, correlationID string) (any, error) {
		delivered.Add(1)
		return "ok", nil
	}

	resp, err := env.executor.ExecuteBatch(context.Background(), request(
		msg("a", "b"), msg("b", "a"),
	), deliver)
	require.Error(t, err)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Nil(t, resp)
	assert.Equal(t, int32(0), delivered.Load())
}

func TestExecuteBatch_BatchOperationsDisabled(t *testing.T) {
	env := newTestEnv(t, func(o *config.Orchestration) {
		o.Permissions.BatchOperationsEnabled = false
	})

	resp, err := env.executor.ExecuteBatch(context.Background(), request(msg("a")), echoDeliver)
	require.ErrorIs(t, err, domain.ErrBatchOperationsDisabled)
	assert.Nil(t, resp)
}

func TestExecuteBatch_ProjectDisabled(t *testing.T) {
	env := newTestEnv(t, func(o *config.Orchestration) {
		o.Projects["proj-a"] = config.ProjectOverride{Disabled: true}
	})

	resp, err := env.executor.ExecuteBatch(context.Background(), request(msg("a")), echoDeliver)
	require.ErrorIs(t, err, domain.ErrProjectDisabled)
	assert.Nil(t, resp)
}

func TestExecuteBatch_RateLimited(t *testing.T) {
	env := newTestEnv(t, func(o *config.Orchestration) {
		o.RateLimit = config.RateLimitConfig{
			Enabled:   true,
			PerMinute: 1,
			PerHour:   10,
			BurstSize: 1,
		}
	})

	_, err := env.executor.ExecuteBatch(context.Background(), request(msg("a")), echoDeliver)
	require.NoError(t, err)

	_, err = env.executor.ExecuteBatch(context.Background(), request(msg("b")), echoDeliver)
	require.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestExecuteBatch_CorrelationCapacityRejectsUpFront(t *testing.T) {
	env := newTestEnv(t, func(o *config.Orchestration) {
		o.Defaults.MaxPendingResponses = 2
	})

	// Fill the tracker so the batch cannot reserve tickets for all
	// messages.
	_, err := env.tracker.Open("agent-x", "proj-a", time.Second)
	require.NoError(t, err)

	resp, err := env.executor.ExecuteBatch(context.Background(), request(msg("a"), msg("b")), echoDeliver)
	require.ErrorIs(t, err, domain.ErrCapacityExceeded)
	assert.Nil(t, resp)
}

func TestExecuteBatch_AllDeliveriesFailStillWellFormed(t *testing.T) {
	env := newTestEnv(t, nil)

	deliver := func(ctx context.Context, m domain.BatchMessage, correlationID string) (any, error) {
		return nil, errors.New("broker down")
	}

	resp, err := env.executor.ExecuteBatch(context.Background(), request(
		msg("a"), msg("b"), msg("c"),
	), deliver)
	require.NoError(t, err, "per-message failures never propagate as errors")

	assertWellFormed(t, resp, 3)
	assert.Equal(t, 3, resp.Summary.Failed)
	assert.Len(t, env.bus.byType(domain.EventTypeMessageFailed), 3)
}

func TestExecuteBatch_ConcurrencyLimit(t *testing.T) {
	env := newTestEnv(t, nil)

	var current, peak atomic.Int32
	deliver := func(ctx context.Context, m domain.BatchMessage, correlationID string) (any, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		current.Add(-1)
		return "ok", nil
	}

	req := request(msg("a"), msg("b"), msg("c"), msg("d"), msg("e"))
	req.ConcurrencyLimit = 2

	resp, err := env.executor.ExecuteBatch(context.Background(), req, deliver)
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Summary.Successful)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestAbortBatch(t *testing.T) {
	env := newTestEnv(t, nil)

	deliver := func(ctx context.Context, m domain.BatchMessage, correlationID string) (any, error) {
		return nil, nil // reply never arrives
	}

	type result struct {
		resp *domain.BatchResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := env.executor.ExecuteBatch(context.Background(), request(msg("a"), msg("b")), deliver)
		done <- result{resp, err}
	}()

	var batchID string
	require.Eventually(t, func() bool {
		ids := env.executor.ActiveBatches()
		if len(ids) != 1 {
			return false
		}
		batchID = ids[0]
		return true
	}, time.Second, 5*time.Millisecond)

	assert.True(t, env.executor.AbortBatch(context.Background(), batchID))

	select {
	case res := <-done:
		require.ErrorIs(t, res.err, domain.ErrCancelled)
		assertWellFormed(t, res.resp, 2)
		assert.Equal(t, 0, res.resp.Summary.Successful)
	case <-time.After(2 * time.Second):
		t.Fatal("aborted batch did not return")
	}

	assert.Len(t, env.bus.byType(domain.EventTypeBatchAborted), 1)
	assert.Empty(t, env.executor.ActiveBatches())
}

func TestAbortBatch_UnknownID(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.False(t, env.executor.AbortBatch(context.Background(), "no-such-batch"))
}

func TestExecuteBatch_SummaryInvariant(t *testing.T) {
	env := newTestEnv(t, nil)

	deliver := func(ctx context.Context, m domain.BatchMessage, correlationID string) (any, error) {
		switch m.ID {
		case "fail":
			return nil, errors.New("boom")
		case "timeout":
			return nil, nil
		default:
			return "ok", nil
		}
	}

	slow := msg("timeout")
	slow.Timeout = 30 * time.Millisecond

	resp, err := env.executor.ExecuteBatch(context.Background(), request(
		msg("ok1"), msg("fail"), slow, msg("ok2"),
	), deliver)
	require.NoError(t, err)

	assertWellFormed(t, resp, 4)
	assert.Equal(t, 2, resp.Summary.Successful)
	assert.Equal(t, 1, resp.Summary.Failed)
	assert.Equal(t, 1, resp.Summary.TimedOut)
}
