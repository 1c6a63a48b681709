package invocation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/types"
)

// blockingTarget holds every execution until release is closed or the
// invocation context ends.
type blockingTarget struct {
	release   chan struct{}
	cancelled chan struct{}
	once      sync.Once
}

func newBlockingTarget() *blockingTarget {
	return &blockingTarget{release: make(chan struct{}), cancelled: make(chan struct{})}
}

func (b *blockingTarget) ID() string { return "blocker" }

func (b *blockingTarget) Execute(ctx context.Context, payload any) (any, error) {
	select {
	case <-b.release:
		return payload, nil
	case <-ctx.Done():
		b.once.Do(func() { close(b.cancelled) })
		return nil, ctx.Err()
	}
}

func TestManager_InvokeAndWait(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{}, zap.NewNop())
	defer m.Close(context.Background())

	target := NewTarget("doubler", func(_ context.Context, payload any) (any, error) {
		return payload.(int) * 2, nil
	})
	id, err := m.Invoke(context.Background(), target, 21)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	inv, err := m.Wait(context.Background(), id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, inv.Status)
	assert.Equal(t, 42, inv.Result)
	assert.Equal(t, "doubler", inv.TargetID)
	require.NotNil(t, inv.EndTime)
	assert.False(t, inv.EndTime.Before(inv.StartTime))
}

func TestManager_TargetFailure(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{}, nil)
	defer m.Close(context.Background())

	boom := errors.New("boom")
	id, err := m.Invoke(context.Background(), NewTarget("bad", func(context.Context, any) (any, error) {
		return nil, boom
	}), nil)
	require.NoError(t, err)

	inv, err := m.Wait(context.Background(), id, time.Second)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StatusFailed, inv.Status)
	assert.Equal(t, "boom", inv.Error)
}

func TestManager_TargetPanicFailsInvocation(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{}, nil)
	defer m.Close(context.Background())

	id, err := m.Invoke(context.Background(), NewTarget("panics", func(context.Context, any) (any, error) {
		panic("kaboom")
	}), nil)
	require.NoError(t, err)

	inv, err := m.Wait(context.Background(), id, time.Second)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, inv.Status)
	assert.Contains(t, inv.Error, "kaboom")
}

func TestManager_CapacityExceeded(t *testing.T) {
	t.Parallel()

	const limit = 3
	m := NewManager(Config{MaxConcurrent: limit}, nil)
	defer m.Close(context.Background())

	target := newBlockingTarget()
	ids := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		id, err := m.Invoke(context.Background(), target, i)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	_, err := m.Invoke(context.Background(), target, "overflow")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCapacityExceeded))
	assert.True(t, types.IsRetryable(err))
	assert.Len(t, m.ListActive(), limit)

	close(target.release)
	for _, id := range ids {
		inv, err := m.Wait(context.Background(), id, time.Second)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, inv.Status)
	}

	// Capacity frees once invocations reach a terminal state.
	id, err := m.Invoke(context.Background(), target, "after")
	require.NoError(t, err)
	_, err = m.Wait(context.Background(), id, time.Second)
	require.NoError(t, err)

	stats := m.Stats()
	assert.EqualValues(t, limit+1, stats.Admitted)
	assert.EqualValues(t, 1, stats.Rejected)
	assert.Zero(t, stats.Active)
}

func TestManager_WaitTimeout(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{}, nil)
	defer m.Close(context.Background())

	target := newBlockingTarget()
	id, err := m.Invoke(context.Background(), target, nil)
	require.NoError(t, err)

	start := time.Now()
	inv, err := m.Wait(context.Background(), id, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvocationTimeout))
	assert.Equal(t, StatusFailed, inv.Status)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 100*time.Millisecond)

	select {
	case <-target.cancelled:
	case <-time.After(time.Second):
		t.Fatal("timed out invocation was not cancelled")
	}

	// Terminal status is sticky.
	status, err := m.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, status.Status)
	assert.False(t, m.Cancel(id))
}

func TestManager_WaitContextDone(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{}, nil)
	defer m.Close(context.Background())

	target := newBlockingTarget()
	id, err := m.Invoke(context.Background(), target, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Wait(ctx, id, time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	status, err := m.GetStatus(id)
	require.NoError(t, err)
	assert.True(t, status.Status.IsActive())
	close(target.release)
}

func TestManager_Cancel(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{}, nil)
	defer m.Close(context.Background())

	target := newBlockingTarget()
	id, err := m.Invoke(context.Background(), target, nil)
	require.NoError(t, err)

	assert.True(t, m.Cancel(id))
	assert.False(t, m.Cancel(id), "second cancel is a no-op")
	assert.False(t, m.Cancel("missing"))

	inv, err := m.Wait(context.Background(), id, time.Second)
	assert.True(t, types.IsErrorCode(err, types.ErrInvocationCancelled))
	assert.Equal(t, StatusCancelled, inv.Status)

	select {
	case <-target.cancelled:
	case <-time.After(time.Second):
		t.Fatal("target context was not cancelled")
	}
}

func TestManager_CallerContextDoesNotCancelInvocation(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{}, nil)
	defer m.Close(context.Background())

	target := newBlockingTarget()
	ctx, cancel := context.WithCancel(context.Background())
	id, err := m.Invoke(ctx, target, "v")
	require.NoError(t, err)
	cancel()

	close(target.release)
	inv, err := m.Wait(context.Background(), id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "v", inv.Result)
}

func TestManager_Clear(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{MaxConcurrent: 1}, nil)
	defer m.Close(context.Background())

	target := newBlockingTarget()
	id, err := m.Invoke(context.Background(), target, nil)
	require.NoError(t, err)

	assert.True(t, m.Clear(id))
	assert.False(t, m.Clear(id))

	_, err = m.GetStatus(id)
	assert.True(t, types.IsErrorCode(err, types.ErrInvocationNotFound))
	_, err = m.Wait(context.Background(), id, time.Second)
	assert.True(t, types.IsErrorCode(err, types.ErrInvocationNotFound))

	// The cleared invocation no longer counts against the cap.
	assert.Empty(t, m.ListActive())
	close(target.release)
}

func TestManager_RateLimited(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{RateLimit: 0.001, RateBurst: 1}, nil)
	defer m.Close(context.Background())

	target := NewTarget("noop", func(context.Context, any) (any, error) { return nil, nil })
	_, err := m.Invoke(context.Background(), target, nil)
	require.NoError(t, err)

	_, err = m.Invoke(context.Background(), target, nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrRateLimited))
}

func TestManager_InvokeNilTarget(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{}, nil)
	defer m.Close(context.Background())

	_, err := m.Invoke(context.Background(), nil, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

type recorder struct {
	mu       sync.Mutex
	statuses []string
	rejects  []string
}

func (r *recorder) RecordInvocation(status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recorder) SetActiveInvocations(int) {}

func (r *recorder) RecordInvocationRejected(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejects = append(r.rejects, reason)
}

func TestManager_Recorder(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	m := NewManager(Config{MaxConcurrent: 1}, nil, WithRecorder(rec))
	defer m.Close(context.Background())

	target := newBlockingTarget()
	id, err := m.Invoke(context.Background(), target, nil)
	require.NoError(t, err)
	_, err = m.Invoke(context.Background(), target, nil)
	require.Error(t, err)

	close(target.release)
	_, err = m.Wait(context.Background(), id, time.Second)
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"completed"}, rec.statuses)
	assert.Equal(t, []string{"capacity"}, rec.rejects)
}

// Admission never lets more than MaxConcurrent invocations be active at once.
func TestProperty_AdmissionRespectsCapacity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	properties.Property("admitted equals min(requests, capacity)", prop.ForAll(
		func(capacity, requests int) bool {
			m := NewManager(Config{MaxConcurrent: capacity}, nil)
			defer m.Close(context.Background())

			target := newBlockingTarget()
			defer close(target.release)

			admitted, rejected := 0, 0
			for i := 0; i < requests; i++ {
				_, err := m.Invoke(context.Background(), target, i)
				switch {
				case err == nil:
					admitted++
				case types.IsErrorCode(err, types.ErrCapacityExceeded):
					rejected++
				default:
					t.Logf("unexpected error: %v", err)
					return false
				}
			}
			return admitted == min(requests, capacity) &&
				rejected == requests-admitted &&
				len(m.ListActive()) == admitted
		},
		gen.IntRange(1, 8),
		gen.IntRange(0, 16),
	))

	properties.TestingRun(t)
}

// stuckTarget ignores its context and returns only once hold is closed.
type stuckTarget struct {
	hold    chan struct{}
	started chan struct{}
}

func newStuckTarget() *stuckTarget {
	return &stuckTarget{hold: make(chan struct{}), started: make(chan struct{}, 16)}
}

func (s *stuckTarget) ID() string { return "stuck" }

func (s *stuckTarget) Execute(context.Context, any) (any, error) {
	s.started <- struct{}{}
	<-s.hold
	return "late", nil
}

func TestManager_AdmitsAfterUncooperativeTimeouts(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{MaxConcurrent: 2}, nil)
	stuck := newStuckTarget()
	t.Cleanup(func() {
		close(stuck.hold)
		_ = m.Close(context.Background())
	})

	for i := 0; i < 2; i++ {
		id, err := m.Invoke(context.Background(), stuck, nil)
		require.NoError(t, err)
		<-stuck.started

		inv, err := m.Wait(context.Background(), id, 50*time.Millisecond)
		assert.True(t, types.IsErrorCode(err, types.ErrInvocationTimeout))
		assert.Equal(t, StatusFailed, inv.Status)
	}
	stats := m.Stats()
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, 2, stats.Pool.Active)

	fast := NewTarget("fast", func(_ context.Context, payload any) (any, error) { return payload, nil })
	for i := 0; i < 5; i++ {
		id, err := m.Invoke(context.Background(), fast, i)
		require.NoError(t, err)
		inv, err := m.Wait(context.Background(), id, time.Second)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, inv.Status)
		assert.Equal(t, i, inv.Result)
	}

	// The cap still counts live slots only.
	for i := 0; i < 2; i++ {
		_, err := m.Invoke(context.Background(), stuck, nil)
		require.NoError(t, err)
	}
	_, err := m.Invoke(context.Background(), fast, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrCapacityExceeded))
}

func TestManager_AdmitsAfterClearingUncooperative(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{MaxConcurrent: 1}, nil)
	stuck := newStuckTarget()
	t.Cleanup(func() {
		close(stuck.hold)
		_ = m.Close(context.Background())
	})

	id, err := m.Invoke(context.Background(), stuck, nil)
	require.NoError(t, err)
	<-stuck.started
	require.True(t, m.Clear(id))

	id, err = m.Invoke(context.Background(), NewTarget("fast", func(context.Context, any) (any, error) {
		return "ok", nil
	}), nil)
	require.NoError(t, err)
	inv, err := m.Wait(context.Background(), id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", inv.Result)
}

func TestManager_CloseBoundedByContext(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{}, nil)
	stuck := newStuckTarget()

	id, err := m.Invoke(context.Background(), stuck, nil)
	require.NoError(t, err)
	<-stuck.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = m.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	inv, err := m.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, inv.Status)

	_, err = m.Invoke(context.Background(), stuck, nil)
	assert.Error(t, err)

	close(stuck.hold)
	assert.NoError(t, m.Close(context.Background()))
}
