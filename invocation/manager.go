package invocation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/flowengine/internal/pool"
	"github.com/BaSui01/flowengine/types"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultMaxConcurrent = 10
	DefaultTimeout       = 30 * time.Second
)

// Config configures a Manager.
type Config struct {
	// MaxConcurrent caps invocations that are pending or running.
	MaxConcurrent int
	// DefaultTimeout is used by Wait when no timeout is given.
	DefaultTimeout time.Duration
	// RateLimit is the sustained admissions per second; zero disables it.
	RateLimit float64
	// RateBurst is the limiter bucket size.
	RateBurst int
}

// Recorder receives invocation metrics. *metrics.Collector satisfies it.
type Recorder interface {
	RecordInvocation(status string, duration time.Duration)
	SetActiveInvocations(n int)
	RecordInvocationRejected(reason string)
}

type record struct {
	inv     Invocation
	cancel  context.CancelFunc
	done    chan struct{}
	tracked bool
}

// Manager runs invocations asynchronously under a global concurrency cap.
// It is the single admission point for agent work.
type Manager struct {
	cfg     Config
	pool    *pool.GoroutinePool
	limiter *rate.Limiter
	metrics Recorder
	logger  *zap.Logger

	mu      sync.RWMutex
	records map[string]*record
	active  int

	admitted int64
	rejected int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// NewManager creates a Manager and its worker pool.
func NewManager(cfg Config, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}

	m := &Manager{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "invocation_manager")),
		records: make(map[string]*record),
	}
	// Admission in Invoke is the only cap. A target that ignores cancellation
	// keeps its worker after its slot is released, so the pool may grow past
	// MaxConcurrent and every admitted invocation starts at once.
	m.pool = pool.New(pool.Config{
		MaxWorkers: pool.Unbounded,
		QueueSize:  0,
		PanicHandler: func(v any) {
			m.logger.Error("invocation worker panicked", zap.Any("panic", v))
		},
	})
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Invoke admits a new invocation and schedules it without blocking. It fails
// with CAPACITY_EXCEEDED when MaxConcurrent invocations are already pending or
// running. The invocation does not inherit ctx cancellation; use Cancel.
func (m *Manager) Invoke(ctx context.Context, target Target, payload any) (string, error) {
	if target == nil {
		return "", types.NewError(types.ErrInvalidRequest, "invocation target is nil")
	}
	if m.limiter != nil && !m.limiter.Allow() {
		m.reject("rate_limit")
		return "", types.NewError(types.ErrRateLimited, "invocation rate limit exceeded").WithRetryable(true)
	}

	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	rec := &record{
		inv: Invocation{
			ID:        uuid.NewString(),
			TargetID:  target.ID(),
			Payload:   payload,
			Status:    StatusPending,
			StartTime: time.Now(),
		},
		cancel:  cancel,
		done:    make(chan struct{}),
		tracked: true,
	}

	m.mu.Lock()
	if m.active >= m.cfg.MaxConcurrent {
		m.mu.Unlock()
		cancel()
		m.reject("capacity")
		return "", types.Errorf(types.ErrCapacityExceeded,
			"invocation capacity exceeded (%d concurrent)", m.cfg.MaxConcurrent).
			WithRetryable(true).
			WithDetail("targetId", target.ID())
	}
	m.records[rec.inv.ID] = rec
	m.active++
	m.admitted++
	active := m.active
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetActiveInvocations(active)
	}

	id := rec.inv.ID
	if err := m.pool.Submit(workCtx, func(ctx context.Context) { m.run(ctx, rec, target, payload) }); err != nil {
		m.finish(rec, StatusFailed, nil, types.NewError(types.ErrCapacityExceeded, "invocation could not be scheduled").
			WithCause(err).
			WithInvocation(id))
		return "", types.NewError(types.ErrCapacityExceeded, "invocation could not be scheduled").
			WithCause(err).
			WithRetryable(true).
			WithInvocation(id)
	}

	m.logger.Debug("invocation admitted",
		zap.String("invocation_id", id),
		zap.String("target_id", target.ID()))
	return id, nil
}

func (m *Manager) reject(reason string) {
	m.mu.Lock()
	m.rejected++
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.RecordInvocationRejected(reason)
	}
}

func (m *Manager) run(ctx context.Context, rec *record, target Target, payload any) {
	m.mu.Lock()
	if rec.inv.Status != StatusPending {
		m.mu.Unlock()
		return
	}
	rec.inv.Status = StatusRunning
	m.mu.Unlock()

	var (
		result any
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("invocation panicked: %v", r)
			}
		}()
		result, err = target.Execute(ctx, payload)
	}()

	if err != nil {
		m.finish(rec, StatusFailed, nil, err)
		return
	}
	m.finish(rec, StatusCompleted, result, nil)
}

// finish moves rec to a terminal status. The first terminal write wins; later
// ones are ignored. It reports whether this call made the transition.
func (m *Manager) finish(rec *record, status Status, result any, err error) bool {
	m.mu.Lock()
	if rec.inv.Status.IsTerminal() {
		m.mu.Unlock()
		return false
	}
	now := time.Now()
	rec.inv.Status = status
	rec.inv.Result = result
	rec.inv.Err = err
	if err != nil {
		rec.inv.Error = err.Error()
	}
	rec.inv.EndTime = &now
	rec.inv.Duration = now.Sub(rec.inv.StartTime)
	if rec.tracked {
		m.active--
	}
	active := m.active
	duration := rec.inv.Duration
	close(rec.done)
	m.mu.Unlock()

	rec.cancel()

	if m.metrics != nil {
		m.metrics.RecordInvocation(string(status), duration)
		m.metrics.SetActiveInvocations(active)
	}
	if status == StatusFailed {
		m.logger.Debug("invocation failed",
			zap.String("invocation_id", rec.inv.ID),
			zap.Duration("duration", duration),
			zap.Error(err))
	}
	return true
}

func (m *Manager) lookup(id string) (*record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, types.Errorf(types.ErrInvocationNotFound, "invocation %q not found", id).WithInvocation(id)
	}
	return rec, nil
}

// GetStatus returns a snapshot of the invocation without blocking.
func (m *Manager) GetStatus(id string) (*Invocation, error) {
	rec, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv := rec.inv
	return &inv, nil
}

// Wait blocks until the invocation is terminal, timeout elapses or ctx is
// done. A non-positive timeout uses the default. On timeout the invocation is
// forced to failed with INVOCATION_TIMEOUT and its work is cancelled. The
// returned error is the terminal error of a failed or cancelled invocation.
func (m *Manager) Wait(ctx context.Context, id string, timeout time.Duration) (*Invocation, error) {
	rec, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = m.cfg.DefaultTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-rec.done:
	case <-timer.C:
		timeoutErr := types.Errorf(types.ErrInvocationTimeout, "invocation timed out after %s", timeout).
			WithInvocation(id).
			WithDetail("timeout", timeout.String())
		if m.finish(rec, StatusFailed, nil, timeoutErr) {
			m.logger.Warn("invocation timed out",
				zap.String("invocation_id", id),
				zap.Duration("timeout", timeout))
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.mu.RLock()
	inv := rec.inv
	m.mu.RUnlock()
	return &inv, outcome(&inv)
}

func outcome(inv *Invocation) error {
	switch inv.Status {
	case StatusFailed:
		if inv.Err != nil {
			return inv.Err
		}
		return errors.New(inv.Error)
	case StatusCancelled:
		return types.Errorf(types.ErrInvocationCancelled, "invocation %q was cancelled", inv.ID).WithInvocation(inv.ID)
	}
	return nil
}

// Cancel marks a pending or running invocation cancelled and signals its
// context. It returns false when the invocation is unknown or already
// terminal. Work that ignores its context may keep running.
func (m *Manager) Cancel(id string) bool {
	rec, err := m.lookup(id)
	if err != nil {
		return false
	}
	ok := m.finish(rec, StatusCancelled, nil, nil)
	if ok {
		m.logger.Debug("invocation cancelled", zap.String("invocation_id", id))
	}
	return ok
}

// Clear removes the invocation's bookkeeping. It is not a cancellation: work
// still running keeps running and its outcome is discarded. A cleared active
// invocation no longer counts against the concurrency cap.
func (m *Manager) Clear(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return false
	}
	if rec.tracked && !rec.inv.Status.IsTerminal() {
		m.active--
	}
	rec.tracked = false
	delete(m.records, id)
	return true
}

// ListActive returns pending and running invocations ordered by start time.
func (m *Manager) ListActive() []Invocation {
	m.mu.RLock()
	out := make([]Invocation, 0, m.active)
	for _, rec := range m.records {
		if rec.inv.Status.IsActive() {
			out = append(out, rec.inv)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// Stats summarises the manager.
type Stats struct {
	Active   int        `json:"active"`
	Tracked  int        `json:"tracked"`
	Admitted int64      `json:"admitted"`
	Rejected int64      `json:"rejected"`
	Pool     pool.Stats `json:"pool"`
}

// Stats returns current counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	s := Stats{
		Active:   m.active,
		Tracked:  len(m.records),
		Admitted: m.admitted,
		Rejected: m.rejected,
	}
	m.mu.RUnlock()
	s.Pool = m.pool.Stats()
	return s
}

// Close cancels every active invocation and waits for their workers to exit
// or ctx to expire. Work that ignores its context is abandoned on expiry.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.RLock()
	var ids []string
	for id, rec := range m.records {
		if rec.inv.Status.IsActive() {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.Cancel(id)
	}
	if err := m.pool.Shutdown(ctx); err != nil {
		stats := m.pool.Stats()
		m.logger.Warn("invocation workers still running at close",
			zap.Int("running", stats.Active),
			zap.Error(err))
		return fmt.Errorf("waiting for invocation workers: %w", err)
	}
	return nil
}
