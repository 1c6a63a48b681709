package invocation

import (
	"context"
	"time"
)

// Status is the lifecycle state of an invocation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition can happen.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive reports whether the invocation counts against the concurrency cap.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusRunning
}

// Target is the work an invocation runs, usually an agent capability.
type Target interface {
	ID() string
	Execute(ctx context.Context, payload any) (any, error)
}

type funcTarget struct {
	id string
	fn func(ctx context.Context, payload any) (any, error)
}

func (t funcTarget) ID() string { return t.id }

func (t funcTarget) Execute(ctx context.Context, payload any) (any, error) {
	return t.fn(ctx, payload)
}

// NewTarget wraps a function as a Target.
func NewTarget(id string, fn func(ctx context.Context, payload any) (any, error)) Target {
	return funcTarget{id: id, fn: fn}
}

// Invocation is a snapshot of one submitted unit of work.
type Invocation struct {
	ID        string        `json:"id"`
	TargetID  string        `json:"targetId"`
	Payload   any           `json:"payload,omitempty"`
	Status    Status        `json:"status"`
	Result    any           `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartTime time.Time     `json:"startTime"`
	EndTime   *time.Time    `json:"endTime,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`

	// Err is the terminal error, when there is one.
	Err error `json:"-"`
}
