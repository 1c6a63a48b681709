package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/BaSui01/flowengine/workflow"
)

var (
	// ErrNotFound is returned when a workflow or execution record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidInput is returned for nil records or records without an id.
	ErrInvalidInput = errors.New("invalid input")
)

// Type names a storage backend.
type Type string

const (
	TypeMemory Type = "memory"
	TypeSQL    Type = "sql"
	TypeRedis  Type = "redis"
	TypeBadger Type = "badger"
)

// ExecutionFilter narrows ListExecutions. Zero fields match everything;
// Limit <= 0 means no limit.
type ExecutionFilter struct {
	WorkflowID string
	Status     workflow.ExecutionStatus
	Limit      int
}

// Store persists workflow definitions and execution records.
//
// ListWorkflows returns definitions oldest first. ListExecutions returns
// executions newest first by start time.
type Store interface {
	SaveWorkflow(ctx context.Context, def *workflow.Definition) error
	GetWorkflow(ctx context.Context, id string) (*workflow.Definition, error)
	ListWorkflows(ctx context.Context) ([]*workflow.Definition, error)
	DeleteWorkflow(ctx context.Context, id string) error

	SaveExecution(ctx context.Context, exec *workflow.Execution) error
	GetExecution(ctx context.Context, id string) (*workflow.Execution, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*workflow.Execution, error)

	Ping(ctx context.Context) error
	Close() error
}

// stampDefinition returns a copy of def with missing timestamps filled in.
func stampDefinition(def *workflow.Definition) (*workflow.Definition, error) {
	if def == nil || def.ID == "" {
		return nil, fmt.Errorf("%w: workflow definition requires an id", ErrInvalidInput)
	}
	c := def.Clone()
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	return c, nil
}

func checkExecution(exec *workflow.Execution) error {
	if exec == nil || exec.ID == "" {
		return fmt.Errorf("%w: execution requires an id", ErrInvalidInput)
	}
	if exec.WorkflowID == "" {
		return fmt.Errorf("%w: execution %s has no workflow id", ErrInvalidInput, exec.ID)
	}
	return nil
}

func (f ExecutionFilter) matches(e *workflow.Execution) bool {
	if f.WorkflowID != "" && e.WorkflowID != f.WorkflowID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	return true
}

// apply filters, orders newest first and truncates.
func (f ExecutionFilter) apply(list []*workflow.Execution) []*workflow.Execution {
	out := list[:0:0]
	for _, e := range list {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	sortExecutions(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func sortExecutions(list []*workflow.Execution) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.After(b.StartTime)
		}
		return a.ID > b.ID
	})
}

func sortDefinitions(list []*workflow.Definition) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
