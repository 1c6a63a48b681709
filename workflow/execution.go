package workflow

import (
	"context"
	"maps"
	"sync"
	"time"

	"dario.cat/mergo"

	"github.com/BaSui01/flowengine/types"
)

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
	// ExecutionPaused is accepted on loaded records; the engine never sets it.
	ExecutionPaused ExecutionStatus = "paused"
)

// IsTerminal reports whether the execution can no longer change.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// NodeStatus is the lifecycle state of one node within an execution.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
	NodeSkipped   NodeStatus = "skipped"
	NodeCancelled NodeStatus = "cancelled"
)

// NodeResult records one node's run within an execution.
type NodeResult struct {
	NodeID    string        `json:"nodeId"`
	NodeType  string        `json:"nodeType"`
	Status    NodeStatus    `json:"status"`
	StartTime time.Time     `json:"startTime"`
	EndTime   *time.Time    `json:"endTime,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Attempts  int           `json:"attempts"`
	Input     any           `json:"inputData,omitempty"`
	Output    any           `json:"outputData,omitempty"`
	Port      string        `json:"port,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// ExecutionError describes why an execution failed.
type ExecutionError struct {
	Code    types.ErrorCode `json:"code,omitempty"`
	Message string          `json:"message"`
	NodeID  string          `json:"nodeId,omitempty"`
	Details map[string]any  `json:"details,omitempty"`
}

// Execution is the record of one workflow run. NodeResults only grows while
// the execution runs.
type Execution struct {
	ID          string                 `json:"id"`
	WorkflowID  string                 `json:"workflowId"`
	Status      ExecutionStatus        `json:"status"`
	Input       any                    `json:"input,omitempty"`
	Variables   map[string]any         `json:"variables"`
	NodeResults map[string]*NodeResult `json:"nodeResults"`
	// Outputs holds the output of every node that ended a branch.
	Outputs     map[string]any  `json:"outputs,omitempty"`
	CurrentNode string          `json:"currentNode,omitempty"`
	StartTime   time.Time       `json:"startTime"`
	EndTime     *time.Time      `json:"endTime,omitempty"`
	Error       *ExecutionError `json:"error,omitempty"`
}

// Clone returns a copy that shares no maps or node results with e.
func (e *Execution) Clone() *Execution {
	c := *e
	c.Variables = maps.Clone(e.Variables)
	c.Outputs = maps.Clone(e.Outputs)
	c.NodeResults = make(map[string]*NodeResult, len(e.NodeResults))
	for id, r := range e.NodeResults {
		rc := *r
		c.NodeResults[id] = &rc
	}
	if e.Error != nil {
		ee := *e.Error
		ee.Details = maps.Clone(e.Error.Details)
		c.Error = &ee
	}
	return &c
}

// Duration returns the elapsed time, up to now for a running execution.
func (e *Execution) Duration() time.Duration {
	if e.EndTime != nil {
		return e.EndTime.Sub(e.StartTime)
	}
	return time.Since(e.StartTime)
}

// Run is the live handle of an execution started by the engine.
type Run struct {
	mu     sync.RWMutex
	exec   *Execution
	cancel context.CancelFunc
	done   chan struct{}
}

func newRun(exec *Execution, cancel context.CancelFunc) *Run {
	return &Run{exec: exec, cancel: cancel, done: make(chan struct{})}
}

// ID returns the execution id.
func (r *Run) ID() string { return r.exec.ID }

// Snapshot returns a copy of the current execution record.
func (r *Run) Snapshot() *Execution {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.exec.Clone()
}

// Done is closed once the execution is terminal.
func (r *Run) Done() <-chan struct{} { return r.done }

// Cancel requests cancellation. Nodes in flight are marked cancelled when
// they return.
func (r *Run) Cancel() { r.cancel() }

// Wait blocks until the execution is terminal or ctx is done.
func (r *Run) Wait(ctx context.Context) (*Execution, error) {
	select {
	case <-r.done:
		return r.Snapshot(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Run) beginNode(n *Node, input any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exec.CurrentNode = n.ID
	r.exec.NodeResults[n.ID] = &NodeResult{
		NodeID:    n.ID,
		NodeType:  n.Type,
		Status:    NodeRunning,
		StartTime: time.Now(),
		Attempts:  1,
		Input:     input,
	}
}

func (r *Run) endNode(id string, status NodeStatus, output any, port string, err error) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.exec.NodeResults[id]
	now := time.Now()
	res.Status = status
	res.EndTime = &now
	res.Duration = now.Sub(res.StartTime)
	res.Output = output
	res.Port = port
	if err != nil {
		res.Error = err.Error()
	}
	return res.Duration
}

func (r *Run) mergeVariables(vars map[string]any) error {
	if len(vars) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exec.Variables == nil {
		r.exec.Variables = make(map[string]any, len(vars))
	}
	return mergo.Merge(&r.exec.Variables, vars, mergo.WithOverride)
}

func (r *Run) recordLeaf(id string, output any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exec.Outputs == nil {
		r.exec.Outputs = make(map[string]any)
	}
	r.exec.Outputs[id] = output
}

// variables and outputs return copies for handlers to read.
func (r *Run) variables() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.exec.Variables)
}

func (r *Run) outputs() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.exec.NodeResults))
	for id, res := range r.exec.NodeResults {
		if res.Status == NodeCompleted || res.Status == NodeSkipped {
			out[id] = res.Output
		}
	}
	return out
}

func (r *Run) finish(status ExecutionStatus, execErr *ExecutionError) *Execution {
	r.mu.Lock()
	now := time.Now()
	r.exec.Status = status
	r.exec.EndTime = &now
	r.exec.Error = execErr
	r.exec.CurrentNode = ""
	snap := r.exec.Clone()
	r.mu.Unlock()

	r.cancel()
	close(r.done)
	return snap
}
