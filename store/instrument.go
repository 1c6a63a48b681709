package store

import (
	"context"
	"time"

	"github.com/BaSui01/flowengine/workflow"
)

// Recorder receives the latency of every store operation.
type Recorder interface {
	RecordStoreOperation(backend, operation string, duration time.Duration)
}

// instrumented decorates a Store with operation timing.
type instrumented struct {
	Store
	backend string
	rec     Recorder
}

// Instrument wraps s so every operation is reported to rec. A nil rec
// returns s unchanged.
func Instrument(s Store, backend Type, rec Recorder) Store {
	if rec == nil {
		return s
	}
	return &instrumented{Store: s, backend: string(backend), rec: rec}
}

func (i *instrumented) observe(op string, start time.Time) {
	i.rec.RecordStoreOperation(i.backend, op, time.Since(start))
}

func (i *instrumented) SaveWorkflow(ctx context.Context, def *workflow.Definition) error {
	defer i.observe("save_workflow", time.Now())
	return i.Store.SaveWorkflow(ctx, def)
}

func (i *instrumented) GetWorkflow(ctx context.Context, id string) (*workflow.Definition, error) {
	defer i.observe("get_workflow", time.Now())
	return i.Store.GetWorkflow(ctx, id)
}

func (i *instrumented) ListWorkflows(ctx context.Context) ([]*workflow.Definition, error) {
	defer i.observe("list_workflows", time.Now())
	return i.Store.ListWorkflows(ctx)
}

func (i *instrumented) DeleteWorkflow(ctx context.Context, id string) error {
	defer i.observe("delete_workflow", time.Now())
	return i.Store.DeleteWorkflow(ctx, id)
}

func (i *instrumented) SaveExecution(ctx context.Context, exec *workflow.Execution) error {
	defer i.observe("save_execution", time.Now())
	return i.Store.SaveExecution(ctx, exec)
}

func (i *instrumented) GetExecution(ctx context.Context, id string) (*workflow.Execution, error) {
	defer i.observe("get_execution", time.Now())
	return i.Store.GetExecution(ctx, id)
}

func (i *instrumented) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*workflow.Execution, error) {
	defer i.observe("list_executions", time.Now())
	return i.Store.ListExecutions(ctx, filter)
}
