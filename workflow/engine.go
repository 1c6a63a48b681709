package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/flowengine/hooks"
	"github.com/BaSui01/flowengine/types"
	"github.com/BaSui01/flowengine/workflow/expr"
	"github.com/BaSui01/flowengine/workflow/nodetype"
)

const instrumentationName = "github.com/BaSui01/flowengine/workflow"

// DefaultNodeTimeout bounds a task invocation when the node sets no timeout.
const DefaultNodeTimeout = 30 * time.Second

// NodeContext is what a handler sees of the execution.
type NodeContext struct {
	Node        *Node
	Description *nodetype.Description
	Input       any
	// Variables and Nodes are copies; writes do not reach the execution.
	Variables   map[string]any
	Nodes       map[string]any
	ExecutionID string
	WorkflowID  string
}

// NodeOutput is a handler's result. Port selects the outgoing connections to
// follow; empty means the node's first output. Variables are merged into the
// execution variables, last writer wins.
type NodeOutput struct {
	Data      any
	Port      string
	Variables map[string]any
}

// NodeHandler runs nodes of one type.
type NodeHandler interface {
	Handle(ctx context.Context, nc *NodeContext) (NodeOutput, error)
}

// HandlerFunc adapts a function to NodeHandler.
type HandlerFunc func(ctx context.Context, nc *NodeContext) (NodeOutput, error)

// Handle implements NodeHandler.
func (f HandlerFunc) Handle(ctx context.Context, nc *NodeContext) (NodeOutput, error) {
	return f(ctx, nc)
}

// Recorder receives per-node metrics. *metrics.Collector satisfies it.
type Recorder interface {
	RecordNodeExecution(nodeType, status string, duration time.Duration)
}

// Engine executes validated graphs. One engine serves any number of
// concurrent executions.
type Engine struct {
	catalog     TypeCatalog
	evaluator   expr.Evaluator
	invoker     TaskInvoker
	nodeTimeout time.Duration
	emitter     hooks.Emitter
	metrics     Recorder
	tracer      trace.Tracer
	logger      *zap.Logger

	mu       sync.RWMutex
	handlers map[string]NodeHandler
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTaskInvoker enables the task and parallel node handlers.
func WithTaskInvoker(inv TaskInvoker) EngineOption {
	return func(e *Engine) { e.invoker = inv }
}

// WithEvaluator replaces the condition expression evaluator.
func WithEvaluator(ev expr.Evaluator) EngineOption {
	return func(e *Engine) { e.evaluator = ev }
}

// WithNodeTimeout sets the default task timeout.
func WithNodeTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.nodeTimeout = d
		}
	}
}

// WithEmitter sets the lifecycle event sink.
func WithEmitter(em hooks.Emitter) EngineOption {
	return func(e *Engine) {
		if em != nil {
			e.emitter = em
		}
	}
}

// WithRecorder sets the node metrics recorder.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) { e.metrics = r }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = t }
}

// NewEngine creates an engine. Trigger and condition handlers are always
// installed; task and parallel handlers need WithTaskInvoker.
func NewEngine(catalog TypeCatalog, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		catalog:     catalog,
		evaluator:   expr.New(),
		nodeTimeout: DefaultNodeTimeout,
		emitter:     hooks.Discard,
		logger:      logger.With(zap.String("component", "workflow_engine")),
		handlers:    make(map[string]NodeHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(instrumentationName)
	}

	e.handlers[nodetype.TypeTrigger] = HandlerFunc(triggerHandler)
	e.handlers[nodetype.TypeCondition] = &conditionHandler{evaluator: e.evaluator}
	if e.invoker != nil {
		e.handlers[nodetype.TypeTask] = &taskHandler{invoker: e.invoker, timeout: e.nodeTimeout}
		e.handlers[nodetype.TypeParallel] = &parallelHandler{invoker: e.invoker, timeout: e.nodeTimeout}
	}
	return e
}

// RegisterHandler installs or replaces the handler for a node type.
func (e *Engine) RegisterHandler(nodeType string, h NodeHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[nodeType] = h
}

func (e *Engine) handler(nodeType string) (NodeHandler, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handlers[nodeType]
	return h, ok
}

// Start begins executing g in the background and returns its handle. The
// execution is detached from ctx cancellation; use Run.Cancel.
func (e *Engine) Start(ctx context.Context, g *Graph, input any, vars map[string]any) (*Run, error) {
	run, runCtx, err := e.prepare(context.WithoutCancel(ctx), g, input, vars)
	if err != nil {
		return nil, err
	}
	go e.run(runCtx, g, run, input)
	return run, nil
}

// Execute runs g to completion. The returned execution is always non-nil once
// the run has started; err is non-nil unless it completed.
func (e *Engine) Execute(ctx context.Context, g *Graph, input any, vars map[string]any) (*Execution, error) {
	run, runCtx, err := e.prepare(ctx, g, input, vars)
	if err != nil {
		return nil, err
	}
	return e.run(runCtx, g, run, input)
}

func (e *Engine) prepare(ctx context.Context, g *Graph, input any, vars map[string]any) (*Run, context.Context, error) {
	if g == nil {
		return nil, nil, types.NewError(types.ErrInvalidRequest, "graph is nil")
	}
	start, ok := g.StartNode()
	if !ok {
		return nil, nil, types.Errorf(types.ErrInvalidRequest, "graph %q must be validated before execution", g.ID())
	}
	for _, n := range g.Nodes() {
		if n.Disabled {
			continue
		}
		if _, ok := e.handler(n.Type); !ok {
			return nil, nil, types.Errorf(types.ErrNoHandler, "no handler for node type %q", n.Type).
				WithNode(n.ID).
				WithDetail("type", n.Type)
		}
	}

	exec := &Execution{
		ID:          uuid.NewString(),
		WorkflowID:  g.ID(),
		Status:      ExecutionRunning,
		Input:       input,
		Variables:   cloneVars(vars),
		NodeResults: make(map[string]*NodeResult),
		CurrentNode: start,
		StartTime:   time.Now(),
	}
	runCtx, cancel := context.WithCancel(types.WithExecutionID(types.WithWorkflowID(ctx, g.ID()), exec.ID))
	return newRun(exec, cancel), runCtx, nil
}

func cloneVars(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}

func (e *Engine) run(ctx context.Context, g *Graph, run *Run, input any) (*Execution, error) {
	start, _ := g.StartNode()
	ctx, span := e.tracer.Start(ctx, "workflow.execute",
		trace.WithAttributes(
			attribute.String("workflow.id", g.ID()),
			attribute.String("execution.id", run.ID()),
			attribute.String("workflow.start_node", start),
		))
	defer span.End()

	e.logger.Info("workflow execution started",
		zap.String("workflow_id", g.ID()),
		zap.String("execution_id", run.ID()),
		zap.String("start_node", start))
	e.emit(hooks.ActionWorkflowExecutionStarted, map[string]any{
		"workflowId":  g.ID(),
		"executionId": run.ID(),
		"startNode":   start,
	})

	grp, gctx := errgroup.WithContext(ctx)
	w := &walker{engine: e, graph: g, run: run, grp: grp, claimed: make(map[string]bool)}
	grp.Go(func() error { return w.walk(gctx, start, input) })
	err := grp.Wait()

	status, execErr := outcome(err)
	snap := run.finish(status, execErr)

	fields := []zap.Field{
		zap.String("workflow_id", g.ID()),
		zap.String("execution_id", run.ID()),
		zap.Duration("duration", snap.Duration()),
		zap.Int("nodes_executed", len(snap.NodeResults)),
	}
	details := map[string]any{
		"workflowId":  g.ID(),
		"executionId": run.ID(),
		"durationMs":  snap.Duration().Milliseconds(),
	}
	switch status {
	case ExecutionCompleted:
		span.SetStatus(codes.Ok, "")
		e.logger.Info("workflow execution completed", fields...)
		e.emit(hooks.ActionWorkflowExecutionCompleted, details)
		return snap, nil
	case ExecutionCancelled:
		span.SetStatus(codes.Error, "cancelled")
		e.logger.Info("workflow execution cancelled", fields...)
		e.emit(hooks.ActionWorkflowExecutionCancelled, details)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, execErr.Message)
		e.logger.Error("workflow execution failed", append(fields, zap.String("node_id", execErr.NodeID), zap.Error(err))...)
		details["error"] = execErr.Message
		details["nodeId"] = execErr.NodeID
		e.emit(hooks.ActionWorkflowExecutionFailed, details)
	}
	return snap, err
}

// outcome maps the traversal error to the terminal status.
func outcome(err error) (ExecutionStatus, *ExecutionError) {
	if err == nil {
		return ExecutionCompleted, nil
	}
	if !types.IsErrorCode(err, types.ErrNodeExecutionFailed) &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return ExecutionCancelled, &ExecutionError{Message: err.Error()}
	}

	execErr := &ExecutionError{Message: err.Error()}
	if te, ok := types.AsError(err); ok {
		execErr.Code = te.Code
		execErr.NodeID = te.NodeID
		execErr.Details = te.Details
		if te.Cause != nil {
			execErr.Message = te.Cause.Error()
		}
	}
	return ExecutionFailed, execErr
}

func (e *Engine) emit(action string, details map[string]any) {
	e.emitter.Emit(hooks.NewEvent(action, details))
}

// walker drives one execution. Each node runs at most once: the first branch
// to reach it claims it and later arrivals end there.
type walker struct {
	engine *Engine
	graph  *Graph
	run    *Run
	grp    *errgroup.Group

	mu      sync.Mutex
	claimed map[string]bool
}

func (w *walker) claim(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.claimed[id] {
		return false
	}
	w.claimed[id] = true
	return true
}

// walk follows one branch. The first child continues on this goroutine and
// every sibling gets its own.
func (w *walker) walk(ctx context.Context, id string, input any) error {
	for {
		if !w.claim(id) {
			return nil
		}
		next, output, err := w.step(ctx, id, input)
		if err != nil {
			return err
		}
		if len(next) == 0 {
			w.run.recordLeaf(id, output)
			return nil
		}
		for _, child := range next[1:] {
			w.grp.Go(func() error { return w.walk(ctx, child, output) })
		}
		id, input = next[0], output
	}
}

func (w *walker) step(ctx context.Context, id string, input any) ([]string, any, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	e := w.engine
	node, _ := w.graph.Node(id)
	desc, ok := e.catalog.Get(node.Type)
	if !ok {
		return nil, nil, types.Errorf(types.ErrUnknownNodeType, "node %q has unknown type %q", id, node.Type).WithNode(id)
	}

	w.run.beginNode(node, input)
	nodeDetails := func() map[string]any {
		return map[string]any{
			"workflowId":  w.graph.ID(),
			"executionId": w.run.ID(),
			"nodeId":      id,
			"nodeType":    node.Type,
		}
	}
	e.emit(hooks.ActionNodeStarted, nodeDetails())

	if node.Disabled {
		port := firstOutput(desc)
		d := w.run.endNode(id, NodeSkipped, input, port, nil)
		e.recordNode(node.Type, NodeSkipped, d)
		e.emit(hooks.ActionNodeSkipped, nodeDetails())
		return w.graph.Children(id, port), input, nil
	}

	ctx, span := e.tracer.Start(types.WithNodeID(ctx, id), "workflow.node",
		trace.WithAttributes(
			attribute.String("workflow.id", w.graph.ID()),
			attribute.String("execution.id", w.run.ID()),
			attribute.String("node.id", id),
			attribute.String("node.type", node.Type),
		))
	defer span.End()

	e.logger.Debug("executing node",
		zap.String("execution_id", w.run.ID()),
		zap.String("node_id", id),
		zap.String("node_type", node.Type))

	h, _ := e.handler(node.Type)
	out, err := h.Handle(ctx, &NodeContext{
		Node:        node,
		Description: desc,
		Input:       input,
		Variables:   w.run.variables(),
		Nodes:       w.run.outputs(),
		ExecutionID: w.run.ID(),
		WorkflowID:  w.graph.ID(),
	})

	port := out.Port
	if err == nil {
		if port == "" {
			port = firstOutput(desc)
		} else if _, ok := desc.Output(port); !ok {
			err = types.Errorf(types.ErrInvalidConnection, "handler selected unknown output %q", port).WithNode(id)
		}
	}

	if err != nil {
		if ctx.Err() != nil {
			d := w.run.endNode(id, NodeCancelled, nil, "", ctx.Err())
			e.recordNode(node.Type, NodeCancelled, d)
			span.SetStatus(codes.Error, "cancelled")
			e.emit(hooks.ActionNodeCancelled, nodeDetails())
			return nil, nil, ctx.Err()
		}

		d := w.run.endNode(id, NodeFailed, nil, "", err)
		e.recordNode(node.Type, NodeFailed, d)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("node execution failed",
			zap.String("execution_id", w.run.ID()),
			zap.String("node_id", id),
			zap.String("node_type", node.Type),
			zap.Duration("duration", d),
			zap.Error(err))
		details := nodeDetails()
		details["error"] = err.Error()
		e.emit(hooks.ActionNodeFailed, details)

		return nil, nil, types.Errorf(types.ErrNodeExecutionFailed, "node %q failed", id).
			WithNode(id).
			WithCause(err).
			WithDetail("nodeType", node.Type)
	}

	d := w.run.endNode(id, NodeCompleted, out.Data, port, nil)
	if mergeErr := w.run.mergeVariables(out.Variables); mergeErr != nil {
		e.logger.Warn("merge node variables failed",
			zap.String("execution_id", w.run.ID()),
			zap.String("node_id", id),
			zap.Error(mergeErr))
	}
	e.recordNode(node.Type, NodeCompleted, d)
	span.SetStatus(codes.Ok, "")

	details := nodeDetails()
	details["port"] = port
	details["durationMs"] = d.Milliseconds()
	e.emit(hooks.ActionNodeCompleted, details)

	return w.graph.Children(id, port), out.Data, nil
}

func (e *Engine) recordNode(nodeType string, status NodeStatus, d time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordNodeExecution(nodeType, string(status), d)
	}
}

func firstOutput(d *nodetype.Description) string {
	if len(d.Outputs) == 0 {
		return ""
	}
	return d.Outputs[0].Name
}
