package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"dario.cat/mergo"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/agent"
	"github.com/BaSui01/flowengine/config"
	"github.com/BaSui01/flowengine/hooks"
	"github.com/BaSui01/flowengine/invocation"
	"github.com/BaSui01/flowengine/store"
	"github.com/BaSui01/flowengine/types"
	"github.com/BaSui01/flowengine/workflow"
	"github.com/BaSui01/flowengine/workflow/nodetype"
)

// persistTimeout bounds each store write made on behalf of an execution.
const persistTimeout = 10 * time.Second

// Orchestrator owns one set of engine components: node types, agents, the
// invocation manager, the engine, the hook bus and the record store.
type Orchestrator struct {
	cfg    config.Config
	logger *zap.Logger

	nodeTypes *nodetype.Registry
	agents    *agent.Registry
	gate      agent.Gate
	invoker   *agent.Invoker
	manager   *invocation.Manager
	engine    *workflow.Engine

	hookRegistry *hooks.Registry
	bus          *hooks.Bus
	audit        *hooks.AuditLog

	store       store.Store
	redis       redis.UniversalClient
	ownRedis    bool
	metrics     Recorder
	instruments Instruments

	mu        sync.RWMutex
	workflows map[string]*registered
	live      map[string]*liveRun

	closed atomic.Bool
	wg     sync.WaitGroup
}

type registered struct {
	def   *workflow.Definition
	graph *workflow.Graph
	start string
}

// liveRun is an execution that has not been finalized. done is closed once
// its terminal record has been persisted.
type liveRun struct {
	run  *workflow.Run
	done chan struct{}
}

// New wires an orchestrator from opts.
func New(ctx context.Context, opts Options) (*Orchestrator, error) {
	cfg := config.DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		cfg:         cfg,
		logger:      logger.With(zap.String("component", "orchestrator")),
		metrics:     opts.Metrics,
		instruments: opts.Instruments,
		workflows:   make(map[string]*registered),
		live:        make(map[string]*liveRun),
	}

	o.nodeTypes = nodetype.NewRegistry(logger)
	if err := nodetype.RegisterBuiltins(o.nodeTypes); err != nil {
		return nil, fmt.Errorf("register builtin node types: %w", err)
	}

	o.agents = agent.NewRegistry(logger)
	o.gate = opts.Gate
	if o.gate == nil {
		gate, err := NewGate(cfg.Auth, o.agents)
		if err != nil {
			return nil, err
		}
		o.gate = gate
	}

	var invOpts []invocation.Option
	if o.metrics != nil {
		invOpts = append(invOpts, invocation.WithRecorder(o.metrics))
	}
	o.manager = invocation.NewManager(invocation.Config{
		MaxConcurrent:  cfg.Engine.MaxConcurrent,
		DefaultTimeout: cfg.Engine.InvocationTimeout,
		RateLimit:      cfg.Engine.RateLimitRPS,
		RateBurst:      cfg.Engine.RateLimitBurst,
	}, logger, invOpts...)
	o.invoker = agent.NewInvoker(o.agents, o.gate, o.manager, logger)

	if err := o.initHooks(ctx, opts.Redis, logger); err != nil {
		_ = o.manager.Close(ctx)
		return nil, err
	}

	engineOpts := []workflow.EngineOption{
		workflow.WithTaskInvoker(o.invoker),
		workflow.WithNodeTimeout(cfg.Engine.NodeTimeout),
		workflow.WithEmitter(o.bus),
	}
	if o.metrics != nil {
		engineOpts = append(engineOpts, workflow.WithRecorder(o.metrics))
	}
	o.engine = workflow.NewEngine(o.nodeTypes, logger, engineOpts...)

	o.store = opts.Store
	if o.store == nil {
		var rec store.Recorder
		if o.metrics != nil {
			rec = o.metrics
		}
		s, err := store.New(ctx, cfg.Store, logger, rec)
		if err != nil {
			o.shutdownPartial()
			return nil, fmt.Errorf("open record store: %w", err)
		}
		o.store = s
	}

	o.logger.Info("orchestrator ready",
		zap.String("store", cfg.Store.Type),
		zap.String("auth_mode", cfg.Auth.Mode),
		zap.Int("max_concurrent", o.manager.Config().MaxConcurrent))
	return o, nil
}

func (o *Orchestrator) initHooks(ctx context.Context, client redis.UniversalClient, logger *zap.Logger) error {
	o.hookRegistry = hooks.NewRegistry(logger)
	o.audit = hooks.NewAuditLog(o.cfg.Hooks.AuditLimit)
	o.bus = hooks.NewBus(o.hookRegistry, o.cfg.Hooks.BufferSize, logger, hooks.WithDropHandler(func(e hooks.Event) {
		if o.metrics != nil {
			o.metrics.RecordHookEventDropped()
		}
	}))

	if err := o.hookRegistry.Register("audit", hooks.ActionAll, 100, o.audit.Handle); err != nil {
		return err
	}
	if err := o.hookRegistry.Register("log", hooks.ActionAll, 0, hooks.LogSink(logger)); err != nil {
		return err
	}

	if o.cfg.Hooks.RedisStream == "" {
		return nil
	}
	if client == nil {
		c, err := store.NewRedisClient(ctx, o.cfg.Store.Redis)
		if err != nil {
			return fmt.Errorf("hook stream: %w", err)
		}
		client = c
		o.ownRedis = true
	}
	o.redis = client
	sink := hooks.NewRedisStreamSink(client, o.cfg.Hooks.RedisStream, o.cfg.Hooks.RedisStreamMaxLen)
	if err := o.hookRegistry.Register("redis_stream", hooks.ActionAll, 10, sink.Handle); err != nil {
		return err
	}
	o.logger.Info("hook events streamed to redis", zap.String("stream", sink.Stream()))
	return nil
}

// shutdownPartial releases what New acquired before failing.
func (o *Orchestrator) shutdownPartial() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = o.manager.Close(ctx)
	_ = o.bus.Close(ctx)
	if o.ownRedis {
		_ = o.redis.Close()
	}
}

// =============================================================================
// 注册
// =============================================================================

// RegisterAgent adds an agent or replaces the one with the same id.
func (o *Orchestrator) RegisterAgent(a agent.Agent) error {
	return o.agents.Register(a)
}

// UnregisterAgent removes an agent.
func (o *Orchestrator) UnregisterAgent(id string) bool {
	return o.agents.Unregister(id)
}

// Agents returns the registered agents.
func (o *Orchestrator) Agents() []agent.Agent {
	return o.agents.List()
}

// RegisterNodeType adds a node type and, when h is non-nil, its handler.
// Workflows using a type without a handler validate but cannot execute.
func (o *Orchestrator) RegisterNodeType(desc nodetype.Description, h workflow.NodeHandler) error {
	if err := o.nodeTypes.Register(desc); err != nil {
		return err
	}
	if h != nil {
		o.engine.RegisterHandler(desc.Type, h)
	}
	return nil
}

// Config returns the validated configuration the orchestrator runs with.
func (o *Orchestrator) Config() config.Config {
	return o.cfg
}

// NodeTypes returns every registered node type description.
func (o *Orchestrator) NodeTypes() []*nodetype.Description {
	return o.nodeTypes.GetAll()
}

// RegisterWorkflow validates def against the node type registry, assigns an
// id when it has none, persists it and returns the stored definition.
func (o *Orchestrator) RegisterWorkflow(ctx context.Context, def *workflow.Definition) (*workflow.Definition, error) {
	if def == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "workflow definition is nil")
	}
	if err := def.Check(); err != nil {
		return nil, types.WrapError(err, types.ErrInvalidRequest, "invalid workflow definition")
	}

	c := def.Clone()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Version == 0 {
		c.Version = 1
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
		o.mu.RLock()
		if prev, ok := o.workflows[c.ID]; ok {
			c.CreatedAt = prev.def.CreatedAt
		}
		o.mu.RUnlock()
	}
	c.UpdatedAt = now

	g, err := c.Graph()
	if err != nil {
		return nil, err
	}
	start, err := workflow.Validate(g, o.nodeTypes)
	if err != nil {
		return nil, err
	}

	if err := o.store.SaveWorkflow(ctx, c); err != nil {
		return nil, types.WrapError(err, types.ErrInternalError, "failed to persist workflow")
	}

	o.mu.Lock()
	o.workflows[c.ID] = &registered{def: c, graph: g, start: start}
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.RecordWorkflowRegistered()
	}
	o.bus.Emit(hooks.NewEvent(hooks.ActionWorkflowRegistered, map[string]any{
		"workflowId": c.ID,
		"name":       c.Name,
		"version":    c.Version,
		"startNode":  start,
		"nodes":      len(c.Nodes),
	}))
	o.logger.Info("workflow registered",
		zap.String("workflow_id", c.ID),
		zap.String("name", c.Name),
		zap.String("start_node", start))
	return c.Clone(), nil
}

// lookup returns a registered workflow, loading and validating it from the
// store when this process has not seen it.
func (o *Orchestrator) lookup(ctx context.Context, id string) (*registered, error) {
	o.mu.RLock()
	r, ok := o.workflows[id]
	o.mu.RUnlock()
	if ok {
		return r, nil
	}

	def, err := o.store.GetWorkflow(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, types.Errorf(types.ErrWorkflowNotFound, "workflow %q not found", id).WithDetail("workflowId", id)
	}
	if err != nil {
		return nil, types.WrapError(err, types.ErrInternalError, "failed to load workflow")
	}
	g, err := def.Graph()
	if err != nil {
		return nil, err
	}
	start, err := workflow.Validate(g, o.nodeTypes)
	if err != nil {
		return nil, err
	}

	r = &registered{def: def, graph: g, start: start}
	o.mu.Lock()
	if existing, ok := o.workflows[id]; ok {
		r = existing
	} else {
		o.workflows[id] = r
	}
	o.mu.Unlock()
	o.logger.Debug("workflow loaded from store", zap.String("workflow_id", id))
	return r, nil
}

// GetWorkflow returns a registered workflow definition.
func (o *Orchestrator) GetWorkflow(ctx context.Context, id string) (*workflow.Definition, error) {
	r, err := o.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.def.Clone(), nil
}

// ListWorkflows returns every stored workflow, oldest first.
func (o *Orchestrator) ListWorkflows(ctx context.Context) ([]*workflow.Definition, error) {
	defs, err := o.store.ListWorkflows(ctx)
	if err != nil {
		return nil, types.WrapError(err, types.ErrInternalError, "failed to list workflows")
	}
	return defs, nil
}

// DeleteWorkflow removes a workflow. Running executions are not affected.
func (o *Orchestrator) DeleteWorkflow(ctx context.Context, id string) error {
	err := o.store.DeleteWorkflow(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return types.Errorf(types.ErrWorkflowNotFound, "workflow %q not found", id).WithDetail("workflowId", id)
	}
	if err != nil {
		return types.WrapError(err, types.ErrInternalError, "failed to delete workflow")
	}
	o.mu.Lock()
	delete(o.workflows, id)
	o.mu.Unlock()
	o.logger.Info("workflow deleted", zap.String("workflow_id", id))
	return nil
}

// =============================================================================
// 执行
// =============================================================================

// ExecuteWorkflow runs a registered workflow to completion. vars override the
// workflow's default variables. Cancelling ctx cancels the execution. The
// returned execution is non-nil once the run started, even on failure.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, workflowID string, input any, vars map[string]any) (*workflow.Execution, error) {
	lr, err := o.launch(ctx, workflowID, input, vars)
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, lr.run.Cancel)
	defer stop()

	<-lr.done
	exec := lr.run.Snapshot()
	return exec, executionError(ctx, exec)
}

// StartWorkflow starts a registered workflow in the background and returns
// the execution id. The execution is not tied to ctx; use CancelExecution.
func (o *Orchestrator) StartWorkflow(ctx context.Context, workflowID string, input any, vars map[string]any) (string, error) {
	lr, err := o.launch(ctx, workflowID, input, vars)
	if err != nil {
		return "", err
	}
	return lr.run.ID(), nil
}

func (o *Orchestrator) launch(ctx context.Context, workflowID string, input any, vars map[string]any) (*liveRun, error) {
	if o.closed.Load() {
		return nil, types.NewError(types.ErrServiceUnavailable, "orchestrator is closed")
	}
	r, err := o.lookup(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	merged, err := mergeVariables(r.def.Variables, vars)
	if err != nil {
		return nil, types.WrapError(err, types.ErrInvalidRequest, "invalid workflow variables")
	}

	run, err := o.engine.Start(ctx, r.graph, input, merged)
	if err != nil {
		return nil, err
	}
	lr := &liveRun{run: run, done: make(chan struct{})}

	o.mu.Lock()
	if o.closed.Load() {
		o.mu.Unlock()
		run.Cancel()
		return nil, types.NewError(types.ErrServiceUnavailable, "orchestrator is closed")
	}
	o.live[run.ID()] = lr
	o.wg.Add(1)
	o.mu.Unlock()

	// The initial record is written before the finalizer starts so it can
	// never overwrite the terminal one.
	o.persist(run.Snapshot())
	go o.finalize(lr)
	return lr, nil
}

func (o *Orchestrator) finalize(lr *liveRun) {
	defer o.wg.Done()
	<-lr.run.Done()

	exec := lr.run.Snapshot()
	o.persist(exec)
	if o.metrics != nil {
		o.metrics.RecordWorkflowExecution(string(exec.Status), exec.Duration())
	}
	if o.instruments != nil {
		o.instruments.RecordExecution(context.Background(), exec.WorkflowID, string(exec.Status), exec.Duration())
	}

	o.mu.Lock()
	delete(o.live, exec.ID)
	o.mu.Unlock()
	close(lr.done)
}

func (o *Orchestrator) persist(exec *workflow.Execution) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := o.store.SaveExecution(ctx, exec); err != nil {
		o.logger.Error("failed to persist execution",
			zap.String("workflow_id", exec.WorkflowID),
			zap.String("execution_id", exec.ID),
			zap.String("status", string(exec.Status)),
			zap.Error(err))
	}
}

// mergeVariables overlays vars on the workflow defaults.
func mergeVariables(defaults, vars map[string]any) (map[string]any, error) {
	out := maps.Clone(defaults)
	if out == nil {
		out = make(map[string]any, len(vars))
	}
	if len(vars) == 0 {
		return out, nil
	}
	if err := mergo.Merge(&out, vars, mergo.WithOverride); err != nil {
		return nil, err
	}
	return out, nil
}

// executionError turns a terminal execution into the error ExecuteWorkflow
// returns.
func executionError(ctx context.Context, exec *workflow.Execution) error {
	switch exec.Status {
	case workflow.ExecutionCompleted:
		return nil
	case workflow.ExecutionCancelled:
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("execution %s cancelled: %w", exec.ID, context.Canceled)
	}

	if exec.Error == nil {
		return types.Errorf(types.ErrInternalError, "execution %s ended with status %s", exec.ID, exec.Status)
	}
	code := exec.Error.Code
	if code == "" {
		code = types.ErrNodeExecutionFailed
	}
	err := types.NewError(code, exec.Error.Message).WithNode(exec.Error.NodeID)
	for k, v := range exec.Error.Details {
		err = err.WithDetail(k, v)
	}
	return err
}

// CancelExecution cancels a running execution. Nodes in flight are marked
// cancelled when they return.
func (o *Orchestrator) CancelExecution(id string) error {
	o.mu.RLock()
	lr, ok := o.live[id]
	o.mu.RUnlock()
	if !ok {
		return types.Errorf(types.ErrExecutionNotFound, "execution %q is not running", id).WithDetail("executionId", id)
	}
	lr.run.Cancel()
	o.logger.Info("execution cancellation requested", zap.String("execution_id", id))
	return nil
}

// GetExecution returns the live snapshot of a running execution, or the
// stored record of a finished one.
func (o *Orchestrator) GetExecution(ctx context.Context, id string) (*workflow.Execution, error) {
	o.mu.RLock()
	lr, ok := o.live[id]
	o.mu.RUnlock()
	if ok {
		return lr.run.Snapshot(), nil
	}

	exec, err := o.store.GetExecution(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, types.Errorf(types.ErrExecutionNotFound, "execution %q not found", id).WithDetail("executionId", id)
	}
	if err != nil {
		return nil, types.WrapError(err, types.ErrInternalError, "failed to load execution")
	}
	return exec, nil
}

// WaitExecution blocks until the execution is finalized or ctx is done.
func (o *Orchestrator) WaitExecution(ctx context.Context, id string) (*workflow.Execution, error) {
	o.mu.RLock()
	lr, ok := o.live[id]
	o.mu.RUnlock()
	if ok {
		select {
		case <-lr.done:
			return lr.run.Snapshot(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return o.GetExecution(ctx, id)
}

// ListExecutions returns stored executions, newest first.
func (o *Orchestrator) ListExecutions(ctx context.Context, filter store.ExecutionFilter) ([]*workflow.Execution, error) {
	execs, err := o.store.ListExecutions(ctx, filter)
	if err != nil {
		return nil, types.WrapError(err, types.ErrInternalError, "failed to list executions")
	}
	return execs, nil
}

// =============================================================================
// 直接调用
// =============================================================================

// InvokeAgent submits a capability call through the invocation manager and
// returns its id without waiting.
func (o *Orchestrator) InvokeAgent(ctx context.Context, agentID, capability string, params map[string]any) (string, error) {
	if o.closed.Load() {
		return "", types.NewError(types.ErrServiceUnavailable, "orchestrator is closed")
	}
	return o.invoker.Submit(ctx, agentID, capability, params)
}

// GetInvocation returns an invocation snapshot.
func (o *Orchestrator) GetInvocation(id string) (*invocation.Invocation, error) {
	return o.manager.GetStatus(id)
}

// WaitInvocation waits for an invocation; see invocation.Manager.Wait.
func (o *Orchestrator) WaitInvocation(ctx context.Context, id string, timeout time.Duration) (*invocation.Invocation, error) {
	inv, err := o.manager.Wait(ctx, id, timeout)
	if inv != nil && o.instruments != nil {
		o.instruments.RecordInvocation(ctx, inv.TargetID, string(inv.Status))
	}
	return inv, err
}

// CancelInvocation cancels a pending or running invocation.
func (o *Orchestrator) CancelInvocation(id string) bool {
	return o.manager.Cancel(id)
}

// InvocationStats returns the invocation manager counters.
func (o *Orchestrator) InvocationStats() invocation.Stats {
	return o.manager.Stats()
}

// =============================================================================
// 事件与生命周期
// =============================================================================

// Hooks returns the hook registry for additional handlers.
func (o *Orchestrator) Hooks() *hooks.Registry {
	return o.hookRegistry
}

// AuditLog returns the recorded lifecycle events, oldest first.
func (o *Orchestrator) AuditLog() []hooks.Event {
	return o.audit.Entries()
}

// DroppedEvents returns how many events the hook bus dropped.
func (o *Orchestrator) DroppedEvents() int64 {
	return o.bus.Dropped()
}

// Ping checks the record store.
func (o *Orchestrator) Ping(ctx context.Context) error {
	return o.store.Ping(ctx)
}

// Close cancels running executions and waits for their records to be
// written, then stops the invocation manager, drains the hook bus and closes
// the store. Later calls are no-ops.
func (o *Orchestrator) Close(ctx context.Context) error {
	if !o.closed.CompareAndSwap(false, true) {
		return nil
	}

	o.mu.Lock()
	for _, lr := range o.live {
		lr.run.Cancel()
	}
	o.mu.Unlock()

	var errs []error
	drained := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for executions: %w", ctx.Err()))
	}

	if err := o.manager.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close invocation manager: %w", err))
	}
	if err := o.bus.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close hook bus: %w", err))
	}
	if err := o.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if o.ownRedis {
		if err := o.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	o.logger.Info("orchestrator closed")
	return errors.Join(errs...)
}
