package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/invocation"
	"github.com/BaSui01/flowengine/types"
	"github.com/BaSui01/flowengine/workflow"
)

// Invoker runs agent capabilities for task and parallel nodes. Every call
// goes through the invocation manager so the global concurrency cap holds.
type Invoker struct {
	registry *Registry
	gate     Gate
	manager  *invocation.Manager
	logger   *zap.Logger
}

var _ workflow.TaskInvoker = (*Invoker)(nil)

// NewInvoker creates an invoker. A nil gate allows everything.
func NewInvoker(reg *Registry, gate Gate, mgr *invocation.Manager, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = AllowAll{}
	}
	return &Invoker{
		registry: reg,
		gate:     gate,
		manager:  mgr,
		logger:   logger.With(zap.String("component", "agent_invoker")),
	}
}

// Submit authorizes and admits a capability call and returns the invocation
// id without waiting.
func (i *Invoker) Submit(ctx context.Context, agentID, capability string, params map[string]any) (string, error) {
	a, ok := i.registry.Get(agentID)
	if !ok {
		return "", types.Errorf(types.ErrAgentNotFound, "agent %q not found", agentID).
			WithDetail("agentId", agentID)
	}
	if err := i.gate.Authorize(ctx, agentID, capability); err != nil {
		return "", err
	}
	return i.manager.Invoke(ctx, &CapabilityTarget{Agent: a, Capability: capability}, params)
}

// InvokeTask implements workflow.TaskInvoker. The invocation is cancelled if
// ctx ends first and its record is cleared once the call returns.
func (i *Invoker) InvokeTask(ctx context.Context, agentID, capability string, params map[string]any, timeout time.Duration) (any, error) {
	id, err := i.Submit(ctx, agentID, capability, params)
	if err != nil {
		return nil, err
	}
	defer i.manager.Clear(id)

	stop := context.AfterFunc(ctx, func() { i.manager.Cancel(id) })
	defer stop()

	inv, err := i.manager.Wait(ctx, id, timeout)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		i.logger.Debug("task invocation failed",
			zap.String("invocation_id", id),
			zap.String("agent_id", agentID),
			zap.String("capability", capability),
			zap.Error(err))
		return nil, err
	}
	return inv.Result, nil
}
