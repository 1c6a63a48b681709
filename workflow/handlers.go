package workflow

import (
	"context"
	"fmt"
	"maps"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/flowengine/types"
	"github.com/BaSui01/flowengine/workflow/expr"
	"github.com/BaSui01/flowengine/workflow/nodetype"
)

// TaskInvoker runs one agent capability through the invocation manager.
// timeout bounds the wait for the result.
type TaskInvoker interface {
	InvokeTask(ctx context.Context, agentID, capability string, params map[string]any, timeout time.Duration) (any, error)
}

// TaskInvokerFunc adapts a function to TaskInvoker.
type TaskInvokerFunc func(ctx context.Context, agentID, capability string, params map[string]any, timeout time.Duration) (any, error)

// InvokeTask implements TaskInvoker.
func (f TaskInvokerFunc) InvokeTask(ctx context.Context, agentID, capability string, params map[string]any, timeout time.Duration) (any, error) {
	return f(ctx, agentID, capability, params, timeout)
}

func triggerHandler(_ context.Context, nc *NodeContext) (NodeOutput, error) {
	return NodeOutput{Data: nc.Input, Port: nodetype.PortSuccess}, nil
}

// conditionHandler routes its input to the true or false port.
type conditionHandler struct {
	evaluator expr.Evaluator
}

func (h *conditionHandler) Handle(_ context.Context, nc *NodeContext) (NodeOutput, error) {
	expression, err := stringParam(nc.Node, "expression")
	if err != nil {
		return NodeOutput{}, err
	}

	scope := maps.Clone(nc.Variables)
	if scope == nil {
		scope = make(map[string]any, 2)
	}
	scope["input"] = nc.Input
	scope["nodes"] = nc.Nodes

	ok, err := h.evaluator.Evaluate(expression, scope)
	if err != nil {
		return NodeOutput{}, err
	}
	port := nodetype.PortFalse
	if ok {
		port = nodetype.PortTrue
	}
	return NodeOutput{Data: nc.Input, Port: port}, nil
}

// taskSpec is one agent call: a task node or an entry of a parallel node.
type taskSpec struct {
	AgentID    string
	Capability string
	Params     map[string]any
	Timeout    time.Duration
}

func (s taskSpec) invoke(ctx context.Context, inv TaskInvoker, input any) (any, error) {
	params := maps.Clone(s.Params)
	if params == nil {
		params = make(map[string]any, 1)
	}
	if _, set := params["input"]; !set {
		params["input"] = input
	}
	return inv.InvokeTask(ctx, s.AgentID, s.Capability, params, s.Timeout)
}

func parseTaskSpec(raw map[string]any, fallback time.Duration) (taskSpec, error) {
	spec := taskSpec{Timeout: fallback}
	var ok bool
	if spec.AgentID, ok = raw["agentId"].(string); !ok || spec.AgentID == "" {
		return spec, types.NewError(types.ErrMissingParameter, "agentId is required")
	}
	if spec.Capability, ok = raw["capability"].(string); !ok || spec.Capability == "" {
		return spec, types.NewError(types.ErrMissingParameter, "capability is required")
	}
	if p, present := raw["params"]; present && p != nil {
		m, isMap := p.(map[string]any)
		if !isMap {
			return spec, types.Errorf(types.ErrTypeMismatch, "params must be an object, got %T", p)
		}
		spec.Params = m
	}
	if t, present := raw["timeout"]; present && t != nil {
		ms, isNum := toFloat(t)
		if !isNum {
			return spec, types.Errorf(types.ErrTypeMismatch, "timeout must be a number of milliseconds, got %T", t)
		}
		if ms > 0 {
			spec.Timeout = time.Duration(ms * float64(time.Millisecond))
		}
	}
	return spec, nil
}

// taskHandler invokes the node's bound agent capability. A map result is
// also merged into the execution variables.
type taskHandler struct {
	invoker TaskInvoker
	timeout time.Duration
}

func (h *taskHandler) Handle(ctx context.Context, nc *NodeContext) (NodeOutput, error) {
	spec, err := parseTaskSpec(nc.Node.Parameters, h.timeout)
	if err != nil {
		return NodeOutput{}, err
	}
	result, err := spec.invoke(ctx, h.invoker, nc.Input)
	if err != nil {
		return NodeOutput{}, err
	}
	out := NodeOutput{Data: result, Port: nodetype.PortSuccess}
	if m, ok := result.(map[string]any); ok {
		out.Variables = m
	}
	return out, nil
}

// parallelHandler fans out its tasks concurrently. The output lists results
// in declaration order whatever order they finish in.
type parallelHandler struct {
	invoker TaskInvoker
	timeout time.Duration
}

func (h *parallelHandler) Handle(ctx context.Context, nc *NodeContext) (NodeOutput, error) {
	specs, err := h.parseTasks(nc.Node)
	if err != nil {
		return NodeOutput{}, err
	}

	results := make([]any, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		g.Go(func() error {
			res, err := spec.invoke(gctx, h.invoker, nc.Input)
			if err != nil {
				return fmt.Errorf("task %d (%s.%s): %w", i, spec.AgentID, spec.Capability, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return NodeOutput{}, err
	}
	return NodeOutput{Data: results, Port: nodetype.PortSuccess}, nil
}

func (h *parallelHandler) parseTasks(n *Node) ([]taskSpec, error) {
	raw, ok := n.Parameters["tasks"]
	if !ok || raw == nil {
		return nil, types.NewError(types.ErrMissingParameter, "tasks is required")
	}

	var entries []map[string]any
	switch v := raw.(type) {
	case []map[string]any:
		entries = v
	case []any:
		entries = make([]map[string]any, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, types.Errorf(types.ErrTypeMismatch, "tasks[%d] must be an object, got %T", i, item)
			}
			entries = append(entries, m)
		}
	default:
		return nil, types.Errorf(types.ErrTypeMismatch, "tasks must be an array, got %T", raw)
	}

	timeout := h.timeout
	if t, present := n.Parameters["timeout"]; present && t != nil {
		if ms, ok := toFloat(t); ok && ms > 0 {
			timeout = time.Duration(ms * float64(time.Millisecond))
		}
	}

	specs := make([]taskSpec, 0, len(entries))
	for i, m := range entries {
		spec, err := parseTaskSpec(m, timeout)
		if err != nil {
			return nil, fmt.Errorf("tasks[%d]: %w", i, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func stringParam(n *Node, name string) (string, error) {
	v, ok := n.Parameters[name]
	if !ok || v == nil {
		return "", types.Errorf(types.ErrMissingParameter, "parameter %q is required", name).WithNode(n.ID)
	}
	s, ok := v.(string)
	if !ok {
		return "", types.Errorf(types.ErrTypeMismatch, "parameter %q must be a string, got %T", name, v).WithNode(n.ID)
	}
	return s, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
