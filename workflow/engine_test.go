package workflow

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

	"github.com/BaSui01/flowengine/hooks"
	"github.com/BaSui01/flowengine/types"
	"github.com/BaSui01/flowengine/workflow/nodetype"
)

// scriptedInvoker answers by capability: "fail" errors, "echo" returns the
// params, anything else returns the capability name.
type scriptedInvoker struct {
	mu    sync.Mutex
	calls []string
}

func (s *scriptedInvoker) InvokeTask(ctx context.Context, agentID, capability string, params map[string]any, _ time.Duration) (any, error) {
	s.mu.Lock()
	s.calls = append(s.calls, capability)
	s.mu.Unlock()

	switch capability {
	case "fail":
		return nil, errors.New("capability failed")
	case "echo":
		return params, nil
	case "score":
		return map[string]any{"score": 5}, nil
	default:
		return capability, nil
	}
}

func (s *scriptedInvoker) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type eventLog struct {
	mu     sync.Mutex
	events []hooks.Event
}

func (l *eventLog) Emit(e hooks.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) Actions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Action)
	}
	return out
}

func validated(t *testing.T, cat TypeCatalog, nodes []Node, conns ...Connection) *Graph {
	t.Helper()
	g := newTestGraph(t, nodes, conns...)
	_, err := Validate(g, cat)
	require.NoError(t, err)
	return g
}

func passHandler(counter *sync.Map) NodeHandler {
	return HandlerFunc(func(_ context.Context, nc *NodeContext) (NodeOutput, error) {
		if counter != nil {
			v, _ := counter.LoadOrStore(nc.Node.ID, new(int))
			*(v.(*int))++
		}
		return NodeOutput{Data: nc.Input}, nil
	})
}

func TestEngine_FailFast(t *testing.T) {
	t.Parallel()
	cat := newTestCatalog(t)
	inv := &scriptedInvoker{}
	engine := NewEngine(cat, zap.NewNop(), WithTaskInvoker(inv))

	g := validated(t, cat,
		[]Node{taskNode("Start", "ok"), taskNode("A", "fail"), taskNode("B", "ok")},
		conn("Start", "success", "A", "main"),
		conn("A", "success", "B", "main"),
	)

	exec, err := engine.Execute(context.Background(), g, "in", nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrNodeExecutionFailed))

	require.NotNil(t, exec)
	assert.Equal(t, ExecutionFailed, exec.Status)
	assert.Equal(t, NodeCompleted, exec.NodeResults["Start"].Status)
	assert.Equal(t, NodeFailed, exec.NodeResults["A"].Status)
	assert.NotContains(t, exec.NodeResults, "B")
	assert.Equal(t, []string{"ok", "fail"}, inv.Calls())

	require.NotNil(t, exec.Error)
	assert.Equal(t, "A", exec.Error.NodeID)
	assert.Equal(t, types.ErrNodeExecutionFailed, exec.Error.Code)
	assert.Equal(t, "capability failed", exec.Error.Message)
	assert.NotNil(t, exec.EndTime)
}

func TestEngine_TaskParamsAndVariables(t *testing.T) {
	t.Parallel()
	cat := newTestCatalog(t)
	inv := &scriptedInvoker{}
	engine := NewEngine(cat, nil, WithTaskInvoker(inv))

	echo := taskNode("echo", "echo")
	echo.Parameters["params"] = map[string]any{"mode": "loud"}
	g := validated(t, cat,
		[]Node{{ID: "trigger", Type: nodetype.TypeTrigger}, taskNode("score", "score"), {
			ID: "check", Type: nodetype.TypeCondition, Parameters: map[string]any{"expression": "score == 5 && env == 'test'"},
		}, echo},
		conn("trigger", "success", "score", "main"),
		conn("score", "success", "check", "main"),
		conn("check", "true", "echo", "main"),
	)

	exec, err := engine.Execute(context.Background(), g, "payload", map[string]any{"env": "test"})
	require.NoError(t, err)
	assert.Equal(t, ExecutionCompleted, exec.Status)
	assert.Equal(t, 5, exec.Variables["score"])
	assert.Equal(t, "test", exec.Variables["env"])

	out, ok := exec.Outputs["echo"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "loud", out["mode"])
	assert.Equal(t, map[string]any{"score": 5}, out["input"])
}

func TestEngine_ConditionBranching(t *testing.T) {
	t.Parallel()
	cat := newTestCatalog(t)
	engine := NewEngine(cat, nil, WithTaskInvoker(&scriptedInvoker{}))

	g := validated(t, cat,
		[]Node{
			{ID: "trigger", Type: nodetype.TypeTrigger},
			{ID: "cond", Type: nodetype.TypeCondition, Parameters: map[string]any{"expression": "input.amount > 100"}},
			taskNode("big", "big"),
			taskNode("small", "small"),
		},
		conn("trigger", "success", "cond", "main"),
		conn("cond", "true", "big", "main"),
		conn("cond", "false", "small", "main"),
	)

	exec, err := engine.Execute(context.Background(), g, map[string]any{"amount": 150}, nil)
	require.NoError(t, err)
	assert.Contains(t, exec.NodeResults, "big")
	assert.NotContains(t, exec.NodeResults, "small")
	assert.Equal(t, nodetype.PortTrue, exec.NodeResults["cond"].Port)

	exec, err = engine.Execute(context.Background(), g, map[string]any{"amount": 10}, nil)
	require.NoError(t, err)
	assert.Contains(t, exec.NodeResults, "small")
	assert.NotContains(t, exec.NodeResults, "big")
}

func TestEngine_ConditionExpressionError(t *testing.T) {
	t.Parallel()
	cat := newTestCatalog(t)
	engine := NewEngine(cat, nil)

	g := validated(t, cat,
		[]Node{
			{ID: "trigger", Type: nodetype.TypeTrigger},
			{ID: "cond", Type: nodetype.TypeCondition, Parameters: map[string]any{"expression": "a == "}},
		},
		conn("trigger", "success", "cond", "main"),
	)
	exec, err := engine.Execute(context.Background(), g, nil, nil)
	require.Error(t, err)
	assert.Equal(t, ExecutionFailed, exec.Status)
	assert.True(t, types.IsErrorCode(err, types.ErrNodeExecutionFailed))
	assert.True(t, types.IsErrorCode(errors.Unwrap(err), types.ErrInvalidExpression))
}

func TestEngine_ParallelOrderIsDeclarationOrder(t *testing.T) {
	t.Parallel()
	cat := newTestCatalog(t)

	// t3 finishes first, then t1, then t2.
	t3Done := make(chan struct{})
	t1Done := make(chan struct{})
	inv := TaskInvokerFunc(func(ctx context.Context, _, capability string, _ map[string]any, _ time.Duration) (any, error) {
		switch capability {
		case "t3":
			close(t3Done)
		case "t1":
			<-t3Done
			close(t1Done)
		case "t2":
			<-t1Done
		}
		return "result-" + capability, nil
	})
	engine := NewEngine(cat, nil, WithTaskInvoker(inv))

	g := validated(t, cat, []Node{{
		ID:   "fan",
		Type: nodetype.TypeParallel,
		Parameters: map[string]any{"tasks": []any{
			map[string]any{"agentId": "a", "capability": "t1"},
			map[string]any{"agentId": "a", "capability": "t2"},
			map[string]any{"agentId": "a", "capability": "t3"},
		}},
	}})

	exec, err := engine.Execute(context.Background(), g, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"result-t1", "result-t2", "result-t3"}, exec.NodeResults["fan"].Output)
}

func TestEngine_ParallelTaskFailure(t *testing.T) {
	t.Parallel()
	cat := newTestCatalog(t)
	engine := NewEngine(cat, nil, WithTaskInvoker(&scriptedInvoker{}))

	g := validated(t, cat, []Node{{
		ID:   "fan",
		Type: nodetype.TypeParallel,
		Parameters: map[string]any{"tasks": []any{
			map[string]any{"agentId": "a", "capability": "ok"},
			map[string]any{"agentId": "a", "capability": "fail"},
		}},
	}})

	exec, err := engine.Execute(context.Background(), g, nil, nil)
	require.Error(t, err)
	assert.Equal(t, NodeFailed, exec.NodeResults["fan"].Status)
	assert.Contains(t, exec.NodeResults["fan"].Error, "task 1")
}

// Whatever the completion order, parallel output follows declaration order.
func TestProperty_ParallelOutputOrder(t *testing.T) {
	cat := newTestCatalog(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	properties.Property("results are in declaration order", prop.ForAll(
		func(delays []int) bool {
			inv := TaskInvokerFunc(func(ctx context.Context, _, capability string, params map[string]any, _ time.Duration) (any, error) {
				d := time.Duration(params["delay"].(int)) * time.Millisecond
				select {
				case <-time.After(d):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				return capability, nil
			})
			engine := NewEngine(cat, nil, WithTaskInvoker(inv))

			tasks := make([]any, len(delays))
			want := make([]any, len(delays))
			for i, d := range delays {
				name := string(rune('a' + i))
				tasks[i] = map[string]any{"agentId": "x", "capability": name, "params": map[string]any{"delay": d}}
				want[i] = name
			}
			g := NewGraph("parallel")
			if err := g.AddNode(Node{ID: "fan", Type: nodetype.TypeParallel, Parameters: map[string]any{"tasks": tasks}}); err != nil {
				return false
			}
			if _, err := Validate(g, cat); err != nil {
				return false
			}

			exec, err := engine.Execute(context.Background(), g, nil, nil)
			if err != nil {
				t.Logf("execute failed: %v", err)
				return false
			}
			return assert.ObjectsAreEqual(want, exec.NodeResults["fan"].Output)
		},
		gen.SliceOfN(4, gen.IntRange(0, 5)),
	))

	properties.TestingRun(t)
}

func TestEngine_DiamondRunsJoinOnce(t *testing.T) {
	t.Parallel()
	cat := newTestCatalog(t)
	engine := NewEngine(cat, nil)
	counter := &sync.Map{}
	engine.RegisterHandler("pass", passHandler(counter))

	g := validated(t, cat,
		[]Node{{ID: "trigger", Type: nodetype.TypeTrigger}, {ID: "a", Type: "pass"}, {ID: "b", Type: "pass"}, {ID: "join", Type: "pass"}},
		conn("trigger", "success", "a", "main"),
		conn("trigger", "success", "b", "main"),
		conn("a", "main", "join", "main"),
		conn("b", "main", "join", "main"),
	)

	exec, err := engine.Execute(context.Background(), g, 1, nil)
	require.NoError(t, err)
	assert.Len(t, exec.NodeResults, 4)

	for _, id := range []string{"a", "b", "join"} {
		v, ok := counter.Load(id)
		require.True(t, ok, id)
		assert.Equal(t, 1, *(v.(*int)), id)
	}
	assert.Equal(t, map[string]any{"join": 1}, exec.Outputs)
}

func TestEngine_SiblingsRunConcurrently(t *testing.T) {
	t.Parallel()
	cat := newTestCatalog(t)
	engine := NewEngine(cat, nil)

	// Each branch waits for the other to start.
	var wg sync.WaitGroup
	wg.Add(2)
	engine.RegisterHandler("block", HandlerFunc(func(ctx context.Context, nc *NodeContext) (NodeOutput, error) {
		wg.Done()
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			return NodeOutput{Data: nc.Node.ID}, nil
		case <-time.After(2 * time.Second):
			return NodeOutput{}, errors.New("sibling never started")
		}
	}))

	g := validated(t, cat,
		[]Node{{ID: "trigger", Type: nodetype.TypeTrigger}, {ID: "left", Type: "block"}, {ID: "right", Type: "block"}},
		conn("trigger", "success", "left", "main"),
		conn("trigger", "success", "right", "main"),
	)

	exec, err := engine.Execute(context.Background(), g, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"left": "left", "right": "right"}, exec.Outputs)
}

func TestEngine_SiblingFailureCancelsOthers(t *testing.T) {
	t.Parallel()
	cat := newTestCatalog(t)
	engine := NewEngine(cat, nil, WithTaskInvoker(&scriptedInvoker{}))

	started := make(chan struct{})
	engine.RegisterHandler("block", HandlerFunc(func(ctx context.Context, _ *NodeContext) (NodeOutput, error) {
		close(started)
		<-ctx.Done()
		return NodeOutput{}, ctx.Err()
	}))
	engine.RegisterHandler("pass", HandlerFunc(func(ctx context.Context, nc *NodeContext) (NodeOutput, error) {
		<-started
		return NodeOutput{Data: nc.Input}, nil
	}))

	g := validated(t, cat,
		[]Node{{ID: "trigger", Type: nodetype.TypeTrigger}, {ID: "slow", Type: "block"}, {ID: "gate", Type: "pass"}, taskNode("boom", "fail")},
		conn("trigger", "success", "slow", "main"),
		conn("trigger", "success", "gate", "main"),
		conn("gate", "main", "boom", "main"),
	)

	exec, err := engine.Execute(context.Background(), g, nil, nil)
	require.Error(t, err)
	assert.Equal(t, ExecutionFailed, exec.Status)
	assert.Equal(t, "boom", exec.Error.NodeID)
	assert.Equal(t, NodeFailed, exec.NodeResults["boom"].Status)
	assert.Equal(t, NodeCancelled, exec.NodeResults["slow"].Status)
}

func TestEngine_DisabledNodeIsSkipped(t *testing.T) {
	t.Parallel()
	cat := newTestCatalog(t)
	inv := &scriptedInvoker{}
	engine := NewEngine(cat, nil, WithTaskInvoker(inv))

	disabled := taskNode("off", "never")
	disabled.Disabled = true
	g := validated(t, cat,
		[]Node{{ID: "trigger", Type: nodetype.TypeTrigger}, disabled, taskNode("after", "echo")},
		conn("trigger", "success", "off", "main"),
		conn("off", "success", "after", "main"),
	)

	exec, err := engine.Execute(context.Background(), g, "data", nil)
	require.NoError(t, err)
	assert.Equal(t, NodeSkipped, exec.NodeResults["off"].Status)
	assert.Equal(t, "data", exec.NodeResults["off"].Output)
	assert.Equal(t, NodeCompleted, exec.NodeResults["after"].Status)
	assert.Equal(t, []string{"echo"}, inv.Calls())
}

func TestEngine_StartAndCancel(t *testing.T) {
	t.Parallel()
	cat := newTestCatalog(t)
	engine := NewEngine(cat, nil)

	started := make(chan struct{})
	engine.RegisterHandler("block", HandlerFunc(func(ctx context.Context, _ *NodeContext) (NodeOutput, error) {
		close(started)
		<-ctx.Done()
		return NodeOutput{}, ctx.Err()
	}))

	g := validated(t, cat,
		[]Node{{ID: "trigger", Type: nodetype.TypeTrigger}, {ID: "wait", Type: "block"}},
		conn("trigger", "success", "wait", "main"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	run, err := engine.Start(ctx, g, nil, nil)
	require.NoError(t, err)
	cancel() // Start detaches from the caller context.

	<-started
	snap := run.Snapshot()
	assert.Equal(t, ExecutionRunning, snap.Status)
	assert.Equal(t, "wait", snap.CurrentNode)

	run.Cancel()
	exec, err := run.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExecutionCancelled, exec.Status)
	assert.Equal(t, NodeCancelled, exec.NodeResults["wait"].Status)
	assert.Equal(t, NodeCompleted, exec.NodeResults["trigger"].Status)
}

func TestEngine_ExecuteHonoursContext(t *testing.T) {
	t.Parallel()
	cat := newTestCatalog(t)
	engine := NewEngine(cat, nil)
	engine.RegisterHandler("block", HandlerFunc(func(ctx context.Context, _ *NodeContext) (NodeOutput, error) {
		<-ctx.Done()
		return NodeOutput{}, ctx.Err()
	}))

	g := validated(t, cat, []Node{{ID: "wait", Type: "block"}})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	exec, err := engine.Execute(ctx, g, nil, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, ExecutionCancelled, exec.Status)
}

func TestEngine_RejectsUnvalidatedGraph(t *testing.T) {
	t.Parallel()
	engine := NewEngine(newTestCatalog(t), nil)
	g := newTestGraph(t, []Node{{ID: "a", Type: "pass"}})

	_, err := engine.Execute(context.Background(), g, nil, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestEngine_NoHandler(t *testing.T) {
	t.Parallel()
	cat := newTestCatalog(t)
	engine := NewEngine(cat, nil) // no task invoker
	g := validated(t, cat, []Node{taskNode("t", "x")})

	_, err := engine.Execute(context.Background(), g, nil, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrNoHandler))
}

func TestEngine_UnknownPortFailsNode(t *testing.T) {
	t.Parallel()
	cat := newTestCatalog(t)
	engine := NewEngine(cat, nil)
	engine.RegisterHandler("pass", HandlerFunc(func(context.Context, *NodeContext) (NodeOutput, error) {
		return NodeOutput{Port: "sideways"}, nil
	}))

	g := validated(t, cat, []Node{{ID: "p", Type: "pass"}})
	exec, err := engine.Execute(context.Background(), g, nil, nil)
	require.Error(t, err)
	assert.Equal(t, NodeFailed, exec.NodeResults["p"].Status)
}

func TestEngine_EmitsLifecycleEvents(t *testing.T) {
	t.Parallel()
	cat := newTestCatalog(t)
	events := &eventLog{}
	engine := NewEngine(cat, nil, WithTaskInvoker(&scriptedInvoker{}), WithEmitter(events))

	g := validated(t, cat,
		[]Node{{ID: "trigger", Type: nodetype.TypeTrigger}, taskNode("t", "ok")},
		conn("trigger", "success", "t", "main"),
	)
	_, err := engine.Execute(context.Background(), g, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		hooks.ActionWorkflowExecutionStarted,
		hooks.ActionNodeStarted,
		hooks.ActionNodeCompleted,
		hooks.ActionNodeStarted,
		hooks.ActionNodeCompleted,
		hooks.ActionWorkflowExecutionCompleted,
	}, events.Actions())
}

type nodeRecorder struct {
	mu   sync.Mutex
	seen map[string]string
}

func (r *nodeRecorder) RecordNodeExecution(nodeType, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[nodeType] = status
}

func TestEngine_RecordsNodeMetrics(t *testing.T) {
	t.Parallel()
	cat := newTestCatalog(t)
	rec := &nodeRecorder{seen: make(map[string]string)}
	engine := NewEngine(cat, nil, WithTaskInvoker(&scriptedInvoker{}), WithRecorder(rec))

	g := validated(t, cat,
		[]Node{{ID: "trigger", Type: nodetype.TypeTrigger}, taskNode("t", "fail")},
		conn("trigger", "success", "t", "main"),
	)
	_, err := engine.Execute(context.Background(), g, nil, nil)
	require.Error(t, err)
	assert.Equal(t, map[string]string{"trigger": "completed", "task": "failed"}, rec.seen)
}

func TestEngine_ConcurrentExecutionsShareGraph(t *testing.T) {
	t.Parallel()
	cat := newTestCatalog(t)
	engine := NewEngine(cat, nil, WithTaskInvoker(&scriptedInvoker{}))
	g := validated(t, cat,
		[]Node{{ID: "trigger", Type: nodetype.TypeTrigger}, taskNode("t", "echo")},
		conn("trigger", "success", "t", "main"),
	)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			exec, err := engine.Execute(context.Background(), g, i, nil)
			if assert.NoError(t, err) {
				ids[i] = exec.ID
				out := exec.Outputs["t"].(map[string]any)
				assert.Equal(t, i, out["input"])
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}
}
