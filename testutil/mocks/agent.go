// ScriptedAgent 是 agent.Agent 的测试模拟实现。
//
// 支持按能力预置结果、错误注入、延迟与调用记录。
package mocks

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/BaSui01/flowengine/agent"
)

// --- ScriptedAgent 结构 ---

// Call 记录单次能力调用
type Call struct {
	Capability string
	Params     map[string]any
	At         time.Time
}

type script struct {
	result any
	err    error
	failed string
	delay  time.Duration
	fn     agent.CapabilityFunc
}

// ScriptedAgent 按预置脚本响应能力调用
type ScriptedAgent struct {
	id string

	mu      sync.Mutex
	scripts map[string]*script
	calls   []Call
	running int
	peak    int
}

var _ agent.Agent = (*ScriptedAgent)(nil)

// --- 构造函数和 Builder 方法 ---

// NewScriptedAgent 创建没有任何能力的模拟 Agent
func NewScriptedAgent(id string) *ScriptedAgent {
	return &ScriptedAgent{id: id, scripts: make(map[string]*script)}
}

func (a *ScriptedAgent) entry(capability string) *script {
	s, ok := a.scripts[capability]
	if !ok {
		s = &script{}
		a.scripts[capability] = s
	}
	return s
}

// WithResult 能力成功返回 result
func (a *ScriptedAgent) WithResult(capability string, result any) *ScriptedAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entry(capability).result = result
	return a
}

// WithError 能力调用返回 err
func (a *ScriptedAgent) WithError(capability string, err error) *ScriptedAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entry(capability).err = err
	return a
}

// WithFailure 能力返回 success=false 的结果
func (a *ScriptedAgent) WithFailure(capability, message string) *ScriptedAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entry(capability).failed = message
	return a
}

// WithDelay 能力在响应前等待 d，期间响应上下文取消
func (a *ScriptedAgent) WithDelay(capability string, d time.Duration) *ScriptedAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entry(capability).delay = d
	return a
}

// WithFunc 由 fn 计算能力结果，优先于 WithResult
func (a *ScriptedAgent) WithFunc(capability string, fn agent.CapabilityFunc) *ScriptedAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entry(capability).fn = fn
	return a
}

// --- agent.Agent 实现 ---

// ID implements agent.Agent.
func (a *ScriptedAgent) ID() string { return a.id }

// Capabilities implements agent.Agent.
func (a *ScriptedAgent) Capabilities() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := slices.Collect(maps.Keys(a.scripts))
	slices.Sort(names)
	return names
}

// Execute implements agent.Agent.
func (a *ScriptedAgent) Execute(ctx context.Context, capability string, params map[string]any) (*agent.Result, error) {
	a.mu.Lock()
	a.calls = append(a.calls, Call{Capability: capability, Params: maps.Clone(params), At: time.Now()})
	s, ok := a.scripts[capability]
	var sc script
	if ok {
		sc = *s
	}
	a.running++
	a.peak = max(a.peak, a.running)
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running--
		a.mu.Unlock()
	}()

	if !ok {
		return &agent.Result{Success: false, Error: "unknown capability " + capability}, nil
	}

	start := time.Now()
	if sc.delay > 0 {
		timer := time.NewTimer(sc.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if sc.err != nil {
		return nil, sc.err
	}
	if sc.failed != "" {
		return &agent.Result{Success: false, Error: sc.failed}, nil
	}

	data := sc.result
	if sc.fn != nil {
		var err error
		data, err = sc.fn(ctx, params)
		if err != nil {
			return &agent.Result{Success: false, Error: err.Error()}, nil
		}
	}
	return &agent.Result{
		Success:  true,
		Data:     data,
		Metadata: agent.Metadata{Duration: time.Since(start)},
	}, nil
}

// --- 调用记录 ---

// Calls 返回调用记录副本
func (a *ScriptedAgent) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.calls)
}

// CallCount 返回某能力的调用次数
func (a *ScriptedAgent) CallCount(capability string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		if c.Capability == capability {
			n++
		}
	}
	return n
}

// PeakConcurrency 返回同时执行的最大调用数
func (a *ScriptedAgent) PeakConcurrency() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peak
}
