package agent

import (
	"context"
	"slices"
	"time"
)

// Agent executes named capabilities. Implementations live outside the engine;
// it only needs this contract.
type Agent interface {
	ID() string
	Capabilities() []string
	Execute(ctx context.Context, capability string, params map[string]any) (*Result, error)
}

// Result is what an agent returns for one capability call. Success=false is a
// failure even when Execute returns a nil error.
type Result struct {
	Success  bool     `json:"success"`
	Data     any      `json:"data,omitempty"`
	Error    string   `json:"error,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// Metadata describes the cost of a call.
type Metadata struct {
	Duration      time.Duration  `json:"duration"`
	ResourceUsage map[string]any `json:"resourceUsage,omitempty"`
}

// CapabilityFunc implements one capability of a FuncAgent.
type CapabilityFunc func(ctx context.Context, params map[string]any) (any, error)

// FuncAgent is an Agent built from plain functions.
type FuncAgent struct {
	id    string
	funcs map[string]CapabilityFunc
	names []string
}

// NewFuncAgent creates an agent exposing the given capabilities.
func NewFuncAgent(id string, capabilities map[string]CapabilityFunc) *FuncAgent {
	a := &FuncAgent{id: id, funcs: make(map[string]CapabilityFunc, len(capabilities))}
	for name, fn := range capabilities {
		a.funcs[name] = fn
		a.names = append(a.names, name)
	}
	slices.Sort(a.names)
	return a
}

// ID implements Agent.
func (a *FuncAgent) ID() string { return a.id }

// Capabilities implements Agent.
func (a *FuncAgent) Capabilities() []string { return slices.Clone(a.names) }

// Execute implements Agent. An unknown capability is reported as an
// unsuccessful result.
func (a *FuncAgent) Execute(ctx context.Context, capability string, params map[string]any) (*Result, error) {
	fn, ok := a.funcs[capability]
	if !ok {
		return &Result{Success: false, Error: "unknown capability " + capability}, nil
	}

	start := time.Now()
	data, err := fn(ctx, params)
	res := &Result{Success: err == nil, Data: data, Metadata: Metadata{Duration: time.Since(start)}}
	if err != nil {
		res.Error = err.Error()
	}
	return res, nil
}
