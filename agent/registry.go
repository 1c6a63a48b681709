package agent

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/types"
)

// Registry holds the agents the engine may invoke, keyed by id.
type Registry struct {
	mu        sync.RWMutex
	agents    map[string]Agent
	listeners []func(agentID string)
	logger    *zap.Logger
}

// NewRegistry creates an empty agent registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		agents: make(map[string]Agent),
		logger: logger.With(zap.String("component", "agent_registry")),
	}
}

// Register adds an agent or replaces the one with the same id.
func (r *Registry) Register(a Agent) error {
	if a == nil || a.ID() == "" {
		return types.NewError(types.ErrInvalidRequest, "agent id is required")
	}

	r.mu.Lock()
	_, replaced := r.agents[a.ID()]
	r.agents[a.ID()] = a
	listeners := append([]func(string){}, r.listeners...)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(a.ID())
	}
	r.logger.Info("agent registered",
		zap.String("agent_id", a.ID()),
		zap.Strings("capabilities", a.Capabilities()),
		zap.Bool("replaced", replaced))
	return nil
}

// Unregister removes an agent. It reports whether the agent existed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	_, ok := r.agents[id]
	delete(r.agents, id)
	listeners := append([]func(string){}, r.listeners...)
	r.mu.Unlock()

	if ok {
		for _, fn := range listeners {
			fn(id)
		}
		r.logger.Info("agent unregistered", zap.String("agent_id", id))
	}
	return ok
}

// Get returns the agent with the given id.
func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// List returns every agent ordered by id.
func (r *Registry) List() []Agent {
	r.mu.RLock()
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// OnChange registers fn to be called after an agent is registered, replaced
// or removed.
func (r *Registry) OnChange(fn func(agentID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}
