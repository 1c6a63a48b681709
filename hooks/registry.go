package hooks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Sentinel errors for the hook registry.
var (
	ErrHookAlreadyRegistered = errors.New("hook already registered")
	ErrHookNotFound          = errors.New("hook not found")
)

// Handler reacts to an event. Returned errors are logged and never reach the
// emitter.
type Handler func(ctx context.Context, e Event) error

type entry struct {
	name     string
	action   string
	priority int
	handler  Handler
}

// Registry is an explicit table of named hook handlers. Handlers for an
// action run by descending priority, then by name.
type Registry struct {
	entries map[string]*entry
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger.With(zap.String("component", "hook_registry")),
	}
}

// Register adds a handler under a unique name. action may be ActionAll.
func (r *Registry) Register(name, action string, priority int, h Handler) error {
	if name == "" {
		return fmt.Errorf("hook name must not be empty")
	}
	if action == "" {
		return fmt.Errorf("hook %s: action must not be empty", name)
	}
	if h == nil {
		return fmt.Errorf("hook %s: handler must not be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrHookAlreadyRegistered, name)
	}
	r.entries[name] = &entry{name: name, action: action, priority: priority, handler: h}
	r.logger.Debug("hook registered",
		zap.String("name", name),
		zap.String("action", action),
		zap.Int("priority", priority))
	return nil
}

// Unregister removes a handler.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; !exists {
		return fmt.Errorf("%w: %s", ErrHookNotFound, name)
	}
	delete(r.entries, name)
	return nil
}

// Handlers returns the names of the handlers that would receive action, in
// dispatch order.
func (r *Registry) Handlers(action string) []string {
	matched := r.match(action)
	names := make([]string, len(matched))
	for i, e := range matched {
		names[i] = e.name
	}
	return names
}

func (r *Registry) match(action string) []*entry {
	r.mu.RLock()
	var out []*entry
	for _, e := range r.entries {
		if e.action == action || e.action == ActionAll {
			out = append(out, e)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority > out[j].priority
		}
		return out[i].name < out[j].name
	})
	return out
}

// Dispatch delivers e to every matching handler synchronously. Panics and
// errors are logged; dispatch always continues with the next handler.
func (r *Registry) Dispatch(ctx context.Context, e Event) {
	for _, h := range r.match(e.Action) {
		r.invoke(ctx, h, e)
	}
}

func (r *Registry) invoke(ctx context.Context, h *entry, e Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("hook panicked",
				zap.String("hook", h.name),
				zap.String("action", e.Action),
				zap.Any("panic", rec))
		}
	}()
	if err := h.handler(ctx, e); err != nil {
		r.logger.Warn("hook failed",
			zap.String("hook", h.name),
			zap.String("action", e.Action),
			zap.Error(err))
	}
}
