package nodetype

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/types"
)

// Registry is the catalogue of node types known to the engine. It is safe for
// concurrent use; registration normally happens before any execution starts.
type Registry struct {
	types  map[string]*Description
	order  []string
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		types:  make(map[string]*Description),
		logger: logger.With(zap.String("component", "node_type_registry")),
	}
}

// Register adds a node type. It fails with INVALID_DESCRIPTION for malformed
// descriptions and DUPLICATE_TYPE when the type key is already taken; the
// existing entry is left untouched in both cases.
func (r *Registry) Register(desc Description) error {
	if err := desc.Validate(); err != nil {
		return types.NewError(types.ErrInvalidDescription, "invalid node type description").
			WithCause(err).
			WithDetail("type", desc.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[desc.Type]; exists {
		return types.Errorf(types.ErrDuplicateType, "node type %q already registered", desc.Type).
			WithDetail("type", desc.Type)
	}

	r.types[desc.Type] = desc.Clone()
	r.order = append(r.order, desc.Type)

	r.logger.Debug("node type registered",
		zap.String("type", desc.Type),
		zap.Int("version", desc.Version),
		zap.String("group", desc.Group))
	return nil
}

// Get returns a copy of the description registered under typ.
func (r *Registry) Get(typ string) (*Description, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.types[typ]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// GetAll returns every registered description in registration order.
func (r *Registry) GetAll() []*Description {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Description, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.types[t].Clone())
	}
	return out
}

// GetByGroup returns the descriptions tagged with group, in registration order.
func (r *Registry) GetByGroup(group string) []*Description {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Description
	for _, t := range r.order {
		if d := r.types[t]; d.Group == group {
			out = append(out, d.Clone())
		}
	}
	return out
}

// GetGroups returns the distinct groups in order of first registration.
func (r *Registry) GetGroups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var groups []string
	for _, t := range r.order {
		g := r.types[t].Group
		if !seen[g] {
			seen[g] = true
			groups = append(groups, g)
		}
	}
	return groups
}

// Search returns descriptions whose name, description or type contains text,
// compared case-insensitively.
func (r *Registry) Search(text string) []*Description {
	needle := strings.ToLower(text)

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Description
	for _, t := range r.order {
		d := r.types[t]
		if strings.Contains(strings.ToLower(d.Name), needle) ||
			strings.Contains(strings.ToLower(d.Description), needle) ||
			strings.Contains(strings.ToLower(d.Type), needle) {
			out = append(out, d.Clone())
		}
	}
	return out
}

// GetVersion returns the registered version of typ.
func (r *Registry) GetVersion(typ string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.types[typ]
	if !ok {
		return 0, false
	}
	return d.Version, true
}

// IsVersionCompatible reports whether the registered version of typ is at
// least version. Unknown types are never compatible.
func (r *Registry) IsVersionCompatible(typ string, version int) bool {
	v, ok := r.GetVersion(typ)
	return ok && v >= version
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Clear removes every registered type.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = make(map[string]*Description)
	r.order = nil
}
