package hooks

import (
	"context"
	"slices"
	"sync"
)

// AuditLog keeps the most recent events in memory.
type AuditLog struct {
	mu      sync.RWMutex
	entries []Event
	limit   int
}

// NewAuditLog creates an audit log holding at most limit entries; limit <= 0
// means unbounded.
func NewAuditLog(limit int) *AuditLog {
	return &AuditLog{limit: limit}
}

// Handle records e. It satisfies Handler.
func (a *AuditLog) Handle(_ context.Context, e Event) error {
	a.Append(e)
	return nil
}

// Append records e.
func (a *AuditLog) Append(e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	if a.limit > 0 && len(a.entries) > a.limit {
		a.entries = slices.Delete(a.entries, 0, len(a.entries)-a.limit)
	}
}

// Entries returns a copy of the recorded events, oldest first.
func (a *AuditLog) Entries() []Event {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.entries)
}

// Filter returns the recorded events with the given action.
func (a *AuditLog) Filter(action string) []Event {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []Event
	for _, e := range a.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of recorded events.
func (a *AuditLog) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}
