package store

import (
	"context"
	"sync"

	"github.com/BaSui01/flowengine/workflow"
)

// MemoryStore keeps records in process memory. Records are copied on the
// way in and out.
type MemoryStore struct {
	mu         sync.RWMutex
	workflows  map[string]*workflow.Definition
	executions map[string]*workflow.Execution
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:  make(map[string]*workflow.Definition),
		executions: make(map[string]*workflow.Execution),
	}
}

func (s *MemoryStore) SaveWorkflow(_ context.Context, def *workflow.Definition) error {
	c, err := stampDefinition(def)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.workflows[c.ID]; ok && def.CreatedAt.IsZero() {
		c.CreatedAt = prev.CreatedAt
	}
	s.workflows[c.ID] = c
	return nil
}

func (s *MemoryStore) GetWorkflow(_ context.Context, id string) (*workflow.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return def.Clone(), nil
}

func (s *MemoryStore) ListWorkflows(_ context.Context) ([]*workflow.Definition, error) {
	s.mu.RLock()
	out := make([]*workflow.Definition, 0, len(s.workflows))
	for _, def := range s.workflows {
		out = append(out, def.Clone())
	}
	s.mu.RUnlock()
	sortDefinitions(out)
	return out, nil
}

func (s *MemoryStore) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return ErrNotFound
	}
	delete(s.workflows, id)
	return nil
}

func (s *MemoryStore) SaveExecution(_ context.Context, exec *workflow.Execution) error {
	if err := checkExecution(exec); err != nil {
		return err
	}
	c := exec.Clone()
	s.mu.Lock()
	s.executions[c.ID] = c
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetExecution(_ context.Context, id string) (*workflow.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return exec.Clone(), nil
}

func (s *MemoryStore) ListExecutions(_ context.Context, filter ExecutionFilter) ([]*workflow.Execution, error) {
	s.mu.RLock()
	all := make([]*workflow.Execution, 0, len(s.executions))
	for _, exec := range s.executions {
		if filter.matches(exec) {
			all = append(all, exec.Clone())
		}
	}
	s.mu.RUnlock()
	return filter.apply(all), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
