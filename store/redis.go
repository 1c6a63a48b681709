package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/workflow"
)

// DefaultKeyPrefix namespaces every key the redis store writes.
const DefaultKeyPrefix = "flowengine:"

// RedisStore keeps records as JSON strings with sorted-set indexes:
// workflows by creation time, executions by start time (globally, per
// workflow and per status).
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ownClient bool
	logger    *zap.Logger
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.keyPrefix = prefix }
}

// WithOwnedClient makes Close also close the client.
func WithOwnedClient() RedisOption {
	return func(s *RedisStore) { s.ownClient = true }
}

// NewRedisStore wraps client.
func NewRedisStore(client redis.UniversalClient, logger *zap.Logger, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis store requires a client")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RedisStore{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
		logger:    logger.With(zap.String("component", "store"), zap.String("backend", string(TypeRedis))),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisStore) workflowKey(id string) string  { return s.keyPrefix + "workflow:" + id }
func (s *RedisStore) workflowsKey() string          { return s.keyPrefix + "workflows" }
func (s *RedisStore) executionKey(id string) string { return s.keyPrefix + "execution:" + id }
func (s *RedisStore) executionsKey() string         { return s.keyPrefix + "executions" }

func (s *RedisStore) workflowExecutionsKey(workflowID string) string {
	return s.keyPrefix + "executions:workflow:" + workflowID
}

func (s *RedisStore) statusKey(status workflow.ExecutionStatus) string {
	return s.keyPrefix + "executions:status:" + string(status)
}

func (s *RedisStore) SaveWorkflow(ctx context.Context, def *workflow.Definition) error {
	c, err := stampDefinition(def)
	if err != nil {
		return err
	}
	if def.CreatedAt.IsZero() {
		prev, err := s.GetWorkflow(ctx, c.ID)
		switch {
		case err == nil:
			c.CreatedAt = prev.CreatedAt
		case !errors.Is(err, ErrNotFound):
			return err
		}
	}

	data, err := encodeWorkflow(c)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.workflowKey(c.ID), data, 0)
	pipe.ZAdd(ctx, s.workflowsKey(), redis.Z{Score: float64(c.CreatedAt.UnixNano()), Member: c.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", c.ID, err)
	}
	return nil
}

func (s *RedisStore) GetWorkflow(ctx context.Context, id string) (*workflow.Definition, error) {
	data, err := s.client.Get(ctx, s.workflowKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow %s: %w", id, err)
	}
	return decodeWorkflow(data)
}

func (s *RedisStore) ListWorkflows(ctx context.Context) ([]*workflow.Definition, error) {
	ids, err := s.client.ZRange(ctx, s.workflowsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.workflowKey(id)
	}
	values, err := s.mget(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	out := make([]*workflow.Definition, 0, len(values))
	for _, v := range values {
		def, err := decodeWorkflow(v)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	sortDefinitions(out)
	return out, nil
}

func (s *RedisStore) DeleteWorkflow(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.workflowKey(id))
	pipe.ZRem(ctx, s.workflowsKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) SaveExecution(ctx context.Context, exec *workflow.Execution) error {
	if err := checkExecution(exec); err != nil {
		return err
	}

	// Old status index entry is removed when the status moved on.
	prev, err := s.GetExecution(ctx, exec.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	data, err := encodeExecution(exec)
	if err != nil {
		return err
	}
	score := float64(exec.StartTime.UnixNano())

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.executionKey(exec.ID), data, 0)
	if prev != nil && prev.Status != exec.Status {
		pipe.ZRem(ctx, s.statusKey(prev.Status), exec.ID)
	}
	pipe.ZAdd(ctx, s.statusKey(exec.Status), redis.Z{Score: score, Member: exec.ID})
	pipe.ZAdd(ctx, s.executionsKey(), redis.Z{Score: score, Member: exec.ID})
	pipe.ZAdd(ctx, s.workflowExecutionsKey(exec.WorkflowID), redis.Z{Score: score, Member: exec.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save execution %s: %w", exec.ID, err)
	}
	return nil
}

func (s *RedisStore) GetExecution(ctx context.Context, id string) (*workflow.Execution, error) {
	data, err := s.client.Get(ctx, s.executionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution %s: %w", id, err)
	}
	return decodeExecution(data)
}

func (s *RedisStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*workflow.Execution, error) {
	// Pick the narrowest index; the remaining criteria are applied after load.
	index := s.executionsKey()
	switch {
	case filter.Status != "":
		index = s.statusKey(filter.Status)
	case filter.WorkflowID != "":
		index = s.workflowExecutionsKey(filter.WorkflowID)
	}

	ids, err := s.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.executionKey(id)
	}
	values, err := s.mget(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	all := make([]*workflow.Execution, 0, len(values))
	for _, v := range values {
		exec, err := decodeExecution(v)
		if err != nil {
			return nil, err
		}
		all = append(all, exec)
	}
	return filter.apply(all), nil
}

// mget loads keys in one round trip, skipping keys that vanished after the
// index was read.
func (s *RedisStore) mget(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	raw, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(raw))
	for i, v := range raw {
		str, ok := v.(string)
		if !ok {
			s.logger.Debug("index entry without record", zap.String("key", keys[i]))
			continue
		}
		out = append(out, []byte(str))
	}
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}
