package hooks

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LogSink returns a handler that writes every event to logger at debug level.
func LogSink(logger *zap.Logger) Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "hook_log"))
	return func(_ context.Context, e Event) error {
		logger.Debug("lifecycle event",
			zap.String("action", e.Action),
			zap.Time("timestamp", e.Timestamp),
			zap.Any("details", e.Details))
		return nil
	}
}

// RedisStreamSink appends events to a Redis stream so other processes can
// consume them.
type RedisStreamSink struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisStreamSink creates a sink writing to stream, trimmed approximately
// to maxLen entries when maxLen > 0.
func NewRedisStreamSink(client redis.UniversalClient, stream string, maxLen int64) *RedisStreamSink {
	if stream == "" {
		stream = "flowengine:events"
	}
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

// Handle writes e to the stream. It satisfies Handler.
func (s *RedisStreamSink) Handle(ctx context.Context, e Event) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal event details: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"action":    e.Action,
			"timestamp": e.Timestamp.Format(time.RFC3339Nano),
			"details":   string(details),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// Stream returns the stream key.
func (s *RedisStreamSink) Stream() string { return s.stream }
