package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/config"
	"github.com/BaSui01/flowengine/internal/database"
)

// NewRedisClient builds a client from the store's redis settings and checks
// connectivity.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// New builds the backend selected by cfg.Type. Operation latencies are
// reported to rec when it is non-nil.
func New(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger, rec Recorder) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	typ := Type(cfg.Type)

	var (
		s   Store
		err error
	)
	switch typ {
	case TypeMemory, "":
		typ = TypeMemory
		s = NewMemoryStore()
	case TypeSQL:
		pool, perr := database.Open(cfg.SQL, logger)
		if perr != nil {
			return nil, perr
		}
		s, err = NewSQLStore(pool, cfg.AutoMigrate, logger)
		if err != nil {
			pool.Close()
		}
	case TypeRedis:
		client, cerr := NewRedisClient(ctx, cfg.Redis)
		if cerr != nil {
			return nil, cerr
		}
		prefix := cfg.Redis.KeyPrefix
		if prefix == "" {
			prefix = DefaultKeyPrefix
		}
		s, err = NewRedisStore(client, logger, WithKeyPrefix(prefix), WithOwnedClient())
	case TypeBadger:
		s, err = OpenBadgerStore(BadgerOptions{Dir: cfg.Badger.Dir, InMemory: cfg.Badger.InMemory}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown store type %q", ErrInvalidInput, cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("record store ready", zap.String("component", "store"), zap.String("backend", string(typ)))
	return Instrument(s, typ, rec), nil
}
