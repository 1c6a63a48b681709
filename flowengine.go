// Package flowengine is the top-level entry point for embedding the workflow
// engine.
//
// Usage:
//
//	import "github.com/BaSui01/flowengine"
//
//	eng, err := flowengine.New(ctx)
//	eng, err := flowengine.New(ctx, flowengine.WithConfigFile("flowengine.yaml"))
//	eng, err := flowengine.New(ctx, flowengine.WithConfig(cfg), flowengine.WithLogger(logger))
//
// This is a thin wrapper around [orchestrator.New]; both produce identical
// results. Use this package when you prefer the shorter import path.
package flowengine

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/agent"
	"github.com/BaSui01/flowengine/config"
	"github.com/BaSui01/flowengine/orchestrator"
	"github.com/BaSui01/flowengine/store"
)

// Engine is the orchestrator returned by [New].
type Engine = orchestrator.Orchestrator

// Option configures the engine created by [New].
type Option func(*settings)

type settings struct {
	opts       orchestrator.Options
	configPath string
}

// New creates an [Engine]. Without options it runs with the default
// configuration: an in-memory store and capability-checked invocations.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if s.opts.Config == nil && s.configPath != "" {
		cfg, err := LoadConfig(s.configPath)
		if err != nil {
			return nil, err
		}
		s.opts.Config = cfg
	}
	return orchestrator.New(ctx, s.opts)
}

// LoadConfig reads a YAML config file with FLOWENGINE_* environment
// overrides. An empty path loads defaults plus environment.
func LoadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader().WithEnvPrefix(config.DefaultEnvPrefix)
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader.Load()
}

// WithConfig sets the configuration. It takes precedence over WithConfigFile.
func WithConfig(cfg *config.Config) Option {
	return func(s *settings) { s.opts.Config = cfg }
}

// WithConfigFile loads the configuration from path.
func WithConfigFile(path string) Option {
	return func(s *settings) { s.configPath = path }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.opts.Logger = logger }
}

// WithStore replaces the record store built from the configuration.
func WithStore(st store.Store) Option {
	return func(s *settings) { s.opts.Store = st }
}

// WithGate replaces the gate selected by the auth mode.
func WithGate(g agent.Gate) Option {
	return func(s *settings) { s.opts.Gate = g }
}

// WithMetrics reports metrics to r, typically a *metrics.Collector.
func WithMetrics(r orchestrator.Recorder) Option {
	return func(s *settings) { s.opts.Metrics = r }
}

// WithInstruments reports OpenTelemetry measurements to i.
func WithInstruments(i orchestrator.Instruments) Option {
	return func(s *settings) { s.opts.Instruments = i }
}

// WithRedis sets the client used by the redis stream hook sink.
func WithRedis(client redis.UniversalClient) Option {
	return func(s *settings) { s.opts.Redis = client }
}
