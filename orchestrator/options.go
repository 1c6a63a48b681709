package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/agent"
	"github.com/BaSui01/flowengine/config"
	"github.com/BaSui01/flowengine/invocation"
	"github.com/BaSui01/flowengine/store"
	"github.com/BaSui01/flowengine/workflow"
)

// Recorder receives every metric the orchestrator and the components it
// wires report. *metrics.Collector satisfies it.
type Recorder interface {
	workflow.Recorder
	invocation.Recorder
	store.Recorder
	RecordWorkflowRegistered()
	RecordWorkflowExecution(status string, duration time.Duration)
	RecordHookEventDropped()
}

// Instruments receives OpenTelemetry measurements. *telemetry.Instruments
// satisfies it.
type Instruments interface {
	RecordExecution(ctx context.Context, workflowID, status string, d time.Duration)
	RecordInvocation(ctx context.Context, target, status string)
}

// Options configures New. Every field is optional.
type Options struct {
	// Config defaults to config.DefaultConfig().
	Config *config.Config
	Logger *zap.Logger

	Metrics     Recorder
	Instruments Instruments

	// Store replaces the backend built from Config.Store. The orchestrator
	// closes it on Close.
	Store store.Store

	// Gate replaces the gate selected by Config.Auth.Mode.
	Gate agent.Gate

	// Redis is used by the hook stream sink when Config.Hooks.RedisStream is
	// set. When nil a client is built from Config.Store.Redis.
	Redis redis.UniversalClient
}

// Auth modes accepted in config.AuthConfig.Mode.
const (
	AuthNone       = "none"
	AuthCapability = "capability"
	AuthJWT        = "jwt"
)

// NewGate selects the capability gate for an auth mode.
func NewGate(cfg config.AuthConfig, reg *agent.Registry) (agent.Gate, error) {
	switch cfg.Mode {
	case AuthNone:
		return agent.AllowAll{}, nil
	case AuthCapability, "":
		return agent.NewCapabilityGate(reg), nil
	case AuthJWT:
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("auth mode %q requires a jwt secret", cfg.Mode)
		}
		return agent.NewJWTGate(cfg.JWTSecret, cfg.JWTIssuer), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}
