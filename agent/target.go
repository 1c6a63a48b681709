package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/flowengine/invocation"
)

// CapabilityTarget adapts one capability of an agent to an invocation
// target. The gate is consulted when the invocation runs.
type CapabilityTarget struct {
	Agent      Agent
	Capability string
	Gate       Gate
}

var _ invocation.Target = (*CapabilityTarget)(nil)

// ID implements invocation.Target as "agent.capability".
func (t *CapabilityTarget) ID() string {
	return t.Agent.ID() + "." + t.Capability
}

// Execute implements invocation.Target. payload must be a parameter map or
// nil. An unsuccessful result becomes an error carrying the agent's message.
func (t *CapabilityTarget) Execute(ctx context.Context, payload any) (any, error) {
	var params map[string]any
	switch p := payload.(type) {
	case nil:
	case map[string]any:
		params = p
	default:
		return nil, fmt.Errorf("capability params must be a map, got %T", payload)
	}

	if t.Gate != nil {
		if err := t.Gate.Authorize(ctx, t.Agent.ID(), t.Capability); err != nil {
			return nil, err
		}
	}

	res, err := t.Agent.Execute(ctx, t.Capability, params)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("agent returned no result")
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "capability reported failure"
		}
		return nil, errors.New(msg)
	}
	return res.Data, nil
}
