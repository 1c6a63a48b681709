package agent

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/BaSui01/flowengine/types"
)

// Gate decides whether a capability of an agent may be invoked. It is
// consulted before every invocation.
type Gate interface {
	Authorize(ctx context.Context, agentID, capability string) error
}

// GateFunc adapts a function to Gate.
type GateFunc func(ctx context.Context, agentID, capability string) error

// Authorize implements Gate.
func (f GateFunc) Authorize(ctx context.Context, agentID, capability string) error {
	return f(ctx, agentID, capability)
}

// AllowAll authorizes everything.
type AllowAll struct{}

// Authorize implements Gate.
func (AllowAll) Authorize(context.Context, string, string) error { return nil }

func unauthorized(agentID, capability string, cause error) error {
	return types.Errorf(types.ErrUnauthorized, "agent %q is not authorized for capability %q", agentID, capability).
		WithCause(cause).
		WithDetail("agentId", agentID).
		WithDetail("capability", capability)
}

// CapabilityGate allows a call only when the agent advertises the capability.
// Decisions are cached per agent and capability; the cache for an agent is
// dropped whenever the registry reports a change to it.
type CapabilityGate struct {
	registry *Registry

	mu    sync.RWMutex
	cache map[string]map[string]bool
}

// NewCapabilityGate creates a gate backed by reg.
func NewCapabilityGate(reg *Registry) *CapabilityGate {
	g := &CapabilityGate{registry: reg, cache: make(map[string]map[string]bool)}
	reg.OnChange(g.Invalidate)
	return g
}

// Authorize implements Gate.
func (g *CapabilityGate) Authorize(_ context.Context, agentID, capability string) error {
	g.mu.RLock()
	allowed, cached := g.cache[agentID][capability]
	g.mu.RUnlock()

	if !cached {
		a, ok := g.registry.Get(agentID)
		if !ok {
			return types.Errorf(types.ErrAgentNotFound, "agent %q not found", agentID)
		}
		allowed = slices.Contains(a.Capabilities(), capability)

		g.mu.Lock()
		if g.cache[agentID] == nil {
			g.cache[agentID] = make(map[string]bool)
		}
		g.cache[agentID][capability] = allowed
		g.mu.Unlock()
	}

	if !allowed {
		return unauthorized(agentID, capability, ErrCapabilityDenied)
	}
	return nil
}

// Invalidate drops cached decisions for an agent.
func (g *CapabilityGate) Invalidate(agentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.cache, agentID)
}

// JWTGate authorizes with an HS256 token carried in the context. The token's
// "capabilities" claim lists what it grants: "capability", "agent:capability"
// or "*".
type JWTGate struct {
	secret []byte
	opts   []jwt.ParserOption
}

// NewJWTGate creates a gate verifying tokens with secret. A non-empty issuer
// must match the token's iss claim.
func NewJWTGate(secret, issuer string) *JWTGate {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTGate{secret: []byte(secret), opts: opts}
}

// Authorize implements Gate.
func (g *JWTGate) Authorize(ctx context.Context, agentID, capability string) error {
	tokenStr, ok := types.AuthToken(ctx)
	if !ok || tokenStr == "" {
		return unauthorized(agentID, capability, ErrMissingToken)
	}

	token, err := jwt.Parse(tokenStr, func(*jwt.Token) (any, error) {
		if len(g.secret) == 0 {
			return nil, fmt.Errorf("HMAC secret not configured")
		}
		return g.secret, nil
	}, g.opts...)
	if err != nil {
		return unauthorized(agentID, capability, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return unauthorized(agentID, capability, fmt.Errorf("invalid token claims"))
	}

	raw, _ := claims["capabilities"].([]any)
	for _, c := range raw {
		s, _ := c.(string)
		if s == "*" || s == capability || s == agentID+":"+capability {
			return nil
		}
	}
	return unauthorized(agentID, capability, ErrCapabilityDenied)
}
