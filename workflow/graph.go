package workflow

import (
	"maps"
	"slices"
	"sync"

	"github.com/BaSui01/flowengine/types"
)

// Node is one unit of work in a workflow graph.
type Node struct {
	ID         string         `json:"id" yaml:"id"`
	Type       string         `json:"type" yaml:"type"`
	Name       string         `json:"name,omitempty" yaml:"name,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Disabled   bool           `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Param returns a parameter value.
func (n *Node) Param(name string) (any, bool) {
	v, ok := n.Parameters[name]
	return v, ok
}

// Connection is a typed edge from a source output port to a target input port.
type Connection struct {
	SourceNodeID string `json:"sourceNodeId" yaml:"sourceNodeId"`
	SourceOutput string `json:"sourceOutput" yaml:"sourceOutput"`
	TargetNodeID string `json:"targetNodeId" yaml:"targetNodeId"`
	TargetInput  string `json:"targetInput" yaml:"targetInput"`
}

// Graph holds nodes in insertion order and connections keyed by source node.
// Once validated the graph is sealed and further mutation is rejected, so it
// can be shared by any number of concurrent executions.
type Graph struct {
	id          string
	nodes       map[string]*Node
	order       []string
	connections map[string][]Connection
	incoming    map[string][]Connection

	mu     sync.RWMutex
	sealed bool
	start  string
}

// NewGraph creates an empty graph.
func NewGraph(id string) *Graph {
	return &Graph{
		id:          id,
		nodes:       make(map[string]*Node),
		connections: make(map[string][]Connection),
		incoming:    make(map[string][]Connection),
	}
}

// ID returns the graph id.
func (g *Graph) ID() string { return g.id }

// AddNode appends a node. Node ids must be unique and non-empty.
func (g *Graph) AddNode(n Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sealed {
		return types.NewError(types.ErrInvalidRequest, "graph is sealed after validation")
	}
	if n.ID == "" {
		return types.NewError(types.ErrInvalidRequest, "node id is required")
	}
	if _, exists := g.nodes[n.ID]; exists {
		return types.Errorf(types.ErrInvalidRequest, "duplicate node id %q", n.ID).WithNode(n.ID)
	}
	n.Parameters = maps.Clone(n.Parameters)
	g.nodes[n.ID] = &n
	g.order = append(g.order, n.ID)
	return nil
}

// Connect records a connection. Port and node references are checked by
// Validate, not here.
func (g *Graph) Connect(c Connection) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sealed {
		return types.NewError(types.ErrInvalidRequest, "graph is sealed after validation")
	}
	g.connections[c.SourceNodeID] = append(g.connections[c.SourceNodeID], c)
	g.incoming[c.TargetNodeID] = append(g.incoming[c.TargetNodeID], c)
	return nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Connections returns every connection, grouped by source node in node
// insertion order. Connections whose source is not a node come last.
func (g *Graph) Connections() []Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Connection
	for _, id := range g.order {
		out = append(out, g.connections[id]...)
	}
	var dangling []string
	for src := range g.connections {
		if _, ok := g.nodes[src]; !ok {
			dangling = append(dangling, src)
		}
	}
	slices.Sort(dangling)
	for _, src := range dangling {
		out = append(out, g.connections[src]...)
	}
	return out
}

// Outgoing returns the connections leaving a node.
func (g *Graph) Outgoing(id string) []Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.connections[id])
}

// Incoming returns the connections entering a node.
func (g *Graph) Incoming(id string) []Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.incoming[id])
}

// Children returns the distinct targets reached from a node's output port,
// in connection order.
func (g *Graph) Children(id, output string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	seen := make(map[string]bool)
	for _, c := range g.connections[id] {
		if c.SourceOutput != output || seen[c.TargetNodeID] {
			continue
		}
		seen[c.TargetNodeID] = true
		out = append(out, c.TargetNodeID)
	}
	return out
}

// StartNode returns the start node chosen by validation.
func (g *Graph) StartNode() (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.start, g.sealed
}

// Validated reports whether the graph passed validation.
func (g *Graph) Validated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sealed
}

// Len returns the node count.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

func (g *Graph) seal(start string) {
	g.mu.Lock()
	g.start = start
	g.sealed = true
	g.mu.Unlock()
}
