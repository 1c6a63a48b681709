package workflow

import (
	"github.com/BaSui01/flowengine/types"
	"github.com/BaSui01/flowengine/workflow/nodetype"
)

// TypeCatalog resolves node type descriptions. *nodetype.Registry satisfies it.
type TypeCatalog interface {
	Get(typ string) (*nodetype.Description, bool)
}

// Validate checks g against catalog and returns the chosen start node. Checks
// run in a fixed order: node types, parameters, connections, cycles, start
// node. The first failure is returned and the graph stays mutable; on success
// the graph is sealed.
func Validate(g *Graph, catalog TypeCatalog) (string, error) {
	if g == nil {
		return "", types.NewError(types.ErrInvalidRequest, "graph is nil")
	}

	nodes := g.Nodes()
	descs := make(map[string]*nodetype.Description, len(nodes))

	for _, n := range nodes {
		d, ok := catalog.Get(n.Type)
		if !ok {
			return "", types.Errorf(types.ErrUnknownNodeType, "node %q has unknown type %q", n.ID, n.Type).
				WithNode(n.ID).
				WithDetail("type", n.Type)
		}
		descs[n.ID] = d
	}

	for _, n := range nodes {
		if err := checkParameters(n, descs[n.ID]); err != nil {
			return "", err
		}
	}

	if err := checkConnections(g, nodes, descs); err != nil {
		return "", err
	}

	if err := detectCycles(g, nodes); err != nil {
		return "", err
	}

	start, err := selectStart(g, nodes, descs)
	if err != nil {
		return "", err
	}
	g.seal(start)
	return start, nil
}

func checkParameters(n *Node, d *nodetype.Description) error {
	for _, p := range d.Properties {
		v, present := n.Parameters[p.Name]
		if !present || v == nil {
			if p.Required && p.Default == nil {
				return types.Errorf(types.ErrMissingParameter, "node %q is missing required parameter %q", n.ID, p.Name).
					WithNode(n.ID).
					WithDetail("parameter", p.Name)
			}
			continue
		}
		if !p.DataType.Accepts(v, p.Options) {
			e := types.Errorf(types.ErrTypeMismatch, "node %q parameter %q must be of type %s", n.ID, p.Name, p.DataType).
				WithNode(n.ID).
				WithDetail("parameter", p.Name).
				WithDetail("expected", string(p.DataType))
			if p.DataType == nodetype.DataTypeOptions {
				e = e.WithDetail("options", p.Options)
			}
			return e
		}
	}
	return nil
}

type portKey struct {
	node, input string
}

func checkConnections(g *Graph, nodes []*Node, descs map[string]*nodetype.Description) error {
	fanIn := make(map[portKey]int)

	for _, c := range g.Connections() {
		src, ok := descs[c.SourceNodeID]
		if !ok {
			return connectionError(c, "source node %q does not exist", c.SourceNodeID)
		}
		dst, ok := descs[c.TargetNodeID]
		if !ok {
			return connectionError(c, "target node %q does not exist", c.TargetNodeID)
		}
		out, ok := src.Output(c.SourceOutput)
		if !ok {
			return connectionError(c, "node %q has no output %q", c.SourceNodeID, c.SourceOutput)
		}
		in, ok := dst.Input(c.TargetInput)
		if !ok {
			return connectionError(c, "node %q has no input %q", c.TargetNodeID, c.TargetInput)
		}
		if out.DataType != in.DataType {
			return connectionError(c, "cannot connect %s output %q to %s input %q",
				out.DataType, c.SourceOutput, in.DataType, c.TargetInput).
				WithDetail("sourceType", string(out.DataType)).
				WithDetail("targetType", string(in.DataType))
		}

		key := portKey{c.TargetNodeID, c.TargetInput}
		fanIn[key]++
		if in.MaxConnections > 0 && fanIn[key] > in.MaxConnections {
			return connectionError(c, "input %q of node %q accepts at most %d connections",
				c.TargetInput, c.TargetNodeID, in.MaxConnections).
				WithDetail("maxConnections", in.MaxConnections)
		}
	}

	for _, n := range nodes {
		for _, in := range descs[n.ID].Inputs {
			if in.Required && fanIn[portKey{n.ID, in.Name}] == 0 {
				return types.Errorf(types.ErrInvalidConnection, "required input %q of node %q is not connected", in.Name, n.ID).
					WithNode(n.ID)
			}
		}
	}
	return nil
}

func connectionError(c Connection, format string, args ...any) *types.Error {
	return types.Errorf(types.ErrInvalidConnection, format, args...).
		WithNode(c.TargetNodeID).
		WithDetail("connection", c)
}

// detectCycles runs a depth-first search colouring nodes white/grey/black.
// Reaching a grey node means it is on the current path.
func detectCycles(g *Graph, nodes []*Node) error {
	const (
		white = iota
		grey
		black
	)
	state := make(map[string]int, len(nodes))

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		state[id] = grey
		path = append(path, id)
		for _, c := range g.Outgoing(id) {
			switch state[c.TargetNodeID] {
			case grey:
				return types.Errorf(types.ErrCyclicGraph, "cycle detected at node %q", c.TargetNodeID).
					WithNode(c.TargetNodeID).
					WithDetail("path", append(path, c.TargetNodeID))
			case white:
				if err := visit(c.TargetNodeID, path); err != nil {
					return err
				}
			}
		}
		state[id] = black
		return nil
	}

	for _, n := range nodes {
		if state[n.ID] == white {
			if err := visit(n.ID, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// selectStart picks the first trigger-typed node without incoming
// connections, falling back to the first such node of any type.
func selectStart(g *Graph, nodes []*Node, descs map[string]*nodetype.Description) (string, error) {
	fallback := ""
	for _, n := range nodes {
		if len(g.Incoming(n.ID)) > 0 {
			continue
		}
		if descs[n.ID].Trigger {
			return n.ID, nil
		}
		if fallback == "" {
			fallback = n.ID
		}
	}
	if fallback == "" {
		return "", types.NewError(types.ErrNoStartNode, "workflow has no node without incoming connections")
	}
	return fallback, nil
}
