package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/workflow/nodetype"
)

var testDataTypes = []nodetype.DataType{
	nodetype.DataTypeAny, nodetype.DataTypeString, nodetype.DataTypeNumber,
	nodetype.DataTypeBoolean, nodetype.DataTypeObject, nodetype.DataTypeArray,
	nodetype.DataTypeJSON,
}

// newTestCatalog returns the built-in types plus a few test-only ones:
// "pass" (main in, main out), "sink" (fan-in limited to two), "block", and
// "src-<dt>"/"dst-<dt>" pairs for every data type.
func newTestCatalog(t testing.TB) *nodetype.Registry {
	t.Helper()
	r := nodetype.NewRegistry(zap.NewNop())
	require.NoError(t, nodetype.RegisterBuiltins(r))

	extra := []nodetype.Description{
		{
			Type: "pass", Name: "Pass", Version: 1, Group: "test",
			Inputs:  []nodetype.InputPort{{Name: "main", DataType: nodetype.DataTypeAny}},
			Outputs: []nodetype.OutputPort{{Name: "main", DataType: nodetype.DataTypeAny}},
		},
		{
			Type: "block", Name: "Block", Version: 1, Group: "test",
			Inputs:  []nodetype.InputPort{{Name: "main", DataType: nodetype.DataTypeAny}},
			Outputs: []nodetype.OutputPort{{Name: "main", DataType: nodetype.DataTypeAny}},
		},
		{
			Type: "sink", Name: "Sink", Version: 1, Group: "test",
			Inputs: []nodetype.InputPort{{Name: "main", DataType: nodetype.DataTypeAny, MaxConnections: 2}},
		},
		{
			Type: "needs-input", Name: "Needs input", Version: 1, Group: "test",
			Inputs: []nodetype.InputPort{{Name: "main", DataType: nodetype.DataTypeAny, Required: true}},
		},
		{
			Type: "choice", Name: "Choice", Version: 1, Group: "test",
			Properties: []nodetype.PropertySpec{
				{Name: "mode", DataType: nodetype.DataTypeOptions, Required: true, Options: []string{"fast", "slow"}},
				{Name: "retries", DataType: nodetype.DataTypeNumber, Required: true, Default: 3},
			},
			Outputs: []nodetype.OutputPort{{Name: "main", DataType: nodetype.DataTypeAny}},
		},
	}
	for _, dt := range testDataTypes {
		extra = append(extra,
			nodetype.Description{
				Type: "src-" + string(dt), Name: "Source", Version: 1, Group: "typed",
				Outputs: []nodetype.OutputPort{{Name: "out", DataType: dt}},
			},
			nodetype.Description{
				Type: "dst-" + string(dt), Name: "Destination", Version: 1, Group: "typed",
				Inputs: []nodetype.InputPort{{Name: "in", DataType: dt}},
			},
		)
	}
	for _, d := range extra {
		require.NoError(t, r.Register(d))
	}
	return r
}

func conn(src, out, dst, in string) Connection {
	return Connection{SourceNodeID: src, SourceOutput: out, TargetNodeID: dst, TargetInput: in}
}

func newTestGraph(t testing.TB, nodes []Node, conns ...Connection) *Graph {
	t.Helper()
	g := NewGraph("wf-test")
	for _, n := range nodes {
		require.NoError(t, g.AddNode(n))
	}
	for _, c := range conns {
		require.NoError(t, g.Connect(c))
	}
	return g
}

func taskNode(id, capability string) Node {
	return Node{
		ID:   id,
		Type: nodetype.TypeTask,
		Parameters: map[string]any{
			"agentId":    "agent-1",
			"capability": capability,
		},
	}
}
