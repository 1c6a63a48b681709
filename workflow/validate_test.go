package workflow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/flowengine/types"
	"github.com/BaSui01/flowengine/workflow/nodetype"
)

func TestValidate_UnknownNodeType(t *testing.T) {
	t.Parallel()
	cat := newTestCatalog(t)
	g := newTestGraph(t, []Node{{ID: "a", Type: "nope"}})

	_, err := Validate(g, cat)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrUnknownNodeType))
	te, _ := types.AsError(err)
	assert.Equal(t, "a", te.NodeID)
	assert.False(t, g.Validated())
}

func TestValidate_Parameters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		node Node
		code types.ErrorCode
	}{
		{
			name: "missing required",
			node: Node{ID: "t", Type: nodetype.TypeTask, Parameters: map[string]any{"agentId": "a"}},
			code: types.ErrMissingParameter,
		},
		{
			name: "nil required",
			node: Node{ID: "t", Type: nodetype.TypeTask, Parameters: map[string]any{"agentId": "a", "capability": nil}},
			code: types.ErrMissingParameter,
		},
		{
			name: "wrong type",
			node: Node{ID: "t", Type: nodetype.TypeTask, Parameters: map[string]any{"agentId": "a", "capability": "c", "timeout": "soon"}},
			code: types.ErrTypeMismatch,
		},
		{
			name: "object expected",
			node: Node{ID: "t", Type: nodetype.TypeTask, Parameters: map[string]any{"agentId": "a", "capability": "c", "params": []any{1}}},
			code: types.ErrTypeMismatch,
		},
		{
			name: "option outside enum",
			node: Node{ID: "c", Type: "choice", Parameters: map[string]any{"mode": "medium"}},
			code: types.ErrTypeMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Validate(newTestGraph(t, []Node{tt.node}), newTestCatalog(t))
			require.Error(t, err)
			assert.True(t, types.IsErrorCode(err, tt.code), "got %v", err)
		})
	}
}

func TestValidate_RequiredWithDefaultMayBeOmitted(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t, []Node{{ID: "c", Type: "choice", Parameters: map[string]any{"mode": "fast"}}})
	start, err := Validate(g, newTestCatalog(t))
	require.NoError(t, err)
	assert.Equal(t, "c", start)
}

func TestValidate_Connections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		nodes []Node
		conns []Connection
	}{
		{
			name:  "missing source node",
			nodes: []Node{{ID: "b", Type: "pass"}},
			conns: []Connection{conn("ghost", "main", "b", "main")},
		},
		{
			name:  "missing target node",
			nodes: []Node{{ID: "a", Type: "pass"}},
			conns: []Connection{conn("a", "main", "ghost", "main")},
		},
		{
			name:  "missing output port",
			nodes: []Node{{ID: "a", Type: "pass"}, {ID: "b", Type: "pass"}},
			conns: []Connection{conn("a", "nope", "b", "main")},
		},
		{
			name:  "missing input port",
			nodes: []Node{{ID: "a", Type: "pass"}, {ID: "b", Type: "pass"}},
			conns: []Connection{conn("a", "main", "b", "nope")},
		},
		{
			name:  "string into number",
			nodes: []Node{{ID: "s", Type: "src-string"}, {ID: "n", Type: "dst-number"}},
			conns: []Connection{conn("s", "out", "n", "in")},
		},
		{
			name:  "required input unconnected",
			nodes: []Node{{ID: "a", Type: "pass"}, {ID: "r", Type: "needs-input"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Validate(newTestGraph(t, tt.nodes, tt.conns...), newTestCatalog(t))
			require.Error(t, err)
			assert.True(t, types.IsErrorCode(err, types.ErrInvalidConnection), "got %v", err)
		})
	}
}

func TestValidate_FanInLimit(t *testing.T) {
	t.Parallel()

	nodes := []Node{
		{ID: "a", Type: "pass"}, {ID: "b", Type: "pass"}, {ID: "c", Type: "pass"},
		{ID: "sink", Type: "sink"},
	}
	two := newTestGraph(t, nodes, conn("a", "main", "sink", "main"), conn("b", "main", "sink", "main"))
	_, err := Validate(two, newTestCatalog(t))
	require.NoError(t, err)

	three := newTestGraph(t, nodes,
		conn("a", "main", "sink", "main"),
		conn("b", "main", "sink", "main"),
		conn("c", "main", "sink", "main"),
	)
	_, err = Validate(three, newTestCatalog(t))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidConnection))
	te, _ := types.AsError(err)
	assert.Equal(t, conn("c", "main", "sink", "main"), te.Details["connection"])
}

func TestValidate_SelfLoopIsCycle(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t, []Node{{ID: "a", Type: "pass"}}, conn("a", "main", "a", "main"))
	_, err := Validate(g, newTestCatalog(t))
	assert.True(t, types.IsErrorCode(err, types.ErrCyclicGraph))
}

func TestValidate_NoStartNode(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t, nil)
	_, err := Validate(g, newTestCatalog(t))
	assert.True(t, types.IsErrorCode(err, types.ErrNoStartNode))
}

func TestValidate_PrefersTrigger(t *testing.T) {
	t.Parallel()

	orders := [][]Node{
		{{ID: "A", Type: nodetype.TypeTrigger}, {ID: "B", Type: "pass"}},
		{{ID: "B", Type: "pass"}, {ID: "A", Type: nodetype.TypeTrigger}},
	}
	for _, nodes := range orders {
		g := newTestGraph(t, nodes)
		start, err := Validate(g, newTestCatalog(t))
		require.NoError(t, err)
		assert.Equal(t, "A", start)

		cached, ok := g.StartNode()
		assert.True(t, ok)
		assert.Equal(t, "A", cached)
	}
}

func TestValidate_TieBreakIsInsertionOrder(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t, []Node{{ID: "z", Type: "pass"}, {ID: "a", Type: "pass"}, {ID: "m", Type: "pass"}})
	start, err := Validate(g, newTestCatalog(t))
	require.NoError(t, err)
	assert.Equal(t, "z", start)
}

func TestGraph_SealedAfterValidation(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t, []Node{{ID: "a", Type: "pass"}})
	_, err := Validate(g, newTestCatalog(t))
	require.NoError(t, err)

	assert.Error(t, g.AddNode(Node{ID: "b", Type: "pass"}))
	assert.Error(t, g.Connect(conn("a", "main", "a", "main")))
	assert.Equal(t, 1, g.Len())
}

func TestGraph_Children(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t,
		[]Node{{ID: "c", Type: nodetype.TypeCondition}, {ID: "x", Type: "pass"}, {ID: "y", Type: "pass"}},
		conn("c", "true", "x", "main"),
		conn("c", "true", "x", "main"),
		conn("c", "false", "y", "main"),
		conn("c", "true", "y", "main"),
	)
	assert.Equal(t, []string{"x", "y"}, g.Children("c", "true"))
	assert.Equal(t, []string{"y"}, g.Children("c", "false"))
	assert.Empty(t, g.Children("x", "main"))
	assert.Len(t, g.Incoming("y"), 2)
}

func TestGraph_AddNodeErrors(t *testing.T) {
	t.Parallel()
	g := NewGraph("g")
	assert.Error(t, g.AddNode(Node{Type: "pass"}))
	require.NoError(t, g.AddNode(Node{ID: "a", Type: "pass"}))
	err := g.AddNode(Node{ID: "a", Type: "pass"})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

// Any graph with a directed cycle is rejected with CYCLIC_GRAPH naming a node
// on the cycle.
func TestProperty_CyclesRejected(t *testing.T) {
	cat := newTestCatalog(t)
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("n%d", i)
		}
		ids = rapid.Permutation(ids).Draw(rt, "order")

		// The chain ids[0] -> ... -> ids[k] plus a back edge closes the cycle.
		k := rapid.IntRange(0, n-1).Draw(rt, "k")
		back := rapid.IntRange(0, k).Draw(rt, "back")

		g := NewGraph("cyclic")
		insertion := rapid.Permutation(ids).Draw(rt, "insertion")
		for _, id := range insertion {
			require.NoError(rt, g.AddNode(Node{ID: id, Type: "pass"}))
		}
		for i := 0; i < k; i++ {
			require.NoError(rt, g.Connect(conn(ids[i], "main", ids[i+1], "main")))
		}
		require.NoError(rt, g.Connect(conn(ids[k], "main", ids[back], "main")))

		// Extra forward edges never remove the cycle.
		extra := rapid.IntRange(0, 4).Draw(rt, "extra")
		for e := 0; e < extra; e++ {
			from := rapid.IntRange(0, n-1).Draw(rt, "from")
			to := rapid.IntRange(0, n-1).Draw(rt, "to")
			if from < to {
				require.NoError(rt, g.Connect(conn(ids[from], "main", ids[to], "main")))
			}
		}

		_, err := Validate(g, cat)
		require.Error(rt, err)
		require.True(rt, types.IsErrorCode(err, types.ErrCyclicGraph), "got %v", err)

		te, _ := types.AsError(err)
		_, exists := g.Node(te.NodeID)
		assert.True(rt, exists, "cycle error names node %q", te.NodeID)
		assert.False(rt, g.Validated())
	})
}

// Forward-only graphs always validate.
func TestProperty_AcyclicAccepted(t *testing.T) {
	cat := newTestCatalog(t)
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		g := NewGraph("dag")
		for i := 0; i < n; i++ {
			require.NoError(rt, g.AddNode(Node{ID: fmt.Sprintf("n%d", i), Type: "pass"}))
		}
		edges := rapid.IntRange(0, 12).Draw(rt, "edges")
		for e := 0; e < edges; e++ {
			from := rapid.IntRange(0, n-1).Draw(rt, "from")
			to := rapid.IntRange(0, n-1).Draw(rt, "to")
			if from < to {
				require.NoError(rt, g.Connect(conn(fmt.Sprintf("n%d", from), "main", fmt.Sprintf("n%d", to), "main")))
			}
		}
		start, err := Validate(g, cat)
		require.NoError(rt, err)
		assert.Equal(rt, "n0", start)
	})
}

// A connection validates iff the output and input data types are identical.
func TestProperty_PortTypesMustMatch(t *testing.T) {
	cat := newTestCatalog(t)
	gen := rapid.SampledFrom(testDataTypes)
	rapid.Check(t, func(rt *rapid.T) {
		out := gen.Draw(rt, "out")
		in := gen.Draw(rt, "in")

		g := NewGraph("typed")
		require.NoError(rt, g.AddNode(Node{ID: "s", Type: "src-" + string(out)}))
		require.NoError(rt, g.AddNode(Node{ID: "d", Type: "dst-" + string(in)}))
		require.NoError(rt, g.Connect(conn("s", "out", "d", "in")))

		_, err := Validate(g, cat)
		if out == in {
			assert.NoError(rt, err)
		} else {
			assert.True(rt, types.IsErrorCode(err, types.ErrInvalidConnection), "got %v", err)
		}
	})
}
