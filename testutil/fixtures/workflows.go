// =============================================================================
// 📦 测试数据工厂 - 工作流定义
// =============================================================================
// 提供只使用内置节点类型的预置工作流，用于引擎与编排器测试
// =============================================================================
package fixtures

import (
	"github.com/BaSui01/flowengine/workflow"
	"github.com/BaSui01/flowengine/workflow/nodetype"
)

// =============================================================================
// 🔗 连接辅助
// =============================================================================

// Connect 返回 source.output -> target.main 的连接
func Connect(source, output, target string) workflow.Connection {
	return workflow.Connection{
		SourceNodeID: source,
		SourceOutput: output,
		TargetNodeID: target,
		TargetInput:  "main",
	}
}

// Trigger 返回触发节点
func Trigger(id string) workflow.Node {
	return workflow.Node{ID: id, Type: nodetype.TypeTrigger}
}

// Task 返回调用 agentID.capability 的任务节点
func Task(id, agentID, capability string) workflow.Node {
	return workflow.Node{
		ID:   id,
		Type: nodetype.TypeTask,
		Parameters: map[string]any{
			"agentId":    agentID,
			"capability": capability,
		},
	}
}

// Condition 返回条件节点
func Condition(id, expression string) workflow.Node {
	return workflow.Node{
		ID:         id,
		Type:       nodetype.TypeCondition,
		Parameters: map[string]any{"expression": expression},
	}
}

// =============================================================================
// 🧩 预置工作流
// =============================================================================

// LinearWorkflow start -> task
func LinearWorkflow(agentID, capability string) *workflow.Definition {
	return &workflow.Definition{
		Name: "linear",
		Nodes: []workflow.Node{
			Trigger("start"),
			Task("work", agentID, capability),
		},
		Connections: []workflow.Connection{
			Connect("start", "success", "work"),
		},
	}
}

// BranchingWorkflow start -> check -(true)-> approve / -(false)-> reject
func BranchingWorkflow(expression, agentID string) *workflow.Definition {
	return &workflow.Definition{
		Name: "branching",
		Nodes: []workflow.Node{
			Trigger("start"),
			Condition("check", expression),
			Task("approve", agentID, "approve"),
			Task("reject", agentID, "reject"),
		},
		Connections: []workflow.Connection{
			Connect("start", "success", "check"),
			Connect("check", "true", "approve"),
			Connect("check", "false", "reject"),
		},
	}
}

// ParallelWorkflow start -> fanout(parallel over capabilities)
func ParallelWorkflow(agentID string, capabilities ...string) *workflow.Definition {
	tasks := make([]any, 0, len(capabilities))
	for _, c := range capabilities {
		tasks = append(tasks, map[string]any{"agentId": agentID, "capability": c})
	}
	return &workflow.Definition{
		Name: "parallel",
		Nodes: []workflow.Node{
			Trigger("start"),
			{ID: "fanout", Type: nodetype.TypeParallel, Parameters: map[string]any{"tasks": tasks}},
		},
		Connections: []workflow.Connection{
			Connect("start", "success", "fanout"),
		},
	}
}

// DiamondWorkflow start -> left, right -> join
func DiamondWorkflow(agentID string) *workflow.Definition {
	return &workflow.Definition{
		Name: "diamond",
		Nodes: []workflow.Node{
			Trigger("start"),
			Task("left", agentID, "left"),
			Task("right", agentID, "right"),
			Task("join", agentID, "join"),
		},
		Connections: []workflow.Connection{
			Connect("start", "success", "left"),
			Connect("start", "success", "right"),
			Connect("left", "success", "join"),
			Connect("right", "success", "join"),
		},
	}
}

// CyclicWorkflow a -> b -> a，校验时应失败
func CyclicWorkflow(agentID string) *workflow.Definition {
	return &workflow.Definition{
		Name: "cyclic",
		Nodes: []workflow.Node{
			Trigger("start"),
			Task("a", agentID, "a"),
			Task("b", agentID, "b"),
		},
		Connections: []workflow.Connection{
			Connect("start", "success", "a"),
			Connect("a", "success", "b"),
			Connect("b", "success", "a"),
		},
	}
}
