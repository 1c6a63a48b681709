package nodetype

// Built-in node type keys.
const (
	TypeTrigger   = "trigger"
	TypeTask      = "task"
	TypeCondition = "condition"
	TypeParallel  = "parallel"
)

// Standard port names used by the built-in types.
const (
	PortMain    = "main"
	PortSuccess = "success"
	PortError   = "error"
	PortTrue    = "true"
	PortFalse   = "false"
)

// Builtins returns the descriptions of the node types every engine ships with.
func Builtins() []Description {
	return []Description{
		{
			Type:        TypeTrigger,
			Name:        "Trigger",
			Description: "Workflow entry point; forwards the execution input",
			Version:     1,
			Group:       "core",
			Trigger:     true,
			Outputs:     []OutputPort{{Name: PortSuccess, DataType: DataTypeAny}},
		},
		{
			Type:        TypeTask,
			Name:        "Task",
			Description: "Invokes an agent capability",
			Version:     1,
			Group:       "core",
			Inputs:      []InputPort{{Name: PortMain, DataType: DataTypeAny}},
			Outputs: []OutputPort{
				{Name: PortSuccess, DataType: DataTypeAny},
				{Name: PortError, DataType: DataTypeAny},
			},
			Properties: []PropertySpec{
				{Name: "agentId", DataType: DataTypeString, Required: true, Description: "Agent to invoke"},
				{Name: "capability", DataType: DataTypeString, Required: true, Description: "Capability name"},
				{Name: "params", DataType: DataTypeObject, Description: "Static capability parameters"},
				{Name: "timeout", DataType: DataTypeNumber, Description: "Invocation timeout in milliseconds"},
			},
		},
		{
			Type:        TypeCondition,
			Name:        "Condition",
			Description: "Routes to the true or false branch by evaluating an expression",
			Version:     1,
			Group:       "logic",
			Inputs:      []InputPort{{Name: PortMain, DataType: DataTypeAny}},
			Outputs: []OutputPort{
				{Name: PortTrue, DataType: DataTypeAny},
				{Name: PortFalse, DataType: DataTypeAny},
			},
			Properties: []PropertySpec{
				{Name: "expression", DataType: DataTypeString, Required: true, Description: "Boolean expression"},
			},
		},
		{
			Type:        TypeParallel,
			Name:        "Parallel",
			Description: "Runs a list of agent tasks concurrently and collects their results in order",
			Version:     1,
			Group:       "logic",
			Inputs:      []InputPort{{Name: PortMain, DataType: DataTypeAny}},
			Outputs: []OutputPort{
				{Name: PortSuccess, DataType: DataTypeArray},
				{Name: PortError, DataType: DataTypeAny},
			},
			Properties: []PropertySpec{
				{Name: "tasks", DataType: DataTypeArray, Required: true, Description: "List of {agentId, capability, params}"},
				{Name: "timeout", DataType: DataTypeNumber, Description: "Per-task timeout in milliseconds"},
			},
		},
	}
}

// RegisterBuiltins registers every built-in type on r.
func RegisterBuiltins(r *Registry) error {
	for _, d := range Builtins() {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}
