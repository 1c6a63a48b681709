package store

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/BaSui01/flowengine/workflow"
)

func encodeWorkflow(def *workflow.Definition) ([]byte, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow %s: %w", def.ID, err)
	}
	return data, nil
}

func decodeWorkflow(data []byte) (*workflow.Definition, error) {
	var def workflow.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}
	return &def, nil
}

func encodeExecution(exec *workflow.Execution) ([]byte, error) {
	data, err := json.Marshal(exec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution %s: %w", exec.ID, err)
	}
	return data, nil
}

func decodeExecution(data []byte) (*workflow.Execution, error) {
	var exec workflow.Execution
	if err := json.Unmarshal(data, &exec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}
	return &exec, nil
}
