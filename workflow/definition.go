package workflow

import (
	"bytes"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Definition is the persisted shape of a workflow: nodes in insertion order,
// their connections and default variables.
type Definition struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Version     int            `json:"version,omitempty" yaml:"version,omitempty"`
	Nodes       []Node         `json:"nodes" yaml:"nodes"`
	Connections []Connection   `json:"connections" yaml:"connections"`
	Variables   map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`
	CreatedAt   time.Time      `json:"createdAt" yaml:"createdAt,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt" yaml:"updatedAt,omitempty"`
}

// Graph builds an unvalidated graph from the definition.
func (d *Definition) Graph() (*Graph, error) {
	g := NewGraph(d.ID)
	for _, n := range d.Nodes {
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	for _, c := range d.Connections {
		if err := g.Connect(c); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Clone returns a copy sharing no slices or top-level maps with d.
func (d *Definition) Clone() *Definition {
	c := *d
	c.Nodes = make([]Node, len(d.Nodes))
	for i, n := range d.Nodes {
		n.Parameters = maps.Clone(n.Parameters)
		c.Nodes[i] = n
	}
	c.Connections = slices.Clone(d.Connections)
	c.Variables = maps.Clone(d.Variables)
	return &c
}

// Check reports structural problems that do not need a type catalogue.
func (d *Definition) Check() error {
	if d.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(d.Nodes) == 0 {
		return fmt.Errorf("workflow must have at least one node")
	}
	seen := make(map[string]bool, len(d.Nodes))
	for i, n := range d.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node %d: id is required", i)
		}
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id: %s", n.ID)
		}
		seen[n.ID] = true
		if n.Type == "" {
			return fmt.Errorf("node %s: type is required", n.ID)
		}
	}
	return nil
}

// ToJSON renders the definition as indented JSON.
func (d *Definition) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return data, nil
}

// ToYAML renders the definition as YAML.
func (d *Definition) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return data, nil
}

// FromJSON decodes and checks a JSON definition.
func FromJSON(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from JSON: %w", err)
	}
	if err := def.Check(); err != nil {
		return nil, fmt.Errorf("invalid definition: %w", err)
	}
	return &def, nil
}

// FromYAML decodes and checks a YAML definition.
func FromYAML(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from YAML: %w", err)
	}
	if err := def.Check(); err != nil {
		return nil, fmt.Errorf("invalid definition: %w", err)
	}
	return &def, nil
}

// ParseDefinition decodes JSON when data starts with '{', YAML otherwise.
func ParseDefinition(data []byte) (*Definition, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		return FromJSON(trimmed)
	}
	return FromYAML(data)
}

// LoadDefinition reads a definition file; .json files are JSON, anything
// else is YAML.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FromJSON(data)
	}
	return FromYAML(data)
}

// SaveDefinition writes a definition file in the format its extension names.
func SaveDefinition(path string, d *Definition) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = d.ToJSON()
	} else {
		data, err = d.ToYAML()
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
