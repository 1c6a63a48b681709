package nodetype

import (
	"fmt"
	"reflect"
	"slices"
)

// DataType names the kind of value a port carries or a property accepts.
type DataType string

const (
	DataTypeAny     DataType = "any"
	DataTypeString  DataType = "string"
	DataTypeNumber  DataType = "number"
	DataTypeBoolean DataType = "boolean"
	DataTypeObject  DataType = "object"
	DataTypeArray   DataType = "array"
	DataTypeOptions DataType = "options"
	DataTypeJSON    DataType = "json"
)

var knownDataTypes = map[DataType]bool{
	DataTypeAny:     true,
	DataTypeString:  true,
	DataTypeNumber:  true,
	DataTypeBoolean: true,
	DataTypeObject:  true,
	DataTypeArray:   true,
	DataTypeOptions: true,
	DataTypeJSON:    true,
}

// IsValid reports whether d is a recognized data type.
func (d DataType) IsValid() bool {
	return knownDataTypes[d]
}

// Accepts reports whether value conforms to d. Options-typed values must be
// one of options.
func (d DataType) Accepts(value any, options []string) bool {
	switch d {
	case DataTypeAny, DataTypeJSON:
		return true
	case DataTypeString:
		_, ok := value.(string)
		return ok
	case DataTypeBoolean:
		_, ok := value.(bool)
		return ok
	case DataTypeNumber:
		return isNumber(value)
	case DataTypeObject:
		if value == nil {
			return false
		}
		k := reflect.TypeOf(value).Kind()
		return k == reflect.Map || k == reflect.Struct
	case DataTypeArray:
		if value == nil {
			return false
		}
		k := reflect.TypeOf(value).Kind()
		return k == reflect.Slice || k == reflect.Array
	case DataTypeOptions:
		s, ok := value.(string)
		return ok && slices.Contains(options, s)
	default:
		return false
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

// InputPort is a named, typed entry point of a node.
// MaxConnections limits fan-in; zero means unlimited.
type InputPort struct {
	Name           string   `json:"name" yaml:"name"`
	DataType       DataType `json:"dataType" yaml:"dataType"`
	Required       bool     `json:"required,omitempty" yaml:"required,omitempty"`
	MaxConnections int      `json:"maxConnections,omitempty" yaml:"maxConnections,omitempty"`
}

// OutputPort is a named, typed exit point of a node.
type OutputPort struct {
	Name     string   `json:"name" yaml:"name"`
	DataType DataType `json:"dataType" yaml:"dataType"`
}

// PropertySpec describes one parameter a node of this type accepts.
type PropertySpec struct {
	Name        string   `json:"name" yaml:"name"`
	DataType    DataType `json:"dataType" yaml:"dataType"`
	Required    bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Default     any      `json:"default,omitempty" yaml:"default,omitempty"`
	Options     []string `json:"options,omitempty" yaml:"options,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// Description is the catalogue entry for a node type.
type Description struct {
	Type        string         `json:"type" yaml:"type"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Version     int            `json:"version" yaml:"version"`
	Group       string         `json:"group" yaml:"group"`
	Trigger     bool           `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Inputs      []InputPort    `json:"inputs" yaml:"inputs"`
	Outputs     []OutputPort   `json:"outputs" yaml:"outputs"`
	Properties  []PropertySpec `json:"properties" yaml:"properties"`
}

// Input returns the input port with the given name.
func (d *Description) Input(name string) (InputPort, bool) {
	for _, p := range d.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return InputPort{}, false
}

// Output returns the output port with the given name.
func (d *Description) Output(name string) (OutputPort, bool) {
	for _, p := range d.Outputs {
		if p.Name == name {
			return p, true
		}
	}
	return OutputPort{}, false
}

// Property returns the property spec with the given name.
func (d *Description) Property(name string) (PropertySpec, bool) {
	for _, p := range d.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertySpec{}, false
}

// Clone returns a deep copy of the description's slices. Default values are
// shared; they are treated as read-only.
func (d *Description) Clone() *Description {
	c := *d
	c.Inputs = slices.Clone(d.Inputs)
	c.Outputs = slices.Clone(d.Outputs)
	c.Properties = slices.Clone(d.Properties)
	for i := range c.Properties {
		c.Properties[i].Options = slices.Clone(c.Properties[i].Options)
	}
	return &c
}

// Validate checks that the description is well formed.
func (d *Description) Validate() error {
	if d.Type == "" {
		return fmt.Errorf("type is required")
	}
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if d.Version < 1 {
		return fmt.Errorf("version must be >= 1, got %d", d.Version)
	}
	if d.Group == "" {
		return fmt.Errorf("group is required")
	}

	seen := make(map[string]bool, len(d.Inputs))
	for i, p := range d.Inputs {
		if p.Name == "" {
			return fmt.Errorf("input %d: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("input %q: duplicate name", p.Name)
		}
		seen[p.Name] = true
		if !p.DataType.IsValid() {
			return fmt.Errorf("input %q: unrecognized data type %q", p.Name, p.DataType)
		}
		if p.MaxConnections < 0 {
			return fmt.Errorf("input %q: maxConnections must not be negative", p.Name)
		}
	}

	clear(seen)
	for i, p := range d.Outputs {
		if p.Name == "" {
			return fmt.Errorf("output %d: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("output %q: duplicate name", p.Name)
		}
		seen[p.Name] = true
		if !p.DataType.IsValid() {
			return fmt.Errorf("output %q: unrecognized data type %q", p.Name, p.DataType)
		}
	}

	clear(seen)
	for i, p := range d.Properties {
		if p.Name == "" {
			return fmt.Errorf("property %d: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("property %q: duplicate name", p.Name)
		}
		seen[p.Name] = true
		if !p.DataType.IsValid() {
			return fmt.Errorf("property %q: unrecognized data type %q", p.Name, p.DataType)
		}
		if p.DataType == DataTypeOptions && len(p.Options) == 0 {
			return fmt.Errorf("property %q: options type requires at least one option", p.Name)
		}
		if p.Default != nil && !p.DataType.Accepts(p.Default, p.Options) {
			return fmt.Errorf("property %q: default does not match data type %q", p.Name, p.DataType)
		}
	}
	return nil
}
