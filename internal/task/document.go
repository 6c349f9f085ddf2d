// Package task loads metric task documents and compiles them into the
// immutable metric schema and options the pipeline executes against.
// A task document names the handler that produces its raw samples (runs),
// the metrics it creates, and the options a caller may tune.
package task

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is the parsed form of a metric task YAML file.
type Document struct {
	Slug        string             `yaml:"slug"`
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Runs        string             `yaml:"runs"`
	Creates     string             `yaml:"creates"`
	OptionOrder []string           `yaml:"option_order"`
	Options     map[string]*Option `yaml:"options"`
	Metrics     MetricList         `yaml:"metrics"`
}

// Option declares a single tunable task option and how a form should render it.
type Option struct {
	InputType    string        `yaml:"input_type"`
	ValueTypes   []string      `yaml:"value_types"`
	Default      interface{}   `yaml:"default"`
	Help         *OptionHelp   `yaml:"help"`
	InputOptions []interface{} `yaml:"input_options,omitempty"`
}

// OptionHelp carries the form placeholder and description for an option.
type OptionHelp struct {
	Placeholder interface{} `yaml:"placeholder"`
	Description string      `yaml:"description"`
}

// MetricSpec is the raw declaration of a single metric inside a document.
type MetricSpec struct {
	DisplayName   string   `yaml:"display_name"`
	Type          string   `yaml:"type"`
	ContentLevels []string `yaml:"content_levels"`
	OrgLevels     []string `yaml:"org_levels"`
	Faceted       bool     `yaml:"faceted"`
	Formula       string   `yaml:"formula,omitempty"`
	Agg           string   `yaml:"agg,omitempty"`
}

// MetricEntry pairs a metric key with its declaration.
type MetricEntry struct {
	Name string
	Spec *MetricSpec
}

// MetricList preserves the document order of the metrics mapping and records
// duplicate keys. Plain map decoding would either reject the document or
// silently collapse duplicates; both hide the defect from the caller.
type MetricList struct {
	Entries    []MetricEntry
	Duplicates []string
}

// UnmarshalYAML walks the metrics mapping node directly so that declaration
// order survives and repeated keys are observed rather than merged.
func (m *MetricList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("metrics must be a mapping, got %s", nodeKind(node))
	}

	seen := make(map[string]bool, len(node.Content)/2)

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value

		spec := &MetricSpec{}
		if err := node.Content[i+1].Decode(spec); err != nil {
			return fmt.Errorf("metric %s: %w", key, err)
		}

		if seen[key] {
			m.Duplicates = append(m.Duplicates, key)
		}
		seen[key] = true

		m.Entries = append(m.Entries, MetricEntry{Name: key, Spec: spec})
	}

	return nil
}

// Names returns the metric keys in declaration order, duplicates included.
func (m *MetricList) Names() []string {
	names := make([]string, 0, len(m.Entries))
	for _, entry := range m.Entries {
		names = append(names, entry.Name)
	}

	return names
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
