// Package yaml renders GitHub API payloads as YAML for human consumption.
package yaml

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Write encodes data to w with two-space indentation. Sequences whose items are all scalars,
// such as label names or topics, are written inline as ["a", "b"].
func Write(w io.Writer, data interface{}) error {
	var node yaml.Node
	if err := node.Encode(data); err != nil {
		return fmt.Errorf("error encoding data to yaml node: %w", err)
	}
	processNode(&node)

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(&node); err != nil {
		return fmt.Errorf("error encoding yaml: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("error closing encoder: %w", err)
	}
	return nil
}

// FromJSON converts a JSON document, typically a REST response body, to YAML.
// Object keys keep their JSON order.
func FromJSON(w io.Writer, body []byte) error {
	if !json.Valid(body) {
		return fmt.Errorf("error parsing JSON body: invalid JSON")
	}
	// JSON is YAML flow syntax, so the node tree keeps key order and number text.
	var node yaml.Node
	if err := yaml.Unmarshal(body, &node); err != nil {
		return fmt.Errorf("error parsing JSON body: %w", err)
	}
	resetStyle(&node)
	processNode(&node)

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(&node); err != nil {
		return fmt.Errorf("error encoding yaml: %w", err)
	}
	return encoder.Close()
}

// resetStyle drops the flow and quoting style the JSON source implies. Strings that would read
// back as another type are still quoted by the encoder.
func resetStyle(node *yaml.Node) {
	if node == nil {
		return
	}
	node.Style = 0
	for _, child := range node.Content {
		resetStyle(child)
	}
}

// processNode writes all-scalar sequences in flow style with quoted items.
func processNode(node *yaml.Node) {
	if node == nil {
		return
	}
	for i := range node.Content {
		processNode(node.Content[i])
	}

	if node.Kind == yaml.SequenceNode && len(node.Content) > 0 {
		for _, child := range node.Content {
			if child.Kind != yaml.ScalarNode {
				return
			}
		}
		node.Style = yaml.FlowStyle
		for _, child := range node.Content {
			if child.Tag == "!!str" {
				child.Style = yaml.DoubleQuotedStyle
			}
		}
	}
}
