package model

import (
	"encoding/json"
	"strings"
)

// NodeKind discriminates the three value shapes a corpus document can contain.
type NodeKind int

const (
	KindScalar NodeKind = iota
	KindMapping
	KindSequence
)

// MapEntry is a single key/value pair of a mapping node.
// Entries keep the order they have in the source document.
type MapEntry struct {
	Key   string
	Value *Node
}

// Node is one value in the parsed corpus tree.
// For scalars Value holds the source text and Tag the resolved YAML tag
// (e.g. "!!str", "!!int"), so the original value type survives serialization.
type Node struct {
	Kind    NodeKind
	Value   string
	Tag     string
	Entries []MapEntry
	Items   []*Node
}

// Get returns the value of the given key of a mapping node.
func (n *Node) Get(key string) (*Node, bool) {
	if n == nil || n.Kind != KindMapping {
		return nil, false
	}
	for _, entry := range n.Entries {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	return nil, false
}

// JSON serializes the node as two-space indented JSON.
// Mapping keys keep their source order, so the output is byte-for-byte
// reproducible for the same corpus input.
func (n *Node) JSON() string {
	var sb strings.Builder
	n.appendJSON(&sb, 0)
	return sb.String()
}

func (n *Node) appendJSON(sb *strings.Builder, indent int) {
	if n == nil {
		sb.WriteString("null")
		return
	}
	switch n.Kind {
	case KindMapping:
		if len(n.Entries) == 0 {
			sb.WriteString("{}")
			return
		}
		sb.WriteString("{\n")
		for i, entry := range n.Entries {
			writeIndent(sb, indent+1)
			sb.WriteString(jsonString(entry.Key))
			sb.WriteString(": ")
			entry.Value.appendJSON(sb, indent+1)
			if i < len(n.Entries)-1 {
				sb.WriteString(",")
			}
			sb.WriteString("\n")
		}
		writeIndent(sb, indent)
		sb.WriteString("}")
	case KindSequence:
		if len(n.Items) == 0 {
			sb.WriteString("[]")
			return
		}
		sb.WriteString("[\n")
		for i, item := range n.Items {
			writeIndent(sb, indent+1)
			item.appendJSON(sb, indent+1)
			if i < len(n.Items)-1 {
				sb.WriteString(",")
			}
			sb.WriteString("\n")
		}
		writeIndent(sb, indent)
		sb.WriteString("]")
	default:
		sb.WriteString(n.scalarJSON())
	}
}

// scalarJSON renders a scalar as a valid JSON token.
// Non-string scalars (int, float, bool, null) are emitted verbatim.
func (n *Node) scalarJSON() string {
	switch n.Tag {
	case "!!null":
		return "null"
	case "!!int", "!!float", "!!bool":
		return n.Value
	default:
		return jsonString(n.Value)
	}
}

func writeIndent(sb *strings.Builder, indent int) {
	for range indent {
		sb.WriteString("  ")
	}
}

func jsonString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		// json.Marshal of a string cannot fail
		return `""`
	}
	return string(b)
}

// Corpus is the parsed structured instruction document.
// The root is always a mapping of top-level section names.
type Corpus struct {
	Root *Node
}

// Section returns a top-level section by name.
func (c *Corpus) Section(name string) (*Node, bool) {
	if c == nil {
		return nil, false
	}
	return c.Root.Get(name)
}

// SectionNames returns all top-level section names in document order.
func (c *Corpus) SectionNames() []string {
	if c == nil || c.Root == nil || c.Root.Kind != KindMapping {
		return nil
	}
	names := make([]string, 0, len(c.Root.Entries))
	for _, entry := range c.Root.Entries {
		names = append(names, entry.Key)
	}
	return names
}
