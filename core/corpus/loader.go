// Package corpus parses the structured instruction document into an
// order-preserving tree. YAML and JSON sources are both accepted; key order
// of every mapping is kept as authored, so downstream serialization is
// byte-for-byte reproducible.
package corpus

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/siherrmann/playbook/helper"
	"github.com/siherrmann/playbook/model"
)

// Load reads and parses a corpus document from a file.
func Load(path string) (*model.Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, helper.NewError("read corpus file", err)
	}
	return Parse(data)
}

// Parse parses a serialized corpus document.
// The document root must be a key-value mapping of section names; anything
// else fails with model.ErrCorpusParse.
func Parse(data []byte) (*model.Corpus, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCorpusParse, err)
	}

	root := resolve(&doc)
	if root == nil {
		return nil, fmt.Errorf("%w: document is empty", model.ErrCorpusParse)
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: document root must be a mapping, got %s", model.ErrCorpusParse, kindName(root.Kind))
	}

	node, err := buildNode(root)
	if err != nil {
		return nil, err
	}

	return &model.Corpus{Root: node}, nil
}

// resolve unwraps document and alias nodes down to the content node.
func resolve(n *yaml.Node) *yaml.Node {
	for n != nil {
		switch n.Kind {
		case yaml.DocumentNode:
			if len(n.Content) == 0 {
				return nil
			}
			n = n.Content[0]
		case yaml.AliasNode:
			n = n.Alias
		default:
			return n
		}
	}
	return nil
}

func buildNode(n *yaml.Node) (*model.Node, error) {
	n = resolve(n)
	if n == nil {
		return nil, fmt.Errorf("%w: unresolvable node", model.ErrCorpusParse)
	}

	switch n.Kind {
	case yaml.MappingNode:
		node := &model.Node{Kind: model.KindMapping}
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode := resolve(n.Content[i])
			if keyNode == nil || keyNode.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("%w: mapping key at line %d is not a scalar", model.ErrCorpusParse, n.Content[i].Line)
			}
			value, err := buildNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			node.Entries = append(node.Entries, model.MapEntry{Key: keyNode.Value, Value: value})
		}
		return node, nil
	case yaml.SequenceNode:
		node := &model.Node{Kind: model.KindSequence}
		for _, item := range n.Content {
			value, err := buildNode(item)
			if err != nil {
				return nil, err
			}
			node.Items = append(node.Items, value)
		}
		return node, nil
	case yaml.ScalarNode:
		return &model.Node{Kind: model.KindScalar, Value: n.Value, Tag: n.Tag}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported node kind at line %d", model.ErrCorpusParse, n.Line)
	}
}

func kindName(k yaml.Kind) string {
	switch k {
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
