package settings

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	mergeTag      = "!!merge"
	maxRefDepth   = 8
	stringTag     = "!!str"
	mappingTag    = "!!map"
	nullTag       = "!!null"
	interpolation = "{}"
)

var refPattern = regexp.MustCompile(`\{\{|\}\}|\{([A-Za-z0-9_\-]+(?:\.[A-Za-z0-9_\-]+)*)\}`)

func newMapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: mappingTag}
}

func newDocument() *yaml.Node {
	return &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{newMapping()}}
}

func stringNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: stringTag, Value: s}
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func isMapping(n *yaml.Node) bool {
	n = resolveAlias(n)
	return n != nil && n.Kind == yaml.MappingNode
}

func isNull(n *yaml.Node) bool {
	n = resolveAlias(n)
	return n == nil || (n.Kind == yaml.ScalarNode && n.ShortTag() == nullTag)
}

// lookup returns the value node stored under key in a mapping node.
func lookup(m *yaml.Node, key string) *yaml.Node {
	m = resolveAlias(m)
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// setChild replaces the value under key in place, or appends the pair.
func setChild(m *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = value
			return
		}
	}
	m.Content = append(m.Content, stringNode(key), value)
}

func lookupPath(root *yaml.Node, dotted string) *yaml.Node {
	cur := root
	for _, part := range strings.Split(dotted, ".") {
		cur = lookup(cur, part)
		if cur == nil {
			return nil
		}
	}
	return resolveAlias(cur)
}

func encodeNode(value any) (*yaml.Node, error) {
	switch v := value.(type) {
	case *yaml.Node:
		return v, nil
	case Value:
		value = v.Raw()
	}
	var n yaml.Node
	if err := n.Encode(value); err != nil {
		return nil, err
	}
	return &n, nil
}

// snapshotBuilder converts the live tree into Values, resolving {path}
// references against the root of the tree.
type snapshotBuilder struct {
	root *yaml.Node
}

func newSnapshot(root *yaml.Node) Value {
	b := snapshotBuilder{root: root}
	return b.build(root, 0)
}

func (b snapshotBuilder) build(n *yaml.Node, depth int) Value {
	n = resolveAlias(n)
	if n == nil {
		return Value{}
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Value{kind: KindNode, fields: map[string]Value{}}
		}
		return b.build(n.Content[0], depth)
	case yaml.MappingNode:
		return b.buildNode(n, depth)
	case yaml.SequenceNode:
		items := make([]Value, 0, len(n.Content))
		for _, item := range n.Content {
			items = append(items, b.build(item, depth))
		}
		return Value{kind: KindList, items: items}
	case yaml.ScalarNode:
		return b.buildScalar(n, depth)
	default:
		return Value{}
	}
}

func (b snapshotBuilder) buildNode(n *yaml.Node, depth int) Value {
	out := Value{kind: KindNode, fields: make(map[string]Value, len(n.Content)/2)}
	add := func(key string, val Value) {
		if _, ok := out.fields[key]; !ok {
			out.keys = append(out.keys, key)
		}
		out.fields[key] = val
	}

	// Merged mappings come first so explicit keys override them.
	for i := 0; i+1 < len(n.Content); i += 2 {
		if !isMergeKey(n.Content[i]) {
			continue
		}
		for _, src := range mergeSources(n.Content[i+1]) {
			merged := b.buildNode(src, depth)
			for _, key := range merged.keys {
				add(key, merged.fields[key])
			}
		}
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if isMergeKey(n.Content[i]) {
			continue
		}
		add(n.Content[i].Value, b.build(n.Content[i+1], depth))
	}
	return out
}

func isMergeKey(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == mergeTag
}

func mergeSources(n *yaml.Node) []*yaml.Node {
	n = resolveAlias(n)
	if n == nil {
		return nil
	}
	if n.Kind == yaml.MappingNode {
		return []*yaml.Node{n}
	}
	var out []*yaml.Node
	if n.Kind == yaml.SequenceNode {
		for _, item := range n.Content {
			if item = resolveAlias(item); item != nil && item.Kind == yaml.MappingNode {
				out = append(out, item)
			}
		}
	}
	return out
}

func (b snapshotBuilder) buildScalar(n *yaml.Node, depth int) Value {
	var raw any
	if err := n.Decode(&raw); err != nil {
		return Value{kind: KindScalar, scalar: n.Value}
	}
	if raw == nil {
		return Value{kind: KindNull}
	}
	if s, ok := raw.(string); ok {
		raw = b.interpolate(s, depth)
	}
	return Value{kind: KindScalar, scalar: raw}
}

// interpolate replaces {dotted.path} references with the text of the
// referenced scalar. Unknown or non-scalar references stay verbatim.
func (b snapshotBuilder) interpolate(s string, depth int) string {
	if !strings.ContainsAny(s, interpolation) || depth >= maxRefDepth {
		return s
	}
	return refPattern.ReplaceAllStringFunc(s, func(match string) string {
		switch match {
		case "{{":
			return "{"
		case "}}":
			return "}"
		}
		target := lookupPath(b.root, match[1:len(match)-1])
		if target == nil || target.Kind != yaml.ScalarNode || isNull(target) {
			return match
		}
		return b.buildScalar(target, depth+1).String()
	})
}
