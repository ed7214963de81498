package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies what a Value holds.
type Kind int

const (
	KindMissing Kind = iota
	KindNull
	KindScalar
	KindList
	KindNode
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindNode:
		return "node"
	default:
		return "missing"
	}
}

const redactedValue = "******"

// Value is an immutable view of one position of the configuration tree.
// The zero Value is the missing placeholder: every lookup on it returns
// another missing Value, so optional settings can be chained freely.
type Value struct {
	kind   Kind
	scalar any
	items  []Value
	keys   []string
	fields map[string]Value
}

// Kind reports what the value holds.
func (v Value) Kind() Kind {
	return v.kind
}

// Exists reports whether the value was present in the tree (a YAML null counts as present).
func (v Value) Exists() bool {
	return v.kind != KindMissing
}

// Truthy reports whether the value should enable an optional feature.
// Missing and null values, empty nodes and lists, empty strings, false and
// zero numbers are all falsy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindScalar:
		switch s := v.scalar.(type) {
		case string:
			return s != ""
		case bool:
			return s
		case int:
			return s != 0
		case int64:
			return s != 0
		case uint64:
			return s != 0
		case float64:
			return s != 0
		}
		return true
	case KindList:
		return len(v.items) > 0
	case KindNode:
		return len(v.keys) > 0
	default:
		return false
	}
}

// Get returns the child stored under key, or the missing value.
func (v Value) Get(key string) Value {
	if v.kind != KindNode {
		return Value{}
	}
	return v.fields[key]
}

// Path walks a dotted path such as "logger.file.level". Numeric segments
// index into lists.
func (v Value) Path(dotted string) Value {
	if dotted == "" {
		return v
	}
	cur := v
	for _, part := range strings.Split(dotted, ".") {
		if cur.kind == KindList {
			idx, err := strconv.Atoi(part)
			if err != nil {
				return Value{}
			}
			cur = cur.Index(idx)
			continue
		}
		cur = cur.Get(part)
	}
	return cur
}

// Index returns the i-th element of a list, or the missing value.
func (v Value) Index(i int) Value {
	if v.kind != KindList || i < 0 || i >= len(v.items) {
		return Value{}
	}
	return v.items[i]
}

// Len returns the number of entries of a node or list.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.items)
	case KindNode:
		return len(v.keys)
	default:
		return 0
	}
}

// Keys returns the keys of a node in document order.
func (v Value) Keys() []string {
	if v.kind != KindNode {
		return nil
	}
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

// Raw converts the value into plain Go values: scalars as decoded from YAML,
// lists as []any and nodes as map[string]any. Missing and null give nil.
func (v Value) Raw() any {
	switch v.kind {
	case KindScalar:
		return v.scalar
	case KindList:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.Raw()
		}
		return out
	case KindNode:
		out := make(map[string]any, len(v.keys))
		for _, key := range v.keys {
			out[key] = v.fields[key].Raw()
		}
		return out
	default:
		return nil
	}
}

// String returns the textual form of a scalar and "" for anything else.
func (v Value) String() string {
	if v.kind != KindScalar {
		return ""
	}
	if s, ok := v.scalar.(string); ok {
		return s
	}
	return fmt.Sprint(v.scalar)
}

// StringOr returns the scalar text or def when the value is not a scalar.
func (v Value) StringOr(def string) string {
	if v.kind != KindScalar {
		return def
	}
	return v.String()
}

// Int converts a numeric scalar, or a string holding an integer, to int.
func (v Value) Int() (int, bool) {
	if v.kind != KindScalar {
		return 0, false
	}
	switch s := v.scalar.(type) {
	case int:
		return s, true
	case int64:
		return int(s), true
	case uint64:
		return int(s), true
	case float64:
		if s == float64(int(s)) {
			return int(s), true
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, true
		}
	}
	return 0, false
}

// IntOr returns the integer value or def.
func (v Value) IntOr(def int) int {
	if n, ok := v.Int(); ok {
		return n
	}
	return def
}

// Float converts a numeric scalar, or a string holding a number, to float64.
func (v Value) Float() (float64, bool) {
	if v.kind != KindScalar {
		return 0, false
	}
	switch s := v.scalar.(type) {
	case int:
		return float64(s), true
	case int64:
		return float64(s), true
	case uint64:
		return float64(s), true
	case float64:
		return s, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// Bool converts a boolean scalar, or a string such as "true" or "0", to bool.
func (v Value) Bool() (bool, bool) {
	if v.kind != KindScalar {
		return false, false
	}
	switch s := v.scalar.(type) {
	case bool:
		return s, true
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// DurationOr parses a scalar such as "15s" as a duration. Plain numbers are
// read as seconds. Anything else returns def.
func (v Value) DurationOr(def time.Duration) time.Duration {
	if v.kind != KindScalar {
		return def
	}
	if s, ok := v.scalar.(string); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d
		}
	}
	if f, ok := v.Float(); ok {
		return time.Duration(f * float64(time.Second))
	}
	return def
}

// Redact returns a copy of v where every scalar below the given dotted paths
// is replaced by a fixed mask.
func (v Value) Redact(paths ...string) Value {
	out := v
	for _, path := range paths {
		out = out.replace(strings.Split(path, "."), func(target Value) Value {
			return target.masked()
		})
	}
	return out
}

func (v Value) masked() Value {
	switch v.kind {
	case KindScalar:
		return Value{kind: KindScalar, scalar: redactedValue}
	case KindList:
		items := make([]Value, len(v.items))
		for i, item := range v.items {
			items[i] = item.masked()
		}
		return Value{kind: KindList, items: items}
	case KindNode:
		fields := make(map[string]Value, len(v.keys))
		for _, key := range v.keys {
			fields[key] = v.fields[key].masked()
		}
		return Value{kind: KindNode, keys: v.keys, fields: fields}
	default:
		return v
	}
}

func (v Value) replace(path []string, fn func(Value) Value) Value {
	if len(path) == 0 {
		return fn(v)
	}
	child, ok := v.fields[path[0]]
	if v.kind != KindNode || !ok {
		return v
	}
	fields := make(map[string]Value, len(v.fields))
	for key, val := range v.fields {
		fields[key] = val
	}
	fields[path[0]] = child.replace(path[1:], fn)
	return Value{kind: KindNode, keys: v.keys, fields: fields}
}

// MarshalJSON renders the value keeping the document order of node keys.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindScalar:
		return json.Marshal(v.scalar)
	case KindList:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			data, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(data)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindNode:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, key := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			name, err := json.Marshal(key)
			if err != nil {
				return nil, err
			}
			buf.Write(name)
			buf.WriteByte(':')
			data, err := v.fields[key].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(data)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return []byte("null"), nil
	}
}
