// Package schema infers and merges structural type descriptors from
// populations of JSON bodies.
package schema

import (
	"encoding/json"
	"sort"
)

// Kind is the tag of a schema node.
type Kind int

const (
	// Unknown covers values whose type could not be established.
	Unknown Kind = iota
	// Object is a JSON object with named fields.
	Object
	// Array is a JSON array with a single element schema.
	Array
	// String is a JSON string.
	String
	// Number is a JSON number.
	Number
	// Boolean is a JSON boolean.
	Boolean
	// Null is a JSON null.
	Null
)

// String returns the JSON-schema style name of a kind.
func (k Kind) String() string {
	switch k {
	case Object:
		return "object"
	case Array:
		return "array"
	case String:
		return "string"
	case Number:
		return "number"
	case Boolean:
		return "boolean"
	case Null:
		return "null"
	default:
		return "unknown"
	}
}

// Node is a recursive type descriptor: an object with ordered fields, an
// array with an element schema, or a primitive kind.
type Node struct {
	Kind   Kind
	Fields map[string]*Node // set when Kind == Object
	Order  []string         // field insertion order for deterministic output
	Elem   *Node            // set when Kind == Array and a sample element existed
}

// Infer builds a schema node from one decoded JSON value. Arrays are
// inferred from their first element; empty arrays carry no element schema.
func Infer(v interface{}) *Node {
	switch val := v.(type) {
	case map[string]interface{}:
		n := &Node{Kind: Object, Fields: make(map[string]*Node)}
		for _, key := range sortedKeys(val) {
			n.Fields[key] = Infer(val[key])
			n.Order = append(n.Order, key)
		}
		return n
	case []interface{}:
		n := &Node{Kind: Array}
		if len(val) > 0 {
			n.Elem = Infer(val[0])
		}
		return n
	case string:
		return &Node{Kind: String}
	case bool:
		return &Node{Kind: Boolean}
	case float64, json.Number:
		return &Node{Kind: Number}
	case nil:
		return &Node{Kind: Null}
	default:
		return &Node{Kind: Unknown}
	}
}

// Merge folds src into dst and returns the result. Merging is total: two
// objects union their fields and recurse on shared keys; every other
// combination resolves last-write-wins in favor of src.
func Merge(dst, src *Node) *Node {
	if dst == nil {
		return src
	}
	if src == nil {
		return dst
	}
	if dst.Kind != Object || src.Kind != Object {
		return src
	}

	for _, key := range src.Order {
		if existing, ok := dst.Fields[key]; ok {
			dst.Fields[key] = Merge(existing, src.Fields[key])
		} else {
			dst.Fields[key] = src.Fields[key]
			dst.Order = append(dst.Order, key)
		}
	}
	return dst
}

// InferPopulation infers one merged schema from a population of raw bodies.
// Bodies that do not parse as JSON are excluded from the fold and tallied in
// the second result; an empty surviving population yields a nil schema.
// Empty bodies are absent data, not malformed, and are not counted.
func InferPopulation(bodies []string) (*Node, int) {
	var merged *Node
	malformed := 0
	for _, body := range bodies {
		if body == "" {
			continue
		}
		var v interface{}
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			malformed++
			continue
		}
		merged = Merge(merged, Infer(v))
	}
	return merged, malformed
}

// MarshalJSON renders the node in the conventional
// {"type": ..., "properties"/"items": ...} document shape.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.document())
}

func (n *Node) document() map[string]interface{} {
	doc := map[string]interface{}{"type": n.Kind.String()}
	switch n.Kind {
	case Object:
		props := make(map[string]interface{}, len(n.Fields))
		for _, key := range n.Order {
			props[key] = n.Fields[key].document()
		}
		doc["properties"] = props
	case Array:
		if n.Elem != nil {
			doc["items"] = n.Elem.document()
		}
	}
	return doc
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Go maps iterate in random order; sort for a deterministic field order.
	sort.Strings(keys)
	return keys
}
