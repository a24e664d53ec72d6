package schema

import (
	"encoding/json"
	"testing"
)

func inferJSON(t *testing.T, raw string) *Node {
	t.Helper()
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("test body does not parse: %v", err)
	}
	return Infer(v)
}

func TestInfer_Primitives(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Kind
	}{
		{"string", `"hello"`, String},
		{"number", `42`, Number},
		{"float", `3.14`, Number},
		{"boolean", `true`, Boolean},
		{"null", `null`, Null},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inferJSON(t, tt.raw); got.Kind != tt.want {
				t.Errorf("Infer(%s).Kind = %v, want %v", tt.raw, got.Kind, tt.want)
			}
		})
	}
}

func TestInfer_Object(t *testing.T) {
	n := inferJSON(t, `{"id": 1, "name": "alice", "active": true}`)

	if n.Kind != Object {
		t.Fatalf("Kind = %v, want Object", n.Kind)
	}
	if len(n.Fields) != 3 {
		t.Fatalf("len(Fields) = %d, want 3", len(n.Fields))
	}
	if n.Fields["id"].Kind != Number {
		t.Errorf("id kind = %v, want Number", n.Fields["id"].Kind)
	}
	if n.Fields["name"].Kind != String {
		t.Errorf("name kind = %v, want String", n.Fields["name"].Kind)
	}
	if n.Fields["active"].Kind != Boolean {
		t.Errorf("active kind = %v, want Boolean", n.Fields["active"].Kind)
	}
}

func TestInfer_Array(t *testing.T) {
	n := inferJSON(t, `[{"id": 1}, {"id": 2}]`)
	if n.Kind != Array {
		t.Fatalf("Kind = %v, want Array", n.Kind)
	}
	if n.Elem == nil || n.Elem.Kind != Object {
		t.Fatal("array element should be inferred from the first member")
	}

	empty := inferJSON(t, `[]`)
	if empty.Kind != Array || empty.Elem != nil {
		t.Error("empty array should carry no element schema")
	}
}

func TestMerge_ObjectUnion(t *testing.T) {
	a := inferJSON(t, `{"id": 1, "name": "alice"}`)
	b := inferJSON(t, `{"id": 2, "email": "a@example.com"}`)

	merged := Merge(a, b)
	if merged.Kind != Object {
		t.Fatalf("merged kind = %v, want Object", merged.Kind)
	}
	for _, field := range []string{"id", "name", "email"} {
		if _, ok := merged.Fields[field]; !ok {
			t.Errorf("merged schema missing field %q", field)
		}
	}
	if merged.Fields["id"].Kind != Number {
		t.Errorf("id kind = %v, want Number", merged.Fields["id"].Kind)
	}
}

func TestMerge_LastWriteWins(t *testing.T) {
	tests := []struct {
		name string
		dst  string
		src  string
		want Kind
	}{
		{"number then string", `1`, `"x"`, String},
		{"string then object", `"x"`, `{"a": 1}`, Object},
		{"object then array", `{"a": 1}`, `[1]`, Array},
		{"array then null", `[1]`, `null`, Null},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(inferJSON(t, tt.dst), inferJSON(t, tt.src))
			if got.Kind != tt.want {
				t.Errorf("Merge kind = %v, want %v", got.Kind, tt.want)
			}
		})
	}
}

func TestMerge_NestedFieldConflict(t *testing.T) {
	a := inferJSON(t, `{"meta": {"count": 1}}`)
	b := inferJSON(t, `{"meta": {"count": "1"}}`)

	merged := Merge(a, b)
	if merged.Fields["meta"].Fields["count"].Kind != String {
		t.Error("shared nested field should resolve last-write-wins")
	}
}

func TestMerge_NeverFails(t *testing.T) {
	// Totality across nils and heterogeneous kinds.
	if Merge(nil, nil) != nil {
		t.Error("Merge(nil, nil) should be nil")
	}
	n := inferJSON(t, `{"a": 1}`)
	if Merge(nil, n) != n {
		t.Error("Merge(nil, n) should be n")
	}
	if Merge(n, nil) != n {
		t.Error("Merge(n, nil) should be n")
	}
}

func TestInferPopulation(t *testing.T) {
	bodies := []string{
		`{"id": 1, "name": "alice"}`,
		`not json at all`,
		`{"id": 2, "name": "bob", "admin": false}`,
		``,
	}

	n, malformed := InferPopulation(bodies)
	if n == nil {
		t.Fatal("InferPopulation returned nil for a parseable population")
	}
	if len(n.Fields) != 3 {
		t.Errorf("len(Fields) = %d, want 3", len(n.Fields))
	}
	// The empty body is absent data, not malformed.
	if malformed != 1 {
		t.Errorf("malformed = %d, want 1", malformed)
	}
}

func TestInferPopulation_Empty(t *testing.T) {
	if n, malformed := InferPopulation(nil); n != nil || malformed != 0 {
		t.Errorf("InferPopulation(nil) = %v, %d, want nil, 0", n, malformed)
	}
	if n, malformed := InferPopulation([]string{"garbage", ""}); n != nil || malformed != 1 {
		t.Errorf("InferPopulation(all malformed) = %v, %d, want nil, 1", n, malformed)
	}
}

func TestNode_MarshalJSON(t *testing.T) {
	n := inferJSON(t, `{"id": 1, "tags": ["a"]}`)

	data, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if doc["type"] != "object" {
		t.Errorf("type = %v, want object", doc["type"])
	}
	props, ok := doc["properties"].(map[string]interface{})
	if !ok {
		t.Fatal("properties missing")
	}
	id := props["id"].(map[string]interface{})
	if id["type"] != "number" {
		t.Errorf("id type = %v, want number", id["type"])
	}
	tags := props["tags"].(map[string]interface{})
	if tags["type"] != "array" {
		t.Errorf("tags type = %v, want array", tags["type"])
	}
	items := tags["items"].(map[string]interface{})
	if items["type"] != "string" {
		t.Errorf("tags items type = %v, want string", items["type"])
	}
}
