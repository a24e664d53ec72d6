package rpc

import (
	"fmt"
	"testing"
	"time"

	"github.com/PentesterFlow/OpenProfiler/internal/capture"
)

func jsonRPCCall(id, method, params string, seq int) capture.Exchange {
	body := fmt.Sprintf(`{"jsonrpc": "2.0", "method": %q, "params": %s, "id": %d}`, method, params, seq)
	return capture.Exchange{
		Request: capture.Request{
			ID:          id,
			Method:      "POST",
			Path:        "/rpc",
			URL:         "https://api.example.com/rpc",
			Host:        "api.example.com",
			Headers:     map[string]string{"Content-Type": "application/json"},
			BodyDecoded: body,
			Timestamp:   time.Date(2026, 8, 1, 12, 0, seq, 0, time.UTC),
		},
		Response: &capture.Response{
			StatusCode:  200,
			BodyDecoded: `{"jsonrpc": "2.0", "result": {"ok": true}, "id": 1}`,
			ElapsedMS:   12.5,
		},
	}
}

func TestAggregate(t *testing.T) {
	exchanges := []capture.Exchange{
		jsonRPCCall("r1", "getUser", `{"id": 1}`, 1),
		jsonRPCCall("r2", "getUser", `{"id": 2, "verbose": true}`, 2),
		jsonRPCCall("r3", "listUsers", `["admin"]`, 3),
		// Not an RPC call; must be skipped without error.
		{Request: capture.Request{ID: "r4", Method: "GET", Path: "/health", URL: "https://api.example.com/health", Host: "api.example.com"}},
	}

	a := Aggregate(exchanges)

	if a.TotalCalls != 3 {
		t.Errorf("TotalCalls = %d, want 3", a.TotalCalls)
	}
	if a.Unclassified != 1 {
		t.Errorf("Unclassified = %d, want 1", a.Unclassified)
	}
	if a.CallsByKind[KindJSONRPC] != 3 {
		t.Errorf("CallsByKind = %v, want 3 json-rpc", a.CallsByKind)
	}
	if len(a.KindsPresent) != 1 || a.KindsPresent[0] != KindJSONRPC {
		t.Errorf("KindsPresent = %v, want [json-rpc]", a.KindsPresent)
	}

	ep, ok := a.Endpoints["https://api.example.com/rpc:json-rpc"]
	if !ok {
		t.Fatalf("endpoint not keyed by url:kind, have %v", a.Endpoints)
	}

	getUser := ep.Methods["getUser"]
	if getUser == nil {
		t.Fatal("getUser method missing")
	}
	if getUser.CallCount != 2 {
		t.Errorf("getUser.CallCount = %d, want 2", getUser.CallCount)
	}
	if len(getUser.Examples) != 2 {
		t.Errorf("len(getUser.Examples) = %d, want 2", len(getUser.Examples))
	}
	if getUser.ParamTypes["id"] != "number" {
		t.Errorf("ParamTypes[id] = %q, want number", getUser.ParamTypes["id"])
	}
	if getUser.ParamTypes["verbose"] != "boolean" {
		t.Errorf("ParamTypes[verbose] = %q, want boolean", getUser.ParamTypes["verbose"])
	}

	listUsers := ep.Methods["listUsers"]
	if listUsers == nil {
		t.Fatal("listUsers method missing")
	}
	// Positional params are keyed by index.
	if listUsers.ParamTypes["0"] != "string" {
		t.Errorf("ParamTypes[0] = %q, want string", listUsers.ParamTypes["0"])
	}
}

func TestAggregate_ExampleWindow(t *testing.T) {
	var exchanges []capture.Exchange
	for i := 0; i < 14; i++ {
		exchanges = append(exchanges, jsonRPCCall(fmt.Sprintf("r%d", i), "ping", `{}`, i))
	}

	a := Aggregate(exchanges)
	ep := a.Endpoints["https://api.example.com/rpc:json-rpc"]
	m := ep.Methods["ping"]

	if m.CallCount != 14 {
		t.Errorf("CallCount = %d, want 14", m.CallCount)
	}
	if len(m.Examples) != maxExamples {
		t.Fatalf("len(Examples) = %d, want %d", len(m.Examples), maxExamples)
	}
	// Trailing window: the oldest examples are dropped from the front.
	if m.Examples[0].RequestID != "r4" {
		t.Errorf("Examples[0].RequestID = %q, want r4", m.Examples[0].RequestID)
	}
	if m.Examples[len(m.Examples)-1].RequestID != "r13" {
		t.Errorf("last example = %q, want r13", m.Examples[len(m.Examples)-1].RequestID)
	}
}

func TestAggregate_BatchCountsPerMethod(t *testing.T) {
	ex := capture.Exchange{
		Request: capture.Request{
			ID:          "b1",
			Method:      "POST",
			Path:        "/rpc",
			URL:         "https://api.example.com/rpc",
			Host:        "api.example.com",
			BodyDecoded: `[{"method": "a"}, {"method": "b"}, {"method": "a"}]`,
		},
	}

	a := Aggregate([]capture.Exchange{ex})
	if a.TotalCalls != 1 {
		t.Errorf("TotalCalls = %d, want 1", a.TotalCalls)
	}

	ep := a.Endpoints["https://api.example.com/rpc:json-rpc"]
	if ep.Methods["a"].CallCount != 2 {
		t.Errorf("a.CallCount = %d, want 2", ep.Methods["a"].CallCount)
	}
	if ep.Methods["b"].CallCount != 1 {
		t.Errorf("b.CallCount = %d, want 1", ep.Methods["b"].CallCount)
	}
}

func TestExtractResult(t *testing.T) {
	tests := []struct {
		name string
		body string
		want interface{}
	}{
		{"result member", `{"result": "ok"}`, "ok"},
		{"error member", `{"error": "boom"}`, "boom"},
		{"neither", `{"data": 1}`, nil},
		{"not json", `plain`, nil},
		{"empty", ``, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractResult(tt.body)
			if got != tt.want {
				t.Errorf("extractResult(%q) = %v, want %v", tt.body, got, tt.want)
			}
		})
	}
}

func TestJSONKind(t *testing.T) {
	tests := []struct {
		value interface{}
		want  string
	}{
		{"x", "string"},
		{float64(1), "number"},
		{true, "boolean"},
		{map[string]interface{}{}, "object"},
		{[]interface{}{}, "array"},
		{nil, "null"},
	}
	for _, tt := range tests {
		if got := jsonKind(tt.value); got != tt.want {
			t.Errorf("jsonKind(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}
