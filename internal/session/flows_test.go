package session

import (
	"reflect"
	"testing"
	"time"

	"github.com/PentesterFlow/OpenProfiler/internal/capture"
)

func TestNewFlowTemplate_AnchorsPatterns(t *testing.T) {
	tmpl := NewFlowTemplate("t", FlowStep{PathPattern: `/login`, Method: "GET"})

	if !tmpl.Steps[0].re.MatchString("/login") {
		t.Error("pattern should match its own path")
	}
	if !tmpl.Steps[0].re.MatchString("/login?next=/home") {
		t.Error("anchored prefix match should tolerate trailing content")
	}
	if tmpl.Steps[0].re.MatchString("/app/login") {
		t.Error("pattern must be anchored at the start of the path")
	}
}

func TestDefaultCatalog(t *testing.T) {
	catalog := DefaultCatalog()
	if len(catalog) != 5 {
		t.Fatalf("len(catalog) = %d, want 5", len(catalog))
	}
	names := map[string]bool{}
	for _, tmpl := range catalog {
		names[tmpl.Name] = true
		if len(tmpl.Steps) < 2 {
			t.Errorf("template %q has %d steps, want at least 2", tmpl.Name, len(tmpl.Steps))
		}
		for _, step := range tmpl.Steps {
			if step.re == nil {
				t.Errorf("template %q has an uncompiled step", tmpl.Name)
			}
		}
	}
	for _, want := range []string{"User Login Flow", "Checkout Flow", "User Registration", "Password Reset", "API CRUD Operations"} {
		if !names[want] {
			t.Errorf("catalog missing %q", want)
		}
	}
}

func TestExtractStepData(t *testing.T) {
	ex := &capture.Exchange{
		Request: capture.Request{
			Path:      "/api/users/42/orders/7",
			Timestamp: time.Now(),
		},
		Response: &capture.Response{
			StatusCode:  200,
			BodyDecoded: `{"token": "tok-1", "order_id": 7, "unrelated": "x"}`,
		},
	}

	data := extractStepData(ex)
	if data == nil {
		t.Fatal("extractStepData() = nil, want data")
	}
	if want := []string{"42", "7"}; !reflect.DeepEqual(data["extracted_ids"], want) {
		t.Errorf("extracted_ids = %v, want %v", data["extracted_ids"], want)
	}
	if data["token"] != "tok-1" {
		t.Errorf("token = %v, want tok-1", data["token"])
	}
	if data["order_id"] != float64(7) {
		t.Errorf("order_id = %v, want 7", data["order_id"])
	}
	if _, ok := data["unrelated"]; ok {
		t.Error("non-correlation keys must not be copied")
	}
}

func TestExtractStepData_Empty(t *testing.T) {
	ex := &capture.Exchange{Request: capture.Request{Path: "/about"}}
	if data := extractStepData(ex); data != nil {
		t.Errorf("extractStepData() = %v, want nil", data)
	}
}

func TestIsSuccessful(t *testing.T) {
	tests := []struct {
		name     string
		statuses []int
		want     bool
	}{
		{"all ok", []int{200, 201, 302}, true},
		{"middle failure", []int{200, 500, 200}, false},
		{"final failure", []int{200, 200, 403}, false},
		{"final missing response", []int{200, 200, 0}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := make([]MatchedStep, 0, len(tt.statuses))
			for i, status := range tt.statuses {
				steps = append(steps, MatchedStep{Order: i, StatusCode: status})
			}
			if got := isSuccessful(steps); got != tt.want {
				t.Errorf("isSuccessful(%v) = %v, want %v", tt.statuses, got, tt.want)
			}
		})
	}
}
