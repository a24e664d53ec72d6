package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type doc struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"YAML", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(FormatJSON, true).Write(&buf, doc{Name: "a", Count: 2}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	var got doc
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid json: %v", err)
	}
	if got.Name != "a" || got.Count != 2 {
		t.Errorf("round trip = %+v", got)
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Error("pretty output should be indented")
	}
}

func TestWrite_YAML(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(FormatYAML, false).Write(&buf, doc{Name: "a", Count: 2}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	var got doc
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid yaml: %v", err)
	}
	if got.Name != "a" || got.Count != 2 {
		t.Errorf("round trip = %+v", got)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "profile.json")
	if err := NewWriter(FormatJSON, false).WriteFile(path, doc{Name: "x"}); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("output file missing: %v", err)
	}
	if !strings.Contains(string(data), `"name":"x"`) {
		t.Errorf("file content = %s", data)
	}
}
