package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func jsonLogger(buf *bytes.Buffer, level Level) *Logger {
	return New(Config{Level: level, Pretty: false, Output: buf})
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf, InfoLevel)

	log.WithComponent("analyzer").WithHost("api.example.com").Info("host analyzed")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	if entry["component"] != "analyzer" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["host"] != "api.example.com" {
		t.Errorf("host = %v", entry["host"])
	}
	if entry["message"] != "host analyzed" {
		t.Errorf("message = %v", entry["message"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf, WarnLevel)

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("sub-level messages leaked: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("warn message missing: %s", out)
	}
}

func TestLogger_AnalysisEvent(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf, InfoLevel)

	log.AnalysisEvent("api.example.com", 120, 7, 42*time.Millisecond)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	if entry["exchanges"] != float64(120) || entry["endpoints"] != float64(7) {
		t.Errorf("entry = %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	if err != nil || level != DebugLevel {
		t.Errorf("ParseLevel(debug) = %v, %v", level, err)
	}
	if _, err := ParseLevel("nonsense"); err == nil {
		t.Error("ParseLevel should reject unknown levels")
	}
}
