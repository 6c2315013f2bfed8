package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	jserrors "github.com/bibin-skaria/jarslim/internal/errors"
	"github.com/bibin-skaria/jarslim/internal/types"
)

func TestNewStructuredLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewStructuredLogger("run-1", Options{Level: "debug", Format: FormatJSON, Output: &buf})
	if err != nil {
		t.Fatalf("NewStructuredLogger failed: %v", err)
	}

	task := types.NewArchiveTask("lib/a", ".jar", "/dist/lib/a.jar", "/dist", "/dist", ".gz")
	logger.ForTask(context.Background(), task).Debug("packing")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log line %q: %v", buf.String(), err)
	}

	expected := map[string]string{
		"message":   "packing",
		"level":     "debug",
		"component": "jarslim",
		"run_id":    "run-1",
		"archive":   "lib/a.jar",
	}
	for k, v := range expected {
		if entry[k] != v {
			t.Errorf("Expected %s=%q, got %v", k, v, entry[k])
		}
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("Expected timestamp field")
	}
}

func TestNewStructuredLogger_InvalidOptions(t *testing.T) {
	if _, err := NewStructuredLogger("", Options{Level: "loud"}); err == nil {
		t.Error("Expected error for invalid level")
	}
	if _, err := NewStructuredLogger("", Options{Format: "xml"}); err == nil {
		t.Error("Expected error for invalid format")
	}
}

func TestRunIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewStructuredLogger("", Options{Level: "info", Output: &buf})
	if err != nil {
		t.Fatalf("NewStructuredLogger failed: %v", err)
	}

	ctx := WithRunID(context.Background(), "ctx-run")
	if RunIDFrom(ctx) != "ctx-run" {
		t.Fatal("Run ID not stored in context")
	}

	logger.LogRunComplete(ctx, &types.RunResult{Mode: types.ModePack, Succeeded: 2})
	out := buf.String()
	if !strings.Contains(out, "run_id=ctx-run") {
		t.Errorf("Expected run_id in %q", out)
	}
	if !strings.Contains(out, "succeeded=2") {
		t.Errorf("Expected succeeded count in %q", out)
	}
}

func TestLogTask_FailureCategory(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewStructuredLogger("run-1", Options{Format: FormatJSON, Output: &buf})
	if err != nil {
		t.Fatalf("NewStructuredLogger failed: %v", err)
	}

	task := types.NewArchiveTask("lib/a", ".jar", "/dist/lib/a.jar", "/dist", "/dist", ".gz")
	logger.LogTask(context.Background(), &types.TaskResult{
		Task:  task,
		State: types.StateFailed,
		Error: jserrors.NewPackError(task.Candidate, io.ErrUnexpectedEOF),
	})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log line %q: %v", buf.String(), err)
	}
	if entry["category"] != "pack" {
		t.Errorf("Expected category pack, got %v", entry["category"])
	}
	if entry["level"] != "warning" || entry["message"] != "Archive failed" {
		t.Errorf("Unexpected entry %v", entry)
	}
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if a == "" || a == b {
		t.Errorf("Expected distinct run IDs, got %q and %q", a, b)
	}
}
