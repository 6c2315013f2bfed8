package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestBuildError_Error(t *testing.T) {
	tests := []struct {
		name     string
		error    *BuildError
		expected string
	}{
		{
			name: "path and operation",
			error: &BuildError{
				Category:  ErrorCategoryPack,
				Severity:  ErrorSeverityHigh,
				Operation: "pack",
				Path:      "/dist/lib/a.jar",
				Message:   "failed to pack archive",
				Cause:     io.ErrUnexpectedEOF,
			},
			expected: "[pack:high] pack /dist/lib/a.jar: failed to pack archive: unexpected EOF",
		},
		{
			name: "path only",
			error: &BuildError{
				Category: ErrorCategoryBackup,
				Severity: ErrorSeverityHigh,
				Path:     "/dist/a.jar",
				Message:  "marker exists",
			},
			expected: "[backup:high] /dist/a.jar: marker exists",
		},
		{
			name: "operation only",
			error: &BuildError{
				Category:  ErrorCategoryConfiguration,
				Severity:  ErrorSeverityCritical,
				Operation: "validate",
				Message:   "effort out of range",
			},
			expected: "[configuration:critical] validate operation: effort out of range",
		},
		{
			name: "cause without message",
			error: &BuildError{
				Category: ErrorCategoryUnknown,
				Severity: ErrorSeverityMedium,
				Cause:    io.EOF,
			},
			expected: "[unknown:medium] EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.error.Error(); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestBuildError_IsSentinel(t *testing.T) {
	tests := []struct {
		err      *BuildError
		sentinel error
	}{
		{NewConfigurationError("bad", nil), ErrConfiguration},
		{NewScanError("/root", io.EOF), ErrScan},
		{NewPackError("/a.jar", io.EOF), ErrPack},
		{NewBackupError("/a.jar", io.EOF), ErrBackup},
		{NewNormalizeError("/a.jar", io.EOF), ErrNormalize},
		{NewCompressError("/a.pack", io.EOF), ErrCompress},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Category), func(t *testing.T) {
			wrapped := fmt.Errorf("task: %w", tt.err)
			if !stderrors.Is(wrapped, tt.sentinel) {
				t.Errorf("Expected %v to match %v", tt.err, tt.sentinel)
			}
			if stderrors.Is(wrapped, ErrBatch) {
				t.Error("Per-archive error should not match ErrBatch")
			}
			if tt.err.Cause != nil && !stderrors.Is(wrapped, tt.err.Cause) {
				t.Error("Expected cause to be reachable through Unwrap")
			}
		})
	}
}

func TestErrorBuilder(t *testing.T) {
	err := NewErrorBuilder().
		Operation("restore").
		Path("/dist/a.jar").
		Message("cannot restore a.original.jar").
		Build()

	if err.Category != ErrorCategoryBackup {
		t.Errorf("Expected category %v, got %v", ErrorCategoryBackup, err.Category)
	}
	if err.Severity != ErrorSeverityHigh {
		t.Errorf("Expected severity %v, got %v", ErrorSeverityHigh, err.Severity)
	}
	if err.Message != "cannot restore a.original.jar" {
		t.Errorf("Unexpected message %q", err.Message)
	}
	if err.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		operation string
		expected  ErrorCategory
	}{
		{"load_config", ErrorCategoryConfiguration},
		{"scan", ErrorCategoryScan},
		{"backup", ErrorCategoryBackup},
		{"unpack", ErrorCategoryNormalize},
		{"pack", ErrorCategoryPack},
		{"compress", ErrorCategoryCompress},
		{"something", ErrorCategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.operation, func(t *testing.T) {
			if got := categorizeError(tt.operation); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestSeverity(t *testing.T) {
	if NewConfigurationError("x", nil).Severity != ErrorSeverityCritical {
		t.Error("Configuration errors should be critical")
	}
	if NewScanError("/r", nil).Severity != ErrorSeverityCritical {
		t.Error("Scan errors should be critical")
	}
	if NewPackError("/a.jar", nil).Severity != ErrorSeverityHigh {
		t.Error("Pack errors should be high")
	}
}

func TestErrorCollector(t *testing.T) {
	collector := NewErrorCollector()
	if collector.ToError() != nil {
		t.Fatal("Empty collector should not produce an error")
	}

	collector.AddSuccess()
	first := NewPackError("/dist/b.jar", io.ErrUnexpectedEOF)
	collector.AddError("/dist/b.jar", first)
	collector.AddSuccess()
	collector.AddError("/dist/d.jar", NewCompressError("/dist/d.pack", io.EOF))
	collector.AddError("/dist/e.jar", nil)

	err := collector.ToError()
	var bf *BatchFailure
	if !stderrors.As(err, &bf) {
		t.Fatalf("Expected BatchFailure, got %T", err)
	}
	if bf.Failed != 2 || bf.Succeeded != 2 {
		t.Errorf("Expected 2 failed/2 succeeded, got %d/%d", bf.Failed, bf.Succeeded)
	}
	if bf.FirstPath != "/dist/b.jar" {
		t.Errorf("Unexpected first path %s", bf.FirstPath)
	}
	if !stderrors.Is(err, ErrBatch) || !stderrors.Is(err, ErrPack) {
		t.Error("BatchFailure should match ErrBatch and the first failure's sentinel")
	}
	if !strings.Contains(err.Error(), "2 of 4 archives failed") {
		t.Errorf("Unexpected summary %q", err.Error())
	}
	if CategoryOf(err) != ErrorCategoryBatch {
		t.Errorf("Expected batch category, got %v", CategoryOf(err))
	}
}

func TestGetUserFriendlyMessage(t *testing.T) {
	err := NewBackupError("/dist/a.jar", io.EOF)
	msg := err.GetUserFriendlyMessage()
	if !strings.Contains(msg, "Suggestion: Remove leftover") {
		t.Errorf("Expected suggestion in %q", msg)
	}

	bare := NewErrorBuilder().Operation("pack").Message("boom").Build()
	if bare.GetUserFriendlyMessage() != bare.Error() {
		t.Errorf("Expected no suggestion, got %q", bare.GetUserFriendlyMessage())
	}
}
