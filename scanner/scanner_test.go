package scanner

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(f), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func relAll(t *testing.T, root string, files []string) []string {
	t.Helper()
	out := make([]string, len(files))
	for i, f := range files {
		if !filepath.IsAbs(f) {
			t.Errorf("Expected absolute path, got %s", f)
		}
		rel, err := filepath.Rel(root, f)
		if err != nil {
			t.Fatal(err)
		}
		out[i] = filepath.ToSlash(rel)
	}
	return out
}

func TestDirScanner_Match(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "scan_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	writeTree(t, tempDir,
		"a.jar",
		"lib/b.war",
		"lib/c.txt",
		"lib/deep/d.ear",
		"skip/e.jar",
		"lib/skip/f.jar",
		"lib/g.original.jar",
		"lib/h.pack.gz",
	)

	tests := []struct {
		name     string
		includes []string
		excludes []string
		expected []string
	}{
		{
			name:     "default includes",
			expected: []string{"a.jar", "lib/b.war", "lib/deep/d.ear", "lib/skip/f.jar", "skip/e.jar"},
		},
		{
			name:     "exclude skip directories",
			includes: []string{"**/*.jar"},
			excludes: []string{"**/skip/**"},
			expected: []string{"a.jar"},
		},
		{
			name:     "trailing slash means everything below",
			includes: []string{"lib/"},
			excludes: []string{"**/*.txt"},
			expected: []string{"lib/b.war", "lib/deep/d.ear", "lib/h.pack.gz", "lib/skip/f.jar"},
		},
		{
			name:     "already processed outputs",
			includes: []string{"**/*.pack.gz"},
			expected: []string{"lib/h.pack.gz"},
		},
	}

	scanner := NewDirScanner()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := scanner.Match(tempDir, tt.includes, tt.excludes)
			if err != nil {
				t.Fatalf("Match failed: %v", err)
			}
			got := relAll(t, tempDir, files)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestDirScanner_KeepBackups(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "scan_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	writeTree(t, tempDir, "a.jar", "a.original.jar")

	files, err := (&DirScanner{KeepBackups: true}).Match(tempDir, nil, nil)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("Expected backup marker to be kept, got %v", files)
	}
}

func TestDirScanner_LogsSkippedBackups(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "scan_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	writeTree(t, tempDir, "a.jar", "lib/foo.original.jar")

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	files, err := (&DirScanner{Log: logger}).Match(tempDir, nil, nil)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("Expected only a.jar, got %v", files)
	}

	entries := hook.AllEntries()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Level != logrus.DebugLevel || entries[0].Message != "Skipping backup marker" {
		t.Errorf("Unexpected log entry %s %q", entries[0].Level, entries[0].Message)
	}
	if entries[0].Data["path"] != "lib/foo.original.jar" {
		t.Errorf("Expected path lib/foo.original.jar, got %v", entries[0].Data["path"])
	}
}

func TestDirScanner_InvalidPattern(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "scan_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	if _, err := NewDirScanner().Match(tempDir, []string{"[a-"}, nil); err == nil {
		t.Error("Expected error for malformed include")
	}
	if _, err := NewDirScanner().Match(tempDir, nil, []string{" "}); err == nil {
		t.Error("Expected error for empty exclude")
	}
}

func TestDirScanner_MissingRoot(t *testing.T) {
	if _, err := NewDirScanner().Match(filepath.Join(os.TempDir(), "does-not-exist-jarslim"), nil, nil); err == nil {
		t.Error("Expected error for missing root")
	}
}

func TestNormalizePattern(t *testing.T) {
	tests := map[string]string{
		"**/*.jar":    "**/*.jar",
		"./lib/*.jar": "lib/*.jar",
		"/abs/":       "abs/**",
		`lib\*.jar`:   "lib/*.jar",
	}
	for in, want := range tests {
		if got := NormalizePattern(in); got != want {
			t.Errorf("NormalizePattern(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsBackupMarker(t *testing.T) {
	tests := map[string]bool{
		"a.original.jar":     true,
		"lib/b.original.war": true,
		"a.jar":              false,
		"original.jar":       false,
		"a.original.txt":     false,
	}
	for name, want := range tests {
		if got := IsBackupMarker(name); got != want {
			t.Errorf("IsBackupMarker(%q) = %v, want %v", name, got, want)
		}
	}
}
