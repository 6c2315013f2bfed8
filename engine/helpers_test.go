package engine

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/bibin-skaria/jarslim/codec"
	"github.com/bibin-skaria/jarslim/compressors"
	"github.com/bibin-skaria/jarslim/internal/types"
)

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "jarslim-engine-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func packConfig(src string) *types.RunConfiguration {
	return &types.RunConfiguration{
		SourceRoot:       src,
		OutputRoot:       src,
		Compress:         true,
		Compression:      "gzip",
		CompressionLevel: compressors.DefaultLevel,
		Jobs:             1,
		Codec:            codec.DefaultOptions(),
	}
}

func normalizeConfig(src string) *types.RunConfiguration {
	cfg := packConfig(src)
	cfg.NormalizeOnly = true
	cfg.Signed = "release"
	return cfg
}

func mustCodec(t *testing.T) *codec.JarCodec {
	t.Helper()
	c, err := codec.NewJarCodec(codec.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func packBytes(t *testing.T, c codec.Codec, archive []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Pack(bytes.NewReader(archive), int64(len(archive)), &buf); err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	return buf.Bytes()
}

func unpackBytes(t *testing.T, c codec.Codec, packed []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Unpack(bytes.NewReader(packed), &buf); err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	return buf.Bytes()
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return data
}

func readGzip(t *testing.T, path string) []byte {
	t.Helper()
	gz, _ := compressors.GetCompressor("gzip")
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rc, err := gz.Decompress(f)
	if err != nil {
		t.Fatalf("Failed to decompress %s: %v", path, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// listFiles returns the slash-separated relative paths of all files under dir.
func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(dir, p)
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(files)
	return files
}

func assertNoStagingLeftovers(t *testing.T, dir string) {
	t.Helper()
	for _, f := range listFiles(t, dir) {
		if strings.Contains(f, ".tmp-") {
			t.Errorf("Staging file left behind: %s", f)
		}
	}
}
