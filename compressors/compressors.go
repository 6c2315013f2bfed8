package compressors

import (
	"fmt"
	"io"
	"sort"
)

// DefaultLevel asks a compressor for its own default level.
const DefaultLevel = -1

// Compressor is a stateless byte-stream compression transform.
type Compressor interface {
	// Extension is appended to the packed file name, e.g. ".gz".
	Extension() string
	ValidateLevel(level int) error
	Compress(dst io.Writer, src io.Reader, level int) (int64, error)
	Decompress(src io.Reader) (io.ReadCloser, error)
}

var compressors = make(map[string]Compressor)

func RegisterCompressor(name string, compressor Compressor) {
	compressors[name] = compressor
}

func GetCompressor(name string) (Compressor, error) {
	compressor, exists := compressors[name]
	if !exists {
		return nil, fmt.Errorf("compressor %s not found", name)
	}
	return compressor, nil
}

func ListCompressors() []string {
	names := make([]string, 0, len(compressors))
	for name := range compressors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
