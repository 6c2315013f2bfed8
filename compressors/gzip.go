package compressors

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

type GzipCompressor struct{}

func init() {
	RegisterCompressor("gzip", &GzipCompressor{})
}

func (c *GzipCompressor) Extension() string {
	return ".gz"
}

func (c *GzipCompressor) ValidateLevel(level int) error {
	if level == DefaultLevel {
		return nil
	}
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		return fmt.Errorf("gzip level %d out of range [%d, %d]", level, gzip.HuffmanOnly, gzip.BestCompression)
	}
	return nil
}

// Compress writes a gzip member with an empty header, so equal input always
// yields equal output.
func (c *GzipCompressor) Compress(dst io.Writer, src io.Reader, level int) (int64, error) {
	if level == DefaultLevel {
		level = gzip.DefaultCompression
	}
	gzWriter, err := gzip.NewWriterLevel(dst, level)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(gzWriter, src)
	if err != nil {
		gzWriter.Close()
		return n, err
	}
	if err := gzWriter.Close(); err != nil {
		return n, err
	}
	return n, nil
}

func (c *GzipCompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(src)
}
