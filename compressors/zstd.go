package compressors

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

type ZstdCompressor struct{}

func init() {
	RegisterCompressor("zstd", &ZstdCompressor{})
}

func (c *ZstdCompressor) Extension() string {
	return ".zst"
}

// ValidateLevel accepts zstd's native 1-22 scale.
func (c *ZstdCompressor) ValidateLevel(level int) error {
	if level == DefaultLevel {
		return nil
	}
	if level < 1 || level > 22 {
		return fmt.Errorf("zstd level %d out of range [1, 22]", level)
	}
	return nil
}

func (c *ZstdCompressor) Compress(dst io.Writer, src io.Reader, level int) (int64, error) {
	opts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
	if level != DefaultLevel {
		opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	}

	encoder, err := zstd.NewWriter(dst, opts...)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(encoder, src)
	if err != nil {
		encoder.Close()
		return n, err
	}
	if err := encoder.Close(); err != nil {
		return n, err
	}
	return n, nil
}

func (c *ZstdCompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(src)
	if err != nil {
		return nil, err
	}
	return decoder.IOReadCloser(), nil
}
