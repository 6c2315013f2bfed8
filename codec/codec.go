// Package codec implements the archive pack/unpack transform. The packed form
// is a tar stream of the archive's entries with normalized metadata; unpacking
// it yields a byte-canonical zip archive, which is what signing needs.
package codec

import (
	"fmt"
	"io"
	"strings"

	"github.com/bibin-skaria/jarslim/internal/types"
)

const (
	ModificationTimeLatest = "latest"
	ModificationTimeKeep   = "keep"

	DeflateHintTrue  = "true"
	DeflateHintFalse = "false"
	DeflateHintKeep  = "keep"

	MaxEffort = 9
)

// DefaultStripAttributes are the debug attributes removed from method Code
// unless configured otherwise.
var DefaultStripAttributes = []string{"SourceFile", "LineNumberTable", "LocalVariableTable", "Deprecated"}

// Packer turns an archive into its packed form.
type Packer interface {
	Pack(archive io.ReaderAt, size int64, packed io.Writer) error
}

// Unpacker turns a packed form back into an archive.
type Unpacker interface {
	Unpack(packed io.Reader, archive io.Writer) error
}

// Codec is the pair of transforms a pipeline needs. Pack followed by Unpack
// yields an archive that is semantically equivalent to the input.
type Codec interface {
	Packer
	Unpacker
}

// DefaultOptions returns the codec defaults.
func DefaultOptions() types.CodecOptions {
	return types.CodecOptions{
		Effort:                 7,
		SegmentLimit:           -1,
		KeepFileOrder:          false,
		ModificationTime:       ModificationTimeLatest,
		DeflateHint:            DeflateHintFalse,
		StripAttributes:        append([]string(nil), DefaultStripAttributes...),
		FailOnUnknownAttribute: true,
	}
}

// ValidateOptions checks option values the codec cannot work with.
func ValidateOptions(opts types.CodecOptions) error {
	if opts.Effort < 0 || opts.Effort > MaxEffort {
		return fmt.Errorf("effort %d out of range [0, %d]", opts.Effort, MaxEffort)
	}
	if opts.SegmentLimit < -1 {
		return fmt.Errorf("segment limit %d must be -1 (unbounded) or >= 0", opts.SegmentLimit)
	}
	switch opts.ModificationTime {
	case ModificationTimeLatest, ModificationTimeKeep:
	default:
		return fmt.Errorf("modification time %q must be %q or %q", opts.ModificationTime, ModificationTimeLatest, ModificationTimeKeep)
	}
	switch opts.DeflateHint {
	case DeflateHintTrue, DeflateHintFalse, DeflateHintKeep:
	default:
		return fmt.Errorf("deflate hint %q must be %q, %q or %q", opts.DeflateHint, DeflateHintTrue, DeflateHintFalse, DeflateHintKeep)
	}
	for _, name := range opts.StripAttributes {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("empty attribute name in strip list")
		}
	}
	return nil
}
