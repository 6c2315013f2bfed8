// Package config turns defaults, an optional YAML file and command line
// overrides into the immutable configuration of one run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/bibin-skaria/jarslim/codec"
	"github.com/bibin-skaria/jarslim/compressors"
	jserrors "github.com/bibin-skaria/jarslim/internal/errors"
	"github.com/bibin-skaria/jarslim/internal/types"
	"github.com/bibin-skaria/jarslim/scanner"
)

const DefaultCompression = "gzip"

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// File is the mutable, on-disk shape of the configuration. Command line flags
// are applied on top of it before Resolve.
type File struct {
	Source           string             `yaml:"source"`
	Output           string             `yaml:"output"`
	Includes         []string           `yaml:"includes"`
	Excludes         []string           `yaml:"excludes"`
	NormalizeOnly    bool               `yaml:"-"` // set by the subcommand only
	Signed           string             `yaml:"signed"`
	Compress         bool               `yaml:"compress"`
	Compression      string             `yaml:"compression"`
	CompressionLevel int                `yaml:"compression_level"`
	Jobs             int                `yaml:"jobs"`
	Codec            types.CodecOptions `yaml:"codec"`
	Log              LogConfig          `yaml:"log"`
	MetricsFile      string             `yaml:"metrics_file"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() File {
	return File{
		Includes:         append([]string(nil), scanner.DefaultIncludes...),
		Compress:         true,
		Compression:      DefaultCompression,
		CompressionLevel: compressors.DefaultLevel,
		Jobs:             1,
		Codec:            codec.DefaultOptions(),
		Log:              LogConfig{Format: "text"},
	}
}

// Load reads path over the defaults. Keys the file does not set keep their
// default, unknown keys are an error.
func Load(path string) (File, error) {
	f := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return f, jserrors.NewConfigurationError("failed to read config file", err)
	}
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return f, jserrors.NewConfigurationError(fmt.Sprintf("invalid config file %s", path), err)
	}
	return f, nil
}

// Resolve validates f and returns the run configuration. Both roots are made
// absolute and an empty output root becomes the source root.
func Resolve(f File) (*types.RunConfiguration, error) {
	if strings.TrimSpace(f.Source) == "" {
		return nil, jserrors.NewConfigurationError("source directory is required", nil)
	}
	source, err := filepath.Abs(f.Source)
	if err != nil {
		return nil, jserrors.NewConfigurationError("invalid source directory", err)
	}

	output := source
	if strings.TrimSpace(f.Output) != "" {
		if output, err = filepath.Abs(f.Output); err != nil {
			return nil, jserrors.NewConfigurationError("invalid output directory", err)
		}
	}

	if err := codec.ValidateOptions(f.Codec); err != nil {
		return nil, jserrors.NewConfigurationError("invalid codec options", err)
	}

	name := f.Compression
	if name == "" {
		name = DefaultCompression
	}
	compressor, err := compressors.GetCompressor(name)
	if err != nil {
		return nil, jserrors.NewConfigurationError(
			fmt.Sprintf("unknown compression (available: %s)", strings.Join(compressors.ListCompressors(), ", ")), err)
	}
	if err := compressor.ValidateLevel(f.CompressionLevel); err != nil {
		return nil, jserrors.NewConfigurationError("invalid compression level", err)
	}

	if f.Jobs < 1 {
		return nil, jserrors.NewConfigurationError(fmt.Sprintf("jobs must be at least 1, got %d", f.Jobs), nil)
	}

	includes := f.Includes
	if len(includes) == 0 {
		includes = scanner.DefaultIncludes
	}
	if err := scanner.ValidatePatterns(includes); err != nil {
		return nil, jserrors.NewConfigurationError("invalid include pattern", err)
	}
	if err := scanner.ValidatePatterns(f.Excludes); err != nil {
		return nil, jserrors.NewConfigurationError("invalid exclude pattern", err)
	}

	codecOpts := f.Codec
	codecOpts.StripAttributes = append([]string(nil), f.Codec.StripAttributes...)

	return &types.RunConfiguration{
		SourceRoot:       source,
		OutputRoot:       output,
		Includes:         append([]string(nil), includes...),
		Excludes:         append([]string(nil), f.Excludes...),
		NormalizeOnly:    f.NormalizeOnly,
		Signed:           f.Signed,
		Compress:         f.Compress,
		Compression:      name,
		CompressionLevel: f.CompressionLevel,
		Jobs:             f.Jobs,
		Codec:            codecOpts,
	}, nil
}
