package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	jserrors "github.com/bibin-skaria/jarslim/internal/errors"
	"github.com/bibin-skaria/jarslim/internal/types"
)

type runIDKey struct{}

// Format selects the log output encoding
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures a StructuredLogger. Empty Level falls back to LOG_LEVEL
// and then to info.
type Options struct {
	Level  string
	Format Format
	Output io.Writer
}

// StructuredLogger wraps a logrus logger with run-scoped fields
type StructuredLogger struct {
	logger *logrus.Logger
	runID  string
}

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return uuid.NewString()
}

// WithRunID stores the run identifier in ctx
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the run identifier stored in ctx, if any
func RunIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(runIDKey{}).(string); ok {
		return v
	}
	return ""
}

// NewStructuredLogger creates a logger for one run
func NewStructuredLogger(runID string, opts Options) (*StructuredLogger, error) {
	logger := logrus.New()

	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	} else {
		logger.SetOutput(os.Stderr)
	}

	switch Format(strings.ToLower(string(opts.Format))) {
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	case FormatText, "":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	level := opts.Level
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if level == "" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logLevel, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %v", level, err)
		}
		logger.SetLevel(logLevel)
	}

	return &StructuredLogger{logger: logger, runID: runID}, nil
}

// Discard returns a logger that drops everything, for tests and library use
func Discard() *StructuredLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &StructuredLogger{logger: logger}
}

// WithContext returns an entry carrying the run fields
func (s *StructuredLogger) WithContext(ctx context.Context) *logrus.Entry {
	entry := s.logger.WithField("component", "jarslim")

	runID := s.runID
	if id := RunIDFrom(ctx); id != "" {
		runID = id
	}
	if runID != "" {
		entry = entry.WithField("run_id", runID)
	}
	return entry
}

// ForTask returns an entry scoped to one archive
func (s *StructuredLogger) ForTask(ctx context.Context, task types.ArchiveTask) *logrus.Entry {
	return s.WithContext(ctx).WithField("archive", task.String())
}

// LogRunStart logs the start of a run
func (s *StructuredLogger) LogRunStart(ctx context.Context, cfg *types.RunConfiguration, candidates int) {
	s.WithContext(ctx).WithFields(logrus.Fields{
		"event":      "run_start",
		"mode":       cfg.Mode(),
		"source":     cfg.SourceRoot,
		"output":     cfg.OutputRoot,
		"candidates": candidates,
	}).Info(fmt.Sprintf("%s %d files", verb(cfg.Mode()), candidates))
}

// LogTask logs the outcome of one archive
func (s *StructuredLogger) LogTask(ctx context.Context, result *types.TaskResult) {
	entry := s.ForTask(ctx, result.Task).WithFields(logrus.Fields{
		"event":     "task_complete",
		"state":     result.State,
		"bytes_in":  result.BytesIn,
		"bytes_out": result.BytesOut,
		"duration":  result.Duration.String(),
	})

	if result.Success() {
		entry.Info("Archive processed")
	} else {
		entry.WithFields(logrus.Fields{
			"error":    result.Error,
			"category": jserrors.CategoryOf(result.Error),
		}).Warn("Archive failed")
	}
}

// LogRunComplete logs the completion of a run
func (s *StructuredLogger) LogRunComplete(ctx context.Context, result *types.RunResult) {
	entry := s.WithContext(ctx).WithFields(logrus.Fields{
		"event":     "run_complete",
		"mode":      result.Mode,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
		"duration":  result.Duration.String(),
	})

	if result.Success() {
		entry.Info(result.Summary())
	} else {
		entry.Error(result.Summary())
	}
}

func verb(mode types.Mode) string {
	if mode == types.ModeNormalize {
		return "normalizing"
	}
	return "packing"
}
