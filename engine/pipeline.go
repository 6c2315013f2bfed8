package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bibin-skaria/jarslim/codec"
	"github.com/bibin-skaria/jarslim/compressors"
	jserrors "github.com/bibin-skaria/jarslim/internal/errors"
	"github.com/bibin-skaria/jarslim/internal/fsutil"
	"github.com/bibin-skaria/jarslim/internal/logging"
	"github.com/bibin-skaria/jarslim/internal/types"
)

// Pipeline runs the per-archive state machine. Phase one (pack) only ever
// creates new files; phase two (normalize or compress) holds every
// destructive step. A Pipeline is safe for concurrent use by tasks with
// distinct relative paths.
type Pipeline struct {
	cfg        *types.RunConfiguration
	codec      codec.Codec
	compressor compressors.Compressor
	logger     *logging.StructuredLogger
}

// NewPipeline creates a pipeline. compressor may be nil when cfg does not
// compress.
func NewPipeline(cfg *types.RunConfiguration, c codec.Codec, compressor compressors.Compressor, logger *logging.StructuredLogger) (*Pipeline, error) {
	if cfg == nil || c == nil {
		return nil, fmt.Errorf("pipeline needs a configuration and a codec")
	}
	if cfg.Compress && !cfg.NormalizeOnly && compressor == nil {
		return nil, fmt.Errorf("compression enabled without a compressor")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pipeline{cfg: cfg, codec: c, compressor: compressor, logger: logger}, nil
}

type taskRun struct {
	result *types.TaskResult
	log    *logrus.Entry
}

func (r *taskRun) transition(s types.TaskState) {
	r.result.State = s
	r.result.Transitions = append(r.result.Transitions, s)
	r.log.WithField("state", s).Debug("State transition")
}

func (r *taskRun) fail(err error) {
	r.result.Error = err
	r.transition(types.StateFailed)
}

// Process runs one task to a terminal state. Errors are reported in the
// result, never returned, so one failing archive does not stop its siblings.
func (p *Pipeline) Process(ctx context.Context, task types.ArchiveTask) types.TaskResult {
	start := time.Now()
	run := &taskRun{
		result: &types.TaskResult{
			Task:        task,
			State:       types.StateStart,
			Transitions: []types.TaskState{types.StateStart},
		},
		log: p.logger.ForTask(ctx, task),
	}
	defer func() {
		run.result.Duration = time.Since(start)
	}()

	if err := ctx.Err(); err != nil {
		run.fail(jserrors.NewPackError(task.ArchivePath, err))
		return *run.result
	}

	run.log.WithField("pack", task.PackPath).Debug("Packing archive")
	size, err := p.pack(task)
	if err != nil {
		run.fail(err)
		return *run.result
	}
	run.result.BytesIn = size
	run.transition(types.StatePacked)

	switch {
	case p.cfg.NormalizeOnly:
		run.log.WithField("backup", task.BackupPath).Debug("Unpacking into archive path")
		n, err := p.normalize(task)
		if err != nil {
			run.fail(err)
			return *run.result
		}
		run.result.BytesOut = n
		run.transition(types.StateNormalizedDone)

	case !p.cfg.Compress:
		if info, err := os.Stat(task.PackPath); err == nil {
			run.result.BytesOut = info.Size()
		}
		run.transition(types.StateCompressSkipped)

	default:
		run.log.WithField("compressed", task.CompressedPath).Debug("Compressing packed archive")
		n, err := p.compress(task, run.log)
		if err != nil {
			run.fail(err)
			return *run.result
		}
		run.result.BytesOut = n
		run.transition(types.StateCompressedDone)
	}

	run.transition(types.StateDone)
	return *run.result
}

// pack writes the packed form next to its final path and publishes it only
// once the codec succeeded. The archive is never modified here.
func (p *Pipeline) pack(task types.ArchiveTask) (int64, error) {
	in, err := os.Open(task.ArchivePath)
	if err != nil {
		return 0, jserrors.NewPackError(task.ArchivePath, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, jserrors.NewPackError(task.ArchivePath, err)
	}

	out, err := fsutil.Stage(task.PackPath)
	if err != nil {
		return 0, jserrors.NewPackError(task.ArchivePath, err)
	}
	defer out.Abort()

	if err := p.codec.Pack(in, info.Size(), out); err != nil {
		return 0, jserrors.NewPackError(task.ArchivePath, err)
	}
	if err := out.Commit(); err != nil {
		return 0, jserrors.NewPackError(task.ArchivePath, err)
	}
	return info.Size(), nil
}

// normalize moves the archive aside and writes the unpacked form of its
// packed file in its place. The backup is left where it is on success and on
// failure.
func (p *Pipeline) normalize(task types.ArchiveTask) (int64, error) {
	if err := fsutil.RenameNoReplace(task.ArchivePath, task.BackupPath); err != nil {
		return 0, jserrors.NewBackupError(task.BackupPath, err)
	}

	packed, err := os.Open(task.PackPath)
	if err != nil {
		return 0, jserrors.NewNormalizeError(task.ArchivePath, err)
	}
	defer packed.Close()

	out, err := fsutil.Stage(task.ArchivePath)
	if err != nil {
		return 0, jserrors.NewNormalizeError(task.ArchivePath, err)
	}
	defer out.Abort()

	counter := &countingWriter{w: out}
	if err := p.codec.Unpack(packed, counter); err != nil {
		return 0, jserrors.NewNormalizeError(task.ArchivePath, err)
	}
	if err := out.Commit(); err != nil {
		return 0, jserrors.NewNormalizeError(task.ArchivePath, err)
	}
	return counter.n, nil
}

// compress publishes the compressed packed form, removes the intermediate
// packed file and puts back a backup left by an earlier normalize run. Nothing
// is removed or restored unless compression succeeded.
func (p *Pipeline) compress(task types.ArchiveTask, log *logrus.Entry) (int64, error) {
	n, err := p.writeCompressed(task)
	if err != nil {
		return 0, jserrors.NewCompressError(task.CompressedPath, err)
	}

	if err := os.Remove(task.PackPath); err != nil {
		return 0, jserrors.NewCompressError(task.PackPath, err)
	}

	exists, err := fsutil.Exists(task.BackupPath)
	if err != nil {
		return 0, jserrors.NewBackupError(task.BackupPath, err)
	}
	if exists {
		if err := os.Rename(task.BackupPath, task.ArchivePath); err != nil {
			return 0, jserrors.NewBackupError(task.BackupPath, err)
		}
		log.WithField("backup", task.BackupPath).Info("Restored original archive")
	}
	return n, nil
}

func (p *Pipeline) writeCompressed(task types.ArchiveTask) (int64, error) {
	packed, err := os.Open(task.PackPath)
	if err != nil {
		return 0, err
	}
	defer packed.Close()

	out, err := fsutil.Stage(task.CompressedPath)
	if err != nil {
		return 0, err
	}
	defer out.Abort()

	counter := &countingWriter{w: out}
	if _, err := p.compressor.Compress(counter, packed, p.cfg.CompressionLevel); err != nil {
		return 0, err
	}
	if err := out.Commit(); err != nil {
		return 0, err
	}
	return counter.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
