package types

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	PackSuffix        = ".pack"
	OriginalSuffix    = ".original"
	DefaultArchiveExt = ".jar"
)

// Mode is the global mode of a run, decided once per invocation.
type Mode string

const (
	ModePack      Mode = "pack"
	ModeNormalize Mode = "normalize"
)

// CodecOptions carries the archive codec settings of a run.
type CodecOptions struct {
	Effort                 int      `json:"effort" yaml:"effort"`
	SegmentLimit           int64    `json:"segment_limit" yaml:"segment_limit"`
	KeepFileOrder          bool     `json:"keep_file_order" yaml:"keep_file_order"`
	ModificationTime       string   `json:"modification_time" yaml:"modification_time"`
	DeflateHint            string   `json:"deflate_hint" yaml:"deflate_hint"`
	StripAttributes        []string `json:"strip_attributes" yaml:"strip_attributes"`
	FailOnUnknownAttribute bool     `json:"fail_on_unknown_attribute" yaml:"fail_on_unknown_attribute"`
}

// RunConfiguration is the immutable option set of one invocation. It is built
// once by config.Resolve and only read afterwards, so it can be shared by
// concurrent tasks.
type RunConfiguration struct {
	SourceRoot       string       `json:"source_root"`
	OutputRoot       string       `json:"output_root"`
	Includes         []string     `json:"includes"`
	Excludes         []string     `json:"excludes"`
	NormalizeOnly    bool         `json:"normalize_only"`
	Signed           string       `json:"signed,omitempty"`
	Compress         bool         `json:"compress"`
	Compression      string       `json:"compression"`
	CompressionLevel int          `json:"compression_level"`
	Jobs             int          `json:"jobs"`
	Codec            CodecOptions `json:"codec"`
}

// Mode reports the global mode of the run.
func (c *RunConfiguration) Mode() Mode {
	if c.NormalizeOnly {
		return ModeNormalize
	}
	return ModePack
}

// ShouldSkip is true for normalize runs without a signing identity:
// normalization only matters ahead of signing.
func (c *RunConfiguration) ShouldSkip() bool {
	return c.NormalizeOnly && strings.TrimSpace(c.Signed) == ""
}

// ArchiveTask is one archive's unit of work. RelPath is slash-separated,
// relative to the roots and carries no archive or pack extension.
type ArchiveTask struct {
	RelPath    string `json:"rel_path"`
	ArchiveExt string `json:"archive_ext"`
	Candidate  string `json:"candidate"`

	ArchivePath    string `json:"archive_path"`
	PackPath       string `json:"pack_path"`
	CompressedPath string `json:"compressed_path"`
	BackupPath     string `json:"backup_path"`
}

// NewArchiveTask derives the four absolute paths of an archive from its
// relative path. compressedExt is the compressor's extension, e.g. ".gz".
func NewArchiveTask(relPath, archiveExt, candidate, sourceRoot, outputRoot, compressedExt string) ArchiveTask {
	if archiveExt == "" {
		archiveExt = DefaultArchiveExt
	}
	native := filepath.FromSlash(relPath)
	return ArchiveTask{
		RelPath:        relPath,
		ArchiveExt:     archiveExt,
		Candidate:      candidate,
		ArchivePath:    filepath.Join(sourceRoot, native+archiveExt),
		PackPath:       filepath.Join(outputRoot, native+PackSuffix),
		CompressedPath: filepath.Join(outputRoot, native+PackSuffix+compressedExt),
		BackupPath:     filepath.Join(sourceRoot, native+OriginalSuffix+archiveExt),
	}
}

func (t ArchiveTask) String() string {
	return t.RelPath + t.ArchiveExt
}

// TaskState is a state of the per-archive transformation state machine.
type TaskState string

const (
	StateStart           TaskState = "start"
	StatePacked          TaskState = "packed"
	StateNormalizedDone  TaskState = "normalized"
	StateCompressedDone  TaskState = "compressed"
	StateCompressSkipped TaskState = "compress_skipped"
	StateDone            TaskState = "done"
	StateFailed          TaskState = "failed"
)

// IsTerminal reports whether no further transition can happen from s.
func (s TaskState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// TaskResult is the outcome of one archive.
type TaskResult struct {
	Task        ArchiveTask   `json:"task"`
	State       TaskState     `json:"state"`
	Transitions []TaskState   `json:"transitions"`
	Error       error         `json:"-"`
	BytesIn     int64         `json:"bytes_in"`
	BytesOut    int64         `json:"bytes_out"`
	Duration    time.Duration `json:"duration"`
}

// Success reports whether the task reached Done.
func (r *TaskResult) Success() bool {
	return r.State == StateDone
}

// Reached reports whether the task passed through state s.
func (r *TaskResult) Reached(s TaskState) bool {
	for _, t := range r.Transitions {
		if t == s {
			return true
		}
	}
	return false
}

// RunResult is the outcome of one invocation.
type RunResult struct {
	RunID     string        `json:"run_id"`
	Mode      Mode          `json:"mode"`
	Skipped   bool          `json:"skipped"`
	Tasks     []TaskResult  `json:"tasks"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Success reports whether every task reached Done.
func (r *RunResult) Success() bool {
	return r.Failed == 0
}

func (r *RunResult) Summary() string {
	if r.Skipped {
		return fmt.Sprintf("%s skipped: no signing identity configured", r.Mode)
	}
	return fmt.Sprintf("%s: %d archives, %d succeeded, %d failed in %s",
		r.Mode, len(r.Tasks), r.Succeeded, r.Failed, r.Duration.Round(time.Millisecond))
}
