package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bibin-skaria/jarslim/codec"
	"github.com/bibin-skaria/jarslim/compressors"
	jserrors "github.com/bibin-skaria/jarslim/internal/errors"
	"github.com/bibin-skaria/jarslim/internal/logging"
	"github.com/bibin-skaria/jarslim/internal/types"
	"github.com/bibin-skaria/jarslim/scanner"
)

// RunnerOptions holds the collaborators of a Runner. Nil fields get
// defaults: a DirScanner, a JarCodec built from the run's codec options, a
// discarding logger and no metrics or progress output.
type RunnerOptions struct {
	Matcher  scanner.PatternMatcher
	Codec    codec.Codec
	Logger   *logging.StructuredLogger
	Metrics  *MetricsCollector
	Progress *ProgressTracker
}

// Runner discovers the archives of a run and feeds them to a Pipeline.
type Runner struct {
	matcher  scanner.PatternMatcher
	codec    codec.Codec
	logger   *logging.StructuredLogger
	metrics  *MetricsCollector
	progress *ProgressTracker
}

// NewRunner creates a runner.
func NewRunner(opts RunnerOptions) *Runner {
	r := &Runner{
		matcher:  opts.Matcher,
		codec:    opts.Codec,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		progress: opts.Progress,
	}
	if r.logger == nil {
		r.logger = logging.Discard()
	}
	if r.matcher == nil {
		r.matcher = &scanner.DirScanner{Log: r.logger.WithContext(context.Background())}
	}
	if r.progress == nil {
		r.progress = NewProgressTracker(nil)
	}
	return r
}

// Run processes every archive selected by cfg. Per-archive failures do not
// stop the run; they are folded into a *errors.BatchFailure once all
// archives were attempted. The returned RunResult is non-nil whenever the run
// got past configuration checks.
func (r *Runner) Run(ctx context.Context, cfg *types.RunConfiguration) (*types.RunResult, error) {
	start := time.Now()

	runID := logging.RunIDFrom(ctx)
	if runID == "" {
		runID = logging.NewRunID()
		ctx = logging.WithRunID(ctx, runID)
	}

	if err := checkSourceRoot(cfg); err != nil {
		return nil, err
	}

	result := &types.RunResult{RunID: runID, Mode: cfg.Mode()}

	if cfg.ShouldSkip() {
		result.Skipped = true
		result.Duration = time.Since(start)
		r.logger.LogRunComplete(ctx, result)
		r.metrics.RecordRun(result)
		return result, nil
	}

	// The output root is fixed here, before any archive is touched.
	runCfg := *cfg
	if runCfg.OutputRoot == "" {
		runCfg.OutputRoot = runCfg.SourceRoot
	}

	pipeline, compressedExt, err := r.newPipeline(&runCfg)
	if err != nil {
		return nil, err
	}

	candidates, err := r.matcher.Match(runCfg.SourceRoot, runCfg.Includes, runCfg.Excludes)
	if err != nil {
		return nil, jserrors.NewScanError(runCfg.SourceRoot, err)
	}

	r.logger.LogRunStart(ctx, &runCfg, len(candidates))
	r.progress.Start(len(candidates))

	result.Tasks = r.processAll(ctx, &runCfg, pipeline, candidates, compressedExt)

	collector := jserrors.NewErrorCollector()
	for i := range result.Tasks {
		task := &result.Tasks[i]
		if task.Success() {
			collector.AddSuccess()
			result.Succeeded++
		} else {
			collector.AddError(task.Task.Candidate, task.Error)
			result.Failed++
		}
	}
	result.Duration = time.Since(start)

	r.logger.LogRunComplete(ctx, result)
	r.metrics.RecordRun(result)
	r.progress.Finish(result.Success())

	return result, collector.ToError()
}

func checkSourceRoot(cfg *types.RunConfiguration) error {
	if cfg == nil {
		return jserrors.NewConfigurationError("missing run configuration", nil)
	}
	if cfg.SourceRoot == "" {
		return jserrors.NewConfigurationError("source directory is required", nil)
	}
	info, err := os.Stat(cfg.SourceRoot)
	if err != nil {
		return jserrors.NewConfigurationError("source directory is not accessible", err)
	}
	if !info.IsDir() {
		return jserrors.NewConfigurationError(fmt.Sprintf("source %s is not a directory", cfg.SourceRoot), nil)
	}
	return nil
}

func (r *Runner) newPipeline(cfg *types.RunConfiguration) (*Pipeline, string, error) {
	c := r.codec
	if c == nil {
		jc, err := codec.NewJarCodec(cfg.Codec)
		if err != nil {
			return nil, "", jserrors.NewConfigurationError("invalid codec options", err)
		}
		c = jc
	}

	var compressor compressors.Compressor
	var ext string
	if cfg.Compression != "" {
		comp, err := compressors.GetCompressor(cfg.Compression)
		if err != nil {
			return nil, "", jserrors.NewConfigurationError("invalid compression", err)
		}
		compressor, ext = comp, comp.Extension()
	}

	p, err := NewPipeline(cfg, c, compressor, r.logger)
	if err != nil {
		return nil, "", jserrors.NewConfigurationError("invalid pipeline setup", err)
	}
	return p, ext, nil
}

// processAll runs the tasks with up to cfg.Jobs archives in flight. Tasks
// deriving the same relative path share target files, so they run one after
// the other in discovery order and the last one wins. Results keep discovery
// order.
func (r *Runner) processAll(ctx context.Context, cfg *types.RunConfiguration, pipeline *Pipeline, candidates []string, compressedExt string) []types.TaskResult {
	results := make([]types.TaskResult, len(candidates))

	var chains [][]int
	chainOf := make(map[string]int)
	tasks := make([]types.ArchiveTask, len(candidates))

	for i, candidate := range candidates {
		task, err := DeriveTask(candidate, cfg.SourceRoot, cfg.OutputRoot, compressedExt)
		if err != nil {
			results[i] = types.TaskResult{
				Task:        types.ArchiveTask{Candidate: candidate, RelPath: candidate},
				State:       types.StateFailed,
				Transitions: []types.TaskState{types.StateStart, types.StateFailed},
				Error:       jserrors.NewPackError(candidate, err),
			}
			r.finish(ctx, cfg, &results[i])
			continue
		}
		tasks[i] = task

		if c, ok := chainOf[task.RelPath]; ok {
			r.logger.ForTask(ctx, task).WithFields(logrus.Fields{
				"collides_with": candidates[chains[c][len(chains[c])-1]],
				"rel_path":      task.RelPath,
			}).Warn("Archives share output paths, the later one overwrites the earlier")
			chains[c] = append(chains[c], i)
			continue
		}
		chainOf[task.RelPath] = len(chains)
		chains = append(chains, []int{i})
	}

	jobs := cfg.Jobs
	if jobs < 1 {
		jobs = 1
	}

	var g errgroup.Group
	g.SetLimit(jobs)
	for _, chain := range chains {
		g.Go(func() error {
			for _, i := range chain {
				results[i] = pipeline.Process(ctx, tasks[i])
				r.finish(ctx, cfg, &results[i])
			}
			return nil
		})
	}
	g.Wait()

	return results
}

func (r *Runner) finish(ctx context.Context, cfg *types.RunConfiguration, result *types.TaskResult) {
	r.logger.LogTask(ctx, result)
	r.metrics.RecordTask(cfg.Mode(), result)
	r.progress.TaskDone(result)
}
