package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bibin-skaria/jarslim/compressors"
	"github.com/bibin-skaria/jarslim/engine"
	"github.com/bibin-skaria/jarslim/internal/config"
	jserrors "github.com/bibin-skaria/jarslim/internal/errors"
	"github.com/bibin-skaria/jarslim/internal/logging"
	"github.com/bibin-skaria/jarslim/internal/types"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", userMessage(err))
		os.Exit(1)
	}
}

// userMessage renders err for the terminal. Categorized errors carry their
// suggestion; a batch failure is already itemized by the summary.
func userMessage(err error) string {
	var bf *jserrors.BatchFailure
	if errors.As(err, &bf) {
		return bf.Error()
	}
	var be *jserrors.BuildError
	if errors.As(err, &be) {
		return be.GetUserFriendlyMessage()
	}
	return err.Error()
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jarslim",
		Short: "Pack, compress and normalize Java archives",
		Long: `jarslim turns jar, war and ear archives into a compact packed form,
optionally compressed, or normalizes them in place so that they survive a
pack/unpack round trip unchanged after signing.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newPackCommand())
	cmd.AddCommand(newNormalizeCommand())

	return cmd
}

// runOptions holds the flag values shared by all subcommands.
type runOptions struct {
	configPath       string
	output           string
	includes         []string
	excludes         []string
	effort           int
	segmentLimit     int64
	keepFileOrder    bool
	modificationTime string
	deflateHint      string
	stripAttributes  []string
	failOnUnknown    bool
	compress         bool
	compression      string
	compressionLevel int
	jobs             int
	metricsFile      string
	logLevel         string
	logFormat        string
	progress         bool
	signed           string
}

func newPackCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "pack [dir]",
		Short: "Pack archives and compress the packed form",
		Long: `Pack every archive under dir (default: current directory) into
<name>.pack and, unless --compress=false, compress it into <name>.pack.gz and
remove the intermediate file. A backup left by an earlier normalize run is
moved back over the archive afterwards.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args, false)
		},
	}

	addSharedFlags(cmd, opts)
	return cmd
}

func newNormalizeCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "normalize [dir]",
		Short: "Rewrite archives into their normalized form ahead of signing",
		Long: `Replace every archive under dir with the unpack of its packed form and
keep the original next to it as <name>.original.<ext>. Without --signed the
command does nothing, since normalization only matters for archives that are
signed afterwards.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args, true)
		},
	}

	addSharedFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.signed, "signed", "", "Signing identity; normalization is skipped when empty")
	return cmd
}

func addSharedFlags(cmd *cobra.Command, opts *runOptions) {
	d := config.Defaults()

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output directory (default: the source directory)")
	cmd.Flags().StringArrayVar(&opts.includes, "include", d.Includes, "Include pattern, relative to the source directory")
	cmd.Flags().StringArrayVar(&opts.excludes, "exclude", nil, "Exclude pattern, relative to the source directory")
	cmd.Flags().IntVar(&opts.effort, "effort", d.Codec.Effort, "Packing effort (0 stores the archive as is)")
	cmd.Flags().Int64Var(&opts.segmentLimit, "segment-limit", d.Codec.SegmentLimit, "Segment size limit in bytes (-1 unbounded, 0 one segment per entry)")
	cmd.Flags().BoolVar(&opts.keepFileOrder, "keep-file-order", d.Codec.KeepFileOrder, "Keep the entry order of the archive")
	cmd.Flags().StringVar(&opts.modificationTime, "modification-time", d.Codec.ModificationTime, "Entry times: latest or keep")
	cmd.Flags().StringVar(&opts.deflateHint, "deflate-hint", d.Codec.DeflateHint, "Entry compression on unpack: true, false or keep")
	cmd.Flags().StringArrayVar(&opts.stripAttributes, "strip-attribute", d.Codec.StripAttributes, "Attribute to remove from method Code attributes")
	cmd.Flags().BoolVar(&opts.failOnUnknown, "fail-on-unknown-attribute", d.Codec.FailOnUnknownAttribute, "Fail on non-standard class file attributes")
	cmd.Flags().BoolVar(&opts.compress, "compress", d.Compress, "Compress the packed form")
	cmd.Flags().StringVar(&opts.compression, "compression", d.Compression, fmt.Sprintf("Compression algorithm %v", compressors.ListCompressors()))
	cmd.Flags().IntVar(&opts.compressionLevel, "compression-level", d.CompressionLevel, "Compression level (-1 for the algorithm default)")
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", d.Jobs, "Archives processed in parallel")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level (default: $LOG_LEVEL or info)")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", d.Log.Format, "Log format: text or json")
	cmd.Flags().BoolVar(&opts.progress, "progress", true, "Print one line per archive")
}

// buildFile layers defaults, the config file and explicitly set flags, in
// that order.
func buildFile(cmd *cobra.Command, opts *runOptions, args []string, normalize bool) (config.File, error) {
	f := config.Defaults()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return f, err
		}
		f = loaded
	}

	if len(args) > 0 {
		f.Source = args[0]
	}
	if f.Source == "" {
		f.Source = "."
	}
	f.NormalizeOnly = normalize

	flags := cmd.Flags()
	if flags.Changed("output") {
		f.Output = opts.output
	}
	if flags.Changed("include") {
		f.Includes = opts.includes
	}
	if flags.Changed("exclude") {
		f.Excludes = opts.excludes
	}
	if flags.Changed("effort") {
		f.Codec.Effort = opts.effort
	}
	if flags.Changed("segment-limit") {
		f.Codec.SegmentLimit = opts.segmentLimit
	}
	if flags.Changed("keep-file-order") {
		f.Codec.KeepFileOrder = opts.keepFileOrder
	}
	if flags.Changed("modification-time") {
		f.Codec.ModificationTime = opts.modificationTime
	}
	if flags.Changed("deflate-hint") {
		f.Codec.DeflateHint = opts.deflateHint
	}
	if flags.Changed("strip-attribute") {
		f.Codec.StripAttributes = opts.stripAttributes
	}
	if flags.Changed("fail-on-unknown-attribute") {
		f.Codec.FailOnUnknownAttribute = opts.failOnUnknown
	}
	if flags.Changed("compress") {
		f.Compress = opts.compress
	}
	if flags.Changed("compression") {
		f.Compression = opts.compression
	}
	if flags.Changed("compression-level") {
		f.CompressionLevel = opts.compressionLevel
	}
	if flags.Changed("jobs") {
		f.Jobs = opts.jobs
	}
	if flags.Changed("metrics-file") {
		f.MetricsFile = opts.metricsFile
	}
	if flags.Changed("log-level") {
		f.Log.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		f.Log.Format = opts.logFormat
	}
	if flags.Lookup("signed") != nil && flags.Changed("signed") {
		f.Signed = opts.signed
	}
	return f, nil
}

func run(cmd *cobra.Command, opts *runOptions, args []string, normalize bool) error {
	f, err := buildFile(cmd, opts, args, normalize)
	if err != nil {
		return err
	}

	cfg, err := config.Resolve(f)
	if err != nil {
		return err
	}

	runID := logging.NewRunID()
	logger, err := logging.NewStructuredLogger(runID, logging.Options{
		Level:  f.Log.Level,
		Format: logging.Format(f.Log.Format),
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	var progressOut io.Writer
	if opts.progress {
		progressOut = cmd.OutOrStdout()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithRunID(ctx, runID)

	metrics := engine.NewMetricsCollector()
	runner := engine.NewRunner(engine.RunnerOptions{
		Logger:   logger,
		Metrics:  metrics,
		Progress: engine.NewProgressTracker(progressOut),
	})

	result, runErr := runner.Run(ctx, cfg)

	if f.MetricsFile != "" {
		if err := metrics.WriteTextfile(f.MetricsFile); err != nil {
			logger.WithContext(ctx).WithError(err).Warn("Failed to write metrics file")
		}
	}

	if result != nil {
		printSummary(cmd.OutOrStdout(), result)
	}
	return runErr
}

func printSummary(w io.Writer, result *types.RunResult) {
	fmt.Fprintln(w, result.Summary())
	if result.Skipped {
		return
	}

	var in, out int64
	for _, task := range result.Tasks {
		if task.Success() {
			in += task.BytesIn
			out += task.BytesOut
		}
	}
	if in > 0 {
		fmt.Fprintf(w, "Bytes: %d -> %d (%.1f%%)\n", in, out, 100*float64(out)/float64(in))
	}
	for _, task := range result.Tasks {
		if !task.Success() {
			fmt.Fprintf(w, "  ✗ %s: %s\n", task.Task, userMessage(task.Error))
		}
	}
}
