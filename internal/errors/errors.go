package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCategory identifies which step of a run produced an error
type ErrorCategory string

const (
	ErrorCategoryConfiguration ErrorCategory = "configuration"
	ErrorCategoryScan          ErrorCategory = "scan"
	ErrorCategoryPack          ErrorCategory = "pack"
	ErrorCategoryBackup        ErrorCategory = "backup"
	ErrorCategoryNormalize     ErrorCategory = "normalize"
	ErrorCategoryCompress      ErrorCategory = "compress"
	ErrorCategoryBatch         ErrorCategory = "batch"
	ErrorCategoryUnknown       ErrorCategory = "unknown"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	ErrorSeverityMedium   ErrorSeverity = "medium"
	ErrorSeverityHigh     ErrorSeverity = "high"
	ErrorSeverityCritical ErrorSeverity = "critical"
)

// Sentinels for errors.Is matching. A *BuildError matches the sentinel of its
// category, a *BatchFailure matches ErrBatch.
var (
	ErrConfiguration = stderrors.New("configuration error")
	ErrScan          = stderrors.New("scan error")
	ErrPack          = stderrors.New("pack error")
	ErrBackup        = stderrors.New("backup error")
	ErrNormalize     = stderrors.New("normalize error")
	ErrCompress      = stderrors.New("compress error")
	ErrBatch         = stderrors.New("batch failure")
)

var sentinels = map[ErrorCategory]error{
	ErrorCategoryConfiguration: ErrConfiguration,
	ErrorCategoryScan:          ErrScan,
	ErrorCategoryPack:          ErrPack,
	ErrorCategoryBackup:        ErrBackup,
	ErrorCategoryNormalize:     ErrNormalize,
	ErrorCategoryCompress:      ErrCompress,
	ErrorCategoryBatch:         ErrBatch,
}

// BuildError is a categorized error carrying the offending path and the
// underlying I/O or codec diagnostic.
type BuildError struct {
	Category   ErrorCategory `json:"category"`
	Severity   ErrorSeverity `json:"severity"`
	Operation  string        `json:"operation,omitempty"`
	Path       string        `json:"path,omitempty"`
	Message    string        `json:"message"`
	Cause      error         `json:"-"`
	Suggestion string        `json:"suggestion,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Error implements the error interface
func (e *BuildError) Error() string {
	msg := e.Message
	switch {
	case msg == "" && e.Cause != nil:
		msg = e.Cause.Error()
	case e.Cause != nil:
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}

	if e.Path != "" && e.Operation != "" {
		return fmt.Sprintf("[%s:%s] %s %s: %s", e.Category, e.Severity, e.Operation, e.Path, msg)
	} else if e.Path != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Severity, e.Path, msg)
	} else if e.Operation != "" {
		return fmt.Sprintf("[%s:%s] %s operation: %s", e.Category, e.Severity, e.Operation, msg)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Severity, msg)
}

// Unwrap returns the underlying error
func (e *BuildError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for this error's category.
func (e *BuildError) Is(target error) bool {
	s, ok := sentinels[e.Category]
	return ok && s == target
}

// GetUserFriendlyMessage returns the message followed by the suggestion, if any
func (e *BuildError) GetUserFriendlyMessage() string {
	msg := e.Error()
	if e.Suggestion != "" {
		msg += "\n\nSuggestion: " + e.Suggestion
	}
	return msg
}

// ErrorBuilder helps construct BuildError instances with proper categorization
type ErrorBuilder struct {
	category   ErrorCategory
	severity   ErrorSeverity
	operation  string
	path       string
	message    string
	cause      error
	suggestion string
}

// NewErrorBuilder creates a new error builder
func NewErrorBuilder() *ErrorBuilder {
	return &ErrorBuilder{}
}

func (b *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	b.category = category
	return b
}

func (b *ErrorBuilder) Severity(severity ErrorSeverity) *ErrorBuilder {
	b.severity = severity
	return b
}

func (b *ErrorBuilder) Operation(operation string) *ErrorBuilder {
	b.operation = operation
	return b
}

func (b *ErrorBuilder) Path(path string) *ErrorBuilder {
	b.path = path
	return b
}

func (b *ErrorBuilder) Message(message string) *ErrorBuilder {
	b.message = message
	return b
}

func (b *ErrorBuilder) Cause(err error) *ErrorBuilder {
	b.cause = err
	return b
}

func (b *ErrorBuilder) Suggestion(suggestion string) *ErrorBuilder {
	b.suggestion = suggestion
	return b
}

// Build creates the BuildError instance
func (b *ErrorBuilder) Build() *BuildError {
	if b.category == "" {
		b.category = categorizeError(b.operation)
	}
	if b.severity == "" {
		b.severity = determineSeverity(b.category)
	}

	return &BuildError{
		Category:   b.category,
		Severity:   b.severity,
		Operation:  b.operation,
		Path:       b.path,
		Message:    b.message,
		Cause:      b.cause,
		Suggestion: b.suggestion,
		Timestamp:  time.Now(),
	}
}

// categorizeError derives a category from the operation name when none was set
func categorizeError(operation string) ErrorCategory {
	op := strings.ToLower(operation)
	switch {
	case strings.Contains(op, "config"), strings.Contains(op, "validate"):
		return ErrorCategoryConfiguration
	case strings.Contains(op, "scan"):
		return ErrorCategoryScan
	case strings.Contains(op, "backup"), strings.Contains(op, "restore"):
		return ErrorCategoryBackup
	case strings.Contains(op, "normalize"), strings.Contains(op, "unpack"):
		return ErrorCategoryNormalize
	case strings.Contains(op, "pack"):
		return ErrorCategoryPack
	case strings.Contains(op, "compress"):
		return ErrorCategoryCompress
	default:
		return ErrorCategoryUnknown
	}
}

// determineSeverity: errors that prevent any archive from being processed are
// critical, per-archive errors are high.
func determineSeverity(category ErrorCategory) ErrorSeverity {
	switch category {
	case ErrorCategoryConfiguration, ErrorCategoryScan:
		return ErrorSeverityCritical
	case ErrorCategoryPack, ErrorCategoryBackup, ErrorCategoryNormalize,
		ErrorCategoryCompress, ErrorCategoryBatch:
		return ErrorSeverityHigh
	default:
		return ErrorSeverityMedium
	}
}

// NewConfigurationError creates an error for an invalid or missing setting
func NewConfigurationError(message string, cause error) *BuildError {
	return NewErrorBuilder().
		Category(ErrorCategoryConfiguration).
		Operation("validate").
		Message(message).
		Cause(cause).
		Suggestion("Check the source directory and option values").
		Build()
}

// NewScanError creates an error for a failed pattern resolution under root
func NewScanError(root string, cause error) *BuildError {
	return NewErrorBuilder().
		Category(ErrorCategoryScan).
		Operation("scan").
		Path(root).
		Message("failed to scan archive directory").
		Cause(cause).
		Suggestion("Check include/exclude patterns and directory permissions").
		Build()
}

// NewPackError creates an error for a failed pack step. The original archive
// is untouched when this is returned.
func NewPackError(path string, cause error) *BuildError {
	return NewErrorBuilder().
		Category(ErrorCategoryPack).
		Operation("pack").
		Path(path).
		Message("failed to pack archive").
		Cause(cause).
		Suggestion("Check that the file is a readable zip archive; use --exclude to skip it").
		Build()
}

// NewBackupError creates an error for a failed backup marker move
func NewBackupError(path string, cause error) *BuildError {
	return NewErrorBuilder().
		Category(ErrorCategoryBackup).
		Operation("backup").
		Path(path).
		Message("failed to move original archive aside").
		Cause(cause).
		Suggestion("Remove leftover *.original backup files from a previous run").
		Build()
}

// NewNormalizeError creates an error for a failed unpack into the archive path
func NewNormalizeError(path string, cause error) *BuildError {
	return NewErrorBuilder().
		Category(ErrorCategoryNormalize).
		Operation("normalize").
		Path(path).
		Message("failed to normalize archive").
		Cause(cause).
		Suggestion("The original archive is kept next to it as a backup; restore it manually").
		Build()
}

// NewCompressError creates an error for a failed compress/publish step
func NewCompressError(path string, cause error) *BuildError {
	return NewErrorBuilder().
		Category(ErrorCategoryCompress).
		Operation("compress").
		Path(path).
		Message("failed to compress packed archive").
		Cause(cause).
		Suggestion("Check free space and permissions in the output directory").
		Build()
}

// CategoryOf returns the category of err, or ErrorCategoryUnknown when err is
// not a BuildError.
func CategoryOf(err error) ErrorCategory {
	var bf *BatchFailure
	if stderrors.As(err, &bf) {
		return ErrorCategoryBatch
	}
	var be *BuildError
	if stderrors.As(err, &be) {
		return be.Category
	}
	return ErrorCategoryUnknown
}

// BatchFailure aggregates the per-archive failures of one run.
type BatchFailure struct {
	Failed    int
	Succeeded int
	FirstPath string
	First     error
}

func (f *BatchFailure) Error() string {
	return fmt.Sprintf("%d of %d archives failed (%d succeeded); first failure: %v",
		f.Failed, f.Failed+f.Succeeded, f.Succeeded, f.First)
}

func (f *BatchFailure) Unwrap() error {
	return f.First
}

func (f *BatchFailure) Is(target error) bool {
	return target == ErrBatch
}

// ErrorCollector collects per-archive outcomes during a run
type ErrorCollector struct {
	errors    []error
	paths     []string
	succeeded int
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{}
}

// AddError records a failed archive
func (c *ErrorCollector) AddError(path string, err error) {
	if err == nil {
		return
	}
	c.errors = append(c.errors, err)
	c.paths = append(c.paths, path)
}

// AddSuccess records a completed archive
func (c *ErrorCollector) AddSuccess() {
	c.succeeded++
}

// ToError folds the collected errors into a BatchFailure, or returns nil when
// every archive succeeded.
func (c *ErrorCollector) ToError() error {
	if len(c.errors) == 0 {
		return nil
	}
	return &BatchFailure{
		Failed:    len(c.errors),
		Succeeded: c.succeeded,
		FirstPath: c.paths[0],
		First:     c.errors[0],
	}
}
