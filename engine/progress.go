package engine

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bibin-skaria/jarslim/internal/types"
)

// ProgressTracker prints one line per finished archive. It is safe for
// concurrent use.
type ProgressTracker struct {
	mutex     sync.Mutex
	output    io.Writer
	total     int
	completed int
	failed    int
	startTime time.Time
}

// NewProgressTracker creates a tracker writing to output. A nil output
// disables printing but keeps the counts.
func NewProgressTracker(output io.Writer) *ProgressTracker {
	return &ProgressTracker{output: output, startTime: time.Now()}
}

// Start resets the tracker for a run of total archives.
func (p *ProgressTracker) Start(total int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.total = total
	p.completed = 0
	p.failed = 0
	p.startTime = time.Now()
}

// TaskDone records one finished archive.
func (p *ProgressTracker) TaskDone(result *types.TaskResult) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.completed++
	mark := "✓"
	if !result.Success() {
		p.failed++
		mark = "✗"
	}

	if p.output != nil {
		fmt.Fprintf(p.output, "[%d/%d] %s %s (%s)\n",
			p.completed, p.total, mark, result.Task, result.Duration.Round(time.Millisecond))
	}
}

// Counts returns the finished and failed archive counts.
func (p *ProgressTracker) Counts() (completed, failed int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.completed, p.failed
}

// Finish prints the closing line.
func (p *ProgressTracker) Finish(success bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.output == nil {
		return
	}
	duration := time.Since(p.startTime).Round(time.Millisecond)
	if success {
		fmt.Fprintf(p.output, "✓ %d archives processed in %s\n", p.completed, duration)
	} else {
		fmt.Fprintf(p.output, "✗ %d of %d archives failed after %s\n", p.failed, p.completed, duration)
	}
}
