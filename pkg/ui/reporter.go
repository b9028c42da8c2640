package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"gphotofetch/pkg/models"
)

// ReporterOptions configures a Reporter
type ReporterOptions struct {
	// Output defaults to os.Stderr
	Output io.Writer
	// UpdateInterval defaults to 500ms
	UpdateInterval time.Duration
	// Interactive redraws a single status line; otherwise a line is
	// printed per bucket only
	Interactive bool
	// Verbose prints one line per finished item
	Verbose bool
}

// Reporter shows run progress. Workers only touch atomic counters; the
// terminal is written from the reporter's own goroutine.
type Reporter struct {
	opts ReporterOptions

	bucket     atomic.Value // string
	bucketIdx  atomic.Int64
	bucketsN   atomic.Int64
	queued     atomic.Int64
	done       atomic.Int64
	downloaded atomic.Int64
	skipped    atomic.Int64
	failed     atomic.Int64
	bytes      atomic.Int64

	mu        sync.Mutex
	startTime time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopped   bool
}

// NewReporter creates a reporter
func NewReporter(opts ReporterOptions) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}
	r := &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	r.bucket.Store("")
	return r
}

// Start begins rendering
func (r *Reporter) Start() {
	r.startTime = time.Now()
	go r.updateLoop()
}

// Stop stops rendering and prints a final line. Safe to call twice.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// BucketStarted announces a month and the number of items queued for it
func (r *Reporter) BucketStarted(bucket models.MonthBucket, index, total, items int) {
	r.bucket.Store(bucket.String())
	r.bucketIdx.Store(int64(index))
	r.bucketsN.Store(int64(total))
	r.queued.Add(int64(items))

	if !r.opts.Interactive {
		r.mu.Lock()
		fmt.Fprintf(r.opts.Output, "%s %s (%d/%d): %d items\n",
			Cyan("[month]"), bucket, index, total, items)
		r.mu.Unlock()
	}
}

// BucketFailed reports a month whose listing could not be obtained
func (r *Reporter) BucketFailed(bucket models.MonthBucket, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLine()
	fmt.Fprintf(r.opts.Output, "%s %s: %v\n", Red("[failed]"), bucket, err)
}

// TaskDone records one finished item
func (r *Reporter) TaskDone(res models.TaskResult) {
	r.done.Add(1)
	switch res.Outcome {
	case models.OutcomeDownloaded:
		r.downloaded.Add(1)
		r.bytes.Add(res.Bytes)
	case models.OutcomeSkipped:
		r.skipped.Add(1)
	case models.OutcomeFailed:
		r.failed.Add(1)
	}

	if r.opts.Verbose || res.Outcome == models.OutcomeFailed {
		r.mu.Lock()
		r.clearLine()
		r.printItem(res)
		r.mu.Unlock()
	}
}

func (r *Reporter) printItem(res models.TaskResult) {
	switch res.Outcome {
	case models.OutcomeDownloaded:
		fmt.Fprintf(r.opts.Output, "%s %s • %s\n", Green("✓"), res.Task.Path, humanize.Bytes(uint64(res.Bytes)))
	case models.OutcomeSkipped:
		fmt.Fprintf(r.opts.Output, "%s %s\n", Dim("="), res.Task.Path)
	case models.OutcomeFailed:
		fmt.Fprintf(r.opts.Output, "%s %s: %v\n", Red("✗"), res.Task.Record.Filename, res.Err)
	}
}

func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			if r.opts.Interactive {
				r.mu.Lock()
				r.clearLine()
				r.mu.Unlock()
			}
			return
		case <-ticker.C:
			if r.opts.Interactive {
				r.mu.Lock()
				fmt.Fprint(r.opts.Output, "\r"+r.StatusLine())
				r.mu.Unlock()
			}
		}
	}
}

// StatusLine renders the current counters
func (r *Reporter) StatusLine() string {
	queued := r.queued.Load()
	done := r.done.Load()

	progress := 0.0
	if queued > 0 {
		progress = float64(done) / float64(queued)
	}
	const barWidth = 20
	filled := int(progress * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	line := fmt.Sprintf("%s (%d/%d) [%s] %d/%d • %s",
		Cyan(r.bucket.Load().(string)),
		r.bucketIdx.Load(),
		r.bucketsN.Load(),
		bar,
		done,
		queued,
		humanize.Bytes(uint64(r.bytes.Load())),
	)
	if elapsed := time.Since(r.startTime); elapsed > time.Second {
		rate := float64(r.bytes.Load()) / elapsed.Seconds()
		line += fmt.Sprintf(" • %s/s", humanize.Bytes(uint64(rate)))
	}
	if f := r.failed.Load(); f > 0 {
		line += " • " + Red(fmt.Sprintf("%d failed", f))
	}
	return line
}

func (r *Reporter) clearLine() {
	if r.opts.Interactive {
		fmt.Fprintf(r.opts.Output, "\r%s\r", strings.Repeat(" ", 100))
	}
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
