package downloader

import (
	"context"
	"sync/atomic"
	"time"

	"gphotofetch/pkg/logger"
	"gphotofetch/pkg/models"
	"gphotofetch/pkg/ratelimit"
	"gphotofetch/pkg/retry"
)

// DefaultMaxConcurrency caps the worker count when Options leave it unset
const DefaultMaxConcurrency = 32

// Progress observes finished tasks. TaskDone is called from the
// dispatcher goroutine, never concurrently.
type Progress interface {
	TaskDone(res models.TaskResult)
}

// Options configures a Dispatcher
type Options struct {
	MaxConcurrency int
	// Attempts per item for retryable errors
	RetryAttempts int
	Backoff       retry.BackoffStrategy
	RateLimiter   ratelimit.Limiter
	Progress      Progress
	Logger        logger.Logger
}

// Dispatcher runs download tasks on a bounded worker pool
type Dispatcher struct {
	client  MediaDownloader
	storage MediaStorage
	opts    Options

	total     atomic.Int64
	completed atomic.Int64
}

// NewDispatcher creates a dispatcher
func NewDispatcher(client MediaDownloader, storage MediaStorage, opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 1
	}
	if opts.Backoff == nil {
		opts.Backoff = retry.NewErrorTypeBackoff()
	}
	return &Dispatcher{client: client, storage: storage, opts: opts}
}

// Workers returns the pool size used for a requested concurrency
func (d *Dispatcher) Workers(concurrency int) int {
	n := concurrency
	if n > d.opts.MaxConcurrency {
		n = d.opts.MaxConcurrency
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Total returns the number of tasks handed to Run so far
func (d *Dispatcher) Total() int64 {
	return d.total.Load()
}

// Completed returns the number of tasks finished so far
func (d *Dispatcher) Completed() int64 {
	return d.completed.Load()
}

// Run executes every task and returns the counter increments together with
// the failed results. A failing task never stops its siblings. When ctx is
// cancelled the remaining tasks are reported as failed without being
// attempted.
func (d *Dispatcher) Run(ctx context.Context, tasks []models.DownloadTask, concurrency int) (models.TotalsDelta, []models.TaskResult) {
	var delta models.TotalsDelta
	var failures []models.TaskResult

	if len(tasks) == 0 {
		return delta, nil
	}
	d.total.Add(int64(len(tasks)))

	workers := d.Workers(concurrency)
	if workers > len(tasks) {
		workers = len(tasks)
	}

	retryCfg := &retry.Config{
		MaxAttempts: d.opts.RetryAttempts,
		Backoff:     d.opts.Backoff,
		RetryIf:     retryDownload,
		Logger:      d.opts.Logger,
	}

	pool := NewWorkerPool(ctx, workers, d.client, d.storage, d.opts.RateLimiter, retryCfg, d.opts.Logger)
	pool.Start()

	start := time.Now()
	d.opts.Logger.DebugWithFields("dispatching downloads", map[string]interface{}{
		"tasks":   len(tasks),
		"workers": workers,
	})

	unsent := make(chan []models.DownloadTask, 1)
	go func() {
		defer pool.Stop()
		for i, task := range tasks {
			if err := pool.Submit(task); err != nil {
				unsent <- tasks[i:]
				return
			}
		}
		unsent <- nil
	}()

	record := func(res models.TaskResult) {
		delta.Record(res)
		d.completed.Add(1)
		if res.Outcome == models.OutcomeFailed {
			failures = append(failures, res)
		}
		if d.opts.Progress != nil {
			d.opts.Progress.TaskDone(res)
		}
	}

	for res := range pool.Results() {
		record(res)
	}

	for _, task := range <-unsent {
		record(models.TaskResult{Task: task, Outcome: models.OutcomeFailed, Err: ctx.Err()})
	}

	d.opts.Logger.DebugWithFields("downloads dispatched", map[string]interface{}{
		"tasks":      len(tasks),
		"downloaded": delta.Downloaded,
		"skipped":    delta.Skipped,
		"failed":     delta.Failed,
		"bytes":      delta.Bytes,
		"duration":   time.Since(start),
	})

	return delta, failures
}
