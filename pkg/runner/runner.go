package runner

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"gphotofetch/pkg/daterange"
	errs "gphotofetch/pkg/errors"
	"gphotofetch/pkg/journal"
	"gphotofetch/pkg/logger"
	"gphotofetch/pkg/models"
)

// Options configures a Runner
type Options struct {
	// Concurrency is the requested download worker count per month
	Concurrency int
	// Journal is optional
	Journal Recorder
	// Observer is optional
	Observer Observer
	Logger   logger.Logger
}

// Runner orchestrates the per-month pipeline
type Runner struct {
	source     MetadataSource
	dest       Destinations
	dispatcher Dispatcher
	opts       Options
	now        func() time.Time
}

// New creates a Runner
func New(source MetadataSource, dest Destinations, dispatcher Dispatcher, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Runner{
		source:     source,
		dest:       dest,
		dispatcher: dispatcher,
		opts:       opts,
		now:        time.Now,
	}
}

// Run processes every month of r in chronological order. The returned
// report is never nil unless the range itself is invalid. A cancelled ctx
// stops the run after the current month and is returned alongside the
// partial report.
func (r *Runner) Run(ctx context.Context, rng models.Range) (*Report, error) {
	buckets, err := daterange.ExpandRange(rng)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:   uuid.NewString(),
		Range:   rng,
		Started: r.now(),
	}
	log := r.opts.Logger.WithFields(map[string]interface{}{
		"run_id": report.RunID,
		"range":  rng.String(),
	})
	log.InfoWithFields("run started", map[string]interface{}{
		"buckets":     len(buckets),
		"concurrency": r.opts.Concurrency,
	})

	r.journal(log, "begin", func(j Recorder) error {
		return j.Begin(ctx, report.RunID, rng, report.Started)
	})

	var totals models.RunTotals
	var runErr error

	for i, b := range buckets {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		if err := r.runBucket(ctx, log, report, &totals, b, i+1, len(buckets)); err != nil {
			runErr = err
			break
		}
	}

	report.Totals = totals.Snapshot()
	report.Finished = r.now()

	// the journal still gets the partial totals after cancellation
	r.journal(log, "finish", func(j Recorder) error {
		return j.Finish(context.WithoutCancel(ctx), report.RunID, report.Finished, report.Totals)
	})

	logger.LogMetrics(log, "run", map[string]interface{}{
		"seen":           report.Totals.Seen,
		"downloaded":     report.Totals.Downloaded,
		"skipped":        report.Totals.Skipped,
		"failed":         report.Totals.Failed,
		"bytes":          report.Totals.Bytes,
		"failed_buckets": report.Totals.FailedBuckets,
		"duration":       report.Elapsed(),
	})

	return report, runErr
}

// runBucket returns an error only when the whole run must stop
func (r *Runner) runBucket(ctx context.Context, log logger.Logger, report *Report, totals *models.RunTotals, b models.MonthBucket, index, total int) error {
	logger.LogBucketStart(log, b.String(), index, total)

	records, err := r.source.LoadOrFetch(ctx, b)
	if err != nil {
		if errs.IsConfigError(err) || isCancellation(ctx, err) {
			return err
		}
		r.failBucket(ctx, log, report, totals, b, err)
		return nil
	}

	if r.opts.Observer != nil {
		r.opts.Observer.BucketStarted(b, index, total, len(records))
	}

	var present models.TotalsDelta
	missing := make([]models.DownloadTask, 0, len(records))
	for _, rec := range records {
		task := models.DownloadTask{Record: rec, Path: r.dest.Resolve(rec)}
		if !r.dest.Exists(task.Path) {
			missing = append(missing, task)
			continue
		}
		res := models.TaskResult{Task: task, Outcome: models.OutcomeSkipped}
		present.Record(res)
		if r.opts.Observer != nil {
			r.opts.Observer.TaskDone(res)
		}
	}
	totals.Add(present)

	log.DebugWithFields("bucket resolved", map[string]interface{}{
		"bucket":  b.String(),
		"items":   len(records),
		"present": present.Skipped,
		"missing": len(missing),
	})

	delta, failures := r.dispatcher.Run(ctx, missing, r.opts.Concurrency)
	totals.Add(delta)

	for _, f := range failures {
		report.FailedItems = append(report.FailedItems, f)
		r.journal(log, "record item failure", func(j Recorder) error {
			return j.RecordFailure(context.WithoutCancel(ctx), report.RunID, journal.KindItem, f.Task.Record.ID, f.Err)
		})
	}

	log.InfoWithFields("bucket done", map[string]interface{}{
		"bucket":     b.String(),
		"downloaded": delta.Downloaded,
		"skipped":    delta.Skipped + present.Skipped,
		"failed":     delta.Failed,
		"bytes":      delta.Bytes,
	})
	return nil
}

func (r *Runner) failBucket(ctx context.Context, log logger.Logger, report *Report, totals *models.RunTotals, b models.MonthBucket, err error) {
	totals.AddFailedBucket()
	report.FailedBuckets = append(report.FailedBuckets, BucketFailure{Bucket: b, Err: err})

	logger.LogBucketFailed(log, b.String(), err)
	if r.opts.Observer != nil {
		r.opts.Observer.BucketFailed(b, err)
	}
	r.journal(log, "record bucket failure", func(j Recorder) error {
		return j.RecordFailure(context.WithoutCancel(ctx), report.RunID, journal.KindBucket, b.String(), err)
	})
}

// journal runs fn against the journal if one is configured. Failures are
// logged and never affect the run.
func (r *Runner) journal(log logger.Logger, op string, fn func(Recorder) error) {
	if r.opts.Journal == nil {
		return
	}
	if err := fn(r.opts.Journal); err != nil {
		log.WithError(err).Warn("journal " + op + " failed")
	}
}

func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
