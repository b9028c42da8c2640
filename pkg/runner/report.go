package runner

import (
	"time"

	"gphotofetch/pkg/models"
	"gphotofetch/pkg/ui"
)

// BucketFailure is a month that was skipped because its metadata could
// not be obtained
type BucketFailure struct {
	Bucket models.MonthBucket
	Err    error
}

// Report is the outcome of a run
type Report struct {
	RunID         string
	Range         models.Range
	Totals        models.TotalsSnapshot
	FailedBuckets []BucketFailure
	FailedItems   []models.TaskResult
	Started       time.Time
	Finished      time.Time
}

// Elapsed returns the wall time of the run
func (r *Report) Elapsed() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Summary converts the report for ui.PrintSummary
func (r *Report) Summary() ui.Summary {
	failed := make([]string, 0, len(r.FailedBuckets))
	for _, f := range r.FailedBuckets {
		failed = append(failed, f.Bucket.String()+": "+f.Err.Error())
	}
	return ui.Summary{
		Range:         r.Range,
		Totals:        r.Totals,
		FailedBuckets: failed,
		FailedItems:   len(r.FailedItems),
		Elapsed:       r.Elapsed(),
	}
}
