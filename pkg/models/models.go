package models

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// MonthBucket is the (year, month) unit of metadata caching and fetching.
type MonthBucket struct {
	Year  int
	Month int
}

// String returns the bucket as YYYY-MM
func (b MonthBucket) String() string {
	return fmt.Sprintf("%04d-%02d", b.Year, b.Month)
}

// Start returns midnight UTC of the first day of the month
func (b MonthBucket) Start() time.Time {
	return time.Date(b.Year, time.Month(b.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End returns midnight UTC of the last day of the month
func (b MonthBucket) End() time.Time {
	return b.Start().AddDate(0, 1, -1)
}

// LastDay returns the number of days in the month
func (b MonthBucket) LastDay() int {
	return b.End().Day()
}

// Contains reports whether t (in UTC) falls inside the month
func (b MonthBucket) Contains(t time.Time) bool {
	t = t.UTC()
	return t.Year() == b.Year && int(t.Month()) == b.Month
}

// Next returns the following calendar month
func (b MonthBucket) Next() MonthBucket {
	if b.Month == 12 {
		return MonthBucket{Year: b.Year + 1, Month: 1}
	}
	return MonthBucket{Year: b.Year, Month: b.Month + 1}
}

// Before reports whether b is chronologically earlier than other
func (b MonthBucket) Before(other MonthBucket) bool {
	if b.Year != other.Year {
		return b.Year < other.Year
	}
	return b.Month < other.Month
}

// Range is the inclusive month range requested by the user
type Range struct {
	Start MonthBucket
	End   MonthBucket
}

func (r Range) String() string {
	return r.Start.String() + ".." + r.End.String()
}

// ItemRecord describes one remote media item. Identity is ID.
type ItemRecord struct {
	ID           string
	Filename     string
	CreationTime time.Time
	BaseURL      string
	MimeType     string
	// Size is 0 when unknown until download
	Size int64
}

// IsVideo reports whether the item is a video, judged by its MIME type
func (r ItemRecord) IsVideo() bool {
	return strings.HasPrefix(r.MimeType, "video/")
}

// DownloadURL returns the URL for the original bytes of the item.
// Base URLs need a "=d" suffix for photos and "=dv" for videos.
func (r ItemRecord) DownloadURL() string {
	if r.IsVideo() {
		return r.BaseURL + "=dv"
	}
	return r.BaseURL + "=d"
}

// DownloadTask pairs a record with its resolved destination path
type DownloadTask struct {
	Record ItemRecord
	Path   string
}

// Outcome is the result kind of a single download task
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeDownloaded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDownloaded:
		return "downloaded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TaskResult is produced by the dispatcher for every task it runs
type TaskResult struct {
	Task     DownloadTask
	Outcome  Outcome
	Bytes    int64
	Err      error
	Duration time.Duration
}

// TotalsDelta is a plain-value increment of run counters
type TotalsDelta struct {
	Seen       int64
	Downloaded int64
	Skipped    int64
	Failed     int64
	Bytes      int64
}

// Record folds one task result into the delta
func (d *TotalsDelta) Record(res TaskResult) {
	d.Seen++
	switch res.Outcome {
	case OutcomeSkipped:
		d.Skipped++
	case OutcomeDownloaded:
		d.Downloaded++
		d.Bytes += res.Bytes
	case OutcomeFailed:
		d.Failed++
	}
}

// RunTotals accumulates counters across all buckets. Safe for concurrent use.
type RunTotals struct {
	seen          atomic.Int64
	downloaded    atomic.Int64
	skipped       atomic.Int64
	failed        atomic.Int64
	bytes         atomic.Int64
	failedBuckets atomic.Int64
}

// Add folds a delta into the totals
func (t *RunTotals) Add(d TotalsDelta) {
	t.seen.Add(d.Seen)
	t.downloaded.Add(d.Downloaded)
	t.skipped.Add(d.Skipped)
	t.failed.Add(d.Failed)
	t.bytes.Add(d.Bytes)
}

// AddFailedBucket counts a bucket whose metadata could not be obtained
func (t *RunTotals) AddFailedBucket() {
	t.failedBuckets.Add(1)
}

// Snapshot returns a point-in-time copy of the counters
func (t *RunTotals) Snapshot() TotalsSnapshot {
	return TotalsSnapshot{
		Seen:          t.seen.Load(),
		Downloaded:    t.downloaded.Load(),
		Skipped:       t.skipped.Load(),
		Failed:        t.failed.Load(),
		Bytes:         t.bytes.Load(),
		FailedBuckets: t.failedBuckets.Load(),
	}
}

// TotalsSnapshot is a copy of RunTotals for reporting
type TotalsSnapshot struct {
	Seen          int64 `json:"seen"`
	Downloaded    int64 `json:"downloaded"`
	Skipped       int64 `json:"skipped"`
	Failed        int64 `json:"failed"`
	Bytes         int64 `json:"bytes"`
	FailedBuckets int64 `json:"failed_buckets"`
}
