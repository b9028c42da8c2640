package runner

import (
	"context"
	"time"

	"gphotofetch/pkg/models"
)

// MetadataSource yields the records of a month, from cache or remote
type MetadataSource interface {
	LoadOrFetch(ctx context.Context, b models.MonthBucket) ([]models.ItemRecord, error)
}

// Destinations maps records to local paths
type Destinations interface {
	Resolve(rec models.ItemRecord) string
	Exists(path string) bool
}

// Dispatcher downloads a batch of tasks in parallel
type Dispatcher interface {
	Run(ctx context.Context, tasks []models.DownloadTask, concurrency int) (models.TotalsDelta, []models.TaskResult)
}

// Observer is told about run progress. TaskDone is only called for items
// the runner skips itself; the dispatcher reports its own tasks.
type Observer interface {
	BucketStarted(bucket models.MonthBucket, index, total, items int)
	BucketFailed(bucket models.MonthBucket, err error)
	TaskDone(res models.TaskResult)
}

// Recorder persists run history
type Recorder interface {
	Begin(ctx context.Context, id string, r models.Range, started time.Time) error
	Finish(ctx context.Context, id string, finished time.Time, totals models.TotalsSnapshot) error
	RecordFailure(ctx context.Context, runID, kind, key string, cause error) error
}
