package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"gphotofetch/internal/downloader"
	"gphotofetch/pkg/cache"
	errs "gphotofetch/pkg/errors"
	"gphotofetch/pkg/journal"
	"gphotofetch/pkg/logger"
	"gphotofetch/pkg/models"
	"gphotofetch/pkg/storage"
)

// fakeRemote serves both the listing and the media bytes
type fakeRemote struct {
	mu        sync.Mutex
	items     map[models.MonthBucket][]models.ItemRecord
	failing   map[models.MonthBucket]error
	bodies    map[string]string
	listCalls int
	downloads []string
	onList    func(models.MonthBucket)
}

func (f *fakeRemote) FetchAll(ctx context.Context, b models.MonthBucket) ([]models.ItemRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.onList != nil {
		f.onList(b)
	}
	if err := f.failing[b]; err != nil {
		return nil, err
	}
	return f.items[b], nil
}

func (f *fakeRemote) Download(ctx context.Context, rec models.ItemRecord) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	f.downloads = append(f.downloads, rec.ID)
	body, ok := f.bodies[rec.ID]
	f.mu.Unlock()
	if !ok {
		return nil, 0, &errs.Error{Type: errs.ErrorTypeNotFound, Code: 404, Message: "gone"}
	}
	return io.NopCloser(strings.NewReader(body)), int64(len(body)), nil
}

func item(id string, day int, month int) models.ItemRecord {
	return models.ItemRecord{
		ID:           id,
		Filename:     id + ".jpg",
		CreationTime: time.Date(2023, time.Month(month), day, 12, 0, 0, 0, time.UTC),
		BaseURL:      "https://lh3.example.com/" + id,
		MimeType:     "image/jpeg",
	}
}

type recordingObserver struct {
	started []models.MonthBucket
	failed  []models.MonthBucket
	done    int
}

func (o *recordingObserver) BucketStarted(b models.MonthBucket, index, total, items int) {
	o.started = append(o.started, b)
}
func (o *recordingObserver) BucketFailed(b models.MonthBucket, err error) { o.failed = append(o.failed, b) }
func (o *recordingObserver) TaskDone(res models.TaskResult)             { o.done++ }

type harness struct {
	remote   *fakeRemote
	resolver *storage.Resolver
	observer *recordingObserver
	runner   *Runner
}

func newHarness(t *testing.T, remote *fakeRemote, rec Recorder) *harness {
	t.Helper()
	log := logger.NewNopLogger()

	bkt := memblob.OpenBucket(nil)
	t.Cleanup(func() { bkt.Close() })
	c := cache.New(bkt, remote, log)

	resolver := storage.NewResolver(t.TempDir(), false)
	obs := &recordingObserver{}
	d := downloader.NewDispatcher(remote, resolver, downloader.Options{
		RetryAttempts: 1,
		Progress:      obs,
		Logger:        log,
	})

	r := New(c, resolver, d, Options{
		Concurrency: 4,
		Journal:     rec,
		Observer:    obs,
		Logger:      log,
	})
	return &harness{remote: remote, resolver: resolver, observer: obs, runner: r}
}

func writeExisting(t *testing.T, h *harness, rec models.ItemRecord, content string) {
	t.Helper()
	path := h.resolver.Resolve(rec)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

var jan = models.MonthBucket{Year: 2023, Month: 1}

func TestRunDownloadsMissingAndSkipsPresent(t *testing.T) {
	a, b, c := item("a", 3, 1), item("b", 14, 1), item("c", 28, 1)
	remote := &fakeRemote{
		items:  map[models.MonthBucket][]models.ItemRecord{jan: {a, b, c}},
		bodies: map[string]string{"a": "aaaa", "b": "bbbbbbbb", "c": "cc"},
	}
	h := newHarness(t, remote, nil)
	writeExisting(t, h, b, "already here")

	report, err := h.runner.Run(context.Background(), models.Range{Start: jan, End: jan})
	require.NoError(t, err)

	assert.Equal(t, int64(3), report.Totals.Seen)
	assert.Equal(t, int64(2), report.Totals.Downloaded)
	assert.Equal(t, int64(1), report.Totals.Skipped)
	assert.Equal(t, int64(0), report.Totals.Failed)
	assert.Equal(t, int64(len("aaaa")+len("cc")), report.Totals.Bytes)
	assert.ElementsMatch(t, []string{"a", "c"}, remote.downloads)

	data, err := os.ReadFile(h.resolver.Resolve(a))
	require.NoError(t, err)
	assert.Equal(t, "aaaa", string(data))

	data, err = os.ReadFile(h.resolver.Resolve(b))
	require.NoError(t, err)
	assert.Equal(t, "already here", string(data))

	assert.Equal(t, []models.MonthBucket{jan}, h.observer.started)
	assert.Equal(t, 3, h.observer.done)
	assert.NotEmpty(t, report.RunID)
}

func TestRunIsIdempotent(t *testing.T) {
	a, b := item("a", 1, 1), item("b", 2, 1)
	remote := &fakeRemote{
		items:  map[models.MonthBucket][]models.ItemRecord{jan: {a, b}},
		bodies: map[string]string{"a": "1", "b": "22"},
	}
	h := newHarness(t, remote, nil)
	rng := models.Range{Start: jan, End: jan}

	_, err := h.runner.Run(context.Background(), rng)
	require.NoError(t, err)
	require.Len(t, remote.downloads, 2)

	report, err := h.runner.Run(context.Background(), rng)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Totals.Skipped)
	assert.Equal(t, int64(0), report.Totals.Downloaded)
	assert.Len(t, remote.downloads, 2, "second run must not download")
	assert.Equal(t, 1, remote.listCalls, "second run must be served from cache")
}

func TestRunContinuesPastFailedBucket(t *testing.T) {
	feb := jan.Next()
	mar := feb.Next()
	remote := &fakeRemote{
		items: map[models.MonthBucket][]models.ItemRecord{
			jan: {item("a", 5, 1)},
			mar: {item("c", 5, 3)},
		},
		failing: map[models.MonthBucket]error{
			feb: &errs.FetchFailedError{Bucket: feb.String(), Attempts: 5, Err: errors.New("503")},
		},
		bodies: map[string]string{"a": "x", "c": "yy"},
	}
	h := newHarness(t, remote, nil)

	report, err := h.runner.Run(context.Background(), models.Range{Start: jan, End: mar})
	require.NoError(t, err)

	assert.Equal(t, int64(2), report.Totals.Downloaded)
	assert.Equal(t, int64(1), report.Totals.FailedBuckets)
	require.Len(t, report.FailedBuckets, 1)
	assert.Equal(t, feb, report.FailedBuckets[0].Bucket)

	var fetchErr *errs.FetchFailedError
	assert.ErrorAs(t, report.FailedBuckets[0].Err, &fetchErr)
	assert.Equal(t, []models.MonthBucket{jan, mar}, h.observer.started)
	assert.Equal(t, []models.MonthBucket{feb}, h.observer.failed)

	summary := report.Summary()
	require.Len(t, summary.FailedBuckets, 1)
	assert.Contains(t, summary.FailedBuckets[0], "2023-02")
}

func TestRunRecordsItemFailures(t *testing.T) {
	remote := &fakeRemote{
		items:  map[models.MonthBucket][]models.ItemRecord{jan: {item("a", 1, 1), item("gone", 2, 1)}},
		bodies: map[string]string{"a": "ok"},
	}
	h := newHarness(t, remote, nil)

	report, err := h.runner.Run(context.Background(), models.Range{Start: jan, End: jan})
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.Totals.Downloaded)
	assert.Equal(t, int64(1), report.Totals.Failed)
	require.Len(t, report.FailedItems, 1)
	assert.Equal(t, "gone", report.FailedItems[0].Task.Record.ID)
	_, statErr := os.Stat(h.resolver.Resolve(item("gone", 2, 1)))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunInvalidRange(t *testing.T) {
	h := newHarness(t, &fakeRemote{}, nil)

	report, err := h.runner.Run(context.Background(), models.Range{
		Start: models.MonthBucket{Year: 2022, Month: 5},
		End:   models.MonthBucket{Year: 2021, Month: 1},
	})
	assert.Nil(t, report)
	assert.True(t, errs.IsConfigError(err))
	assert.ErrorIs(t, err, errs.ErrInvalidRange)
	assert.Equal(t, 0, h.remote.listCalls)
}

func TestRunStopsOnConfigError(t *testing.T) {
	feb := jan.Next()
	remote := &fakeRemote{
		failing: map[models.MonthBucket]error{
			jan: errs.NewConfigError(errs.ErrMissingCredentials, "no token"),
		},
	}
	h := newHarness(t, remote, nil)

	report, err := h.runner.Run(context.Background(), models.Range{Start: jan, End: feb})
	require.Error(t, err)
	assert.True(t, errs.IsConfigError(err))
	require.NotNil(t, report)
	assert.Equal(t, 1, remote.listCalls)
}

func TestRunCancelled(t *testing.T) {
	remote := &fakeRemote{
		items: map[models.MonthBucket][]models.ItemRecord{jan: {item("a", 1, 1)}},
	}
	h := newHarness(t, remote, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.runner.Run(ctx, models.Range{Start: jan, End: jan})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 0, remote.listCalls)
}

func TestRunWritesJournal(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	feb := jan.Next()
	remote := &fakeRemote{
		items: map[models.MonthBucket][]models.ItemRecord{
			jan: {item("a", 1, 1), item("gone", 2, 1)},
		},
		failing: map[models.MonthBucket]error{
			feb: &errs.CacheCorruptError{Bucket: feb.String(), Key: cache.Key(feb), Reason: "missing trailer"},
		},
		bodies: map[string]string{"a": "abc"},
	}
	h := newHarness(t, remote, j)

	report, err := h.runner.Run(context.Background(), models.Range{Start: jan, End: feb})
	require.NoError(t, err)

	ctx := context.Background()
	runs, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, report.RunID, runs[0].ID)
	assert.Equal(t, report.Totals, runs[0].Totals)
	assert.False(t, runs[0].Finished.IsZero())

	failures, err := j.Failures(ctx, report.RunID)
	require.NoError(t, err)
	require.Len(t, failures, 2)

	kinds := map[string]string{}
	for _, f := range failures {
		kinds[f.Kind] = f.Key
	}
	assert.Equal(t, "gone", kinds[journal.KindItem])
	assert.Equal(t, "2023-02", kinds[journal.KindBucket])
}

type brokenJournal struct{}

func (brokenJournal) Begin(ctx context.Context, id string, r models.Range, started time.Time) error {
	return errors.New("disk full")
}
func (brokenJournal) Finish(ctx context.Context, id string, finished time.Time, t models.TotalsSnapshot) error {
	return errors.New("disk full")
}
func (brokenJournal) RecordFailure(ctx context.Context, runID, kind, key string, cause error) error {
	return errors.New("disk full")
}

// liveContextJournal rejects writes made with a finished context, as a
// database driver would
type liveContextJournal struct {
	mu       sync.Mutex
	failures []string
	finished bool
}

func (j *liveContextJournal) Begin(ctx context.Context, id string, r models.Range, started time.Time) error {
	return ctx.Err()
}
func (j *liveContextJournal) Finish(ctx context.Context, id string, finished time.Time, t models.TotalsSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = true
	return nil
}
func (j *liveContextJournal) RecordFailure(ctx context.Context, runID, kind, key string, cause error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.failures = append(j.failures, kind+":"+key)
	return nil
}

func TestFailedBucketIsJournaledAfterInterrupt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := &fakeRemote{
		failing: map[models.MonthBucket]error{
			jan: &errs.FetchFailedError{Bucket: jan.String(), Attempts: 1, Err: errors.New("503 backend error")},
		},
		onList: func(models.MonthBucket) { cancel() },
	}
	j := &liveContextJournal{}
	h := newHarness(t, remote, j)

	report, err := h.runner.Run(ctx, models.Range{Start: jan, End: jan.Next()})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	require.Len(t, report.FailedBuckets, 1)
	assert.Equal(t, 1, remote.listCalls, "the run stops before the next month")

	assert.Equal(t, []string{journal.KindBucket + ":2023-01"}, j.failures)
	assert.True(t, j.finished)
}

func TestJournalErrorsDoNotAbortRun(t *testing.T) {
	remote := &fakeRemote{
		items:  map[models.MonthBucket][]models.ItemRecord{jan: {item("a", 1, 1)}},
		bodies: map[string]string{"a": "abc"},
	}
	h := newHarness(t, remote, brokenJournal{})

	report, err := h.runner.Run(context.Background(), models.Range{Start: jan, End: jan})
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Totals.Downloaded)
}

func TestRunLogsFailedBucketAndMetrics(t *testing.T) {
	feb := jan.Next()
	remote := &fakeRemote{
		failing: map[models.MonthBucket]error{
			feb: &errs.FetchFailedError{Bucket: feb.String(), Attempts: 3, Err: errors.New("503")},
		},
	}
	h := newHarness(t, remote, nil)
	tl := logger.NewTestLogger()
	h.runner.opts.Logger = tl

	report, err := h.runner.Run(context.Background(), models.Range{Start: feb, End: feb})
	require.NoError(t, err)

	var skipped, metrics *logger.LogMessage
	for _, m := range tl.GetMessages() {
		m := m
		switch m.Message {
		case "Month skipped":
			skipped = &m
		case "Run metrics":
			metrics = &m
		}
	}
	require.NotNil(t, skipped)
	assert.Equal(t, "ERROR", skipped.Level)
	assert.Equal(t, "2023-02", skipped.Fields["bucket"])
	assert.Equal(t, report.RunID, skipped.Fields["run_id"])

	require.NotNil(t, metrics)
	assert.Equal(t, "run", metrics.Fields["operation"])
	assert.Equal(t, int64(1), metrics.Fields["failed_buckets"])
}
