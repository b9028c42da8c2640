package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	errs "gphotofetch/pkg/errors"
	"gphotofetch/pkg/logger"
	"gphotofetch/pkg/models"
	"gphotofetch/pkg/ratelimit"
	"gphotofetch/pkg/retry"
)

// MediaDownloader opens the bytes of a remote item
type MediaDownloader interface {
	Download(ctx context.Context, rec models.ItemRecord) (io.ReadCloser, int64, error)
}

// MediaStorage checks and writes destination files
type MediaStorage interface {
	Exists(path string) bool
	Save(r io.Reader, path string) (int64, error)
}

// WorkerPool manages concurrent download workers
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan models.DownloadTask
	resultQueue chan models.TaskResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	client      MediaDownloader
	storage     MediaStorage
	rateLimiter ratelimit.Limiter
	retry       *retry.Config
	logger      logger.Logger
}

// NewWorkerPool creates a new download worker pool bound to ctx
func NewWorkerPool(
	ctx context.Context,
	numWorkers int,
	client MediaDownloader,
	storage MediaStorage,
	rateLimiter ratelimit.Limiter,
	retryCfg *retry.Config,
	log logger.Logger,
) *WorkerPool {
	ctx, cancel := context.WithCancel(ctx)

	if log == nil {
		log = logger.GetLogger()
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.Unlimited{}
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan models.DownloadTask, numWorkers*2), // Buffer size = 2x workers
		resultQueue: make(chan models.TaskResult, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		client:      client,
		storage:     storage,
		rateLimiter: rateLimiter,
		retry:       retryCfg,
		logger:      log,
	}
}

// Start initializes and starts all workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the queue, waits for queued tasks to be processed and closes
// the result channel
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Debug("worker pool stopped")
}

// Submit adds a task to the queue
func (wp *WorkerPool) Submit(task models.DownloadTask) error {
	select {
	case wp.jobQueue <- task:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Results returns the result channel. It must be drained until closed.
func (wp *WorkerPool) Results() <-chan models.TaskResult {
	return wp.resultQueue
}

// worker is the main worker routine. After cancellation it keeps draining
// the queue so every submitted task produces a result.
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for task := range wp.jobQueue {
		wp.resultQueue <- wp.processJob(task, id)
	}
}

// processJob handles a single download task
func (wp *WorkerPool) processJob(task models.DownloadTask, workerID int) models.TaskResult {
	start := time.Now()
	result := models.TaskResult{Task: task}

	if err := wp.ctx.Err(); err != nil {
		result.Outcome = models.OutcomeFailed
		result.Err = err
		return result
	}

	// Another worker or an earlier run may have produced the file
	if wp.storage.Exists(task.Path) {
		result.Outcome = models.OutcomeSkipped
		result.Duration = time.Since(start)
		return result
	}

	var size int64
	err := retry.Do(wp.ctx, func(ctx context.Context) error {
		n, err := wp.fetchAndSave(ctx, task)
		size = n
		return err
	}, wp.retry)
	result.Duration = time.Since(start)

	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			err = exhausted.Err
		}
		result.Outcome = models.OutcomeFailed
		result.Err = &errs.DownloadError{ItemID: task.Record.ID, Path: task.Path, Err: err}

		wp.logger.ErrorWithFields("download failed", map[string]interface{}{
			"worker_id": workerID,
			"item_id":   task.Record.ID,
			"path":      task.Path,
			"error":     err.Error(),
			"duration":  result.Duration,
		})
		return result
	}

	result.Outcome = models.OutcomeDownloaded
	result.Bytes = size

	wp.logger.DebugWithFields("download completed", map[string]interface{}{
		"worker_id": workerID,
		"item_id":   task.Record.ID,
		"path":      task.Path,
		"size":      size,
		"duration":  result.Duration,
	})
	return result
}

func (wp *WorkerPool) fetchAndSave(ctx context.Context, task models.DownloadTask) (int64, error) {
	if err := wp.rateLimiter.Wait(ctx); err != nil {
		return 0, err
	}

	body, _, err := wp.client.Download(ctx, task.Record)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	src := &trackingReader{r: body}
	n, err := wp.storage.Save(src, task.Path)
	if err != nil {
		if src.err != nil {
			// The stream broke; worth another attempt
			return n, &errs.Error{Type: errs.ErrorTypeNetwork, Message: src.err.Error()}
		}
		return n, &storageError{err: err}
	}
	return n, nil
}

// storageError marks local write failures, which are not retried
type storageError struct {
	err error
}

func (e *storageError) Error() string { return e.err.Error() }

func (e *storageError) Unwrap() error { return e.err }

// retryDownload retries what retry.DefaultRetryIf retries, except local
// storage failures
func retryDownload(err error) bool {
	var se *storageError
	if errors.As(err, &se) {
		return false
	}
	return retry.DefaultRetryIf(err)
}

// trackingReader remembers the first read error of the remote stream
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}
