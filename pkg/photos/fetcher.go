package photos

import (
	"context"
	"errors"
	"iter"

	errs "gphotofetch/pkg/errors"
	"gphotofetch/pkg/logger"
	"gphotofetch/pkg/models"
	"gphotofetch/pkg/ratelimit"
	"gphotofetch/pkg/retry"
)

// Fetcher produces validated records for a month from a Lister
type Fetcher struct {
	lister  Lister
	retry   *retry.Config
	limiter ratelimit.Limiter
	logger  logger.Logger
}

// NewFetcher creates a fetcher. A nil retry config uses retry.DefaultConfig,
// a nil limiter disables rate limiting.
func NewFetcher(lister Lister, retryCfg *retry.Config, limiter ratelimit.Limiter, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
		retryCfg.Logger = log
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	return &Fetcher{lister: lister, retry: retryCfg, limiter: limiter, logger: log}
}

// Fetch lazily yields every record created within bucket. Pages are
// requested only as the sequence is consumed. The sequence stops after
// yielding an error: a *errors.FetchFailedError when a page could not be
// listed, or a *errors.ParseError for a malformed item.
func (f *Fetcher) Fetch(ctx context.Context, bucket models.MonthBucket) iter.Seq2[models.ItemRecord, error] {
	return func(yield func(models.ItemRecord, error) bool) {
		token := ""
		pageNum := 0

		for {
			page, err := f.listPage(ctx, bucket, token)
			if err != nil {
				yield(models.ItemRecord{}, err)
				return
			}
			pageNum++

			kept := 0
			for _, raw := range page.Items {
				rec, err := ParseItem(raw)
				if err != nil {
					yield(models.ItemRecord{}, err)
					return
				}
				// The search window overlaps the neighbouring months; each
				// item belongs to the bucket of its UTC month only.
				if !bucket.Contains(rec.CreationTime) {
					continue
				}
				kept++
				if !yield(rec, nil) {
					return
				}
			}

			f.logger.DebugWithFields("fetched page", map[string]interface{}{
				"bucket": bucket.String(),
				"page":   pageNum,
				"items":  len(page.Items),
				"kept":   kept,
			})

			if page.NextPageToken == "" {
				return
			}
			token = page.NextPageToken
		}
	}
}

// FetchAll drains Fetch into a slice
func (f *Fetcher) FetchAll(ctx context.Context, bucket models.MonthBucket) ([]models.ItemRecord, error) {
	var records []models.ItemRecord
	for rec, err := range f.Fetch(ctx, bucket) {
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (f *Fetcher) listPage(ctx context.Context, bucket models.MonthBucket, token string) (Page, error) {
	attempts := 0
	page, err := retry.DoWithResult(ctx, func(ctx context.Context) (Page, error) {
		attempts++
		if err := f.limiter.Wait(ctx); err != nil {
			return Page{}, err
		}
		page, err := f.lister.ListItems(ctx, bucket, token)
		if err != nil {
			return Page{}, errs.Classify(err)
		}
		return page, nil
	}, f.retry)
	if err == nil {
		return page, nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Page{}, err
	}

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		err = exhausted.Err
	}
	return Page{}, &errs.FetchFailedError{Bucket: bucket.String(), Attempts: attempts, Err: err}
}
