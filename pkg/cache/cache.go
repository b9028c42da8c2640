package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	errs "gphotofetch/pkg/errors"
	"gphotofetch/pkg/logger"
	"gphotofetch/pkg/models"
)

// Source lists a month remotely when it is not cached
type Source interface {
	FetchAll(ctx context.Context, bucket models.MonthBucket) ([]models.ItemRecord, error)
}

// Status describes the cache object of one month
type Status struct {
	Bucket   models.MonthBucket
	Key      string
	Present  bool
	Complete bool
	Count    int
	Size     int64
	ModTime  time.Time
	// Reason is set when the object is present but corrupt
	Reason string
}

// Cache is the per-month metadata cache
type Cache struct {
	bucket *blob.Bucket
	source Source
	logger logger.Logger
}

// Key returns the object name for a month
func Key(b models.MonthBucket) string {
	return fmt.Sprintf("photo_%04d_%02d.csv", b.Year, b.Month)
}

// ParseKey is the inverse of Key
func ParseKey(key string) (models.MonthBucket, bool) {
	var b models.MonthBucket
	if _, err := fmt.Sscanf(key, "photo_%04d_%02d.csv", &b.Year, &b.Month); err != nil {
		return models.MonthBucket{}, false
	}
	if Key(b) != key || b.Month < 1 || b.Month > 12 {
		return models.MonthBucket{}, false
	}
	return b, true
}

// OpenBucket opens the cache storage. A non-empty url is handed to
// gocloud's URL mux (file://, mem://, or any scheme linked into the
// binary); otherwise dir is created and used as a file bucket.
func OpenBucket(ctx context.Context, url, dir string) (*blob.Bucket, error) {
	if url != "" {
		bkt, err := blob.OpenBucket(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache bucket %q: %w", url, err)
		}
		return bkt, nil
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	bkt, err := fileblob.OpenBucket(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache directory %q: %w", abs, err)
	}
	return bkt, nil
}

// New creates a cache over bkt. source may be nil for read-only use
// (inspection and deletion).
func New(bkt *blob.Bucket, source Source, log logger.Logger) *Cache {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Cache{bucket: bkt, source: source, logger: log}
}

// Close releases the underlying bucket
func (c *Cache) Close() error {
	return c.bucket.Close()
}

// LoadOrFetch returns the records of a month. A present object is parsed
// and returned without any remote call; a corrupt one yields
// *errors.CacheCorruptError. An absent one is fetched through the source,
// written in full and returned.
func (c *Cache) LoadOrFetch(ctx context.Context, b models.MonthBucket) ([]models.ItemRecord, error) {
	records, found, err := c.load(ctx, b)
	if err != nil {
		return nil, err
	}
	if found {
		c.logger.DebugWithFields("cache hit", map[string]interface{}{
			"bucket": b.String(),
			"items":  len(records),
		})
		return records, nil
	}

	if c.source == nil {
		return nil, fmt.Errorf("no cache for %s and no remote source configured", b)
	}

	c.logger.InfoWithFields("cache miss, listing month remotely", map[string]interface{}{
		"bucket": b.String(),
	})

	records, err = c.source.FetchAll(ctx, b)
	if err != nil {
		return nil, err
	}

	if err := c.store(ctx, b, records); err != nil {
		return nil, err
	}

	c.logger.InfoWithFields("cached month listing", map[string]interface{}{
		"bucket": b.String(),
		"items":  len(records),
		"key":    Key(b),
	})
	return records, nil
}

// Load reads a cached month. found is false when no object exists.
func (c *Cache) Load(ctx context.Context, b models.MonthBucket) ([]models.ItemRecord, bool, error) {
	return c.load(ctx, b)
}

func (c *Cache) load(ctx context.Context, b models.MonthBucket) ([]models.ItemRecord, bool, error) {
	key := Key(b)

	data, err := c.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cache %s: %w", key, err)
	}

	records, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, true, &errs.CacheCorruptError{Bucket: b.String(), Key: key, Reason: err.Error()}
	}

	for _, r := range records {
		if !b.Contains(r.CreationTime) {
			return nil, true, &errs.CacheCorruptError{
				Bucket: b.String(),
				Key:    key,
				Reason: fmt.Sprintf("item %s is dated %s, outside the month", r.ID, r.CreationTime.Format(time.RFC3339)),
			}
		}
	}

	return records, true, nil
}

// store writes the full listing in one object. The blob writer only
// commits on a successful Close, so a failed write leaves no object.
func (c *Cache) store(ctx context.Context, b models.MonthBucket, records []models.ItemRecord) error {
	key := Key(b)

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := c.bucket.NewWriter(wctx, key, &blob.WriterOptions{ContentType: "text/csv"})
	if err != nil {
		return fmt.Errorf("failed to open cache %s for writing: %w", key, err)
	}

	if err := Encode(w, records); err != nil {
		cancel()
		w.Close()
		return fmt.Errorf("failed to write cache %s: %w", key, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to commit cache %s: %w", key, err)
	}
	return nil
}

// Inspect reports on the cache object of a month without fetching
func (c *Cache) Inspect(ctx context.Context, b models.MonthBucket) (Status, error) {
	st := Status{Bucket: b, Key: Key(b)}

	attrs, err := c.bucket.Attributes(ctx, st.Key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return st, nil
		}
		return st, fmt.Errorf("failed to stat cache %s: %w", st.Key, err)
	}
	st.Present = true
	st.Size = attrs.Size
	st.ModTime = attrs.ModTime

	records, _, err := c.load(ctx, b)
	if err != nil {
		var corrupt *errs.CacheCorruptError
		if errors.As(err, &corrupt) {
			st.Reason = corrupt.Reason
			return st, nil
		}
		return st, err
	}
	st.Complete = true
	st.Count = len(records)
	return st, nil
}

// List inspects every cached month, oldest first
func (c *Cache) List(ctx context.Context) ([]Status, error) {
	var buckets []models.MonthBucket

	it := c.bucket.List(&blob.ListOptions{Prefix: "photo_"})
	for {
		obj, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list cache: %w", err)
		}
		if obj.IsDir {
			continue
		}
		if b, ok := ParseKey(strings.TrimPrefix(obj.Key, "/")); ok {
			buckets = append(buckets, b)
		}
	}

	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Before(buckets[j]) })

	statuses := make([]Status, 0, len(buckets))
	for _, b := range buckets {
		st, err := c.Inspect(ctx, b)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// Delete removes the cache object of a month
func (c *Cache) Delete(ctx context.Context, b models.MonthBucket) error {
	key := Key(b)
	if err := c.bucket.Delete(ctx, key); err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return fmt.Errorf("no cache for %s", b)
		}
		return fmt.Errorf("failed to delete cache %s: %w", key, err)
	}

	c.logger.InfoWithFields("deleted month cache", map[string]interface{}{
		"bucket": b.String(),
		"key":    key,
	})
	return nil
}
