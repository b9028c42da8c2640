package photos

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	errs "gphotofetch/pkg/errors"
	"gphotofetch/pkg/logger"
	"gphotofetch/pkg/models"
	"gphotofetch/pkg/retry"
)

// fakeLister serves pages keyed by token; "" is the first page
type fakeLister struct {
	mu     sync.Mutex
	pages  map[string]Page
	errs   []error
	calls  int
	tokens []string
}

func (f *fakeLister) ListItems(ctx context.Context, bucket models.MonthBucket, token string) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.tokens = append(f.tokens, token)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return Page{}, err
	}
	return f.pages[token], nil
}

func raw(id, created string) RawItem {
	return RawItem{
		ID:           id,
		Filename:     id + ".jpg",
		CreationTime: created,
		BaseURL:      "https://lh3.example.com/" + id,
		MimeType:     "image/jpeg",
	}
}

func fastRetry(attempts int) *retry.Config {
	return &retry.Config{
		MaxAttempts: attempts,
		Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
		Logger:      logger.NewNopLogger(),
	}
}

var jan2023 = models.MonthBucket{Year: 2023, Month: 1}

func TestFetchFollowsPagination(t *testing.T) {
	lister := &fakeLister{pages: map[string]Page{
		"":   {Items: []RawItem{raw("a", "2023-01-02T10:00:00Z"), raw("b", "2023-01-03T10:00:00Z")}, NextPageToken: "p2"},
		"p2": {Items: []RawItem{raw("c", "2023-01-31T23:59:59Z")}, NextPageToken: "p3"},
		"p3": {Items: nil},
	}}
	f := NewFetcher(lister, fastRetry(3), nil, logger.NewNopLogger())

	records, err := f.FetchAll(context.Background(), jan2023)
	require.NoError(t, err)

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, []string{"", "p2", "p3"}, lister.tokens)
}

func TestFetchFiltersToMonth(t *testing.T) {
	lister := &fakeLister{pages: map[string]Page{
		"": {Items: []RawItem{
			raw("dec", "2022-12-31T23:00:00Z"),
			raw("jan", "2023-01-15T12:00:00Z"),
			raw("feb", "2023-02-01T00:00:00Z"),
			// Jan 31 evening in New York is Feb 1 in UTC
			raw("tz", "2023-01-31T21:00:00-05:00"),
		}},
	}}
	f := NewFetcher(lister, fastRetry(3), nil, logger.NewNopLogger())

	records, err := f.FetchAll(context.Background(), jan2023)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "jan", records[0].ID)
	for _, r := range records {
		assert.True(t, jan2023.Contains(r.CreationTime))
	}
}

func TestFetchIsLazy(t *testing.T) {
	lister := &fakeLister{pages: map[string]Page{
		"":   {Items: []RawItem{raw("a", "2023-01-02T10:00:00Z")}, NextPageToken: "p2"},
		"p2": {Items: []RawItem{raw("b", "2023-01-03T10:00:00Z")}},
	}}
	f := NewFetcher(lister, fastRetry(3), nil, logger.NewNopLogger())

	for rec, err := range f.Fetch(context.Background(), jan2023) {
		require.NoError(t, err)
		assert.Equal(t, "a", rec.ID)
		break
	}
	assert.Equal(t, 1, lister.calls, "second page must not be requested")
}

func TestFetchRetriesTransientErrors(t *testing.T) {
	lister := &fakeLister{
		errs: []error{
			&googleapi.Error{Code: http.StatusTooManyRequests, Message: "quota"},
			&googleapi.Error{Code: http.StatusServiceUnavailable, Message: "unavailable"},
		},
		pages: map[string]Page{"": {Items: []RawItem{raw("a", "2023-01-02T10:00:00Z")}}},
	}
	f := NewFetcher(lister, fastRetry(5), nil, logger.NewNopLogger())

	records, err := f.FetchAll(context.Background(), jan2023)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 3, lister.calls)
}

func TestFetchExhaustionIsFetchFailed(t *testing.T) {
	e := &googleapi.Error{Code: http.StatusInternalServerError, Message: "boom"}
	lister := &fakeLister{errs: []error{e, e, e, e}}
	f := NewFetcher(lister, fastRetry(3), nil, logger.NewNopLogger())

	_, err := f.FetchAll(context.Background(), jan2023)
	var failed *errs.FetchFailedError
	require.True(t, errors.As(err, &failed), "got %v", err)
	assert.Equal(t, "2023-01", failed.Bucket)
	assert.Equal(t, 3, failed.Attempts)
	assert.Equal(t, 3, lister.calls)

	var typed *errs.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, errs.ErrorTypeServerError, typed.Type)
}

func TestFetchDoesNotRetryAuthErrors(t *testing.T) {
	lister := &fakeLister{errs: []error{&googleapi.Error{Code: http.StatusUnauthorized, Message: "no"}}}
	f := NewFetcher(lister, fastRetry(5), nil, logger.NewNopLogger())

	_, err := f.FetchAll(context.Background(), jan2023)
	var failed *errs.FetchFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, 1, lister.calls)
}

func TestFetchParseError(t *testing.T) {
	bad := raw("x", "not a time")
	lister := &fakeLister{pages: map[string]Page{"": {Items: []RawItem{raw("a", "2023-01-02T10:00:00Z"), bad}}}}
	f := NewFetcher(lister, fastRetry(3), nil, logger.NewNopLogger())

	_, err := f.FetchAll(context.Background(), jan2023)
	var parseErr *errs.ParseError
	require.True(t, errors.As(err, &parseErr), "got %v", err)
	assert.Equal(t, "x", parseErr.ItemID)
	assert.Equal(t, "creationTime", parseErr.Field)
}

func TestParseItemRequiredFields(t *testing.T) {
	base := raw("a", "2023-01-02T10:00:00Z")

	tests := []struct {
		name  string
		edit  func(*RawItem)
		field string
	}{
		{"missing id", func(r *RawItem) { r.ID = "" }, "id"},
		{"missing filename", func(r *RawItem) { r.Filename = "" }, "filename"},
		{"missing base url", func(r *RawItem) { r.BaseURL = "" }, "baseUrl"},
		{"missing creation time", func(r *RawItem) { r.CreationTime = "" }, "creationTime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := base
			tt.edit(&item)
			_, err := ParseItem(item)
			var parseErr *errs.ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, tt.field, parseErr.Field)
		})
	}

	rec, err := ParseItem(base)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 1, 2, 10, 0, 0, 0, time.UTC), rec.CreationTime)
	assert.Equal(t, "image/jpeg", rec.MimeType)
}

func TestFetchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lister := &fakeLister{errs: []error{context.Canceled}}
	f := NewFetcher(lister, fastRetry(3), nil, logger.NewNopLogger())

	_, err := f.FetchAll(ctx, jan2023)
	assert.ErrorIs(t, err, context.Canceled)
}
