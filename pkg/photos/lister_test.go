package photos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	photoslibrary "github.com/nekr0z/gphotoslibrary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "gphotofetch/pkg/errors"
	"gphotofetch/pkg/logger"
	"gphotofetch/pkg/models"
	"gphotofetch/pkg/ratelimit"
)

// mockLibraryServer mimics the mediaItems:search endpoint
type mockLibraryServer struct {
	server   *httptest.Server
	requests int32
	failures int32 // answered with 429 before serving

	mu       sync.Mutex
	pages    map[string]string // page token -> response JSON
	lastBody map[string]interface{}
}

func newMockLibraryServer(t *testing.T) *mockLibraryServer {
	m := &mockLibraryServer{pages: make(map[string]string)}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/mediaItems:search", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&m.requests, 1)
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if atomic.AddInt32(&m.failures, -1) >= 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
			return
		}

		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		token, _ := body["pageToken"].(string)

		m.mu.Lock()
		m.lastBody = body
		resp, ok := m.pages[token]
		m.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(resp))
	})

	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockLibraryServer) lister(t *testing.T) *GoogleLister {
	t.Helper()
	l, err := newGoogleLister(m.server.Client(), m.server.URL+"/", 50, "photo")
	require.NoError(t, err)
	return l
}

const firstPage = `{
  "mediaItems": [
    {"id": "a", "filename": "IMG_1.jpg", "baseUrl": "https://lh3.example.com/a", "mimeType": "image/jpeg",
     "mediaMetadata": {"creationTime": "2023-01-05T10:00:00Z", "width": "4032", "height": "3024"}},
    {"id": "b", "filename": "VID_2.mp4", "baseUrl": "https://lh3.example.com/b", "mimeType": "video/mp4",
     "mediaMetadata": {"creationTime": "2023-01-31T23:30:00Z"}}
  ],
  "nextPageToken": "page-2"
}`

const secondPage = `{
  "mediaItems": [
    {"id": "c", "filename": "IMG_3.jpg", "baseUrl": "https://lh3.example.com/c", "mimeType": "image/jpeg",
     "mediaMetadata": {"creationTime": "2023-02-01T00:30:00Z"}}
  ]
}`

func TestGoogleListerSearchRequest(t *testing.T) {
	m := newMockLibraryServer(t)
	m.pages[""] = firstPage

	page, err := m.lister(t).ListItems(context.Background(), models.MonthBucket{Year: 2023, Month: 2}, "")
	require.NoError(t, err)

	assert.Equal(t, "page-2", page.NextPageToken)
	require.Len(t, page.Items, 2)
	assert.Equal(t, RawItem{
		ID:           "a",
		Filename:     "IMG_1.jpg",
		CreationTime: "2023-01-05T10:00:00Z",
		BaseURL:      "https://lh3.example.com/a",
		MimeType:     "image/jpeg",
	}, page.Items[0])

	m.mu.Lock()
	body := m.lastBody
	m.mu.Unlock()

	assert.EqualValues(t, 50, body["pageSize"])
	filters := body["filters"].(map[string]interface{})
	ranges := filters["dateFilter"].(map[string]interface{})["ranges"].([]interface{})
	require.Len(t, ranges, 1)
	dr := ranges[0].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"year": 2023.0, "month": 1.0, "day": 31.0}, dr["startDate"])
	assert.Equal(t, map[string]interface{}{"year": 2023.0, "month": 3.0, "day": 1.0}, dr["endDate"])
	assert.Equal(t, []interface{}{"PHOTO"}, filters["mediaTypeFilter"].(map[string]interface{})["mediaTypes"])
}

func TestFetcherAgainstLibraryServer(t *testing.T) {
	m := newMockLibraryServer(t)
	m.pages[""] = firstPage
	m.pages["page-2"] = secondPage
	m.failures = 1

	f := NewFetcher(m.lister(t), fastRetry(3), ratelimit.PerMinute(0), logger.NewNopLogger())
	records, err := f.FetchAll(context.Background(), models.MonthBucket{Year: 2023, Month: 1})
	require.NoError(t, err)

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"a", "b"}, ids, "the February item is filtered out")
	assert.True(t, records[1].IsVideo())
	assert.True(t, strings.HasSuffix(records[1].DownloadURL(), "=dv"))
	assert.EqualValues(t, 3, atomic.LoadInt32(&m.requests), "one throttled request and two pages")
}

func TestFetcherLibraryServerExhausted(t *testing.T) {
	m := newMockLibraryServer(t)
	m.failures = 10

	f := NewFetcher(m.lister(t), fastRetry(2), nil, logger.NewNopLogger())
	_, err := f.FetchAll(context.Background(), models.MonthBucket{Year: 2023, Month: 1})

	var fetchErr *errs.FetchFailedError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 2, fetchErr.Attempts)

	var typed *errs.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, errs.ErrorTypeRateLimit, typed.Type)
}

func TestSearchWindowSpansNeighbouringDays(t *testing.T) {
	tests := []struct {
		bucket   models.MonthBucket
		from, to string
	}{
		{models.MonthBucket{Year: 2023, Month: 1}, "2022-12-31", "2023-02-01"},
		{models.MonthBucket{Year: 2024, Month: 2}, "2024-01-31", "2024-03-01"},
		{models.MonthBucket{Year: 2023, Month: 12}, "2023-11-30", "2024-01-01"},
	}

	for _, tt := range tests {
		from, to := searchWindow(tt.bucket)
		assert.Equal(t, tt.from, from.Format(time.DateOnly), tt.bucket.String())
		assert.Equal(t, tt.to, to.Format(time.DateOnly), tt.bucket.String())
	}
}

// localItem is a media item together with the UTC offset of the place it
// was taken, which decides the date the search filter sees
type localItem struct {
	id      string
	created time.Time
	offset  time.Duration
}

// newDateFilterServer answers searches the way the Library API does:
// an item matches when its local capture date lies in a requested range.
func newDateFilterServer(t *testing.T, items []localItem) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/mediaItems:search", func(w http.ResponseWriter, r *http.Request) {
		var req photoslibrary.SearchMediaItemsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		dayNum := func(y, m, d int64) int64 { return y*10000 + m*100 + d }
		resp := photoslibrary.SearchMediaItemsResponse{}
		for _, it := range items {
			local := it.created.In(time.FixedZone("", int(it.offset.Seconds())))
			n := dayNum(int64(local.Year()), int64(local.Month()), int64(local.Day()))
			for _, dr := range req.Filters.DateFilter.Ranges {
				from := dayNum(dr.StartDate.Year, dr.StartDate.Month, dr.StartDate.Day)
				to := dayNum(dr.EndDate.Year, dr.EndDate.Month, dr.EndDate.Day)
				if n >= from && n <= to {
					resp.MediaItems = append(resp.MediaItems, &photoslibrary.MediaItem{
						Id:            it.id,
						Filename:      it.id + ".jpg",
						BaseUrl:       "https://lh3.example.com/" + it.id,
						MimeType:      "image/jpeg",
						MediaMetadata: &photoslibrary.MediaMetadata{CreationTime: it.created.Format(time.RFC3339)},
					})
					break
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(&resp))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestBoundaryItemsLandInExactlyOneMonth(t *testing.T) {
	items := []localItem{
		// Evening of Jan 31 in New York, already Feb 1 in UTC
		{"late-evening", time.Date(2023, 2, 1, 0, 30, 0, 0, time.UTC), -5 * time.Hour},
		// Morning of Feb 1 in Tokyo, still Jan 31 in UTC
		{"early-morning", time.Date(2023, 1, 31, 20, 0, 0, 0, time.UTC), 9 * time.Hour},
		{"mid-january", time.Date(2023, 1, 15, 12, 0, 0, 0, time.UTC), 0},
		{"end-of-february", time.Date(2023, 2, 28, 23, 0, 0, 0, time.UTC), 2 * time.Hour},
	}
	server := newDateFilterServer(t, items)

	lister, err := newGoogleLister(server.Client(), server.URL+"/", 100, "")
	require.NoError(t, err)
	f := NewFetcher(lister, fastRetry(1), nil, logger.NewNopLogger())

	placed := map[string][]string{}
	for _, b := range []models.MonthBucket{{Year: 2023, Month: 1}, {Year: 2023, Month: 2}} {
		records, err := f.FetchAll(context.Background(), b)
		require.NoError(t, err)
		for _, r := range records {
			placed[r.ID] = append(placed[r.ID], b.String())
		}
	}

	assert.Equal(t, map[string][]string{
		"late-evening":    {"2023-02"},
		"early-morning":   {"2023-01"},
		"mid-january":     {"2023-01"},
		"end-of-february": {"2023-02"},
	}, placed)
}
