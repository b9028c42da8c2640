package photos

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	photoslibrary "github.com/nekr0z/gphotoslibrary"

	"gphotofetch/pkg/models"
)

// DefaultPageSize is the largest page the Library API accepts for search
const DefaultPageSize = 100

// Media type filters understood by the Library API
const (
	MediaTypeAll   = "ALL_MEDIA"
	MediaTypePhoto = "PHOTO"
	MediaTypeVideo = "VIDEO"
)

// ReadonlyScope is the OAuth scope needed for listing and downloading
const ReadonlyScope = photoslibrary.PhotoslibraryReadonlyScope

// Lister returns one page of media items created within bucket
type Lister interface {
	ListItems(ctx context.Context, bucket models.MonthBucket, pageToken string) (Page, error)
}

// GoogleLister lists media items through the Photos Library search endpoint
type GoogleLister struct {
	items     *photoslibrary.MediaItemsService
	pageSize  int64
	mediaType string
}

// NewGoogleLister builds a lister over an authenticated HTTP client
func NewGoogleLister(client *http.Client, pageSize int, mediaType string) (*GoogleLister, error) {
	return newGoogleLister(client, "", pageSize, mediaType)
}

// newGoogleLister allows pointing the service at another endpoint
func newGoogleLister(client *http.Client, basePath string, pageSize int, mediaType string) (*GoogleLister, error) {
	svc, err := photoslibrary.New(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create photoslibrary service: %w", err)
	}
	if basePath != "" {
		svc.BasePath = basePath
	}

	if pageSize <= 0 || pageSize > DefaultPageSize {
		pageSize = DefaultPageSize
	}
	if mediaType == "" {
		mediaType = MediaTypeAll
	}

	return &GoogleLister{
		items:     photoslibrary.NewMediaItemsService(svc),
		pageSize:  int64(pageSize),
		mediaType: strings.ToUpper(mediaType),
	}, nil
}

// searchWindow returns the inclusive date range searched for a bucket. The
// date filter matches the local date an item was taken on, which can be a
// day either side of its UTC date, so the window reaches one day into each
// neighbouring month. The fetcher narrows results back to the UTC month.
func searchWindow(bucket models.MonthBucket) (from, to time.Time) {
	return bucket.Start().AddDate(0, 0, -1), bucket.Next().Start()
}

func libraryDate(t time.Time) *photoslibrary.Date {
	return &photoslibrary.Date{Year: int64(t.Year()), Month: int64(t.Month()), Day: int64(t.Day())}
}

// ListItems searches one page of the bucket's date range
func (g *GoogleLister) ListItems(ctx context.Context, bucket models.MonthBucket, pageToken string) (Page, error) {
	from, to := searchWindow(bucket)
	req := &photoslibrary.SearchMediaItemsRequest{
		PageSize:  g.pageSize,
		PageToken: pageToken,
		Filters: &photoslibrary.Filters{
			DateFilter: &photoslibrary.DateFilter{
				Ranges: []*photoslibrary.DateRange{{
					StartDate: libraryDate(from),
					EndDate:   libraryDate(to),
				}},
			},
			MediaTypeFilter: &photoslibrary.MediaTypeFilter{
				MediaTypes: []string{g.mediaType},
			},
		},
	}

	resp, err := g.items.Search(req).Context(ctx).Do()
	if err != nil {
		return Page{}, err
	}

	page := Page{
		Items:         make([]RawItem, 0, len(resp.MediaItems)),
		NextPageToken: resp.NextPageToken,
	}
	for _, m := range resp.MediaItems {
		if m == nil {
			continue
		}
		raw := RawItem{
			ID:       m.Id,
			Filename: m.Filename,
			BaseURL:  m.BaseUrl,
			MimeType: m.MimeType,
		}
		if m.MediaMetadata != nil {
			raw.CreationTime = m.MediaMetadata.CreationTime
		}
		page.Items = append(page.Items, raw)
	}

	return page, nil
}
