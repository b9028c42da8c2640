package photos

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "gphotofetch/pkg/errors"
	"gphotofetch/pkg/logger"
	"gphotofetch/pkg/models"
)

// Client downloads media bytes with an authenticated HTTP client
type Client struct {
	httpClient *http.Client
	userAgent  string
	logger     logger.Logger
}

// NewClient wraps httpClient. A nil logger uses the global logger.
func NewClient(httpClient *http.Client, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		userAgent:  "gphotofetch",
		logger:     log,
	}
}

// Download opens the original bytes of rec. The caller closes the body.
// The returned size is -1 when the server does not announce it.
func (c *Client) Download(ctx context.Context, rec models.ItemRecord) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rec.DownloadURL(), nil)
	if err != nil {
		return nil, 0, &errs.Error{
			Type:    errs.ErrorTypeUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		c.logger.DebugWithFields("download request failed", map[string]interface{}{
			"item_id":  rec.ID,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, 0, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("network error: %v", err),
		}
	}

	// base URLs grant access on their own, keep them out of the logs
	logger.LogRequest(c.logger.WithField("item_id", rec.ID), http.MethodGet, "mediaItems/"+rec.ID,
		resp.StatusCode, float64(duration.Microseconds())/1000)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, 0, errs.FromStatus(resp.StatusCode,
			fmt.Sprintf("download of %s returned %s", rec.ID, resp.Status))
	}

	return resp.Body, resp.ContentLength, nil
}
