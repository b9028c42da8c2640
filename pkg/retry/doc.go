// Package retry provides exponential backoff and retry logic for transient
// failures in remote calls: listing pages of media items and downloading
// item bytes.
//
//	cfg := &retry.Config{
//		MaxAttempts: 5,
//		Backoff:     retry.NewErrorTypeBackoff(),
//		RetryIf:     retry.DefaultRetryIf,
//		Logger:      logger.GetLogger(),
//	}
//	page, err := retry.DoWithResult(ctx, listPage, cfg)
//
// Network, rate limit (429) and server (5xx) errors are retried. Auth, not
// found and parse errors are returned immediately. When attempts run out
// the error is an *ExhaustedError carrying the attempt count.
package retry
