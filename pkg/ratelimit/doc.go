// Package ratelimit keeps request rates to the Photos Library API and the
// media download hosts under a configured ceiling.
//
// Two limiters are available. SlidingWindow counts requests inside a
// moving window and backs PerMinute, used for listing and, by default, for
// downloads. TokenBucket refills to full capacity once per period and backs
// BurstPerMinute, used for downloads when download.burst is set.
//
//	limiter := ratelimit.PerMinute(cfg.Fetch.RequestsPerMinute)
//	if err := limiter.Wait(ctx); err != nil {
//		return err // context cancelled
//	}
//
// PerMinute(0) returns a limiter that never blocks.
package ratelimit
