// Package runner drives a whole fetch run: it expands the month range,
// loads or fetches the metadata of each month in order, skips items that
// are already on disk and hands the rest to the download dispatcher.
//
// A month whose metadata cannot be obtained is recorded as failed and the
// run moves on. Only configuration errors stop a run.
package runner
