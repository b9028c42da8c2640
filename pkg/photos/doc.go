// Package photos talks to the Google Photos Library API.
//
// A Lister returns one page of raw media items for a month. GoogleLister is
// the production implementation on top of gphotoslibrary; tests supply
// their own. Fetcher turns a Lister into a lazy, validated, month-filtered
// sequence of records with retries and rate limiting. Client downloads the
// original bytes of a record.
package photos
