// Package storage decides where a media item lives on disk and writes it
// there atomically.
//
// Items are laid out by capture date in UTC:
//
//	<root>/<YYYY>/<MM>/<DD>/<filename>
//
// With month names enabled the month directory is the English
// abbreviation instead (2023/Jan/05/IMG_1.jpg).
//
// Save streams into a ".part-*" file next to the destination, syncs it and
// renames it into place, so an interrupted run never leaves a truncated
// file at a final path. Two items with the same name on the same day map to
// the same path; the last rename wins.
package storage
