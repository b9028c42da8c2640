// Package cache stores the item listing of each month so a month is listed
// remotely at most once.
//
// Every MonthBucket has one CSV object, photo_<YYYY>_<MM>.csv, in a
// gocloud.dev blob bucket (a local directory by default):
//
//	id,filename,creation_time,base_url,mime_type,size
//	AF1Qip...,IMG_0001.jpg,2023-01-05T10:00:00Z,https://lh3...,image/jpeg,0
//	#complete,1
//
// The trailer row is written last and tells a finished file apart from a
// truncated one; a month with no items is the header plus "#complete,0".
// An object that exists but fails to parse is reported as a
// *errors.CacheCorruptError and is never refetched or overwritten; the
// user removes it with "gphotofetch cache rm".
package cache
