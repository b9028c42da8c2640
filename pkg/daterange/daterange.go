// Package daterange expands a month range into ordered month buckets.
package daterange

import (
	"strconv"
	"strings"

	errs "gphotofetch/pkg/errors"
	"gphotofetch/pkg/models"
)

// Expand returns every calendar month from (startYear, startMonth) to
// (endYear, endMonth) inclusive, in chronological order.
func Expand(startYear, startMonth, endYear, endMonth int) ([]models.MonthBucket, error) {
	start := models.MonthBucket{Year: startYear, Month: startMonth}
	end := models.MonthBucket{Year: endYear, Month: endMonth}

	if err := validate(start); err != nil {
		return nil, err
	}
	if err := validate(end); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, errs.NewConfigError(errs.ErrInvalidRange, "start %s is after end %s", start, end)
	}

	n := (end.Year-start.Year)*12 + (end.Month - start.Month) + 1
	buckets := make([]models.MonthBucket, 0, n)
	for b := start; !end.Before(b); b = b.Next() {
		buckets = append(buckets, b)
	}
	return buckets, nil
}

// ExpandRange is Expand for a models.Range
func ExpandRange(r models.Range) ([]models.MonthBucket, error) {
	return Expand(r.Start.Year, r.Start.Month, r.End.Year, r.End.Month)
}

func validate(b models.MonthBucket) error {
	if b.Month < 1 || b.Month > 12 {
		return errs.NewConfigError(errs.ErrInvalidRange, "month %d is outside 1-12", b.Month)
	}
	if b.Year < 1 || b.Year > 9999 {
		return errs.NewConfigError(errs.ErrInvalidRange, "year %d is outside 1-9999", b.Year)
	}
	return nil
}

// Parse reads a YYYY-MM string into a bucket
func Parse(s string) (models.MonthBucket, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return models.MonthBucket{}, errs.NewConfigError(errs.ErrInvalidRange, "%q is not in YYYY-MM form", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return models.MonthBucket{}, errs.NewConfigError(errs.ErrInvalidRange, "bad year in %q", s)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return models.MonthBucket{}, errs.NewConfigError(errs.ErrInvalidRange, "bad month in %q", s)
	}
	b := models.MonthBucket{Year: year, Month: month}
	if err := validate(b); err != nil {
		return models.MonthBucket{}, err
	}
	return b, nil
}
