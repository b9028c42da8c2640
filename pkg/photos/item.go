package photos

import (
	"time"

	errs "gphotofetch/pkg/errors"
	"gphotofetch/pkg/models"
)

// RawItem is a media item as returned by the remote listing, before
// validation. CreationTime is RFC 3339 text.
type RawItem struct {
	ID           string
	Filename     string
	CreationTime string
	BaseURL      string
	MimeType     string
}

// Page is one response of the remote listing
type Page struct {
	Items         []RawItem
	NextPageToken string
}

// ParseItem validates raw and converts it into an ItemRecord. Every field
// except MimeType is required.
func ParseItem(raw RawItem) (models.ItemRecord, error) {
	switch {
	case raw.ID == "":
		return models.ItemRecord{}, &errs.ParseError{Field: "id", Reason: "is empty"}
	case raw.Filename == "":
		return models.ItemRecord{}, &errs.ParseError{ItemID: raw.ID, Field: "filename", Reason: "is empty"}
	case raw.BaseURL == "":
		return models.ItemRecord{}, &errs.ParseError{ItemID: raw.ID, Field: "baseUrl", Reason: "is empty"}
	case raw.CreationTime == "":
		return models.ItemRecord{}, &errs.ParseError{ItemID: raw.ID, Field: "creationTime", Reason: "is empty"}
	}

	created, err := time.Parse(time.RFC3339, raw.CreationTime)
	if err != nil {
		return models.ItemRecord{}, &errs.ParseError{
			ItemID: raw.ID,
			Field:  "creationTime",
			Reason: "is not RFC 3339: " + raw.CreationTime,
		}
	}

	return models.ItemRecord{
		ID:           raw.ID,
		Filename:     raw.Filename,
		CreationTime: created.UTC(),
		BaseURL:      raw.BaseURL,
		MimeType:     raw.MimeType,
	}, nil
}
