package cache

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"gphotofetch/pkg/models"
)

const trailerTag = "#complete"

var header = []string{"id", "filename", "creation_time", "base_url", "mime_type", "size"}

// Encode writes records followed by the completion trailer
func Encode(w io.Writer, records []models.ItemRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.ID,
			r.Filename,
			r.CreationTime.UTC().Format(time.RFC3339Nano),
			r.BaseURL,
			r.MimeType,
			strconv.FormatInt(r.Size, 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	if err := cw.Write([]string{trailerTag, strconv.Itoa(len(records))}); err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

// Decode reads a file written by Encode. Any deviation (missing header or
// trailer, bad row, count mismatch) is an error describing the problem.
func Decode(r io.Reader) ([]models.ItemRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("malformed csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("file is empty")
	}
	if !slices.Equal(rows[0], header) {
		return nil, fmt.Errorf("unexpected header %q", rows[0])
	}

	last := rows[len(rows)-1]
	if len(rows) < 2 || len(last) != 2 || last[0] != trailerTag {
		return nil, errors.New("completion marker missing, file was not fully written")
	}
	want, err := strconv.Atoi(last[1])
	if err != nil || want < 0 {
		return nil, fmt.Errorf("invalid record count %q in completion marker", last[1])
	}

	body := rows[1 : len(rows)-1]
	if len(body) != want {
		return nil, fmt.Errorf("completion marker says %d records, found %d", want, len(body))
	}

	records := make([]models.ItemRecord, 0, len(body))
	for i, row := range body {
		rec, err := decodeRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeRow(row []string) (models.ItemRecord, error) {
	if len(row) != len(header) {
		return models.ItemRecord{}, fmt.Errorf("expected %d fields, got %d", len(header), len(row))
	}
	if row[0] == "" {
		return models.ItemRecord{}, errors.New("empty id")
	}

	created, err := time.Parse(time.RFC3339Nano, row[2])
	if err != nil {
		return models.ItemRecord{}, fmt.Errorf("invalid creation_time %q", row[2])
	}
	size, err := strconv.ParseInt(row[5], 10, 64)
	if err != nil {
		return models.ItemRecord{}, fmt.Errorf("invalid size %q", row[5])
	}

	return models.ItemRecord{
		ID:           row[0],
		Filename:     row[1],
		CreationTime: created.UTC(),
		BaseURL:      row[3],
		MimeType:     row[4],
		Size:         size,
	}, nil
}
