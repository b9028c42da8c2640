package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gphotofetch/pkg/models"
)

// Resolver maps records to destination paths under a root directory
type Resolver struct {
	root       string
	monthNames bool
}

// NewResolver creates a resolver rooted at root. When monthNames is set the
// month directory uses the abbreviated month name.
func NewResolver(root string, monthNames bool) *Resolver {
	return &Resolver{root: root, monthNames: monthNames}
}

// Root returns the destination root directory
func (r *Resolver) Root() string {
	return r.root
}

// Resolve returns the destination path for rec. It is a pure function of
// the record's creation time and filename.
func (r *Resolver) Resolve(rec models.ItemRecord) string {
	t := rec.CreationTime.UTC()

	month := fmt.Sprintf("%02d", int(t.Month()))
	if r.monthNames {
		month = t.Month().String()[:3]
	}

	return filepath.Join(
		r.root,
		fmt.Sprintf("%04d", t.Year()),
		month,
		fmt.Sprintf("%02d", t.Day()),
		safeName(rec),
	)
}

// Exists reports whether a regular file is present at path
func (r *Resolver) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Save writes src to path via a temporary file in the same directory and
// returns the number of bytes written
func (r *Resolver) Save(src io.Reader, path string) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".part-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return n, fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return n, fmt.Errorf("failed to sync file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return n, fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return n, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return n, nil
}

// safeName keeps only the last path element of the remote filename so it
// cannot point outside the day directory
func safeName(rec models.ItemRecord) string {
	name := strings.ReplaceAll(rec.Filename, "\\", "/")
	name = filepath.Base(filepath.FromSlash(name))
	if name == "." || name == ".." || name == string(filepath.Separator) || name == "" {
		return rec.ID
	}
	return name
}
