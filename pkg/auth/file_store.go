package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// FileStore keeps the token as plain JSON, the token.json layout other
// Google API tools use
type FileStore struct {
	path string
}

// NewFileStore creates a file store at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Name() string { return "file:" + f.path }

// Load reads the token file
func (f *FileStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidToken, f.path, err)
	}
	return &tok, nil
}

// Save writes the token file with owner-only permissions
func (f *FileStore) Save(tok *oauth2.Token) error {
	if tok == nil {
		return ErrInvalidToken
	}

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	tempFile := f.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return os.Rename(tempFile, f.path)
}

// Delete removes the token file
func (f *FileStore) Delete() error {
	if err := os.Remove(f.path); err != nil {
		if os.IsNotExist(err) {
			return ErrTokenNotFound
		}
		return err
	}
	return nil
}
