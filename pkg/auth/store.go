package auth

import (
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/oauth2"
)

// Errors
var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrInvalidToken     = errors.New("invalid token")
	ErrStoreUnavailable = errors.New("token store unavailable")
)

// TokenStore persists the OAuth token of the single Google account the
// tool works for
type TokenStore interface {
	// Name identifies the store in logs and status output
	Name() string
	Load() (*oauth2.Token, error)
	Save(tok *oauth2.Token) error
	Delete() error
}

// Manager tries its stores in order: Load returns the first token found,
// Save writes to the first store that accepts it, Delete clears all.
type Manager struct {
	stores []TokenStore
}

// NewManagerWithStores creates a manager over explicit stores
func NewManagerWithStores(stores ...TokenStore) *Manager {
	return &Manager{stores: stores}
}

// NewManager builds the store chain for a token_store setting:
//
//	auto      environment, keyring if available, encrypted file in dataDir
//	keyring   keyring only
//	encrypted encrypted file in dataDir
//	file      plain JSON at tokenFile
func NewManager(kind, tokenFile, dataDir string) (*Manager, error) {
	var stores []TokenStore

	switch kind {
	case "", "auto":
		stores = append(stores, NewEnvironmentStore())
		if ks, err := NewKeyringStore(); err == nil {
			stores = append(stores, ks)
		}
		es, err := NewEncryptedFileStore(filepath.Join(dataDir, "token.enc"), "")
		if err != nil {
			return nil, fmt.Errorf("failed to create encrypted store: %w", err)
		}
		stores = append(stores, es)
	case "keyring":
		ks, err := NewKeyringStore()
		if err != nil {
			return nil, err
		}
		stores = append(stores, ks)
	case "encrypted":
		es, err := NewEncryptedFileStore(filepath.Join(dataDir, "token.enc"), "")
		if err != nil {
			return nil, fmt.Errorf("failed to create encrypted store: %w", err)
		}
		stores = append(stores, es)
	case "file":
		stores = append(stores, NewFileStore(tokenFile))
	default:
		return nil, fmt.Errorf("unknown token store %q", kind)
	}

	return &Manager{stores: stores}, nil
}

// Stores returns the store chain
func (m *Manager) Stores() []TokenStore {
	return m.stores
}

// Load returns the first token found, and the store it came from
func (m *Manager) Load() (*oauth2.Token, TokenStore, error) {
	for _, store := range m.stores {
		tok, err := store.Load()
		if err == nil && tok != nil {
			return tok, store, nil
		}
	}
	return nil, nil, ErrTokenNotFound
}

// Save writes tok to the first store that accepts it
func (m *Manager) Save(tok *oauth2.Token) (TokenStore, error) {
	if tok == nil || (tok.AccessToken == "" && tok.RefreshToken == "") {
		return nil, ErrInvalidToken
	}

	var lastErr error
	for _, store := range m.stores {
		if err := store.Save(tok); err == nil {
			return store, nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("failed to store token: %w", lastErr)
	}
	return nil, errors.New("no available token stores")
}

// Delete removes the token from every store
func (m *Manager) Delete() error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		err := store.Delete()
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrStoreUnavailable):
		default:
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to delete token: %w", lastErr)
	}
	if !deleted {
		return ErrTokenNotFound
	}
	return nil
}

// MaskToken masks all but the first 4 and last 4 characters of a secret
func MaskToken(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
