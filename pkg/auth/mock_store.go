package auth

import (
	"sync"

	"golang.org/x/oauth2"
)

// MockStore implements TokenStore in memory for tests
type MockStore struct {
	token *oauth2.Token
	mu    sync.RWMutex
	saves int

	// Error injection for testing
	SaveError   error
	LoadError   error
	DeleteError error
}

// NewMockStore creates a new mock token store
func NewMockStore() *MockStore {
	return &MockStore{}
}

func (m *MockStore) Name() string { return "mock" }

// Save keeps a copy of tok
func (m *MockStore) Save(tok *oauth2.Token) error {
	if m.SaveError != nil {
		return m.SaveError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if tok == nil {
		return ErrInvalidToken
	}
	cp := *tok
	m.token = &cp
	m.saves++
	return nil
}

// Load returns a copy of the stored token
func (m *MockStore) Load() (*oauth2.Token, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.token == nil {
		return nil, ErrTokenNotFound
	}
	cp := *m.token
	return &cp, nil
}

// Delete forgets the token
func (m *MockStore) Delete() error {
	if m.DeleteError != nil {
		return m.DeleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == nil {
		return ErrTokenNotFound
	}
	m.token = nil
	return nil
}

// Saves returns how many times Save succeeded
func (m *MockStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}
