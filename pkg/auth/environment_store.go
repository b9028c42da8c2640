package auth

import (
	"os"

	"golang.org/x/oauth2"
)

// EnvRefreshToken names the variable read by EnvironmentStore
const EnvRefreshToken = "GPHOTOFETCH_REFRESH_TOKEN"

// EnvironmentStore reads a refresh token from the environment. It is
// read-only and meant for unattended runs.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based token store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Name() string { return "environment" }

// Load builds an expired token carrying only the refresh token, so the
// first request refreshes it
func (e *EnvironmentStore) Load() (*oauth2.Token, error) {
	refresh := os.Getenv(EnvRefreshToken)
	if refresh == "" {
		return nil, ErrTokenNotFound
	}
	return &oauth2.Token{RefreshToken: refresh}, nil
}

// Save is not supported for environment variables
func (e *EnvironmentStore) Save(tok *oauth2.Token) error {
	return ErrStoreUnavailable
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete() error {
	return ErrStoreUnavailable
}
