package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"

	errs "gphotofetch/pkg/errors"
	"gphotofetch/pkg/logger"
)

func sampleToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "ya29.access-token-value",
		TokenType:    "Bearer",
		RefreshToken: "1//refresh-token-value",
		Expiry:       time.Now().Add(time.Hour).Round(time.Second),
	}
}

func assertSameToken(t *testing.T, want, got *oauth2.Token) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.RefreshToken, got.RefreshToken)
	assert.True(t, want.Expiry.Equal(got.Expiry))
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "token.json")
	store := NewFileStore(path)

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrTokenNotFound)

	tok := sampleToken()
	require.NoError(t, store.Save(tok))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := store.Load()
	require.NoError(t, err)
	assertSameToken(t, tok, loaded)

	require.NoError(t, store.Delete())
	assert.ErrorIs(t, store.Delete(), ErrTokenNotFound)
}

func TestFileStoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileStore(path).Load()
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestEncryptedFileStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.enc")

	store, err := NewEncryptedFileStore(path, "")
	require.NoError(t, err)

	// Passphrase generated beside the store
	_, err = os.Stat(filepath.Join(dir, ".passphrase"))
	require.NoError(t, err)

	tok := sampleToken()
	require.NoError(t, store.Save(tok))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), tok.AccessToken)
	assert.NotContains(t, string(content), tok.RefreshToken)

	// A second store instance reuses the same passphrase
	store2, err := NewEncryptedFileStore(path, "")
	require.NoError(t, err)
	loaded, err := store2.Load()
	require.NoError(t, err)
	assertSameToken(t, tok, loaded)

	// A wrong passphrase cannot decrypt
	wrong, err := NewEncryptedFileStore(path, "not the passphrase")
	require.NoError(t, err)
	_, err = wrong.Load()
	assert.Error(t, err)

	require.NoError(t, store.Delete())
	_, err = store.Load()
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	require.NoError(t, err)

	_, err = store.Load()
	assert.ErrorIs(t, err, ErrTokenNotFound)

	tok := sampleToken()
	require.NoError(t, store.Save(tok))

	loaded, err := store.Load()
	require.NoError(t, err)
	assertSameToken(t, tok, loaded)

	require.NoError(t, store.Delete())
	assert.ErrorIs(t, store.Delete(), ErrTokenNotFound)
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv(EnvRefreshToken, "")
	store := NewEnvironmentStore()

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrTokenNotFound)

	t.Setenv(EnvRefreshToken, "1//from-env")
	tok, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "1//from-env", tok.RefreshToken)
	assert.False(t, tok.Valid(), "env token must be refreshed before use")

	assert.ErrorIs(t, store.Save(sampleToken()), ErrStoreUnavailable)
}

func TestManagerFallback(t *testing.T) {
	failing := NewMockStore()
	failing.SaveError = errors.New("keychain locked")
	working := NewMockStore()
	m := NewManagerWithStores(NewEnvironmentStore(), failing, working)
	t.Setenv(EnvRefreshToken, "")

	_, _, err := m.Load()
	assert.ErrorIs(t, err, ErrTokenNotFound)

	store, err := m.Save(sampleToken())
	require.NoError(t, err)
	assert.Same(t, working, store)

	tok, from, err := m.Load()
	require.NoError(t, err)
	assert.Same(t, working, from)
	assert.Equal(t, sampleToken().AccessToken, tok.AccessToken)

	require.NoError(t, m.Delete())
	assert.ErrorIs(t, m.Delete(), ErrTokenNotFound)

	_, err = m.Save(&oauth2.Token{})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewManagerKinds(t *testing.T) {
	dir := t.TempDir()

	m, err := NewManager("file", filepath.Join(dir, "token.json"), dir)
	require.NoError(t, err)
	require.Len(t, m.Stores(), 1)
	assert.True(t, strings.HasPrefix(m.Stores()[0].Name(), "file:"))

	m, err = NewManager("encrypted", "", dir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(m.Stores()[0].Name(), "encrypted:"))

	_, err = NewManager("carrier-pigeon", "", dir)
	assert.Error(t, err)
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "********", MaskToken("short"))
	assert.Equal(t, "ya29...alue", MaskToken("ya29.access-token-value"))
}

func writeClientSecret(t *testing.T, tokenURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auth.json")
	content := fmt.Sprintf(`{"installed":{
		"client_id":"id.apps.googleusercontent.com",
		"client_secret":"secret",
		"auth_uri":"https://accounts.google.com/o/oauth2/auth",
		"token_uri":%q,
		"redirect_uris":["urn:ietf:wg:oauth:2.0:oob","http://localhost"]}}`, tokenURL)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func tokenServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"fresh-%d","token_type":"Bearer","refresh_token":"1//refresh","expires_in":3600}`, n)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestLoadClientConfigErrors(t *testing.T) {
	_, err := LoadClientConfig(filepath.Join(t.TempDir(), "missing.json"))
	var cfgErr *errs.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.ErrorIs(t, err, errs.ErrMissingCredentials)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"web":{}}`), 0600))
	_, err = LoadClientConfig(bad)
	assert.ErrorIs(t, err, errs.ErrInvalidCredentials)
}

func TestLogin(t *testing.T) {
	var calls int32
	server := tokenServer(t, &calls)
	cfg, err := LoadClientConfig(writeClientSecret(t, server.URL))
	require.NoError(t, err)

	var out strings.Builder
	tok, err := Login(context.Background(), cfg, strings.NewReader("4/abc-code\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, "fresh-1", tok.AccessToken)
	assert.Contains(t, out.String(), "access_type=offline")

	_, err = Login(context.Background(), cfg, strings.NewReader("\n"), &out)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestOpenRequiresToken(t *testing.T) {
	var calls int32
	server := tokenServer(t, &calls)
	secret := writeClientSecret(t, server.URL)

	_, err := Open(context.Background(), secret, NewManagerWithStores(NewMockStore()), time.Minute, logger.NewNopLogger())
	assert.True(t, errs.IsConfigError(err))
	assert.ErrorIs(t, err, errs.ErrMissingCredentials)
}

func TestSessionPersistsRefreshedToken(t *testing.T) {
	var calls int32
	server := tokenServer(t, &calls)
	secret := writeClientSecret(t, server.URL)

	var sawAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
	}))
	defer api.Close()

	store := NewMockStore()
	expired := sampleToken()
	expired.Expiry = time.Now().Add(-time.Hour)
	require.NoError(t, store.Save(expired))

	session, err := Open(context.Background(), secret, NewManagerWithStores(store), time.Minute, logger.NewNopLogger())
	require.NoError(t, err)

	resp, err := session.HTTPClient().Get(api.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "Bearer fresh-1", sawAuth)

	require.NoError(t, session.Close())
	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "fresh-1", saved.AccessToken)
	assert.Equal(t, 2, store.Saves())
}

func TestSessionCloseWithoutRefreshIsNoop(t *testing.T) {
	var calls int32
	server := tokenServer(t, &calls)
	secret := writeClientSecret(t, server.URL)

	store := NewMockStore()
	require.NoError(t, store.Save(sampleToken()))

	session, err := Open(context.Background(), secret, NewManagerWithStores(store), 0, logger.NewNopLogger())
	require.NoError(t, err)

	tok, err := session.Token()
	require.NoError(t, err)
	assert.Equal(t, sampleToken().AccessToken, tok.AccessToken)

	require.NoError(t, session.Close())
	assert.Equal(t, 1, store.Saves())
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}
