package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	errs "gphotofetch/pkg/errors"
	"gphotofetch/pkg/logger"
)

// Session is the authenticated client handle shared by the listing and
// download sides of a run. It is opened once and closed at shutdown.
type Session struct {
	manager *Manager
	source  *recordingSource
	client  *http.Client
	initial string
	logger  logger.Logger
}

// Open loads the client secret and the stored token and builds a session.
// Missing or unreadable credentials are reported as *errors.ConfigError.
func Open(ctx context.Context, clientSecretFile string, m *Manager, timeout time.Duration, log logger.Logger) (*Session, error) {
	cfg, err := LoadClientConfig(clientSecretFile)
	if err != nil {
		return nil, err
	}

	tok, store, err := m.Load()
	if err != nil {
		return nil, errs.NewConfigError(errs.ErrMissingCredentials,
			"no OAuth token stored; run 'gphotofetch auth login' first")
	}
	if tok.RefreshToken == "" && !tok.Valid() {
		return nil, errs.NewConfigError(errs.ErrInvalidCredentials,
			"stored token has expired and cannot be refreshed; run 'gphotofetch auth login' again")
	}

	if log == nil {
		log = logger.GetLogger()
	}
	log.DebugWithFields("loaded OAuth token", map[string]interface{}{
		"store":  store.Name(),
		"expiry": tok.Expiry,
	})

	s := NewSession(ctx, cfg, tok, m, log)
	s.client.Timeout = timeout
	return s, nil
}

// NewSession wraps an existing token
func NewSession(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token, m *Manager, log logger.Logger) *Session {
	if log == nil {
		log = logger.GetLogger()
	}
	src := &recordingSource{base: oauth2.ReuseTokenSource(tok, cfg.TokenSource(ctx, tok)), last: tok}
	return &Session{
		manager: m,
		source:  src,
		client:  oauth2.NewClient(ctx, src),
		initial: tok.AccessToken,
		logger:  log,
	}
}

// HTTPClient returns the authenticated client
func (s *Session) HTTPClient() *http.Client {
	return s.client
}

// Token returns a valid token, refreshing it when needed
func (s *Session) Token() (*oauth2.Token, error) {
	tok, err := s.source.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, errs.NewConfigError(errs.ErrInvalidCredentials, "token refresh rejected: %v", err)
		}
		return nil, err
	}
	return tok, nil
}

// Close persists the token when it was refreshed during the session
func (s *Session) Close() error {
	tok := s.source.Latest()
	if tok == nil || tok.AccessToken == s.initial {
		return nil
	}

	store, err := s.manager.Save(tok)
	if err != nil {
		return err
	}
	s.logger.DebugWithFields("persisted refreshed OAuth token", map[string]interface{}{
		"store":  store.Name(),
		"expiry": tok.Expiry,
	})
	return nil
}

// recordingSource remembers the most recent token handed out
type recordingSource struct {
	base oauth2.TokenSource
	mu   sync.Mutex
	last *oauth2.Token
}

func (r *recordingSource) Token() (*oauth2.Token, error) {
	tok, err := r.base.Token()
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.last = tok
	r.mu.Unlock()
	return tok, nil
}

func (r *recordingSource) Latest() *oauth2.Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
