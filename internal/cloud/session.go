package cloud

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/castmir/vaultmesh/internal/common"
)

// Session is a cached cloud credential. Expiry is epoch millis; zero
// means the token carried no readable expiry and is trusted until the
// backend rejects it.
type Session struct {
	AccessToken string `json:"accessToken"`
	Expiry      int64  `json:"expiry,omitempty"`
}

// Valid reports whether the token can still be presented at now.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || s.AccessToken == "" {
		return false
	}
	if s.Expiry == 0 {
		return true
	}
	return now.UnixMilli() < s.Expiry
}

// NewSession builds a session from a raw token. When the token is a JWT
// its exp claim is read without signature verification; the local clock
// check is a convenience, the backend remains the authority.
func NewSession(token string) Session {
	s := Session{AccessToken: token}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return s
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.Expiry = exp.UnixMilli()
	}
	return s
}

// SessionStore persists the session to disk so a restart does not force
// re-authentication.
type SessionStore struct {
	path string

	mu     sync.Mutex
	cached *Session
	loaded bool
}

func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// Current returns the cached session, loading it from disk on first use.
// Returns common.ErrNotSignedIn when no session exists.
func (s *SessionStore) Current() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		if err := s.loadLocked(); err != nil {
			return nil, err
		}
	}
	if s.cached == nil {
		return nil, common.ErrNotSignedIn
	}
	return s.cached, nil
}

func (s *SessionStore) loadLocked() error {
	s.loaded = true
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		// A corrupt session file is the same as no session.
		return nil
	}
	s.cached = &sess
	return nil
}

// Save caches and persists the session.
func (s *SessionStore) Save(sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	s.cached = &sess
	s.loaded = true
	return nil
}

// Clear drops the cached session and removes the file. Called on any 401
// so a dead token is never presented twice.
func (s *SessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cached = nil
	s.loaded = true
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
