// Package portal implements the HTTP client, credential lifecycle, and
// session persistence for the external Portal backend.
package portal

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vecindapp/portalsync/internal/model"
)

// SessionStore holds the current Portal credential and the last role claim
// seen at login. Implementations must survive process restarts.
type SessionStore interface {
	// Credential returns the stored credential; ok is false when none is set.
	Credential() (model.Credential, bool)
	// SetCredential stores a fresh credential, replacing any previous one.
	SetCredential(cred model.Credential) error
	// Clear removes the stored credential (sign-out).
	Clear() error
	// Role returns the last Portal role claim seen at login (diagnostic).
	Role() string
	// SetRole records the last Portal role claim.
	SetRole(role string) error
}

const (
	sessionFile = "session.json"
	roleFile    = "portal_role"
)

// FileSessionStore persists the credential as a small JSON document and the
// role as a plain file under a state directory.
type FileSessionStore struct {
	dir string

	mu   sync.Mutex
	cred *model.Credential
	role string
}

// NewFileSessionStore loads any persisted session state from dir.
func NewFileSessionStore(dir string) (*FileSessionStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("session store: empty state dir")
	}
	s := &FileSessionStore{dir: dir}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSessionStore) load() error {
	data, err := os.ReadFile(filepath.Join(s.dir, sessionFile))
	switch {
	case err == nil:
		var cred model.Credential
		if err := json.Unmarshal(data, &cred); err != nil {
			return err
		}
		if cred.Token != "" {
			s.cred = &cred
		}
	case !errors.Is(err, os.ErrNotExist):
		return err
	}
	if b, err := os.ReadFile(filepath.Join(s.dir, roleFile)); err == nil {
		s.role = strings.TrimSpace(string(b))
	}
	return nil
}

// Credential returns the in-memory copy loaded at startup or set since.
func (s *FileSessionStore) Credential() (model.Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return model.Credential{}, false
	}
	return *s.cred, true
}

// SetCredential persists and replaces the current credential.
func (s *FileSessionStore) SetCredential(cred model.Credential) error {
	if cred.Token == "" {
		return errors.New("session store: empty token")
	}
	if cred.TokenType == "" {
		cred.TokenType = "Bearer"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(s.dir, sessionFile), data, 0o600); err != nil {
		return err
	}
	s.cred = &cred
	return nil
}

// Clear drops the credential from memory and disk.
func (s *FileSessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
	err := os.Remove(filepath.Join(s.dir, sessionFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Role returns the last Portal role claim seen at login.
func (s *FileSessionStore) Role() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// SetRole records the Portal role claim for diagnostics/display.
func (s *FileSessionStore) SetRole(role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(filepath.Join(s.dir, roleFile), []byte(role), 0o600); err != nil {
		return err
	}
	s.role = role
	return nil
}

// writeFileAtomic writes via a temp file and rename so a crash mid-write
// never leaves a truncated document.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
