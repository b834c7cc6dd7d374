// Package session keeps the logged-in identity of the command line client
// between invocations.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"techpaint/internal/models"
)

var ErrNoSession = errors.New("no active session, please log in")

type Session struct {
	Token       string      `json:"token"`
	TokenExpiry int64       `json:"tokenExpiry"` // Unix seconds
	User        models.User `json:"user"`
}

func (s Session) Expired(now time.Time) bool {
	return s.TokenExpiry != 0 && now.Unix() >= s.TokenExpiry
}

// Store persists a single session.
type Store interface {
	Save(s Session) error
	Load() (Session, error)
	Clear() error
}

// FileStore keeps the session as a JSON file readable only by its owner.
type FileStore struct {
	Path string
	now  func() time.Time
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path, now: time.Now}
}

// DefaultPath is ~/.config/techpaint/session.json or the platform
// equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "techpaint", "session.json"), nil
}

func (f *FileStore) Save(s Session) error {
	if s.Token == "" {
		return errors.New("session token is empty")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return os.Rename(tmp, f.Path)
}

// Load returns ErrNoSession when there is no usable session on disk.
func (f *FileStore) Load() (Session, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, ErrNoSession
		}
		return Session{}, fmt.Errorf("failed to read session: %w", err)
	}
	if len(data) == 0 {
		return Session{}, ErrNoSession
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("failed to parse session: %w", err)
	}
	if s.Token == "" || s.User.ID == "" {
		return Session{}, ErrNoSession
	}

	now := time.Now
	if f.now != nil {
		now = f.now
	}
	if s.Expired(now()) {
		return Session{}, ErrNoSession
	}
	return s, nil
}

func (f *FileStore) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Require returns the current session. Callers must invoke it before any
// other work and stop on ErrNoSession.
func Require(store Store) (Session, error) {
	s, err := store.Load()
	if err != nil {
		return Session{}, err
	}
	return s, nil
}
