// Package localstate keeps the client's files under ~/.quicknotes: the session
// cookies and the identity of the last signed-in user.
package localstate

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/naveenspark/quicknotes/pkg/domain"
)

const (
	cookieFile = "cookies.json"
	userFile   = "user.yaml"
	logFile    = "quicknotes.log"
)

// ErrNoUser is returned by LoadUser when no identity is cached.
var ErrNoUser = errors.New("localstate: no cached user")

// DefaultDir returns ~/.quicknotes.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".quicknotes"), nil
}

// State is the on-disk client state. It implements session.Cache.
type State struct {
	dir    string
	jar    *Jar
	logger *slog.Logger
}

type cachedUser struct {
	User    domain.User `yaml:"user"`
	SavedAt time.Time   `yaml:"saved_at"`
}

// Open creates dir if needed and loads the cookie jar from it.
func Open(dir string, logger *slog.Logger) (*State, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("localstate.Open: create %s: %w", dir, err)
	}
	jar, err := OpenJar(filepath.Join(dir, cookieFile), logger)
	if err != nil {
		return nil, fmt.Errorf("localstate.Open: %w", err)
	}
	return &State{dir: dir, jar: jar, logger: logger}, nil
}

// Dir returns the state directory.
func (s *State) Dir() string { return s.dir }

// Jar returns the persistent cookie jar.
func (s *State) Jar() *Jar { return s.jar }

// LogPath is where the TUI writes its log while it owns the terminal.
func (s *State) LogPath() string { return filepath.Join(s.dir, logFile) }

// Save records u as the signed-in user.
func (s *State) Save(u domain.User) error {
	data, err := yaml.Marshal(cachedUser{User: u, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("localstate.Save: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, userFile), data, 0600); err != nil {
		return fmt.Errorf("localstate.Save: %w", err)
	}
	return nil
}

// Clear forgets the cached user and the session cookies.
func (s *State) Clear() error {
	var errs []error
	if err := os.Remove(filepath.Join(s.dir, userFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	if err := s.jar.Clear(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("localstate.Clear: %w", err)
	}
	return nil
}

// LoadUser returns the cached identity and when it was saved. It says nothing
// about whether the server still honours the session.
func (s *State) LoadUser() (domain.User, time.Time, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, userFile))
	if errors.Is(err, os.ErrNotExist) {
		return domain.User{}, time.Time{}, ErrNoUser
	}
	if err != nil {
		return domain.User{}, time.Time{}, fmt.Errorf("localstate.LoadUser: %w", err)
	}
	var c cachedUser
	if err := yaml.Unmarshal(data, &c); err != nil {
		return domain.User{}, time.Time{}, fmt.Errorf("localstate.LoadUser: %w", err)
	}
	if c.User.ID == "" {
		return domain.User{}, time.Time{}, ErrNoUser
	}
	return c.User, c.SavedAt, nil
}
