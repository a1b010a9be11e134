package client

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
)

// Session is the login state kept between shell runs.
type Session struct {
	AccessToken string         `json:"accessToken"`
	User        map[string]any `json:"user,omitempty"`

	path string
	mu   sync.Mutex
}

// DefaultSessionFile is where the shell keeps its session.
const DefaultSessionFile = "session.json"

// LoadSession reads the session file. A missing file is an empty session.
func LoadSession(path string) (*Session, error) {
	s := &Session{path: path}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Token returns the stored access token.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.AccessToken
}

// Store records a successful login and saves it.
func (s *Session) Store(user map[string]any) error {
	s.mu.Lock()
	token, _ := user["accessToken"].(string)
	s.AccessToken = token
	s.User = user
	s.mu.Unlock()
	return s.Save()
}

// Clear forgets the login and removes the file.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AccessToken = ""
	s.User = nil
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Save writes the session file, readable by the owner only.
func (s *Session) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
