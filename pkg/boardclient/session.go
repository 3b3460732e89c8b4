package boardclient

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	authdomain "crmboard/internal/auth/domain"
	authdto "crmboard/internal/auth/dto"
)

// AuthState is what listeners see when the session signs in, refreshes or signs out
type AuthState struct {
	SignedIn bool
	User     *authdomain.User
}

// TenantID of the signed in user, empty when signed out
func (s AuthState) TenantID() string {
	if s.User == nil {
		return ""
	}
	return s.User.TenantID
}

// Session holds the tokens of the current user and notifies listeners on changes
type Session struct {
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	user         *authdomain.User
	nextID       int
	listeners    map[int]func(AuthState)
}

func NewSession() *Session {
	return &Session{listeners: make(map[int]func(AuthState))}
}

// OnChange registers fn for auth state changes. The returned func unregisters it.
func (s *Session) OnChange(fn func(AuthState)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Set stores a token response and notifies listeners
func (s *Session) Set(resp *authdto.TokenResponse) {
	s.mu.Lock()
	s.accessToken = resp.AccessToken
	s.refreshToken = resp.RefreshToken
	if resp.User != nil {
		s.user = resp.User
	}
	s.mu.Unlock()
	s.notify()
}

// Clear signs the session out and notifies listeners
func (s *Session) Clear() {
	s.mu.Lock()
	s.accessToken, s.refreshToken, s.user = "", "", nil
	s.mu.Unlock()
	s.notify()
}

func (s *Session) State() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return AuthState{SignedIn: s.accessToken != "", User: s.user}
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

func (s *Session) notify() {
	state := s.State()
	s.mu.RLock()
	fns := make([]func(AuthState), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(state)
	}
}

// Save writes the tokens to path with owner-only permissions
func (s *Session) Save(path string) error {
	s.mu.RLock()
	resp := authdto.TokenResponse{AccessToken: s.accessToken, RefreshToken: s.refreshToken, User: s.user}
	s.mu.RUnlock()

	b, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// LoadSession restores a session saved with Save. A missing file yields a signed out session.
func LoadSession(path string) (*Session, error) {
	s := NewSession()
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	var resp authdto.TokenResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, err
	}
	s.accessToken, s.refreshToken, s.user = resp.AccessToken, resp.RefreshToken, resp.User
	return s, nil
}
