package config

import (
	"fmt"
	"sync"
)

// SectionIDCredentials is the identifier for the test account section.
const SectionIDCredentials = "credentials"

// CredentialsSection stores the test account used when no environment
// variables are set.
type CredentialsSection struct {
	Username   string
	Password   string
	RememberMe bool
	mu         sync.RWMutex
}

// NewCredentialsSection returns an empty section.
func NewCredentialsSection() *CredentialsSection {
	return &CredentialsSection{}
}

func (s *CredentialsSection) ID() string { return SectionIDCredentials }

func (s *CredentialsSection) Title() string { return "Test Account" }

func (s *CredentialsSection) Description() string {
	return "Login for the test account. UISYNC_USERNAME and UISYNC_PASSWORD take precedence."
}

func (s *CredentialsSection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{
		"username":    s.Username,
		"password":    s.Password,
		"remember_me": s.RememberMe,
	}
}

func (s *CredentialsSection) SetData(data map[string]any) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := data["username"]; ok {
		str, ok := v.(string)
		if !ok {
			return fmt.Errorf("invalid value type for username: expected string, got %T", v)
		}
		s.Username = str
	}
	if v, ok := data["password"]; ok {
		str, ok := v.(string)
		if !ok {
			return fmt.Errorf("invalid value type for password: expected string, got %T", v)
		}
		s.Password = str
	}
	if v, ok := data["remember_me"].(bool); ok {
		s.RememberMe = v
	}
	return nil
}

// Validate rejects a username without a password and vice versa.
func (s *CredentialsSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if (s.Username == "") != (s.Password == "") {
		return fmt.Errorf("username and password must be set together")
	}
	return nil
}

func (s *CredentialsSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Username = ""
	s.Password = ""
	s.RememberMe = false
}

// Get returns the stored username and password.
func (s *CredentialsSection) Get() (username, password string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Username, s.Password
}

// Set replaces the stored username and password.
func (s *CredentialsSection) Set(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Username = username
	s.Password = password
}
