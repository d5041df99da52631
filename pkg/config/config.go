// Package config manages the per-user settings file, ~/.uisync/config.json.
// Settings are grouped into sections that a Manager loads and saves
// together.
package config

import (
	"sync"
)

var (
	globalManager *Manager
	globalMu      sync.Mutex
)

// Initialize loads the user config at configPath (DefaultPath when empty)
// with the browser and credentials sections registered.
func Initialize(configPath string) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	store, err := NewFileStore(configPath)
	if err != nil {
		return err
	}

	manager := NewManager(store)
	for _, s := range []Section{NewBrowserSection(), NewCredentialsSection()} {
		if err := manager.RegisterSection(s); err != nil {
			return err
		}
	}
	if err := manager.LoadAll(); err != nil {
		return err
	}

	globalManager = manager
	return nil
}

// Global returns the manager set up by Initialize. It panics before that.
func Global() *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		panic("config not initialized: call config.Initialize first")
	}
	return globalManager
}

// IsInitialized reports whether Initialize has succeeded.
func IsInitialized() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalManager != nil
}

func section[T Section](id string) T {
	var zero T
	if !IsInitialized() {
		return zero
	}
	s, ok := Global().GetSection(id)
	if !ok {
		return zero
	}
	typed, ok := s.(T)
	if !ok {
		return zero
	}
	return typed
}

// GetBrowser returns the browser section, or nil before Initialize.
func GetBrowser() *BrowserSection {
	return section[*BrowserSection](SectionIDBrowser)
}

// GetCredentials returns the credentials section, or nil before Initialize.
func GetCredentials() *CredentialsSection {
	return section[*CredentialsSection](SectionIDCredentials)
}
