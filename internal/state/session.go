// Package state persists the per-user session record.
//
// The record remembers the detected hardware profile and the last
// served backend so repeat invocations skip re-detection prompts and
// serve without arguments does something sensible. It is a convenience
// cache, never the source of truth: instance state always comes from
// the container engine.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/getsolo/solo/internal/hardware"
)

// SessionFileName is the session record's file name inside the config
// directory.
const SessionFileName = "config.json"

// Session is the persisted per-user record.
type Session struct {
	Hardware *hardware.Profile `json:"hardware,omitempty"`
	Backend  string            `json:"server,omitempty"`
	Model    string            `json:"model,omitempty"`
	Port     int               `json:"port,omitempty"`
	LastUsed time.Time         `json:"last_used,omitempty"`
}

// DefaultConfigDir returns ~/.solo, the directory holding the session
// record and image overrides.
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".solo"), nil
}

// Load reads the session record from the config directory. A missing
// file yields an empty session, not an error; a corrupt file is an
// error so the user's record is never silently discarded.
func Load(configDir string) (*Session, error) {
	path := filepath.Join(configDir, SessionFileName)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &s, nil
}

// Save writes the session record atomically: the record is written to a
// temporary file in the same directory and renamed into place, so a
// crash mid-write never leaves a truncated record behind.
func Save(configDir string, s *Session) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	path := filepath.Join(configDir, SessionFileName)
	tmp, err := os.CreateTemp(configDir, SessionFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}
