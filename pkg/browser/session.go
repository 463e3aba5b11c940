package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SessionState is the persisted form of one account's authenticated browser
// session. Restoring it skips the login flow entirely when the cookies are
// still valid.
type SessionState struct {
	Username string          `json:"username"`
	SavedAt  time.Time       `json:"saved_at"`
	Cookies  []SessionCookie `json:"cookies"`
}

// SessionPath returns the session file location for an account
func SessionPath(dir, username string) string {
	username = strings.TrimPrefix(username, "@")
	return filepath.Join(dir, username+"_session.json")
}

// SaveSession persists the session state for an account. The file is written
// atomically so a crash never leaves a truncated session behind.
func SaveSession(dir, username string, cookies []SessionCookie) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create sessions directory: %w", err)
	}

	state := SessionState{
		Username: strings.TrimPrefix(username, "@"),
		SavedAt:  time.Now().UTC(),
		Cookies:  cookies,
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	path := SessionPath(dir, username)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize session file: %w", err)
	}
	return nil
}

// LoadSession reads a previously saved session. A missing file returns
// (nil, nil) so callers fall through to a fresh login.
func LoadSession(dir, username string) (*SessionState, error) {
	data, err := os.ReadFile(SessionPath(dir, username))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode session file: %w", err)
	}
	return &state, nil
}

// DeleteSession removes a stale session file, ignoring a missing one
func DeleteSession(dir, username string) error {
	err := os.Remove(SessionPath(dir, username))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
