package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/andresdev/backstage/internal/chatflow"
)

const conversationFile = "conversacion.json"

// sessionStore keeps the active chat session on disk so a chat can be
// resumed until the user starts a new one. Once a session exists only its id,
// the flow state and the unsent messages are written; the rest of the
// transcript is fetched from the server on resume.
type sessionStore struct {
	path string
}

func newSessionStore(dir string) *sessionStore {
	return &sessionStore{path: filepath.Join(dir, conversationFile)}
}

// Load returns the saved conversation, or nil when none exists.
func (s *sessionStore) Load() (*chatflow.Conversation, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation: %w", err)
	}

	var conv chatflow.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to parse conversation %s: %w", s.path, err)
	}
	return &conv, nil
}

// Save writes conv atomically.
func (s *sessionStore) Save(conv *chatflow.Conversation) error {
	local := *conv
	if local.SessionID != nil {
		local.Messages = conv.Pending()
		local.Flushed = 0
	}
	data, err := json.Marshal(local)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), conversationFile+".*")
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// Clear forgets the saved conversation.
func (s *sessionStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to clear conversation: %w", err)
	}
	return nil
}
