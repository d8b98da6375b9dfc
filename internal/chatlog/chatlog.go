// Package chatlog persists chat sessions as JSON files, one per session.
package chatlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"docqa/internal/model"
)

var ErrInvalidSessionID = errors.New("invalid session id")

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// FileStore rewrites a session file atomically on every append.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chat log dir failed: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(sessionID string) (string, error) {
	if !sessionIDPattern.MatchString(sessionID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	return filepath.Join(s.dir, sessionID+".json"), nil
}

func (s *FileStore) Load(_ context.Context, sessionID string) ([]model.ChatTurn, error) {
	path, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return readTurns(path)
}

func (s *FileStore) Append(_ context.Context, turn model.ChatTurn) error {
	path, err := s.path(turn.SessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	turns, err := readTurns(path)
	if err != nil {
		return err
	}
	turn.ID = uint(len(turns) + 1)
	turns = append(turns, turn)
	return writeTurns(path, turns)
}

func (s *FileStore) Clear(_ context.Context, sessionID string) error {
	path, err := s.path(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove chat log failed: %w", err)
	}
	return nil
}

func readTurns(path string) ([]model.ChatTurn, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read chat log failed: %w", err)
	}
	var turns []model.ChatTurn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, fmt.Errorf("parse chat log %s failed: %w", filepath.Base(path), err)
	}
	return turns, nil
}

func writeTurns(path string, turns []model.ChatTurn) error {
	raw, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chat log failed: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".chatlog-*")
	if err != nil {
		return fmt.Errorf("create chat log temp failed: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write chat log failed: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync chat log failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close chat log failed: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace chat log failed: %w", err)
	}
	return nil
}
