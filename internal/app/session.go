package app

import (
	"sync"

	"github.com/google/uuid"

	"docqa/internal/model"
)

// Session is an in-memory chat log. The caller owns its lifetime and passes
// it to ChatService explicitly.
type Session struct {
	ID string

	mu    sync.Mutex
	turns []model.ChatTurn
	// asking serializes questions so turns stay paired.
	asking sync.Mutex
}

func NewSession(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{ID: id}
}

// Turns returns a copy of the log in order.
func (s *Session) Turns() []model.ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ChatTurn(nil), s.turns...)
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Restore adopts persisted turns only when the in-memory log is empty.
// It reports whether anything was adopted.
func (s *Session) Restore(persisted []model.ChatTurn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.turns) > 0 || len(persisted) == 0 {
		return false
	}
	s.turns = append([]model.ChatTurn(nil), persisted...)
	return true
}

func (s *Session) append(turn model.ChatTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
}

func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}
