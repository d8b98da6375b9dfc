package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"docqa/internal/model"
)

// TurnStore persists a session's chat log.
type TurnStore interface {
	Load(ctx context.Context, sessionID string) ([]model.ChatTurn, error)
	Append(ctx context.Context, turn model.ChatTurn) error
	Clear(ctx context.Context, sessionID string) error
}

// Asker answers a single question.
type Asker interface {
	Ask(ctx context.Context, input AskInput) (*AskResult, error)
}

// ChatService records question and answer turns around Asker.
type ChatService struct {
	rag   Asker
	store TurnStore
	now   func() time.Time
}

func NewChatService(rag Asker, store TurnStore) *ChatService {
	return &ChatService{rag: rag, store: store, now: time.Now}
}

// Open returns a session restored from the store. An existing session keeps
// its in-memory turns if it already has any.
func (s *ChatService) Open(ctx context.Context, id string, existing *Session) (*Session, error) {
	sess := existing
	if sess == nil {
		sess = NewSession(id)
	}
	if s.store == nil {
		return sess, nil
	}
	persisted, err := s.store.Load(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load chat log failed: %w", err)
	}
	if sess.Restore(persisted) {
		log.Printf("chat: restored %d turns for session %s", len(persisted), sess.ID)
	}
	return sess, nil
}

type SendInput struct {
	Question string
	TopK     int
}

type SendResult struct {
	Turns []model.ChatTurn `json:"turns"`
}

// Ask appends the user turn, answers it and appends the assistant turn.
// When answering fails the user turn stays in the log.
func (s *ChatService) Ask(ctx context.Context, sess *Session, input SendInput) (*SendResult, error) {
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	sess.asking.Lock()
	defer sess.asking.Unlock()

	userTurn := model.ChatTurn{
		SessionID: sess.ID,
		Role:      model.RoleUser,
		Content:   question,
		CreatedAt: s.now(),
	}
	if err := s.record(ctx, sess, userTurn); err != nil {
		return nil, err
	}

	result, err := s.rag.Ask(ctx, AskInput{Question: question, TopK: input.TopK})
	if err != nil {
		return nil, err
	}

	assistantTurn := model.ChatTurn{
		SessionID: sess.ID,
		Role:      model.RoleAssistant,
		Content:   result.Answer,
		Citations: result.Citations,
		CreatedAt: s.now(),
	}
	if err := s.record(ctx, sess, assistantTurn); err != nil {
		return nil, err
	}
	return &SendResult{Turns: []model.ChatTurn{userTurn, assistantTurn}}, nil
}

// Clear empties the session and its persisted log.
func (s *ChatService) Clear(ctx context.Context, sess *Session) error {
	if sess == nil {
		return ErrSessionNotFound
	}
	sess.reset()
	if s.store == nil {
		return nil
	}
	if err := s.store.Clear(ctx, sess.ID); err != nil {
		return fmt.Errorf("clear chat log failed: %w", err)
	}
	return nil
}

func (s *ChatService) record(ctx context.Context, sess *Session, turn model.ChatTurn) error {
	sess.append(turn)
	if s.store == nil {
		return nil
	}
	if err := s.store.Append(ctx, turn); err != nil {
		return fmt.Errorf("persist chat turn failed: %w", err)
	}
	return nil
}
