package app

import (
	"context"
	"fmt"

	"docqa/internal/model"
)

type TurnPublisher interface {
	Publish(ctx context.Context, turn model.ChatTurn) error
}

type TurnRepository interface {
	Create(turn *model.ChatTurn) error
	ListBySessionID(sessionID string, limit int) ([]model.ChatTurn, error)
	DeleteBySessionID(sessionID string) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID string) ([]model.ChatTurn, bool, error)
	SetHistory(ctx context.Context, sessionID string, turns []model.ChatTurn) error
	DeleteHistory(ctx context.Context, sessionID string) error
	MarkDirty(ctx context.Context, sessionID string) error
	IsDirty(ctx context.Context, sessionID string) (bool, error)
}

// DatabaseTurnStore keeps chat logs in the database. With a publisher, writes
// go through the queue and a worker persists them; the cache is marked dirty
// until that happens so reads fall through to the database.
type DatabaseTurnStore struct {
	repo      TurnRepository
	publisher TurnPublisher
	cache     HistoryCache
	limit     int
}

// NewDatabaseTurnStore accepts a nil publisher or cache.
func NewDatabaseTurnStore(repo TurnRepository, publisher TurnPublisher, cache HistoryCache, limit int) *DatabaseTurnStore {
	return &DatabaseTurnStore{repo: repo, publisher: publisher, cache: cache, limit: limit}
}

func (s *DatabaseTurnStore) Load(ctx context.Context, sessionID string) ([]model.ChatTurn, error) {
	if s.cache != nil {
		dirty, err := s.cache.IsDirty(ctx, sessionID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.cache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	turns, err := s.repo.ListBySessionID(sessionID, s.limit)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if dirty, dirtyErr := s.cache.IsDirty(ctx, sessionID); dirtyErr == nil && !dirty {
			_ = s.cache.SetHistory(ctx, sessionID, turns)
		}
	}
	return turns, nil
}

func (s *DatabaseTurnStore) Append(ctx context.Context, turn model.ChatTurn) error {
	if s.cache != nil {
		_ = s.cache.MarkDirty(ctx, turn.SessionID)
		_ = s.cache.DeleteHistory(ctx, turn.SessionID)
	}
	if s.publisher == nil {
		return s.repo.Create(&turn)
	}
	if err := s.publisher.Publish(ctx, turn); err != nil {
		return fmt.Errorf("%w: %v", ErrTurnEnqueue, err)
	}
	return nil
}

func (s *DatabaseTurnStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.repo.DeleteBySessionID(sessionID); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.DeleteHistory(ctx, sessionID)
	}
	return nil
}
