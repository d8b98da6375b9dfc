package repository

import (
	"fmt"

	"gorm.io/gorm"

	"docqa/internal/model"
)

const maxTurnsPerSession = 500

type ChatTurnRepository struct {
	db *gorm.DB
}

func NewChatTurnRepository(db *gorm.DB) *ChatTurnRepository {
	return &ChatTurnRepository{db: db}
}

func (r *ChatTurnRepository) Migrate() error {
	if err := r.db.AutoMigrate(&model.ChatTurn{}); err != nil {
		return fmt.Errorf("migrate chat turns failed: %w", err)
	}
	return nil
}

func (r *ChatTurnRepository) Create(turn *model.ChatTurn) error {
	if err := r.db.Create(turn).Error; err != nil {
		return fmt.Errorf("create chat turn failed: %w", err)
	}
	return nil
}

// ListBySessionID returns the most recent turns of a session, oldest first.
func (r *ChatTurnRepository) ListBySessionID(sessionID string, limit int) ([]model.ChatTurn, error) {
	if limit <= 0 || limit > maxTurnsPerSession {
		limit = maxTurnsPerSession
	}

	var turns []model.ChatTurn
	if err := r.db.Where("session_id = ?", sessionID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("list chat turns failed: %w", err)
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (r *ChatTurnRepository) DeleteBySessionID(sessionID string) error {
	if err := r.db.Where("session_id = ?", sessionID).Delete(&model.ChatTurn{}).Error; err != nil {
		return fmt.Errorf("delete chat turns failed: %w", err)
	}
	return nil
}
