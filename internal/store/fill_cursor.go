package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FillCursor remembers, per bot and side, the last fill already accounted
// for, so fill retrieval can resume where the previous session stopped.
type FillCursor struct {
	Bot        string `gorm:"primaryKey;size:64"`
	BuyFillID  *string
	SellFillID *string
	BuyDate    *time.Time
	SellDate   *time.Time
}

func (FillCursor) TableName() string { return "fills" }

// FillCursorRepository persists one cursor row per bot.
type FillCursorRepository struct {
	db *gorm.DB
}

func NewFillCursorRepository(db *gorm.DB) *FillCursorRepository {
	return &FillCursorRepository{db: db}
}

// Get returns the bot's cursor, or a zero cursor when none was saved yet.
func (r *FillCursorRepository) Get(bot string) (*FillCursor, error) {
	var cursor FillCursor
	err := r.db.Where("bot = ?", bot).First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &FillCursor{Bot: bot}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fill cursor for bot %s: %w", bot, err)
	}
	return &cursor, nil
}

// Save upserts the cursor.
func (r *FillCursorRepository) Save(cursor *FillCursor) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bot"}},
		UpdateAll: true,
	}).Create(cursor).Error
	if err != nil {
		return fmt.Errorf("failed to save fill cursor for bot %s: %w", cursor.Bot, err)
	}
	return nil
}
