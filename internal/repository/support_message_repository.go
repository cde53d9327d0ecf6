package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"portalchat/internal/model"
)

var newestFirst = clause.OrderBy{Columns: []clause.OrderByColumn{
	{Column: clause.Column{Name: "timestamp"}, Desc: true},
	{Column: clause.Column{Name: "id"}, Desc: true},
}}

type SupportMessageRepository struct {
	db *gorm.DB
}

func NewSupportMessageRepository(db *gorm.DB) *SupportMessageRepository {
	return &SupportMessageRepository{db: db}
}

func (r *SupportMessageRepository) Create(ctx context.Context, message *model.SupportMessage) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("create support message failed: %w", err)
	}
	return nil
}

func (r *SupportMessageRepository) ListByUserID(ctx context.Context, userID uint) ([]model.SupportMessage, error) {
	messages := make([]model.SupportMessage, 0)
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order(newestFirst).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list support messages failed: %w", err)
	}
	return messages, nil
}

func (r *SupportMessageRepository) ListAll(ctx context.Context) ([]model.SupportMessage, error) {
	messages := make([]model.SupportMessage, 0)
	if err := r.db.WithContext(ctx).Order(newestFirst).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list all support messages failed: %w", err)
	}
	return messages, nil
}

// MarkRead sets is_read and reports whether a row with that id exists.
// Rows that were already read still report true.
func (r *SupportMessageRepository) MarkRead(ctx context.Context, id uint) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.SupportMessage{}).
		Where("id = ?", id).
		Update("is_read", true)
	if result.Error != nil {
		return false, fmt.Errorf("mark support message read failed: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	// MySQL reports zero affected rows when the value did not change.
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.SupportMessage{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check support message failed: %w", err)
	}
	return count > 0, nil
}
