// Package schema owns the persisted shape of the chat tables: gorm based
// bootstrap for any dialect, dev seed data, and versioned SQL migrations for
// Postgres deployments.
package schema

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"portalchat/internal/model"
)

// SeedSessionID is stable so repeated seeding is a no-op.
var SeedSessionID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("portalchat:seed-session")).String()

// CreateTables creates the three chat tables and their indexes if they are
// missing. Postgres and SQLite run the whole step in one transaction; MySQL
// commits DDL implicitly.
func CreateTables(ctx context.Context, db *gorm.DB) error {
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Migrator().AutoMigrate(&model.ChatSession{}, &model.Message{}); err != nil {
			return fmt.Errorf("create chat tables failed: %w", err)
		}
		if err := tx.Migrator().AutoMigrate(&model.SupportMessage{}); err != nil {
			return fmt.Errorf("create support table failed: %w", err)
		}
		return nil
	})
	return err
}

// DropTables removes messages before the chat_sessions table it references.
func DropTables(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := tx.Migrator()
		if err := m.DropTable(&model.Message{}); err != nil {
			return fmt.Errorf("drop messages failed: %w", err)
		}
		if err := m.DropTable(&model.ChatSession{}); err != nil {
			return fmt.Errorf("drop chat_sessions failed: %w", err)
		}
		if err := m.DropTable(&model.SupportMessage{}); err != nil {
			return fmt.Errorf("drop support_messages failed: %w", err)
		}
		return nil
	})
}

// CreateSeedData inserts a sample conversation and two support threads for
// local development. It does nothing when the seed session already exists.
func CreateSeedData(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.ChatSession
		err := tx.Where("id = ?", SeedSessionID).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check seed session failed: %w", err)
		}

		base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
		session := model.ChatSession{
			ID:        SeedSessionID,
			CreatedAt: base,
			ContactInfo: datatypes.JSONMap{
				"name":  "Sample Visitor",
				"email": "visitor@example.com",
			},
		}
		if err := tx.Create(&session).Error; err != nil {
			return fmt.Errorf("seed chat session failed: %w", err)
		}

		messages := []model.Message{
			{SessionID: SeedSessionID, Role: model.RoleAssistant, Content: "Hi! How can we help you today?", Timestamp: base.Add(1 * time.Second)},
			{SessionID: SeedSessionID, Role: model.RoleUser, Content: "I have a question about the events calendar.", Timestamp: base.Add(2 * time.Second)},
			{SessionID: SeedSessionID, Role: model.RoleAssistant, Content: "Sure, which event are you interested in?", Timestamp: base.Add(3 * time.Second)},
		}
		if err := tx.Create(&messages).Error; err != nil {
			return fmt.Errorf("seed messages failed: %w", err)
		}

		support := []model.SupportMessage{
			{UserID: 1, Content: "My listing photos are not showing up.", ThreadID: "seed-thread-1", Timestamp: base.Add(4 * time.Second)},
			{UserID: 2, Content: "How do I renew my subscription?", ThreadID: "seed-thread-2", Timestamp: base.Add(5 * time.Second)},
		}
		if err := tx.Create(&support).Error; err != nil {
			return fmt.Errorf("seed support messages failed: %w", err)
		}
		return nil
	})
}
