// Package gormstore implements store.Store on top of gorm, used with PostgreSQL in production.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/store"
)

type userModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Username  string `gorm:"type:text;not null;uniqueIndex"`
	CreatedAt time.Time
}

func (userModel) TableName() string { return "users" }

type messageModel struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	SenderID   int64  `gorm:"not null;index"`
	ReceiverID int64  `gorm:"not null;index:idx_messages_receiver"`
	ContextID  string `gorm:"type:text;not null;index"`
	Body       string `gorm:"type:text;not null"`
	Attachment string `gorm:"type:text;not null;default:''"`
	IsRead     bool   `gorm:"not null;default:false;index:idx_messages_receiver"`
	CreatedAt  time.Time
}

func (messageModel) TableName() string { return "messages" }

func (m *messageModel) toStore() *store.Message {
	return &store.Message{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		ContextID:  m.ContextID,
		Body:       m.Body,
		Attachment: m.Attachment,
		IsRead:     m.IsRead,
		CreatedAt:  m.CreatedAt,
	}
}

// Store implements store.Store with gorm.
type Store struct {
	db *gorm.DB
}

// OpenPostgres connects to PostgreSQL using a libpq style DSN or URL.
func OpenPostgres(dsn string) (*Store, error) {
	return New(postgres.Open(dsn))
}

// New opens a store for any gorm dialector.
func New(dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	return &Store{db: db}, nil
}

// Migrate creates or updates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&userModel{}, &messageModel{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateUser creates a new user.
func (s *Store) CreateUser(ctx context.Context, username string) (*store.User, error) {
	u := userModel{Username: username}
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &store.User{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt}, nil
}

// GetUserByID retrieves a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	var u userModel
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &store.User{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt}, nil
}

// CreateMessage persists a message and returns the stored record.
func (s *Store) CreateMessage(ctx context.Context, msg store.NewMessage) (*store.Message, error) {
	m := messageModel{
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		ContextID:  msg.ContextID,
		Body:       msg.Body,
		Attachment: msg.Attachment,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m.toStore(), nil
}

// UpdateReadFlags marks unread messages addressed to receiverID as read.
func (s *Store) UpdateReadFlags(ctx context.Context, ids []int64, receiverID int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var flipped []messageModel
	err := s.db.WithContext(ctx).
		Model(&flipped).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}}}).
		Where("receiver_id = ? AND is_read = ? AND id IN ?", receiverID, false, ids).
		Update("is_read", true).Error
	if err != nil {
		return nil, fmt.Errorf("update read flags: %w", err)
	}
	out := make([]int64, 0, len(flipped))
	for _, m := range flipped {
		out = append(out, m.ID)
	}
	return out, nil
}

// GetMessage retrieves a message by ID.
func (s *Store) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	var m messageModel
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return m.toStore(), nil
}
