package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fadmann/chat/internal/models"
	apperrors "github.com/fadmann/chat/pkg/errors"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// AppendMessageInput carries a validated message ready to be stored.
type AppendMessageInput struct {
	RoomID  string
	Author  models.AuthorSnapshot
	Content string
	ReplyTo *string
}

// HistoryQuery selects a page of room history. Before is exclusive; zero means "latest".
type HistoryQuery struct {
	RoomID string
	Limit  int
	Before time.Time
}

// MessageStore persists room messages and their reactions through gorm.
type MessageStore struct {
	db *gorm.DB
}

// NewMessageStore constructs a MessageStore.
func NewMessageStore(db *gorm.DB) (*MessageStore, error) {
	if db == nil {
		return nil, errors.New("message store: db is required")
	}
	return &MessageStore{db: db}, nil
}

// RoomExists reports whether roomID names a stored room.
func (s *MessageStore) RoomExists(ctx context.Context, roomID string) (bool, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ensureContext(ctx)).
		Model(&models.Room{}).
		Where("id = ?", roomID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("message store: lookup room: %w", err)
	}
	return count > 0, nil
}

// AppendMessage stores a new message. A reply target must be a message in the
// same room, otherwise apperrors.ErrInvalidReply is returned. The returned
// message has its Parent loaded when it is a reply.
func (s *MessageStore) AppendMessage(ctx context.Context, input AppendMessageInput) (*models.Message, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(input.RoomID) == "" || strings.TrimSpace(input.Author.ID) == "" {
		return nil, errors.New("message store: room id and author are required")
	}

	message := models.Message{
		RoomID:  input.RoomID,
		UserID:  input.Author.ID,
		Author:  datatypes.NewJSONType(input.Author),
		Content: input.Content,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if input.ReplyTo != nil {
			replyTo := strings.TrimSpace(*input.ReplyTo)
			var parent models.Message
			err := tx.Where("id = ? AND room_id = ?", replyTo, input.RoomID).First(&parent).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrInvalidReply
			}
			if err != nil {
				return err
			}
			message.ReplyTo = &parent.ID
			message.Parent = &parent
		}

		// Parent is already stored; skip association upserts.
		return tx.Omit("Parent", "Room", "Reactions").Create(&message).Error
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidReply) {
			return nil, err
		}
		return nil, fmt.Errorf("message store: append: %w", err)
	}
	return &message, nil
}

// GetMessage loads a message in roomID together with its reactions.
func (s *MessageStore) GetMessage(ctx context.Context, roomID, messageID string) (*models.Message, error) {
	var message models.Message
	err := s.db.WithContext(ensureContext(ctx)).
		Preload("Reactions", orderReactions).
		Preload("Parent").
		Where("id = ? AND room_id = ?", strings.TrimSpace(messageID), roomID).
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("message store: get message: %w", err)
	}
	return &message, nil
}

// History returns up to Limit messages of a room, oldest first.
func (s *MessageStore) History(ctx context.Context, query HistoryQuery) ([]models.Message, error) {
	roomID := strings.TrimSpace(query.RoomID)
	if roomID == "" {
		return nil, errors.New("message store: room id is required")
	}

	limit := query.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	stmt := s.db.WithContext(ensureContext(ctx)).
		Preload("Reactions", orderReactions).
		Preload("Parent").
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit)
	if !query.Before.IsZero() {
		stmt = stmt.Where("created_at < ?", query.Before)
	}

	var rows []models.Message
	if err := stmt.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("message store: history: %w", err)
	}

	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// ToggleReaction adds the (message, user, emoji) reaction or removes it when
// already present, and returns the message's full reaction map afterwards.
func (s *MessageStore) ToggleReaction(ctx context.Context, roomID, messageID, userID, emoji string) (map[string][]string, error) {
	ctx = ensureContext(ctx)

	var rows []models.MessageReaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Message{}).Where("id = ? AND room_id = ?", messageID, roomID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return apperrors.ErrMessageNotFound
		}

		key := models.MessageReaction{MessageID: messageID, Emoji: emoji, UserID: userID}
		result := tx.Where(&key).Delete(&models.MessageReaction{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// A concurrent toggle may have inserted the same row first.
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&key).Error; err != nil {
				return err
			}
		}

		return orderReactions(tx.Where("message_id = ?", messageID)).Find(&rows).Error
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrMessageNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("message store: toggle reaction: %w", err)
	}
	return models.ReactionMap(rows), nil
}

func orderReactions(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("user_id ASC")
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
