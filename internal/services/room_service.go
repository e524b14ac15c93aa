package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/fadmann/chat/internal/models"
	apperrors "github.com/fadmann/chat/pkg/errors"
)

var (
	// ErrRoomNotFound indicates the requested room does not exist.
	ErrRoomNotFound = apperrors.ErrNotFound.WithMessage("Room not found")
	// ErrRoomNameTaken is returned when a room with the same name (ignoring case) exists.
	ErrRoomNameTaken = apperrors.New("ROOM_NAME_TAKEN", "A room with this name already exists", http.StatusConflict)
)

// CreateRoomInput captures the attributes of a new room.
type CreateRoomInput struct {
	Name        string
	Description string
	IsPublic    bool
	CreatedBy   string
}

// RoomService lists and creates rooms.
type RoomService struct {
	db *gorm.DB
}

// NewRoomService constructs a RoomService.
func NewRoomService(db *gorm.DB) (*RoomService, error) {
	if db == nil {
		return nil, errors.New("room service: db is required")
	}
	return &RoomService{db: db}, nil
}

// ListPublic returns every public room ordered by creation time.
func (s *RoomService) ListPublic(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	err := s.db.WithContext(ensureContext(ctx)).
		Where("is_public = ?", true).
		Order("created_at ASC").
		Order("name ASC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("room service: list rooms: %w", err)
	}
	return rooms, nil
}

// Get loads a single room.
func (s *RoomService) Get(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	err := s.db.WithContext(ensureContext(ctx)).Where("id = ?", strings.TrimSpace(id)).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("room service: get room: %w", err)
	}
	return &room, nil
}

// Create stores a new room owned by input.CreatedBy.
func (s *RoomService) Create(ctx context.Context, input CreateRoomInput) (*models.Room, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || strings.TrimSpace(input.CreatedBy) == "" {
		return nil, errors.New("room service: name and creator are required")
	}

	room := &models.Room{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		IsPublic:    input.IsPublic,
		CreatedBy:   input.CreatedBy,
	}

	err := s.db.WithContext(ensureContext(ctx)).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Room{}).Where("LOWER(name) = ?", strings.ToLower(name)).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrRoomNameTaken
		}
		if err := tx.Omit("Creator").Create(room).Error; err != nil {
			return err
		}
		if !input.IsPublic {
			// A false bool is a zero value, so the column default wins on insert.
			return tx.Model(room).Update("is_public", false).Error
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRoomNameTaken) || isUniqueConstraintError(err) {
			return nil, ErrRoomNameTaken
		}
		return nil, fmt.Errorf("room service: create room: %w", err)
	}
	return room, nil
}
