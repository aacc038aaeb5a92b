package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/teamgrid/chat-api/internal/models"
)

// RoomRepository persists chat rooms and their membership.
type RoomRepository interface {
	Create(ctx context.Context, room *models.ChatRoom) error
	Get(ctx context.Context, id uint) (models.ChatRoom, error)
	GetByName(ctx context.Context, name string) (models.ChatRoom, error)
	ListVisible(ctx context.Context, userID string) ([]models.ChatRoom, error)
	AddMember(ctx context.Context, roomID uint, member models.RoomMember) error
	RemoveMember(ctx context.Context, roomID uint, userID string) error
	SetActive(ctx context.Context, roomID uint, active bool) error
	RecordMessage(ctx context.Context, roomID uint, at time.Time) error
	TouchActivity(ctx context.Context, roomID uint, at time.Time) error
}

type roomRepository struct {
	db *gorm.DB
}

// NewRoomRepository constructs a room repository backed by GORM.
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) Create(ctx context.Context, room *models.ChatRoom) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *roomRepository) Get(ctx context.Context, id uint) (models.ChatRoom, error) {
	var room models.ChatRoom
	if err := r.db.WithContext(ctx).Preload("Members").First(&room, id).Error; err != nil {
		return models.ChatRoom{}, err
	}
	return room, nil
}

func (r *roomRepository) GetByName(ctx context.Context, name string) (models.ChatRoom, error) {
	var room models.ChatRoom
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&room).Error; err != nil {
		return models.ChatRoom{}, err
	}
	return room, nil
}

// ListVisible returns active rooms the user can see: every public room plus
// private rooms the user belongs to, most recently active first.
func (r *roomRepository) ListVisible(ctx context.Context, userID string) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	err := r.db.WithContext(ctx).
		Preload("Members").
		Where("is_active = ?", true).
		Where("is_private = ? OR id IN (?)", false,
			r.db.Model(&models.RoomMember{}).Select("chat_room_id").Where("user_id = ?", userID)).
		Order("last_activity DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *roomRepository) AddMember(ctx context.Context, roomID uint, member models.RoomMember) error {
	member.ChatRoomID = roomID
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&member).Error; err != nil {
			return err
		}
		return tx.Model(&models.ChatRoom{}).Where("id = ?", roomID).
			Update("last_activity", member.JoinedAt).Error
	})
}

func (r *roomRepository) RemoveMember(ctx context.Context, roomID uint, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_room_id = ? AND user_id = ?", roomID, userID).
			Delete(&models.RoomMember{}).Error; err != nil {
			return err
		}
		return tx.Model(&models.ChatRoom{}).Where("id = ?", roomID).
			Update("last_activity", time.Now().UTC()).Error
	})
}

func (r *roomRepository) SetActive(ctx context.Context, roomID uint, active bool) error {
	return r.db.WithContext(ctx).Model(&models.ChatRoom{}).Where("id = ?", roomID).
		Update("is_active", active).Error
}

// RecordMessage bumps the message counter and activity timestamp in one
// statement.
func (r *roomRepository) RecordMessage(ctx context.Context, roomID uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ChatRoom{}).Where("id = ?", roomID).
		Updates(map[string]any{
			"message_count": gorm.Expr("message_count + 1"),
			"last_activity": at,
		}).Error
}

func (r *roomRepository) TouchActivity(ctx context.Context, roomID uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ChatRoom{}).Where("id = ?", roomID).
		Update("last_activity", at).Error
}
