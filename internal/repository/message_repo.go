package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/teamgrid/chat-api/internal/models"
)

const (
	defaultMessagePageSize = 50
	maxMessagePageSize     = 100
)

// MessageRepository persists chat messages and answers the history queries.
type MessageRepository interface {
	Save(ctx context.Context, message *models.Message) error
	Get(ctx context.Context, id uint) (models.Message, error)
	ListGlobal(ctx context.Context, page, limit int) ([]models.Message, error)
	ListPrivate(ctx context.Context, userA, userB string, page, limit int) ([]models.Message, error)
	ListRoom(ctx context.Context, roomID uint, page, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, id uint, readAt time.Time) (models.Message, error)
	SoftDelete(ctx context.Context, id uint, deletedAt time.Time) error
	HardDelete(ctx context.Context, id uint) error
	CountByScope(ctx context.Context, scope string) (int64, error)
	CountByScopeSince(ctx context.Context, scope string, since time.Time) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Save(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *messageRepository) Get(ctx context.Context, id uint) (models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).First(&message, id).Error; err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (r *messageRepository) ListGlobal(ctx context.Context, page, limit int) ([]models.Message, error) {
	query := r.db.WithContext(ctx).
		Where("scope = ?", models.ScopeGlobal).
		Where("status <> ?", models.MessageStatusDeleted)
	return r.page(query, page, limit)
}

func (r *messageRepository) ListPrivate(ctx context.Context, userA, userB string, page, limit int) ([]models.Message, error) {
	query := r.db.WithContext(ctx).
		Where("scope = ?", models.ScopePrivate).
		Where("status <> ?", models.MessageStatusDeleted).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", userA, userB, userB, userA)
	return r.page(query, page, limit)
}

func (r *messageRepository) ListRoom(ctx context.Context, roomID uint, page, limit int) ([]models.Message, error) {
	query := r.db.WithContext(ctx).
		Where("scope = ?", models.ScopeRoom).
		Where("room_id = ?", roomID).
		Where("status <> ?", models.MessageStatusDeleted)
	return r.page(query, page, limit)
}

// page fetches newest-first and reverses so clients receive oldest-first.
func (r *messageRepository) page(query *gorm.DB, page, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > maxMessagePageSize {
		limit = defaultMessagePageSize
	}
	if page <= 0 {
		page = 1
	}

	var messages []models.Message
	err := query.Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&messages).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, id uint, readAt time.Time) (models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).First(&message, id).Error; err != nil {
		return models.Message{}, err
	}

	message.ReadAt = &readAt
	if err := r.db.WithContext(ctx).Model(&message).Update("read_at", readAt).Error; err != nil {
		return models.Message{}, err
	}

	return message, nil
}

func (r *messageRepository) SoftDelete(ctx context.Context, id uint, deletedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).Updates(map[string]any{
		"status":     models.MessageStatusDeleted,
		"deleted_at": deletedAt,
	}).Error
}

func (r *messageRepository) HardDelete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Message{}, id).Error
}

// CountByScope counts undeleted messages. An empty scope counts across all
// scopes.
func (r *messageRepository) CountByScope(ctx context.Context, scope string) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("status <> ?", models.MessageStatusDeleted)
	if scope != "" {
		query = query.Where("scope = ?", scope)
	}
	err := query.Count(&count).Error
	return count, err
}

func (r *messageRepository) CountByScopeSince(ctx context.Context, scope string, since time.Time) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("status <> ?", models.MessageStatusDeleted).
		Where("created_at >= ?", since)
	if scope != "" {
		query = query.Where("scope = ?", scope)
	}
	err := query.Count(&count).Error
	return count, err
}
