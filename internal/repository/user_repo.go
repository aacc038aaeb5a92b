package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/teamgrid/chat-api/internal/models"
)

// UserRepository mutates the presence fields of the user directory. The
// identity provider owns everything else on the record.
type UserRepository interface {
	Upsert(ctx context.Context, user *models.User) error
	SetOnline(ctx context.Context, userID, connectionID string, at time.Time) error
	SetOffline(ctx context.Context, userID string, at time.Time) error
	ListOnline(ctx context.Context) ([]models.User, error)
	List(ctx context.Context) ([]models.User, error)
	CountAll(ctx context.Context) (int64, error)
	CountOnline(ctx context.Context) (int64, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository constructs a user repository backed by GORM.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Upsert refreshes the directory entry from the identity the client presented
// at join time. Presence fields are not touched here.
func (r *userRepository) Upsert(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "avatar_url", "updated_at"}),
	}).Create(user).Error
}

func (r *userRepository) SetOnline(ctx context.Context, userID, connectionID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]any{
		"is_online":     true,
		"connection_id": connectionID,
		"last_seen_at":  at,
	}).Error
}

func (r *userRepository) SetOffline(ctx context.Context, userID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]any{
		"is_online":     false,
		"connection_id": nil,
		"last_seen_at":  at,
	}).Error
}

func (r *userRepository) ListOnline(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).Where("is_online = ?", true).Order("name ASC").Find(&users).Error
	return users, err
}

func (r *userRepository) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).Order("name ASC").Find(&users).Error
	return users, err
}

func (r *userRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error
	return count, err
}

func (r *userRepository) CountOnline(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("is_online = ?", true).Count(&count).Error
	return count, err
}
