package dto

import (
	"time"

	"github.com/teamgrid/chat-api/internal/models"
)

// OnlineUser is a single roster entry broadcast to every live connection.
type OnlineUser struct {
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	ConnectionID string    `json:"connectionId"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// UserSummary describes a user in the durable directory listings.
type UserSummary struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email,omitempty"`
	AvatarURL  string     `json:"avatarUrl,omitempty"`
	IsOnline   bool       `json:"isOnline"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
}

// NewUserSummary converts a user model into a DTO.
func NewUserSummary(user models.User) UserSummary {
	return UserSummary{
		ID:         user.ID,
		Name:       user.Name,
		Email:      user.Email,
		AvatarURL:  user.AvatarURL,
		IsOnline:   user.IsOnline,
		LastSeenAt: user.LastSeenAt,
	}
}

// NewUserSummarySlice converts users to DTOs.
func NewUserSummarySlice(users []models.User) []UserSummary {
	out := make([]UserSummary, 0, len(users))
	for _, user := range users {
		out = append(out, NewUserSummary(user))
	}
	return out
}
