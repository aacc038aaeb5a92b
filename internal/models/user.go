package models

import "time"

// User mirrors the identity record issued by the external identity provider.
// Only the presence fields (IsOnline, ConnectionID, LastSeenAt) are mutated by
// this service; everything else is owned upstream.
type User struct {
	ID           string     `gorm:"primaryKey;size:64" json:"id"`
	Name         string     `gorm:"size:255;not null" json:"name"`
	Email        string     `gorm:"size:255;index" json:"email"`
	AvatarURL    string     `gorm:"size:512" json:"avatar_url"`
	IsOnline     bool       `gorm:"not null;default:false;index" json:"is_online"`
	ConnectionID *string    `gorm:"size:64" json:"connection_id,omitempty"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
