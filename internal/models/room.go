package models

import (
	"time"

	"gorm.io/datatypes"
)

// Room member roles.
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleMember    = "member"
)

// DefaultMaxMembers applies when room creation omits a member limit.
const DefaultMaxMembers = 100

// ChatRoom is a named, membership-bounded group channel. The admin is always
// present in Members with the admin role. Emptied rooms are deactivated, never
// deleted.
type ChatRoom struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	Name         string            `gorm:"size:50;not null;uniqueIndex" json:"name"`
	Description  string            `gorm:"size:200" json:"description"`
	AdminID      string            `gorm:"size:64;not null;index" json:"admin_id"`
	IsPrivate    bool              `gorm:"not null;default:false" json:"is_private"`
	IsActive     bool              `gorm:"not null;default:true;index" json:"is_active"`
	MaxMembers   int               `gorm:"not null;default:100" json:"max_members"`
	MessageCount int64             `gorm:"not null;default:0" json:"message_count"`
	LastActivity time.Time         `gorm:"index" json:"last_activity"`
	Settings     datatypes.JSONMap `gorm:"type:json" json:"settings,omitempty"`
	Members      []RoomMember      `gorm:"constraint:OnDelete:CASCADE" json:"members,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// RoomMember is a single membership entry. A user appears at most once per
// room.
type RoomMember struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ChatRoomID uint      `gorm:"not null;uniqueIndex:idx_room_member" json:"chat_room_id"`
	UserID     string    `gorm:"size:64;not null;uniqueIndex:idx_room_member" json:"user_id"`
	Role       string    `gorm:"size:16;not null;default:member" json:"role"`
	JoinedAt   time.Time `json:"joined_at"`
}

// HasMember reports whether the user appears in the loaded member list.
func (r ChatRoom) HasMember(userID string) bool {
	for _, member := range r.Members {
		if member.UserID == userID {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user is the room admin.
func (r ChatRoom) IsAdmin(userID string) bool {
	return r.AdminID == userID
}

// CanModerate reports whether the user holds the admin or moderator role.
func (r ChatRoom) CanModerate(userID string) bool {
	if r.IsAdmin(userID) {
		return true
	}
	for _, member := range r.Members {
		if member.UserID == userID {
			return member.Role == RoleModerator || member.Role == RoleAdmin
		}
	}
	return false
}

// IsFull reports whether the member list has reached the configured limit.
func (r ChatRoom) IsFull() bool {
	return len(r.Members) >= r.MaxMembers
}
