package dto

import (
	"time"

	"github.com/teamgrid/chat-api/internal/models"
)

// RoomCreateRequest creates a chat room with the caller as admin.
type RoomCreateRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=50"`
	Description string `json:"description" validate:"omitempty,max=200"`
	AdminID     string `json:"adminId" validate:"required,max=64"`
	IsPrivate   bool   `json:"isPrivate"`
	MaxMembers  int    `json:"maxMembers" validate:"omitempty,min=2,max=500"`
}

// RoomMembershipRequest joins or leaves a room on behalf of a user.
type RoomMembershipRequest struct {
	UserID string `json:"userId" validate:"required,max=64"`
}

// RoomMemberResponse is a single membership entry.
type RoomMemberResponse struct {
	UserID   string    `json:"userId"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// RoomResponse is the serialized representation of a chat room.
type RoomResponse struct {
	ID           uint                 `json:"id"`
	Name         string               `json:"name"`
	Description  string               `json:"description,omitempty"`
	AdminID      string               `json:"adminId"`
	IsPrivate    bool                 `json:"isPrivate"`
	IsActive     bool                 `json:"isActive"`
	MaxMembers   int                  `json:"maxMembers"`
	MemberCount  int                  `json:"memberCount"`
	MessageCount int64                `json:"messageCount"`
	LastActivity time.Time            `json:"lastActivity"`
	Members      []RoomMemberResponse `json:"members,omitempty"`
	CreatedAt    time.Time            `json:"createdAt"`
}

// NewRoomResponse converts a room model into a DTO.
func NewRoomResponse(room models.ChatRoom) RoomResponse {
	response := RoomResponse{
		ID:           room.ID,
		Name:         room.Name,
		Description:  room.Description,
		AdminID:      room.AdminID,
		IsPrivate:    room.IsPrivate,
		IsActive:     room.IsActive,
		MaxMembers:   room.MaxMembers,
		MemberCount:  len(room.Members),
		MessageCount: room.MessageCount,
		LastActivity: room.LastActivity,
		CreatedAt:    room.CreatedAt,
	}
	for _, member := range room.Members {
		response.Members = append(response.Members, RoomMemberResponse{
			UserID:   member.UserID,
			Role:     member.Role,
			JoinedAt: member.JoinedAt,
		})
	}
	return response
}

// NewRoomResponseSlice converts rooms to DTOs.
func NewRoomResponseSlice(rooms []models.ChatRoom) []RoomResponse {
	out := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, NewRoomResponse(room))
	}
	return out
}
