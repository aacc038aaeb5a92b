package dto

import (
	"encoding/json"
	"time"

	"github.com/teamgrid/chat-api/internal/models"
)

// Websocket event names. Field names on the event payloads are camelCase to
// stay wire-compatible with the existing clients.
const (
	EventJoin        = "join"
	EventSendMessage = "sendMessage"
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventTyping      = "typing"
	EventStopTyping  = "stopTyping"

	EventJoined            = "joined"
	EventOnlineUsers       = "onlineUsers"
	EventNewMessage        = "newMessage"
	EventMessageError      = "messageError"
	EventUserJoinedRoom    = "userJoinedRoom"
	EventUserLeftRoom      = "userLeftRoom"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventRoomJoined        = "roomJoined"
	EventRoomLeft          = "roomLeft"
	EventError             = "error"
)

// SocketEvent is the framed envelope every websocket message travels in.
type SocketEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewSocketEvent marshals the payload into an envelope. Marshal errors are
// reported back so callers can decide whether to drop the frame.
func NewSocketEvent(event string, payload any) (SocketEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return SocketEvent{}, err
	}
	return SocketEvent{Event: event, Data: raw}, nil
}

// JoinRequest identifies the user behind a fresh connection.
type JoinRequest struct {
	UserID    string `json:"userId" validate:"required,max=64"`
	Name      string `json:"name" validate:"required,max=255"`
	Email     string `json:"email" validate:"omitempty,email,max=255"`
	AvatarURL string `json:"avatarUrl" validate:"omitempty,max=512"`
}

// SendMessageRequest carries a message intent. Scope is inferred from the
// optional fields: chatRoomId wins, then receiverId with isGlobal=false,
// otherwise global. Payloads naming both a room and a receiver are rejected
// as ambiguous.
type SendMessageRequest struct {
	SenderID   string `json:"senderId" validate:"required,max=64"`
	Content    string `json:"content" validate:"required,max=2000"`
	Kind       string `json:"kind" validate:"omitempty,oneof=text image file audio video emoji"`
	ReceiverID string `json:"receiverId" validate:"omitempty,max=64"`
	ChatRoomID uint   `json:"chatRoomId" validate:"omitempty"`
	IsGlobal   *bool  `json:"isGlobal"`
	FileName   string `json:"fileName" validate:"omitempty,max=255"`
	FileURL    string `json:"fileUrl" validate:"omitempty,max=512"`
	FileSize   int64  `json:"fileSize" validate:"omitempty,min=0"`
}

// RoomEventRequest subscribes or unsubscribes a connection from a room's
// fan-out channel.
type RoomEventRequest struct {
	RoomID uint   `json:"roomId" validate:"required"`
	UserID string `json:"userId" validate:"required,max=64"`
}

// TypingRequest is a transient signal, never persisted.
type TypingRequest struct {
	UserID   string `json:"userId" validate:"required,max=64"`
	UserName string `json:"userName" validate:"omitempty,max=255"`
	RoomID   uint   `json:"roomId"`
	ChatType string `json:"chatType" validate:"omitempty,oneof=global private room"`
}

// RoomPresenceNotice tells remaining subscribers about arrivals and exits.
type RoomPresenceNotice struct {
	RoomID uint   `json:"roomId"`
	UserID string `json:"userId"`
}

// MessageErrorNotice is sent only to the connection whose action failed.
type MessageErrorNotice struct {
	Error string `json:"error"`
}

// UserRef is the sender/receiver summary embedded in message payloads.
type UserRef struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// MessageResponse is the serialized representation of a chat message.
type MessageResponse struct {
	ID        uint       `json:"id"`
	Sender    UserRef    `json:"sender"`
	Receiver  *UserRef   `json:"receiver,omitempty"`
	RoomID    *uint      `json:"roomId,omitempty"`
	Scope     string     `json:"scope"`
	Content   string     `json:"content"`
	Kind      string     `json:"kind"`
	FileName  *string    `json:"fileName,omitempty"`
	FileURL   *string    `json:"fileUrl,omitempty"`
	FileSize  *int64     `json:"fileSize,omitempty"`
	Status    string     `json:"status"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NewMessageResponse converts a model into a DTO. Sender and receiver display
// fields are filled in by the caller when known.
func NewMessageResponse(message models.Message) MessageResponse {
	response := MessageResponse{
		ID:        message.ID,
		Sender:    UserRef{ID: message.SenderID},
		RoomID:    message.RoomID,
		Scope:     message.Scope,
		Content:   message.Content,
		Kind:      message.Kind,
		FileName:  message.FileName,
		FileURL:   message.FileURL,
		FileSize:  message.FileSize,
		Status:    message.Status,
		ReadAt:    message.ReadAt,
		CreatedAt: message.CreatedAt,
	}
	if message.ReceiverID != nil {
		response.Receiver = &UserRef{ID: *message.ReceiverID}
	}
	return response
}

// NewMessageResponseSlice converts a slice of models into DTOs.
func NewMessageResponseSlice(messages []models.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewMessageResponse(message))
	}
	return out
}

// HistoryQuery represents shared pagination filters for message history.
type HistoryQuery struct {
	Page  int `query:"page" validate:"omitempty,min=1"`
	Limit int `query:"limit" validate:"omitempty,min=1,max=100"`
}

// Pagination echoes the applied window back to the caller.
type Pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"hasMore"`
}

// HistoryResponse wraps a message page with its pagination cursor.
type HistoryResponse struct {
	Messages   []MessageResponse `json:"messages"`
	Pagination Pagination        `json:"pagination"`
}

// ChatStatsResponse summarises chat activity for dashboards.
type ChatStatsResponse struct {
	TotalMessages int64 `json:"totalMessages"`
	TodayMessages int64 `json:"todayMessages"`
	TotalUsers    int64 `json:"totalUsers"`
	OnlineUsers   int64 `json:"onlineUsers"`
}

// AttachmentResponse is returned after an attachment upload and referenced by
// a later sendMessage.
type AttachmentResponse struct {
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl"`
	FileSize int64  `json:"fileSize"`
	Kind     string `json:"kind"`
}
