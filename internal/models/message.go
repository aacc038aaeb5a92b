package models

import "time"

// Message delivery scopes.
const (
	ScopeGlobal  = "global"
	ScopePrivate = "private"
	ScopeRoom    = "room"
)

// Message payload kinds.
const (
	KindText  = "text"
	KindImage = "image"
	KindFile  = "file"
	KindAudio = "audio"
	KindVideo = "video"
	KindEmoji = "emoji"
)

// Message lifecycle status. A single enum instead of independent
// edited/deleted booleans so the two can never contradict each other.
const (
	MessageStatusActive  = "active"
	MessageStatusEdited  = "edited"
	MessageStatusDeleted = "deleted"
)

// Message represents a single chat payload exchanged between users or rooms.
// Exactly one of ReceiverID and RoomID is set depending on Scope: ReceiverID
// for private, RoomID for room, neither for global.
type Message struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	SenderID   string     `gorm:"size:64;not null;index:idx_messages_sender" json:"sender_id"`
	ReceiverID *string    `gorm:"size:64;index:idx_messages_receiver" json:"receiver_id,omitempty"`
	RoomID     *uint      `gorm:"index:idx_messages_room" json:"room_id,omitempty"`
	Scope      string     `gorm:"size:16;not null;default:global;index:idx_messages_scope" json:"scope"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	Kind       string     `gorm:"size:16;not null;default:text" json:"kind"`
	FileName   *string    `gorm:"size:255" json:"file_name,omitempty"`
	FileURL    *string    `gorm:"size:512" json:"file_url,omitempty"`
	FileSize   *int64     `json:"file_size,omitempty"`
	Status     string     `gorm:"size:16;not null;default:active" json:"status"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	EditedAt   *time.Time `json:"edited_at,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// IsDeleted reports whether the message has been soft deleted.
func (m Message) IsDeleted() bool {
	return m.Status == MessageStatusDeleted
}
