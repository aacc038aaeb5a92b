package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/teamgrid/chat-api/internal/dto"
	"github.com/teamgrid/chat-api/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// roomRepoStub is an in-memory RoomRepository used by the lifecycle tests.
type roomRepoStub struct {
	mu     sync.Mutex
	nextID uint
	rooms  map[uint]*models.ChatRoom
}

func newRoomRepoStub() *roomRepoStub {
	return &roomRepoStub{nextID: 1, rooms: make(map[uint]*models.ChatRoom)}
}

func (r *roomRepoStub) Create(ctx context.Context, room *models.ChatRoom) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room.ID = r.nextID
	r.nextID++
	for i := range room.Members {
		room.Members[i].ChatRoomID = room.ID
	}
	stored := *room
	stored.Members = append([]models.RoomMember(nil), room.Members...)
	r.rooms[room.ID] = &stored
	return nil
}

func (r *roomRepoStub) Get(ctx context.Context, id uint) (models.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return models.ChatRoom{}, gorm.ErrRecordNotFound
	}
	copied := *room
	copied.Members = append([]models.RoomMember(nil), room.Members...)
	return copied, nil
}

func (r *roomRepoStub) GetByName(ctx context.Context, name string) (models.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range r.rooms {
		if room.Name == name {
			return *room, nil
		}
	}
	return models.ChatRoom{}, gorm.ErrRecordNotFound
}

func (r *roomRepoStub) ListVisible(ctx context.Context, userID string) ([]models.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ChatRoom
	for _, room := range r.rooms {
		if !room.IsActive {
			continue
		}
		if room.IsPrivate && !room.HasMember(userID) {
			continue
		}
		out = append(out, *room)
	}
	return out, nil
}

func (r *roomRepoStub) AddMember(ctx context.Context, roomID uint, member models.RoomMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	member.ChatRoomID = roomID
	room.Members = append(room.Members, member)
	room.LastActivity = member.JoinedAt
	return nil
}

func (r *roomRepoStub) RemoveMember(ctx context.Context, roomID uint, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	kept := room.Members[:0]
	for _, member := range room.Members {
		if member.UserID != userID {
			kept = append(kept, member)
		}
	}
	room.Members = kept
	return nil
}

func (r *roomRepoStub) SetActive(ctx context.Context, roomID uint, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		room.IsActive = active
	}
	return nil
}

func (r *roomRepoStub) RecordMessage(ctx context.Context, roomID uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		room.MessageCount++
		room.LastActivity = at
	}
	return nil
}

func (r *roomRepoStub) TouchActivity(ctx context.Context, roomID uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		room.LastActivity = at
	}
	return nil
}

// userRepoStub records presence mutations without a database.
type userRepoStub struct {
	mu      sync.Mutex
	users   map[string]models.User
	online  map[string]bool
	failSet bool
}

func newUserRepoStub() *userRepoStub {
	return &userRepoStub{users: make(map[string]models.User), online: make(map[string]bool)}
}

func (u *userRepoStub) Upsert(ctx context.Context, user *models.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.users[user.ID] = *user
	return nil
}

func (u *userRepoStub) SetOnline(ctx context.Context, userID, connectionID string, at time.Time) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failSet {
		return gorm.ErrInvalidDB
	}
	u.online[userID] = true
	return nil
}

func (u *userRepoStub) SetOffline(ctx context.Context, userID string, at time.Time) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failSet {
		return gorm.ErrInvalidDB
	}
	u.online[userID] = false
	return nil
}

func (u *userRepoStub) ListOnline(ctx context.Context) ([]models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	var out []models.User
	for id, online := range u.online {
		if online {
			out = append(out, u.users[id])
		}
	}
	return out, nil
}

func (u *userRepoStub) List(ctx context.Context) ([]models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]models.User, 0, len(u.users))
	for _, user := range u.users {
		out = append(out, user)
	}
	return out, nil
}

func (u *userRepoStub) CountAll(ctx context.Context) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return int64(len(u.users)), nil
}

func (u *userRepoStub) CountOnline(ctx context.Context) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	var count int64
	for _, online := range u.online {
		if online {
			count++
		}
	}
	return count, nil
}

// messageRepoStub keeps saved messages in arrival order.
type messageRepoStub struct {
	mu       sync.Mutex
	nextID   uint
	saved    []models.Message
	saveErr  error
	byID     map[uint]models.Message
	hardDels []uint
	softDels []uint
}

func newMessageRepoStub() *messageRepoStub {
	return &messageRepoStub{nextID: 1, byID: make(map[uint]models.Message)}
}

func (m *messageRepoStub) Save(ctx context.Context, message *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	message.ID = m.nextID
	m.nextID++
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	m.saved = append(m.saved, *message)
	m.byID[message.ID] = *message
	return nil
}

func (m *messageRepoStub) Get(ctx context.Context, id uint) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	message, ok := m.byID[id]
	if !ok {
		return models.Message{}, gorm.ErrRecordNotFound
	}
	return message, nil
}

func (m *messageRepoStub) ListGlobal(ctx context.Context, page, limit int) ([]models.Message, error) {
	return m.listScope(models.ScopeGlobal), nil
}

func (m *messageRepoStub) ListPrivate(ctx context.Context, userA, userB string, page, limit int) ([]models.Message, error) {
	return m.listScope(models.ScopePrivate), nil
}

func (m *messageRepoStub) ListRoom(ctx context.Context, roomID uint, page, limit int) ([]models.Message, error) {
	return m.listScope(models.ScopeRoom), nil
}

func (m *messageRepoStub) listScope(scope string) []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Message
	for _, message := range m.saved {
		if message.Scope == scope && !message.IsDeleted() {
			out = append(out, message)
		}
	}
	return out
}

func (m *messageRepoStub) MarkRead(ctx context.Context, id uint, readAt time.Time) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	message, ok := m.byID[id]
	if !ok {
		return models.Message{}, gorm.ErrRecordNotFound
	}
	message.ReadAt = &readAt
	m.byID[id] = message
	return message, nil
}

func (m *messageRepoStub) SoftDelete(ctx context.Context, id uint, deletedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	message, ok := m.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	message.Status = models.MessageStatusDeleted
	message.DeletedAt = &deletedAt
	m.byID[id] = message
	m.softDels = append(m.softDels, id)
	return nil
}

func (m *messageRepoStub) HardDelete(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	m.hardDels = append(m.hardDels, id)
	return nil
}

func (m *messageRepoStub) CountByScope(ctx context.Context, scope string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, message := range m.byID {
		if (scope == "" || message.Scope == scope) && !message.IsDeleted() {
			count++
		}
	}
	return count, nil
}

func (m *messageRepoStub) CountByScopeSince(ctx context.Context, scope string, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, message := range m.byID {
		if (scope == "" || message.Scope == scope) && !message.IsDeleted() && !message.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// presenceStub resolves users against a fixed table.
type presenceStub struct {
	entries map[string]PresenceEntry
}

func newPresenceStub(entries ...PresenceEntry) *presenceStub {
	stub := &presenceStub{entries: make(map[string]PresenceEntry)}
	for _, entry := range entries {
		stub.entries[entry.UserID] = entry
	}
	return stub
}

func (p *presenceStub) Register(ctx context.Context, entry PresenceEntry) ([]dto.OnlineUser, string) {
	p.entries[entry.UserID] = entry
	return p.Roster(), ""
}

func (p *presenceStub) Deregister(ctx context.Context, connectionID string) ([]dto.OnlineUser, bool) {
	for userID, entry := range p.entries {
		if entry.ConnectionID == connectionID {
			delete(p.entries, userID)
			return p.Roster(), true
		}
	}
	return p.Roster(), false
}

func (p *presenceStub) Resolve(userID string) (string, bool) {
	entry, ok := p.entries[userID]
	return entry.ConnectionID, ok
}

func (p *presenceStub) Lookup(userID string) (PresenceEntry, bool) {
	entry, ok := p.entries[userID]
	return entry, ok
}

func (p *presenceStub) Roster() []dto.OnlineUser {
	roster := make([]dto.OnlineUser, 0, len(p.entries))
	for _, entry := range p.entries {
		roster = append(roster, dto.OnlineUser{UserID: entry.UserID, Name: entry.Name, ConnectionID: entry.ConnectionID})
	}
	return roster
}
