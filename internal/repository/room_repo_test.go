package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teamgrid/chat-api/internal/models"
)

func createRoom(t *testing.T, repo RoomRepository, name, adminID string, private bool) models.ChatRoom {
	t.Helper()
	now := time.Now().UTC()
	room := models.ChatRoom{
		Name:         name,
		AdminID:      adminID,
		IsPrivate:    private,
		IsActive:     true,
		MaxMembers:   models.DefaultMaxMembers,
		LastActivity: now,
		Members: []models.RoomMember{{
			UserID:   adminID,
			Role:     models.RoleAdmin,
			JoinedAt: now,
		}},
	}
	require.NoError(t, repo.Create(context.Background(), &room))
	require.NotZero(t, room.ID)
	return room
}

func TestRoomRepositoryCreateAndGetPreloadsMembers(t *testing.T) {
	db := setupTestDB(t, &models.ChatRoom{}, &models.RoomMember{})
	repo := NewRoomRepository(db)

	created := createRoom(t, repo, "general", "alice", false)

	room, err := repo.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, "general", room.Name)
	require.Len(t, room.Members, 1)
	require.Equal(t, models.RoleAdmin, room.Members[0].Role)
	require.True(t, room.HasMember("alice"))
}

func TestRoomRepositoryMembershipRoundTrip(t *testing.T) {
	db := setupTestDB(t, &models.ChatRoom{}, &models.RoomMember{})
	repo := NewRoomRepository(db)

	created := createRoom(t, repo, "team", "alice", false)

	joinedAt := time.Now().UTC()
	require.NoError(t, repo.AddMember(context.Background(), created.ID, models.RoomMember{
		UserID: "bob", Role: models.RoleMember, JoinedAt: joinedAt,
	}))

	room, err := repo.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, room.Members, 2)

	require.NoError(t, repo.RemoveMember(context.Background(), created.ID, "bob"))

	room, err = repo.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, room.Members, 1)
	require.False(t, room.HasMember("bob"))
}

func TestRoomRepositoryDuplicateMemberRejected(t *testing.T) {
	db := setupTestDB(t, &models.ChatRoom{}, &models.RoomMember{})
	repo := NewRoomRepository(db)

	created := createRoom(t, repo, "unique", "alice", false)

	err := repo.AddMember(context.Background(), created.ID, models.RoomMember{
		UserID: "alice", Role: models.RoleMember, JoinedAt: time.Now().UTC(),
	})
	require.Error(t, err, "the composite unique index rejects a second membership row")
}

func TestRoomRepositoryListVisible(t *testing.T) {
	db := setupTestDB(t, &models.ChatRoom{}, &models.RoomMember{})
	repo := NewRoomRepository(db)

	createRoom(t, repo, "public", "alice", false)
	secret := createRoom(t, repo, "secret", "alice", true)
	inactive := createRoom(t, repo, "dormant", "alice", false)
	require.NoError(t, repo.SetActive(context.Background(), inactive.ID, false))

	visible, err := repo.ListVisible(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, visible, 1)
	require.Equal(t, "public", visible[0].Name)

	require.NoError(t, repo.AddMember(context.Background(), secret.ID, models.RoomMember{
		UserID: "bob", Role: models.RoleMember, JoinedAt: time.Now().UTC(),
	}))

	visible, err = repo.ListVisible(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, visible, 2)
}

func TestRoomRepositoryRecordMessage(t *testing.T) {
	db := setupTestDB(t, &models.ChatRoom{}, &models.RoomMember{})
	repo := NewRoomRepository(db)

	created := createRoom(t, repo, "active", "alice", false)

	at := time.Now().UTC().Add(time.Minute)
	require.NoError(t, repo.RecordMessage(context.Background(), created.ID, at))
	require.NoError(t, repo.RecordMessage(context.Background(), created.ID, at.Add(time.Second)))

	room, err := repo.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), room.MessageCount)
	require.True(t, room.LastActivity.After(created.LastActivity))
}

func TestRoomRepositoryGetByName(t *testing.T) {
	db := setupTestDB(t, &models.ChatRoom{}, &models.RoomMember{})
	repo := NewRoomRepository(db)

	createRoom(t, repo, "findable", "alice", false)

	room, err := repo.GetByName(context.Background(), "findable")
	require.NoError(t, err)
	require.Equal(t, "findable", room.Name)

	_, err = repo.GetByName(context.Background(), "missing")
	require.Error(t, err)
}
