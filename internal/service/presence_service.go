package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/teamgrid/chat-api/internal/dto"
	"github.com/teamgrid/chat-api/internal/observability"
	"github.com/teamgrid/chat-api/internal/repository"
)

// PresenceEntry tracks a single live connection. Entries are process-local
// and die with the process; the durable is_online flag and the redis mirror
// are best-effort bookkeeping, the registry itself is authoritative for
// delivery.
type PresenceEntry struct {
	ConnectionID string
	UserID       string
	Name         string
	AvatarURL    string
	JoinedAt     time.Time
}

// PresenceService tracks which users are currently reachable.
type PresenceService interface {
	// Register inserts the entry and returns the updated roster plus the
	// connection id this registration replaced, if the user was already
	// connected ("" otherwise).
	Register(ctx context.Context, entry PresenceEntry) (roster []dto.OnlineUser, replaced string)
	// Deregister removes the entry for the connection. Unknown connection
	// ids are a no-op with ok=false.
	Deregister(ctx context.Context, connectionID string) (roster []dto.OnlineUser, ok bool)
	// Resolve returns the live connection id for a user, if any.
	Resolve(userID string) (string, bool)
	// Lookup returns the live entry for a user, if any.
	Lookup(userID string) (PresenceEntry, bool)
	// Roster returns a snapshot of all live entries.
	Roster() []dto.OnlineUser
}

type presenceService struct {
	mu     sync.RWMutex
	byConn map[string]PresenceEntry
	byUser map[string]string

	users       repository.UserRepository
	redis       *redis.Client
	redisPrefix string
	redisTTL    time.Duration
	logger      zerolog.Logger
}

// NewPresenceService creates the in-memory presence registry. The redis
// client is optional; when present, a per-user presence key with TTL is
// mirrored so other processes can observe liveness.
func NewPresenceService(users repository.UserRepository, redisClient *redis.Client, redisPrefix string, redisTTL time.Duration, logger zerolog.Logger) PresenceService {
	if redisTTL <= 0 {
		redisTTL = 5 * time.Minute
	}
	return &presenceService{
		byConn:      make(map[string]PresenceEntry),
		byUser:      make(map[string]string),
		users:       users,
		redis:       redisClient,
		redisPrefix: redisPrefix,
		redisTTL:    redisTTL,
		logger:      logger.With().Str("component", "presence_service").Logger(),
	}
}

func (s *presenceService) Register(ctx context.Context, entry PresenceEntry) ([]dto.OnlineUser, string) {
	if entry.JoinedAt.IsZero() {
		entry.JoinedAt = time.Now().UTC()
	}

	s.mu.Lock()
	replaced := ""
	if old, ok := s.byUser[entry.UserID]; ok && old != entry.ConnectionID {
		replaced = old
		delete(s.byConn, old)
	}
	s.byConn[entry.ConnectionID] = entry
	s.byUser[entry.UserID] = entry.ConnectionID
	roster := s.rosterLocked()
	s.mu.Unlock()

	observability.PresenceOnline().Set(float64(len(roster)))

	if err := s.users.SetOnline(ctx, entry.UserID, entry.ConnectionID, time.Now().UTC()); err != nil {
		s.logger.Warn().Err(err).Str("user_id", entry.UserID).Msg("failed to persist online status")
	}
	s.mirror(ctx, entry.UserID, "online", entry.ConnectionID)

	return roster, replaced
}

func (s *presenceService) Deregister(ctx context.Context, connectionID string) ([]dto.OnlineUser, bool) {
	s.mu.Lock()
	entry, ok := s.byConn[connectionID]
	if ok {
		delete(s.byConn, connectionID)
		if s.byUser[entry.UserID] == connectionID {
			delete(s.byUser, entry.UserID)
		}
	}
	roster := s.rosterLocked()
	s.mu.Unlock()

	if !ok {
		return roster, false
	}

	observability.PresenceOnline().Set(float64(len(roster)))

	if err := s.users.SetOffline(ctx, entry.UserID, time.Now().UTC()); err != nil {
		s.logger.Warn().Err(err).Str("user_id", entry.UserID).Msg("failed to persist offline status")
	}
	s.mirror(ctx, entry.UserID, "offline", "")

	return roster, true
}

func (s *presenceService) Resolve(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	connectionID, ok := s.byUser[userID]
	return connectionID, ok
}

func (s *presenceService) Lookup(userID string) (PresenceEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	connectionID, ok := s.byUser[userID]
	if !ok {
		return PresenceEntry{}, false
	}
	entry, ok := s.byConn[connectionID]
	return entry, ok
}

func (s *presenceService) Roster() []dto.OnlineUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rosterLocked()
}

func (s *presenceService) rosterLocked() []dto.OnlineUser {
	roster := make([]dto.OnlineUser, 0, len(s.byConn))
	for _, entry := range s.byConn {
		roster = append(roster, dto.OnlineUser{
			UserID:       entry.UserID,
			Name:         entry.Name,
			AvatarURL:    entry.AvatarURL,
			ConnectionID: entry.ConnectionID,
			JoinedAt:     entry.JoinedAt,
		})
	}
	return roster
}

// mirror writes the presence state to redis with a TTL so other nodes can
// see liveness without sharing this process's memory. Failures are logged
// and swallowed.
func (s *presenceService) mirror(ctx context.Context, userID, status, connectionID string) {
	if s.redis == nil || s.redisPrefix == "" {
		return
	}

	key := fmt.Sprintf("%s:presence:%s", s.redisPrefix, userID)
	if status == "offline" {
		if err := s.redis.Del(ctx, key).Err(); err != nil {
			s.logger.Debug().Err(err).Str("user_id", userID).Msg("failed to clear presence mirror")
		}
		return
	}

	payload, err := json.Marshal(map[string]any{
		"status":        status,
		"connection_id": connectionID,
		"last_seen":     time.Now().UTC().Unix(),
	})
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, payload, s.redisTTL).Err(); err != nil {
		s.logger.Debug().Err(err).Str("user_id", userID).Msg("failed to write presence mirror")
	}
}
