package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/teamgrid/chat-api/internal/dto"
	"github.com/teamgrid/chat-api/internal/models"
	"github.com/teamgrid/chat-api/internal/repository"
)

// RoomService owns the durable room lifecycle and membership mutation.
type RoomService interface {
	Create(ctx context.Context, req dto.RoomCreateRequest) (dto.RoomResponse, error)
	Join(ctx context.Context, roomID uint, userID string) (dto.RoomResponse, error)
	Leave(ctx context.Context, roomID uint, userID string) error
	List(ctx context.Context, userID string) ([]dto.RoomResponse, error)
	Get(ctx context.Context, roomID uint) (models.ChatRoom, error)
	IsMember(ctx context.Context, roomID uint, userID string) (bool, error)
	RecordMessage(ctx context.Context, roomID uint) error
}

type roomService struct {
	repo      repository.RoomRepository
	validator *validator.Validate
	logger    zerolog.Logger

	// locks serializes join/leave per room so two concurrent joins cannot
	// both pass the capacity check across the persistence round trip.
	locksMu sync.Mutex
	locks   map[uint]*sync.Mutex
}

// NewRoomService creates the room lifecycle service.
func NewRoomService(repo repository.RoomRepository, validate *validator.Validate, logger zerolog.Logger) RoomService {
	return &roomService{
		repo:      repo,
		validator: validate,
		logger:    logger.With().Str("component", "room_service").Logger(),
		locks:     make(map[uint]*sync.Mutex),
	}
}

func (s *roomService) roomLock(roomID uint) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[roomID] = lock
	}
	return lock
}

func (s *roomService) Create(ctx context.Context, req dto.RoomCreateRequest) (dto.RoomResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validator.Struct(req); err != nil {
		return dto.RoomResponse{}, errValidation(err)
	}

	if _, err := s.repo.GetByName(ctx, req.Name); err == nil {
		return dto.RoomResponse{}, ErrConflict
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error().Err(err).Str("name", req.Name).Msg("room name lookup failed")
		return dto.RoomResponse{}, ErrPersistence
	}

	maxMembers := req.MaxMembers
	if maxMembers <= 0 {
		maxMembers = models.DefaultMaxMembers
	}

	now := time.Now().UTC()
	room := models.ChatRoom{
		Name:         req.Name,
		Description:  req.Description,
		AdminID:      req.AdminID,
		IsPrivate:    req.IsPrivate,
		IsActive:     true,
		MaxMembers:   maxMembers,
		LastActivity: now,
		Members: []models.RoomMember{{
			UserID:   req.AdminID,
			Role:     models.RoleAdmin,
			JoinedAt: now,
		}},
	}

	if err := s.repo.Create(ctx, &room); err != nil {
		s.logger.Error().Err(err).Str("name", req.Name).Msg("room creation failed")
		return dto.RoomResponse{}, ErrPersistence
	}

	s.logger.Info().Uint("room_id", room.ID).Str("admin_id", req.AdminID).Msg("room created")
	return dto.NewRoomResponse(room), nil
}

func (s *roomService) Join(ctx context.Context, roomID uint, userID string) (dto.RoomResponse, error) {
	if userID == "" {
		return dto.RoomResponse{}, ErrValidation
	}

	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return dto.RoomResponse{}, err
	}

	switch {
	case !room.IsActive:
		return dto.RoomResponse{}, ErrInactiveRoom
	case room.HasMember(userID):
		return dto.RoomResponse{}, ErrConflict
	case room.IsFull():
		return dto.RoomResponse{}, ErrCapacity
	}

	member := models.RoomMember{
		UserID:   userID,
		Role:     models.RoleMember,
		JoinedAt: time.Now().UTC(),
	}
	if err := s.repo.AddMember(ctx, roomID, member); err != nil {
		s.logger.Error().Err(err).Uint("room_id", roomID).Str("user_id", userID).Msg("join failed")
		return dto.RoomResponse{}, ErrPersistence
	}

	if err := s.repo.TouchActivity(ctx, roomID, member.JoinedAt); err != nil {
		s.logger.Warn().Err(err).Uint("room_id", roomID).Msg("failed to touch room activity")
	}

	room.Members = append(room.Members, member)
	return dto.NewRoomResponse(room), nil
}

func (s *roomService) Leave(ctx context.Context, roomID uint, userID string) error {
	if userID == "" {
		return ErrValidation
	}

	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}

	if !room.HasMember(userID) {
		return ErrNotMember
	}
	if room.IsAdmin(userID) && len(room.Members) > 1 {
		return ErrAdminLeave
	}

	if err := s.repo.RemoveMember(ctx, roomID, userID); err != nil {
		s.logger.Error().Err(err).Uint("room_id", roomID).Str("user_id", userID).Msg("leave failed")
		return ErrPersistence
	}

	// An emptied room is deactivated, never deleted.
	if len(room.Members) == 1 {
		if err := s.repo.SetActive(ctx, roomID, false); err != nil {
			s.logger.Warn().Err(err).Uint("room_id", roomID).Msg("failed to deactivate emptied room")
		}
	} else if err := s.repo.TouchActivity(ctx, roomID, time.Now().UTC()); err != nil {
		s.logger.Warn().Err(err).Uint("room_id", roomID).Msg("failed to touch room activity")
	}

	return nil
}

func (s *roomService) List(ctx context.Context, userID string) ([]dto.RoomResponse, error) {
	rooms, err := s.repo.ListVisible(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Msg("room listing failed")
		return nil, ErrPersistence
	}
	return dto.NewRoomResponseSlice(rooms), nil
}

func (s *roomService) Get(ctx context.Context, roomID uint) (models.ChatRoom, error) {
	return s.loadRoom(ctx, roomID)
}

func (s *roomService) IsMember(ctx context.Context, roomID uint, userID string) (bool, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	return room.HasMember(userID), nil
}

// RecordMessage bumps the room's message counter and activity timestamp
// after a successful room-scoped send.
func (s *roomService) RecordMessage(ctx context.Context, roomID uint) error {
	return s.repo.RecordMessage(ctx, roomID, time.Now().UTC())
}

func (s *roomService) loadRoom(ctx context.Context, roomID uint) (models.ChatRoom, error) {
	room, err := s.repo.Get(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ChatRoom{}, ErrNotFound
		}
		s.logger.Error().Err(err).Uint("room_id", roomID).Msg("room lookup failed")
		return models.ChatRoom{}, ErrPersistence
	}
	return room, nil
}

// errValidation wraps a validator error under the taxonomy sentinel so
// handlers can map it without depending on validator internals.
func errValidation(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrValidation, err)
}
