package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/teamgrid/chat-api/internal/dto"
	"github.com/teamgrid/chat-api/internal/models"
	"github.com/teamgrid/chat-api/internal/repository"
)

const historyPageSize = 50

// MessageService answers the request/response history contracts and the
// per-message mutations (read receipts, deletion).
type MessageService interface {
	GlobalHistory(ctx context.Context, query dto.HistoryQuery) (dto.HistoryResponse, error)
	PrivateHistory(ctx context.Context, currentUserID, otherUserID string, query dto.HistoryQuery) (dto.HistoryResponse, error)
	RoomHistory(ctx context.Context, roomID uint, requesterID string, query dto.HistoryQuery) (dto.HistoryResponse, error)
	MarkRead(ctx context.Context, messageID uint) (dto.MessageResponse, error)
	Delete(ctx context.Context, messageID uint, requesterID string, hard bool) error
	Stats(ctx context.Context) (dto.ChatStatsResponse, error)
}

type messageService struct {
	messages  repository.MessageRepository
	users     repository.UserRepository
	rooms     RoomService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewMessageService creates the history/query service.
func NewMessageService(messages repository.MessageRepository, users repository.UserRepository, rooms RoomService, validate *validator.Validate, logger zerolog.Logger) MessageService {
	return &messageService{
		messages:  messages,
		users:     users,
		rooms:     rooms,
		validator: validate,
		logger:    logger.With().Str("component", "message_service").Logger(),
	}
}

func (s *messageService) GlobalHistory(ctx context.Context, query dto.HistoryQuery) (dto.HistoryResponse, error) {
	page, limit, err := s.window(query)
	if err != nil {
		return dto.HistoryResponse{}, err
	}

	messages, err := s.messages.ListGlobal(ctx, page, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("global history query failed")
		return dto.HistoryResponse{}, ErrPersistence
	}

	return s.respond(messages, page, limit), nil
}

func (s *messageService) PrivateHistory(ctx context.Context, currentUserID, otherUserID string, query dto.HistoryQuery) (dto.HistoryResponse, error) {
	if currentUserID == "" || otherUserID == "" {
		return dto.HistoryResponse{}, ErrValidation
	}

	page, limit, err := s.window(query)
	if err != nil {
		return dto.HistoryResponse{}, err
	}

	messages, err := s.messages.ListPrivate(ctx, currentUserID, otherUserID, page, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("private history query failed")
		return dto.HistoryResponse{}, ErrPersistence
	}

	return s.respond(messages, page, limit), nil
}

func (s *messageService) RoomHistory(ctx context.Context, roomID uint, requesterID string, query dto.HistoryQuery) (dto.HistoryResponse, error) {
	if requesterID == "" {
		return dto.HistoryResponse{}, ErrValidation
	}

	member, err := s.rooms.IsMember(ctx, roomID, requesterID)
	if err != nil {
		return dto.HistoryResponse{}, err
	}
	if !member {
		return dto.HistoryResponse{}, ErrNotMember
	}

	page, limit, err := s.window(query)
	if err != nil {
		return dto.HistoryResponse{}, err
	}

	messages, err := s.messages.ListRoom(ctx, roomID, page, limit)
	if err != nil {
		s.logger.Error().Err(err).Uint("room_id", roomID).Msg("room history query failed")
		return dto.HistoryResponse{}, ErrPersistence
	}

	return s.respond(messages, page, limit), nil
}

func (s *messageService) MarkRead(ctx context.Context, messageID uint) (dto.MessageResponse, error) {
	message, err := s.messages.MarkRead(ctx, messageID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MessageResponse{}, ErrNotFound
		}
		s.logger.Error().Err(err).Uint("message_id", messageID).Msg("mark read failed")
		return dto.MessageResponse{}, ErrPersistence
	}
	return dto.NewMessageResponse(message), nil
}

// Delete removes a message on behalf of its sender. Room-scoped messages may
// also be deleted by a moderator of that room. Soft delete is the default;
// hard delete physically removes the row.
func (s *messageService) Delete(ctx context.Context, messageID uint, requesterID string, hard bool) error {
	message, err := s.messages.Get(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		s.logger.Error().Err(err).Uint("message_id", messageID).Msg("message lookup failed")
		return ErrPersistence
	}

	if message.SenderID != requesterID && !s.canModerate(ctx, message, requesterID) {
		return ErrAuthorization
	}

	if hard {
		err = s.messages.HardDelete(ctx, messageID)
	} else {
		err = s.messages.SoftDelete(ctx, messageID, time.Now().UTC())
	}
	if err != nil {
		s.logger.Error().Err(err).Uint("message_id", messageID).Bool("hard", hard).Msg("delete failed")
		return ErrPersistence
	}

	return nil
}

func (s *messageService) canModerate(ctx context.Context, message models.Message, requesterID string) bool {
	if message.RoomID == nil {
		return false
	}
	room, err := s.rooms.Get(ctx, *message.RoomID)
	if err != nil {
		return false
	}
	return room.CanModerate(requesterID)
}

func (s *messageService) Stats(ctx context.Context) (dto.ChatStatsResponse, error) {
	total, err := s.messages.CountByScope(ctx, "")
	if err != nil {
		return dto.ChatStatsResponse{}, ErrPersistence
	}

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	today, err := s.messages.CountByScopeSince(ctx, "", midnight)
	if err != nil {
		return dto.ChatStatsResponse{}, ErrPersistence
	}

	totalUsers, err := s.users.CountAll(ctx)
	if err != nil {
		return dto.ChatStatsResponse{}, ErrPersistence
	}

	online, err := s.users.CountOnline(ctx)
	if err != nil {
		return dto.ChatStatsResponse{}, ErrPersistence
	}

	return dto.ChatStatsResponse{
		TotalMessages: total,
		TodayMessages: today,
		TotalUsers:    totalUsers,
		OnlineUsers:   online,
	}, nil
}

func (s *messageService) window(query dto.HistoryQuery) (int, int, error) {
	if err := s.validator.Struct(query); err != nil {
		return 0, 0, errValidation(err)
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}
	limit := query.Limit
	if limit <= 0 {
		limit = historyPageSize
	}
	return page, limit, nil
}

func (s *messageService) respond(messages []models.Message, page, limit int) dto.HistoryResponse {
	return dto.HistoryResponse{
		Messages: dto.NewMessageResponseSlice(messages),
		Pagination: dto.Pagination{
			Page:    page,
			Limit:   limit,
			HasMore: len(messages) == limit,
		},
	}
}
