package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/teamgrid/chat-api/internal/dto"
	"github.com/teamgrid/chat-api/internal/repository"
	"github.com/teamgrid/chat-api/internal/service"
	"github.com/teamgrid/chat-api/internal/utils"
)

// PresenceHandler exposes the live roster and the user directory.
type PresenceHandler struct {
	presence service.PresenceService
	users    repository.UserRepository
	logger   zerolog.Logger
}

// NewPresenceHandler constructs a presence handler.
func NewPresenceHandler(presence service.PresenceService, users repository.UserRepository, logger zerolog.Logger) *PresenceHandler {
	return &PresenceHandler{
		presence: presence,
		users:    users,
		logger:   logger.With().Str("component", "presence_handler").Logger(),
	}
}

// Register wires presence routes under the provided router group.
func (h *PresenceHandler) Register(router fiber.Router) {
	router.Get("/online-users", h.onlineUsers)
	router.Get("/users", h.listUsers)
}

func (h *PresenceHandler) onlineUsers(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "online users", h.presence.Roster())
}

func (h *PresenceHandler) listUsers(c *fiber.Ctx) error {
	users, err := h.users.List(c.UserContext())
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list users")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list users")
	}

	return utils.SendSuccess(c, "users", dto.NewUserSummarySlice(users))
}
