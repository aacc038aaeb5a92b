package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/teamgrid/chat-api/internal/dto"
	"github.com/teamgrid/chat-api/internal/service"
	"github.com/teamgrid/chat-api/internal/utils"
)

// RoomHandler exposes chat room management endpoints.
type RoomHandler struct {
	rooms     service.RoomService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewRoomHandler constructs a room handler.
func NewRoomHandler(rooms service.RoomService, validator *validator.Validate, logger zerolog.Logger) *RoomHandler {
	return &RoomHandler{
		rooms:     rooms,
		validator: validator,
		logger:    logger.With().Str("component", "room_handler").Logger(),
	}
}

// Register wires room routes under the provided router group.
func (h *RoomHandler) Register(router fiber.Router) {
	router.Get("/rooms", h.list)
	router.Post("/rooms", h.create)
	router.Post("/rooms/:roomId/join", h.join)
	router.Post("/rooms/:roomId/leave", h.leave)
}

func (h *RoomHandler) list(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user identity missing")
	}

	rooms, err := h.rooms.List(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, err, "failed to list rooms")
	}

	return utils.SendSuccess(c, "rooms", rooms)
}

func (h *RoomHandler) create(c *fiber.Ctx) error {
	var req dto.RoomCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.AdminID == "" {
		req.AdminID = userIDFromContext(c)
	}
	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	room, err := h.rooms.Create(c.UserContext(), req)
	if err != nil {
		return h.fail(c, err, "failed to create room")
	}

	requestLogger(h.logger, c).Info().Str("room", room.Name).Str("admin_id", room.AdminID).Msg("room created")
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "room created", room)
}

func (h *RoomHandler) join(c *fiber.Ctx) error {
	roomID, userID, err := h.membershipArgs(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	room, err := h.rooms.Join(c.UserContext(), roomID, userID)
	if err != nil {
		return h.fail(c, err, "failed to join room")
	}

	return utils.SendSuccess(c, "joined room", room)
}

func (h *RoomHandler) leave(c *fiber.Ctx) error {
	roomID, userID, err := h.membershipArgs(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.rooms.Leave(c.UserContext(), roomID, userID); err != nil {
		return h.fail(c, err, "failed to leave room")
	}

	return utils.SendSuccess(c, "left room", nil)
}

// membershipArgs resolves the target room and acting user for join/leave. The
// body may override the JWT subject so service accounts can act on behalf of
// a user.
func (h *RoomHandler) membershipArgs(c *fiber.Ctx) (uint, string, error) {
	roomID, err := parseParamUint(c, "roomId")
	if err != nil {
		return 0, "", err
	}

	var req dto.RoomMembershipRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return 0, "", errors.New("invalid request body")
		}
	}
	userID := req.UserID
	if userID == "" {
		userID = userIDFromContext(c)
	}
	if userID == "" {
		return 0, "", errors.New("user id required")
	}
	return roomID, userID, nil
}

func (h *RoomHandler) fail(c *fiber.Ctx, err error, fallback string) error {
	status := statusForError(err)
	if status >= fiber.StatusInternalServerError {
		requestLogger(h.logger, c).Error().Err(err).Msg(fallback)
		return utils.SendError(c, status, fallback)
	}
	return utils.SendError(c, status, err.Error())
}
