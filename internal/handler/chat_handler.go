package handler

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/teamgrid/chat-api/internal/middleware"
	"github.com/teamgrid/chat-api/internal/service"
	"github.com/teamgrid/chat-api/internal/utils"
)

// ChatHandler wires the websocket upgrade plus the message history and
// mutation endpoints.
type ChatHandler struct {
	chat     service.ChatService
	messages service.MessageService
	logger   zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(chat service.ChatService, messages service.MessageService, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		chat:     chat,
		messages: messages,
		logger:   logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds chat routes under the provided router group.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			ctx := c.UserContext()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
			c.Locals("request_ctx", ctx)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))

	router.Get("/messages", h.globalHistory)
	router.Get("/messages/private/:userId", h.privateHistory)
	router.Get("/rooms/:roomId/messages", h.roomHistory)
	router.Put("/messages/:messageId/read", h.markRead)
	router.Delete("/messages/:messageId", h.deleteMessage)
	router.Get("/stats", h.stats)
}

func (h *ChatHandler) handleConnection(conn *websocket.Conn) {
	correlation, _ := conn.Locals("correlation_id").(string)
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	opts := service.ChatConnectionOptions{
		CorrelationID: correlation,
		Context:       baseCtx,
	}

	h.logger.Info().Str("correlation_id", correlation).Msg("chat websocket connected")
	h.chat.ServeConnection(conn, opts)
	h.logger.Info().Str("correlation_id", correlation).Msg("chat websocket disconnected")
}

func (h *ChatHandler) globalHistory(c *fiber.Ctx) error {
	query, err := historyQuery(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	history, err := h.messages.GlobalHistory(h.requestContext(c), query)
	if err != nil {
		return h.fail(c, err, "failed to load global history")
	}

	return utils.OK(c, history.Messages, "global history", history.Pagination)
}

func (h *ChatHandler) privateHistory(c *fiber.Ctx) error {
	otherID := strings.TrimSpace(c.Params("userId"))
	if otherID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "user id required")
	}

	currentID := userIDFromContext(c)
	if currentID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user identity missing")
	}

	query, err := historyQuery(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	history, err := h.messages.PrivateHistory(h.requestContext(c), currentID, otherID, query)
	if err != nil {
		return h.fail(c, err, "failed to load private history")
	}

	return utils.OK(c, history.Messages, "private history", history.Pagination)
}

func (h *ChatHandler) roomHistory(c *fiber.Ctx) error {
	roomID, err := parseParamUint(c, "roomId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	currentID := userIDFromContext(c)
	if currentID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user identity missing")
	}

	query, err := historyQuery(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	history, err := h.messages.RoomHistory(h.requestContext(c), roomID, currentID, query)
	if err != nil {
		return h.fail(c, err, "failed to load room history")
	}

	return utils.OK(c, history.Messages, "room history", history.Pagination)
}

func (h *ChatHandler) markRead(c *fiber.Ctx) error {
	messageID, err := parseParamUint(c, "messageId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	message, err := h.messages.MarkRead(h.requestContext(c), messageID)
	if err != nil {
		return h.fail(c, err, "failed to mark message as read")
	}

	return utils.SendSuccess(c, "message marked as read", message)
}

func (h *ChatHandler) deleteMessage(c *fiber.Ctx) error {
	messageID, err := parseParamUint(c, "messageId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	requesterID := userIDFromContext(c)
	if requesterID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user identity missing")
	}

	hard := strings.EqualFold(c.Query("hard"), "true")
	if err := h.messages.Delete(h.requestContext(c), messageID, requesterID, hard); err != nil {
		return h.fail(c, err, "failed to delete message")
	}

	return utils.SendSuccess(c, "message deleted", nil)
}

func (h *ChatHandler) stats(c *fiber.Ctx) error {
	stats, err := h.messages.Stats(h.requestContext(c))
	if err != nil {
		return h.fail(c, err, "failed to load chat stats")
	}

	return utils.SendSuccess(c, "chat stats", stats)
}

func (h *ChatHandler) requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func (h *ChatHandler) fail(c *fiber.Ctx, err error, fallback string) error {
	status := statusForError(err)
	if status >= fiber.StatusInternalServerError {
		requestLogger(h.logger, c).Error().Err(err).Msg(fallback)
		return utils.SendError(c, status, fallback)
	}
	return utils.SendError(c, status, err.Error())
}
