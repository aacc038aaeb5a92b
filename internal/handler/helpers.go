package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/teamgrid/chat-api/internal/dto"
	"github.com/teamgrid/chat-api/internal/middleware"
	"github.com/teamgrid/chat-api/internal/service"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseParamUint(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(parsed), nil
}

func userIDFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_id"); v != nil {
		switch id := v.(type) {
		case string:
			return strings.TrimSpace(id)
		case fmt.Stringer:
			return strings.TrimSpace(id.String())
		}
	}
	return ""
}

func historyQuery(c *fiber.Ctx) (dto.HistoryQuery, error) {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return dto.HistoryQuery{}, fmt.Errorf("invalid page")
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return dto.HistoryQuery{}, fmt.Errorf("invalid limit")
	}
	return dto.HistoryQuery{Page: page, Limit: limit}, nil
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// statusForError maps service sentinels onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrInactiveRoom), isValidationError(err):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrAuthorization), errors.Is(err, service.ErrNotMember):
		return fiber.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrCapacity), errors.Is(err, service.ErrAdminLeave):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
