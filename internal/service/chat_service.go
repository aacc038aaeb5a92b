package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/teamgrid/chat-api/internal/dto"
	"github.com/teamgrid/chat-api/internal/middleware"
	"github.com/teamgrid/chat-api/internal/models"
	"github.com/teamgrid/chat-api/internal/observability"
	"github.com/teamgrid/chat-api/internal/repository"
)

// ChatConnectionOptions wraps metadata extracted during the HTTP upgrade.
type ChatConnectionOptions struct {
	CorrelationID string
	Context       context.Context
}

// ChatService drives the websocket session protocol and routes every
// outbound message to its scope's recipients.
type ChatService interface {
	ServeConnection(conn *websocket.Conn, opts ChatConnectionOptions)
	Send(ctx context.Context, req dto.SendMessageRequest) (dto.MessageResponse, error)
	Start(ctx context.Context)
}

type chatService struct {
	messages  repository.MessageRepository
	users     repository.UserRepository
	rooms     RoomService
	presence  PresenceService
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	hub       *chatHub

	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
}

// chatEvent crosses node boundaries over redis pub/sub and NATS so every
// process can fan out to its own local connections.
type chatEvent struct {
	Source  string              `json:"source"`
	Message dto.MessageResponse `json:"message"`
	SentAt  time.Time           `json:"sent_at"`
}

// NewChatService creates the websocket chat service. Redis and NATS are
// optional; when absent, delivery stays single-node.
func NewChatService(
	messages repository.MessageRepository,
	users repository.UserRepository,
	rooms RoomService,
	presence PresenceService,
	redisClient *redis.Client,
	channelBase string,
	natsConn *nats.Conn,
	validate *validator.Validate,
	logger zerolog.Logger,
) ChatService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	redisChannel := ""
	natsSubject := ""
	if channelBase != "" {
		redisChannel = channelBase + ":messages"
		natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".messages"
	}

	return &chatService{
		messages:     messages,
		users:        users,
		rooms:        rooms,
		presence:     presence,
		validator:    validate,
		sanitizer:    sanitizer,
		logger:       logger.With().Str("component", "chat_service").Logger(),
		tracer:       otel.Tracer("github.com/teamgrid/chat-api/internal/service/chat"),
		hub:          newChatHub(logger),
		redis:        redisClient,
		redisChannel: redisChannel,
		nats:         natsConn,
		natsSubject:  natsSubject,
		nodeID:       uuid.NewString(),
	}
}

func (s *chatService) Start(ctx context.Context) {
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *chatService) ServeConnection(conn *websocket.Conn, opts ChatConnectionOptions) {
	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if opts.CorrelationID != "" {
		baseCtx = middleware.ContextWithCorrelation(baseCtx, opts.CorrelationID)
	}

	client := &chatClient{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan dto.SocketEvent, clientSendBufferSize),
		service: s,
		baseCtx: baseCtx,
		rooms:   make(map[uint]struct{}),
		closed:  make(chan struct{}),
	}

	s.hub.register(client)
	observability.ChatConnectionsTotal().Inc()

	go client.writer()
	client.reader()
}

// dispatch routes one inbound frame through the session state machine.
// Malformed frames and events arriving in the wrong state are logged and
// ignored; the connection itself stays up.
func (s *chatService) dispatch(c *chatClient, frame dto.SocketEvent) {
	switch frame.Event {
	case dto.EventJoin:
		s.handleJoin(c, frame.Data)
	case dto.EventSendMessage:
		s.handleSend(c, frame.Data)
	case dto.EventJoinRoom:
		s.handleJoinRoom(c, frame.Data)
	case dto.EventLeaveRoom:
		s.handleLeaveRoom(c, frame.Data)
	case dto.EventTyping:
		s.handleTyping(c, frame.Data, false)
	case dto.EventStopTyping:
		s.handleTyping(c, frame.Data, true)
	default:
		s.logger.Debug().Str("event", frame.Event).Str("connection_id", c.id).Msg("unrecognised event")
	}
}

func (s *chatService) handleJoin(c *chatClient, data json.RawMessage) {
	var req dto.JoinRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Warn().Err(err).Str("connection_id", c.id).Msg("malformed join payload")
		return
	}
	if err := s.validator.Struct(req); err != nil {
		s.logger.Warn().Err(err).Str("connection_id", c.id).Msg("join rejected, invalid identity")
		return
	}

	user := models.User{ID: req.UserID, Name: req.Name, Email: req.Email, AvatarURL: req.AvatarURL}
	if err := s.users.Upsert(c.baseCtx, &user); err != nil {
		s.logger.Warn().Err(err).Str("user_id", req.UserID).Msg("failed to refresh user directory")
	}

	roster, replaced := s.presence.Register(c.baseCtx, PresenceEntry{
		ConnectionID: c.id,
		UserID:       req.UserID,
		Name:         req.Name,
		AvatarURL:    req.AvatarURL,
	})
	if replaced != "" {
		s.hub.closeStale(replaced)
	}

	c.joined = true
	c.userID = req.UserID
	c.userName = req.Name

	c.emit(dto.EventJoined, dto.OnlineUser{UserID: req.UserID, Name: req.Name, ConnectionID: c.id})
	s.broadcastRoster(roster)

	s.logger.Info().Str("user_id", req.UserID).Str("connection_id", c.id).Msg("user joined chat")
}

func (s *chatService) handleSend(c *chatClient, data json.RawMessage) {
	if !c.joined {
		s.logger.Warn().Str("connection_id", c.id).Msg("sendMessage before join ignored")
		return
	}

	var req dto.SendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.emit(dto.EventMessageError, dto.MessageErrorNotice{Error: "malformed message payload"})
		return
	}
	if req.SenderID == "" {
		req.SenderID = c.userID
	}

	if _, err := s.Send(c.baseCtx, req); err != nil {
		c.emit(dto.EventMessageError, dto.MessageErrorNotice{Error: err.Error()})
	}
}

// Send classifies, validates, authorizes, persists and fans out one message.
// Classification: an explicit room id wins, then a receiver with the global
// flag off means private, anything else is global. A payload naming both a
// room and a receiver is ambiguous and rejected outright.
func (s *chatService) Send(ctx context.Context, req dto.SendMessageRequest) (dto.MessageResponse, error) {
	req.Content = strings.TrimSpace(s.sanitizer.Sanitize(req.Content))
	req.ReceiverID = strings.TrimSpace(req.ReceiverID)

	if req.Content == "" || req.SenderID == "" {
		return dto.MessageResponse{}, ErrValidation
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.MessageResponse{}, errValidation(err)
	}

	scope, err := classifyScope(req)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	kind := req.Kind
	if kind == "" {
		kind = models.KindText
	}

	ctx, span := s.tracer.Start(ctx, "chat.send", trace.WithAttributes(
		attribute.String("chat.scope", scope),
		attribute.String("chat.sender_id", req.SenderID),
		attribute.String("chat.kind", kind),
	))
	defer span.End()

	message := models.Message{
		SenderID: req.SenderID,
		Scope:    scope,
		Content:  req.Content,
		Kind:     kind,
		Status:   models.MessageStatusActive,
	}
	if kind != models.KindText && req.FileURL != "" {
		message.FileName = optional(req.FileName)
		message.FileURL = optional(req.FileURL)
		if req.FileSize > 0 {
			size := req.FileSize
			message.FileSize = &size
		}
	}

	// Membership is checked before anything is persisted: a rejected room
	// send leaves no trace.
	var memberIDs []string
	switch scope {
	case models.ScopeRoom:
		room, err := s.rooms.Get(ctx, req.ChatRoomID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return dto.MessageResponse{}, ErrAuthorization
			}
			return dto.MessageResponse{}, err
		}
		if !room.HasMember(req.SenderID) {
			return dto.MessageResponse{}, ErrAuthorization
		}
		roomID := req.ChatRoomID
		message.RoomID = &roomID
		for _, member := range room.Members {
			memberIDs = append(memberIDs, member.UserID)
		}
	case models.ScopePrivate:
		receiverID := req.ReceiverID
		message.ReceiverID = &receiverID
	}

	if err := s.messages.Save(ctx, &message); err != nil {
		span.RecordError(err)
		s.logger.Error().Err(err).Str("scope", scope).Msg("message persistence failed")
		return dto.MessageResponse{}, ErrPersistence
	}

	if scope == models.ScopeRoom {
		if err := s.rooms.RecordMessage(ctx, req.ChatRoomID); err != nil {
			s.logger.Warn().Err(err).Uint("room_id", req.ChatRoomID).Msg("failed to bump room activity")
		}
	}

	response := s.decorate(dto.NewMessageResponse(message))
	s.deliver(response, memberIDs, true)
	if err := s.publish(ctx, response); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish chat event")
	}

	observability.ChatMessagesSent().WithLabelValues(scope).Inc()
	return response, nil
}

func classifyScope(req dto.SendMessageRequest) (string, error) {
	hasRoom := req.ChatRoomID != 0
	hasReceiver := req.ReceiverID != ""

	switch {
	case hasRoom && hasReceiver:
		return "", errValidation(errors.New("message cannot target both a room and a receiver"))
	case hasRoom:
		return models.ScopeRoom, nil
	case hasReceiver && req.IsGlobal != nil && !*req.IsGlobal:
		return models.ScopePrivate, nil
	default:
		return models.ScopeGlobal, nil
	}
}

// decorate fills in sender/receiver display fields from the live roster.
func (s *chatService) decorate(response dto.MessageResponse) dto.MessageResponse {
	if entry, ok := s.presence.Lookup(response.Sender.ID); ok {
		response.Sender.Name = entry.Name
		response.Sender.AvatarURL = entry.AvatarURL
	}
	if response.Receiver != nil {
		if entry, ok := s.presence.Lookup(response.Receiver.ID); ok {
			response.Receiver.Name = entry.Name
			response.Receiver.AvatarURL = entry.AvatarURL
		}
	}
	return response
}

// deliver fans the message out to the local connections its scope resolves
// to. Offline recipients are skipped, never queued. When echoSender is false
// the message came from another node and the sender echo already happened
// there.
func (s *chatService) deliver(response dto.MessageResponse, roomMemberIDs []string, echoSender bool) {
	frame, err := dto.NewSocketEvent(dto.EventNewMessage, response)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode newMessage frame")
		return
	}

	switch response.Scope {
	case models.ScopeGlobal:
		s.hub.broadcast(frame, "")
	case models.ScopeRoom:
		if len(roomMemberIDs) == 0 {
			// Event arrived from another node without a member list; local
			// room subscribers are the best available recipient set.
			if response.RoomID != nil {
				s.hub.sendToRoom(*response.RoomID, frame, "")
			}
			return
		}
		for _, memberID := range roomMemberIDs {
			if connectionID, ok := s.presence.Resolve(memberID); ok {
				s.hub.sendTo(connectionID, frame)
			}
		}
	case models.ScopePrivate:
		if response.Receiver != nil {
			if connectionID, ok := s.presence.Resolve(response.Receiver.ID); ok {
				s.hub.sendTo(connectionID, frame)
			}
		}
		if echoSender {
			if connectionID, ok := s.presence.Resolve(response.Sender.ID); ok {
				s.hub.sendTo(connectionID, frame)
			}
		}
	}
}

func (s *chatService) handleJoinRoom(c *chatClient, data json.RawMessage) {
	if !c.joined {
		s.logger.Warn().Str("connection_id", c.id).Msg("joinRoom before join ignored")
		return
	}

	var req dto.RoomEventRequest
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == 0 {
		s.logger.Warn().Str("connection_id", c.id).Msg("malformed joinRoom payload")
		return
	}

	member, err := s.rooms.IsMember(c.baseCtx, req.RoomID, c.userID)
	if err != nil || !member {
		// Silent rejection per protocol: no state change, nothing surfaced
		// beyond the log.
		s.logger.Warn().Err(err).Uint("room_id", req.RoomID).Str("user_id", c.userID).Msg("joinRoom rejected")
		return
	}

	s.hub.subscribe(req.RoomID, c)
	c.rooms[req.RoomID] = struct{}{}

	notice := dto.RoomPresenceNotice{RoomID: req.RoomID, UserID: c.userID}
	if frame, err := dto.NewSocketEvent(dto.EventUserJoinedRoom, notice); err == nil {
		s.hub.sendToRoom(req.RoomID, frame, c.id)
	}
	c.emit(dto.EventRoomJoined, notice)
}

func (s *chatService) handleLeaveRoom(c *chatClient, data json.RawMessage) {
	if !c.joined {
		return
	}

	var req dto.RoomEventRequest
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == 0 {
		s.logger.Warn().Str("connection_id", c.id).Msg("malformed leaveRoom payload")
		return
	}

	s.hub.unsubscribe(req.RoomID, c)
	delete(c.rooms, req.RoomID)

	notice := dto.RoomPresenceNotice{RoomID: req.RoomID, UserID: c.userID}
	if frame, err := dto.NewSocketEvent(dto.EventUserLeftRoom, notice); err == nil {
		s.hub.sendToRoom(req.RoomID, frame, c.id)
	}
	c.emit(dto.EventRoomLeft, notice)
}

// handleTyping relays the transient signal to room subscribers when
// room-scoped, otherwise to every other connection. Never persisted.
func (s *chatService) handleTyping(c *chatClient, data json.RawMessage, stopped bool) {
	if !c.joined {
		return
	}

	var req dto.TypingRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	if req.UserID == "" {
		req.UserID = c.userID
	}
	if req.UserName == "" {
		req.UserName = c.userName
	}

	event := dto.EventUserTyping
	if stopped {
		event = dto.EventUserStoppedTyping
	}
	frame, err := dto.NewSocketEvent(event, req)
	if err != nil {
		return
	}

	if req.ChatType == models.ScopeRoom && req.RoomID != 0 {
		s.hub.sendToRoom(req.RoomID, frame, c.id)
		return
	}
	s.hub.broadcast(frame, c.id)
}

// handleDisconnect tears the connection down: hub removal, presence
// deregistration and a roster rebroadcast. The connection id never accepts
// further events.
func (s *chatService) handleDisconnect(c *chatClient) {
	s.hub.unregister(c)
	observability.ChatConnectionsTotal().Dec()

	if !c.joined {
		return
	}

	roster, ok := s.presence.Deregister(c.baseCtx, c.id)
	if !ok {
		// Already replaced by a newer connection for the same user.
		return
	}
	s.broadcastRoster(roster)
	s.logger.Info().Str("user_id", c.userID).Str("connection_id", c.id).Msg("user disconnected")
}

func (s *chatService) broadcastRoster(roster []dto.OnlineUser) {
	frame, err := dto.NewSocketEvent(dto.EventOnlineUsers, roster)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode roster frame")
		return
	}
	s.hub.broadcast(frame, "")
}

func (s *chatService) publish(ctx context.Context, message dto.MessageResponse) error {
	if (s.redis == nil || s.redisChannel == "") && (s.nats == nil || s.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(chatEvent{
		Source:  s.nodeID,
		Message: message,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			return err
		}
	}
	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}
	return nil
}

func (s *chatService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("chat redis subscription closed")
			return
		}
		s.handleRemoteEvent([]byte(msg.Payload))
	}
}

func (s *chatService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "teamgrid-chat", func(msg *nats.Msg) {
		s.handleRemoteEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats chat subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain chat nats subscription")
		}
	}()
}

func (s *chatService) handleRemoteEvent(data []byte) {
	var event chatEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid chat event")
		return
	}
	if event.Source == s.nodeID {
		return
	}
	s.deliver(event.Message, nil, false)
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
