package performance_test

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/teamgrid/chat-api/internal/dto"
	"github.com/teamgrid/chat-api/internal/handler"
	"github.com/teamgrid/chat-api/internal/middleware"
	"github.com/teamgrid/chat-api/internal/models"
	"github.com/teamgrid/chat-api/internal/repository"
	"github.com/teamgrid/chat-api/internal/service"
)

func newRealtimeApp(t *testing.T) *fiber.App {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Message{}, &models.ChatRoom{}, &models.RoomMember{}))

	logger := zerolog.Nop()
	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	roomRepo := repository.NewRoomRepository(db)

	presence := service.NewPresenceService(userRepo, nil, "", 0, logger)
	rooms := service.NewRoomService(roomRepo, validate, logger)
	messages := service.NewMessageService(messageRepo, userRepo, rooms, validate, logger)
	chat := service.NewChatService(messageRepo, userRepo, rooms, presence, nil, "", nil, validate, logger)

	app := fiber.New()
	app.Use(middleware.CorrelationID())
	handler.NewChatHandler(chat, messages, logger).Register(app.Group("/api/chat"))

	return app
}

func startFiberServer(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	return "http://" + listener.Addr().String(), shutdown
}

func percentile(durations []time.Duration, p float64) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// TestJoinRoundTripLatency measures the time from opening a connection to
// receiving the joined acknowledgement, across many sequential sessions.
func TestJoinRoundTripLatency(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping latency measurement in short mode")
	}

	app := newRealtimeApp(t)
	baseURL, shutdown := startFiberServer(t, app)
	defer shutdown()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/chat/ws"
	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}

	const sessions = 50
	latencies := make([]time.Duration, 0, sessions)

	for i := 0; i < sessions; i++ {
		start := time.Now()

		conn, resp, err := dialer.Dial(url, nil)
		require.NoError(t, err)
		if resp != nil {
			_ = resp.Body.Close()
		}

		frame, err := dto.NewSocketEvent(dto.EventJoin, dto.JoinRequest{
			UserID: fmt.Sprintf("bench-user-%d", i),
			Name:   fmt.Sprintf("Bench User %d", i),
		})
		require.NoError(t, err)
		require.NoError(t, conn.WriteJSON(frame))

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		for {
			var inbound dto.SocketEvent
			require.NoError(t, conn.ReadJSON(&inbound))
			if inbound.Event == dto.EventJoined {
				break
			}
		}

		latencies = append(latencies, time.Since(start))
		require.NoError(t, conn.Close())
	}

	p50 := percentile(latencies, 0.50)
	p95 := percentile(latencies, 0.95)
	t.Logf("join round trip: p50=%s p95=%s", p50, p95)

	require.Less(t, p95, 500*time.Millisecond, "join handshake p95 too slow")
}

// TestGlobalFanoutThroughput drives messages through one sender while a set of
// listeners drain the broadcast, then checks every listener saw every message.
func TestGlobalFanoutThroughput(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping throughput measurement in short mode")
	}

	app := newRealtimeApp(t)
	baseURL, shutdown := startFiberServer(t, app)
	defer shutdown()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/chat/ws"
	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}

	const listeners = 5
	const messageCount = 40

	join := func(userID, name string) *websocket.Conn {
		conn, resp, err := dialer.Dial(url, nil)
		require.NoError(t, err)
		if resp != nil {
			_ = resp.Body.Close()
		}
		frame, err := dto.NewSocketEvent(dto.EventJoin, dto.JoinRequest{UserID: userID, Name: name})
		require.NoError(t, err)
		require.NoError(t, conn.WriteJSON(frame))
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		for {
			var inbound dto.SocketEvent
			require.NoError(t, conn.ReadJSON(&inbound))
			if inbound.Event == dto.EventJoined {
				return conn
			}
		}
	}

	sender := join("bench-sender", "Bench Sender")
	defer sender.Close()

	conns := make([]*websocket.Conn, 0, listeners)
	for i := 0; i < listeners; i++ {
		conn := join(fmt.Sprintf("bench-listener-%d", i), fmt.Sprintf("Listener %d", i))
		conns = append(conns, conn)
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	start := time.Now()
	for i := 0; i < messageCount; i++ {
		frame, err := dto.NewSocketEvent(dto.EventSendMessage, dto.SendMessageRequest{
			Content: fmt.Sprintf("broadcast %d", i),
		})
		require.NoError(t, err)
		require.NoError(t, sender.WriteJSON(frame))
	}

	for _, conn := range conns {
		received := 0
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
		for received < messageCount {
			var inbound dto.SocketEvent
			require.NoError(t, conn.ReadJSON(&inbound))
			if inbound.Event == dto.EventNewMessage {
				received++
			}
		}
	}

	elapsed := time.Since(start)
	t.Logf("fan-out of %d messages to %d listeners in %s", messageCount, listeners, elapsed)
	require.Less(t, elapsed, 10*time.Second, "global fan-out too slow")
}
