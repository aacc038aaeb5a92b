package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/teamgrid/chat-api/internal/config"
	"github.com/teamgrid/chat-api/internal/database"
	"github.com/teamgrid/chat-api/internal/handler"
	"github.com/teamgrid/chat-api/internal/middleware"
	"github.com/teamgrid/chat-api/internal/models"
	"github.com/teamgrid/chat-api/internal/repository"
	"github.com/teamgrid/chat-api/internal/router"
	"github.com/teamgrid/chat-api/internal/service"
	cloud "github.com/teamgrid/chat-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Message{}, &models.ChatRoom{}, &models.RoomMember{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// Redis and NATS widen delivery across nodes; a single node runs without them.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSUrl != "" {
		natsConn, err = nats.Connect(cfg.NATSUrl)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	roomRepo := repository.NewRoomRepository(db)

	presenceService := service.NewPresenceService(userRepo, redisClient, cfg.RedisChannelBase, cfg.PresenceTTL, logger)
	roomService := service.NewRoomService(roomRepo, validate, logger)
	messageService := service.NewMessageService(messageRepo, userRepo, roomService, validate, logger)
	chatService := service.NewChatService(messageRepo, userRepo, roomService, presenceService, redisClient, cfg.RedisChannelBase, natsConn, validate, logger)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	chatService.Start(rootCtx)

	chatHandler := handler.NewChatHandler(chatService, messageService, logger)
	roomHandler := handler.NewRoomHandler(roomService, validate, logger)
	presenceHandler := handler.NewPresenceHandler(presenceService, userRepo, logger)

	var uploadHandler *handler.UploadHandler
	if cfg.CloudinaryCloudName != "" {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		attachmentService := service.NewAttachmentService(uploader, cfg.UploadMaxSizeMB, logger)
		uploadHandler = handler.NewUploadHandler(attachmentService, logger)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ChatHandler:     chatHandler,
		RoomHandler:     roomHandler,
		PresenceHandler: presenceHandler,
		UploadHandler:   uploadHandler,
		JWTMiddleware:   middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
