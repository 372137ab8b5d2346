package configuration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/aditya2785/web-chat/internal/auth"
	"github.com/aditya2785/web-chat/internal/db"
	"github.com/aditya2785/web-chat/internal/handler"
	"github.com/aditya2785/web-chat/internal/hub"
	"github.com/aditya2785/web-chat/internal/media"
	"github.com/aditya2785/web-chat/internal/model"
	"github.com/aditya2785/web-chat/internal/presence"
	"github.com/aditya2785/web-chat/internal/repo"
	"github.com/aditya2785/web-chat/internal/service"
)

type Container struct {
	UserHandler    handler.UserHandler
	MessageHandler handler.MessageHandler
	Hub            *hub.Hub
	Tokens         *auth.TokenService
	MediaStore     *media.DiskStorage
	Config         Config
	Logger         *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
}

func BuildContainer() (*Container, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if config.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET must be set")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	con, err := db.OpenConnection(config.Mongo.Uri, config.Mongo.Database)
	if err != nil {
		return nil, err
	}

	mediaStore, err := media.NewDiskStorage(config.Media.Dir, config.Media.BaseURL)
	if err != nil {
		return nil, err
	}

	messageRepo := repo.NewMessageRepository(
		db.NewRepository[model.Message](con, config.Mongo.MessagesCollection), logger)
	userRepo := repo.NewUserRepository(
		db.NewRepository[model.User](con, config.Mongo.UsersCollection), logger)

	tokens := auth.NewTokenService(config.JWTSecret)
	registry := presence.NewRegistry()
	h := hub.NewHub(registry, tokens, logger)

	conversationService := service.NewConversationService(messageRepo, userRepo, h, mediaStore, logger)
	userService := service.NewUserService(userRepo, tokens, mediaStore, logger)

	return &Container{
		UserHandler:    handler.NewUserHandler(userService),
		MessageHandler: handler.NewMessageHandler(conversationService, mediaStore),
		Hub:            h,
		Tokens:         tokens,
		MediaStore:     mediaStore,
		Config:         *config,
		Logger:         logger,
		mongoClient:    con,
	}, nil
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	// Stop the hub first (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
