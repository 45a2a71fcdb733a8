package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"medchat/internal/config"
	"medchat/internal/logging"
	"medchat/internal/relay"
	"medchat/internal/repository"
	"medchat/internal/service"
	"medchat/internal/transport/rest"
	"medchat/internal/transport/ws"
)

func main() {
	cfg := config.Load()
	logger := logging.New("chat", cfg.IsDevelopment())
	ctx := context.Background()

	roomRepo, disconnect := openRoomStore(ctx, cfg, logger)
	defer disconnect()

	// Redis connection
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	// Notifications are best effort, so a broker that is down at boot is only a warning
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable, notifications will fail until it recovers")
	} else {
		logger.Info().Msg("connected to redis")
	}

	// Initialize WebSocket hub
	wsHub := ws.NewHub("chat", logger)
	logger.Info().Msg("websocket hub started")

	publisher := relay.NewPublisher(rdb, cfg.NotifyChannel, logger)

	// Initialize services
	roomSvc := service.NewRoomService(roomRepo)
	chatSvc := service.NewChatService(roomSvc, wsHub, publisher, cfg.PatientMarker, logger)

	container := &rest.Container{
		ChatService:    chatSvc,
		WSHandler:      ws.NewHandler(wsHub, chatSvc, cfg.WSEventsPerSecond, cfg.WSEventBurst, cfg.RequestTimeout, logger),
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           rest.NewRouter(container),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("store", cfg.RoomStore).Msg("chat service starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("listen and serve")
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down chat service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	wsHub.Stop()
	publisher.Close()
	logger.Info().Msg("chat service exited")
}

// openRoomStore returns the configured room store and its cleanup func
func openRoomStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (repository.RoomRepo, func()) {
	if cfg.RoomStore == "memory" {
		logger.Warn().Msg("using in-memory room store, rooms are lost on restart")
		return repository.NewMemoryRoomRepo(), func() {}
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to mongodb")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping mongodb")
	}
	logger.Info().Str("db", cfg.MongoDatabase).Msg("connected to mongodb")

	repo := repository.NewRoomRepo(mongoClient.Database(cfg.MongoDatabase))
	if err := repo.EnsureIndexes(pingCtx); err != nil {
		logger.Fatal().Err(err).Msg("failed to create room indexes")
	}

	return repo, func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(disconnectCtx)
	}
}
