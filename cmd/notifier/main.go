package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"medchat/internal/cache"
	"medchat/internal/config"
	"medchat/internal/logging"
	"medchat/internal/relay"
	"medchat/internal/transport/rest"
	"medchat/internal/transport/ws"
)

func main() {
	cfg := config.Load()
	logger := logging.New("notifier", cfg.IsDevelopment())

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// The subscriber keeps retrying, so start anyway
		logger.Warn().Err(err).Msg("redis unreachable at startup")
	} else {
		logger.Info().Msg("connected to redis")
	}
	cancel()

	wsHub := ws.NewHub("notifier", logger)
	inbox := cache.NewInboxCache(rdb, cfg.InboxMax, cfg.InboxTTL)
	gateway := relay.NewGateway(wsHub, inbox, logger)

	runCtx, stopSubscriber := context.WithCancel(context.Background())
	subscriber := relay.NewSubscriber(rdb, cfg.NotifyChannel, gateway, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		subscriber.Run(runCtx)
	}()

	container := &rest.NotifierContainer{
		Gateway:        gateway,
		WSHandler:      ws.NewNotifyHandler(wsHub, gateway, logger),
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.NotifierPort,
		Handler:           rest.NewNotifierRouter(container),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.NotifierPort).Str("channel", cfg.NotifyChannel).Msg("notification gateway starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("listen and serve")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down notification gateway")

	stopSubscriber()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	wsHub.Stop()
	logger.Info().Msg("notification gateway exited")
}
