package main

import (
	"fmt"
	"os"

	"addash/internal/delivery"
	"addash/internal/domain"
	"addash/internal/infrastructure"
	"addash/internal/usecase"
	"addash/pkg/config"
	"addash/pkg/logger"
	"addash/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)
	m := metrics.New()

	transport := infrastructure.NewTransport(
		cfg.Query.MaxAttempts,
		cfg.Query.BaseDelay,
		cfg.Query.MaxDelay,
		log, m,
	)

	queryClient := infrastructure.NewQueryClient(
		cfg.Query.BaseURL,
		infrastructure.StaticCredentials{BearerToken: cfg.Query.Token},
		transport,
		cfg.Query.RequestTimeout,
		cfg.Query.RateLimitPerSecond,
		log, m,
	)

	cache := infrastructure.NewCache(
		cfg.Cache.DataTTL,
		log, m,
		infrastructure.Disabled(cfg.Cache.Disabled()),
	)

	loader := usecase.NewLoaderService(
		queryClient,
		cache,
		usecase.GoroutineScheduler{},
		log, m,
		cfg.Cache.DataTTL,
		cfg.Cache.DailyTTL,
		cfg.Query.DefaultLimit,
	)

	transport.Subscribe(func(status domain.ConnectionStatus) {
		log.WithField("status", status).Info("Connection status changed")
	})

	handlers := delivery.NewHTTPHandlers(loader, transport, log, m)
	router := delivery.NewHTTPRouter(handlers, log, m)

	log.WithFields(map[string]any{
		"port":           cfg.Server.Port,
		"query_api":      cfg.Query.BaseURL,
		"cache_mode":     cfg.Cache.Mode,
		"cache_data_ttl": cfg.Cache.DataTTL,
	}).Info("Starting dashboard server")

	engine := router.SetupRoutes()
	if err := engine.Run(":" + cfg.Server.Port); err != nil {
		log.WithError(err).Fatal("Server exited")
	}
}
