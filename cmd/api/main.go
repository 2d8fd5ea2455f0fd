package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ecotrack-api/internal/application/notification"
	"github.com/ecotrack-api/internal/config"
	"github.com/ecotrack-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/ecotrack-api/internal/infrastructure/jwt"
	"github.com/ecotrack-api/internal/infrastructure/sns"
	"github.com/ecotrack-api/internal/realtime"
	"github.com/ecotrack-api/internal/scheduler"
	transporthttp "github.com/ecotrack-api/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// JWT provider. Every endpoint and the websocket handshake need it.
	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatalf("JWT provider not available: %v", err)
	}

	// SNS push gateway (optional, graceful fallback in dev).
	var pushGateway sns.PushGateway
	if gw, err := sns.NewGateway(cfg); err == nil {
		pushGateway = gw
	} else {
		log.Printf("WARN: SNS push gateway not available: %v", err)
		pushGateway = sns.NewNopGateway(logger)
	}

	userRepo := dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users)
	deviceRepo := dynamo.NewDeviceRepo(dynamoClient, cfg.DynamoTables.Devices)
	notificationRepo := dynamo.NewNotificationRepo(dynamoClient, cfg.DynamoTables.Notifications)

	hub := realtime.NewHub(logger)

	dispatcher := notification.NewDispatcher(notification.DispatcherDeps{
		Store:         notificationRepo,
		Devices:       deviceRepo,
		Presence:      hub,
		Gateway:       pushGateway,
		BackoffBase:   cfg.RetryBackoffBase,
		BackoffFactor: cfg.RetryBackoffFactor,
		PushTimeout:   cfg.PushTimeout,
		Logger:        logger,
	})

	// bgCtx bounds all background work: the sweeps and the router's rate
	// limiter eviction loop.
	bgCtx, stopBackground := context.WithCancel(context.Background())
	sweeper := scheduler.NewSweeper(notificationRepo, dispatcher,
		cfg.ScheduleSweepInterval, cfg.RetrySweepInterval, cfg.DispatchTimeout, logger)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(bgCtx)
	}()

	deps := &transporthttp.Deps{
		UserRepo:         userRepo,
		DeviceRepo:       deviceRepo,
		NotificationRepo: notificationRepo,
		JWTProvider:      jwtProvider,
		Hub:              hub,
		Dispatcher:       dispatcher,
		Logger:           logger,
	}

	router := transporthttp.NewRouter(bgCtx, cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stopBackground()
	hub.CloseAll()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	<-sweepDone
	log.Println("Server stopped")
}
