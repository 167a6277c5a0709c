package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xnotip/tipbot_service/internal/api/routes"
	"github.com/xnotip/tipbot_service/internal/domain/services/accounts"
	"github.com/xnotip/tipbot_service/internal/domain/services/nano"
	"github.com/xnotip/tipbot_service/internal/domain/services/tipping"
	"github.com/xnotip/tipbot_service/internal/infrastructure/cache"
	"github.com/xnotip/tipbot_service/internal/infrastructure/config"
	"github.com/xnotip/tipbot_service/internal/infrastructure/database"
	"github.com/xnotip/tipbot_service/internal/infrastructure/mastodon"
	"github.com/xnotip/tipbot_service/internal/infrastructure/nanorpc"
	"github.com/xnotip/tipbot_service/internal/infrastructure/repositories"
	"github.com/xnotip/tipbot_service/internal/workers/receivables_sweeper"
	"github.com/xnotip/tipbot_service/internal/workers/stream_listener"
	"github.com/xnotip/tipbot_service/pkg/graceful"
	"github.com/xnotip/tipbot_service/pkg/logger"
)

// shutdownFunc adapts a closure to the graceful.Shutdowner interface
type shutdownFunc func(timeout time.Duration) error

func (f shutdownFunc) Shutdown(timeout time.Duration) error {
	return f(timeout)
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	// Initialize database
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}

	// Run migrations
	if err := database.RunMigrations(db); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	// Initialize Redis
	redisClient, err := cache.NewRedisClient(&cfg.Redis, log.Zap())
	if err != nil {
		log.Fatal("Failed to connect to Redis", "error", err)
	}

	// Wire services
	requestTimeout := time.Duration(cfg.Nano.RequestTimeout) * time.Second

	accountRepo := repositories.NewAccountRepository(db)
	accountService := accounts.NewService(accountRepo, cfg.Nano.Seed, log.Zap())

	rpcClient := nanorpc.NewClient(nanorpc.Config{
		RPCURL:  cfg.Nano.RPCURL,
		Timeout: requestTimeout,
	}, log.Zap())
	workClient := nanorpc.NewWorkClient(cfg.Nano.WorkURL, requestTimeout, log.Zap())
	ledger := nano.NewService(rpcClient, workClient, accountService, cfg.Nano.Representative, log.Zap())

	social := mastodon.NewClient(mastodon.Config{
		RestBaseURL: cfg.Mastodon.RestBaseURL,
		AccessToken: cfg.Mastodon.AccessToken,
		Timeout:     requestTimeout,
	}, log.Zap())

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	bot, err := social.VerifyCredentials(bootCtx)
	bootCancel()
	if err != nil {
		log.Fatal("Failed to verify bot credentials", "error", err)
	}
	log.Info("Authenticated against social network",
		"account", bot.Acct, "account_id", bot.ID,
		"trigger_hashtag", cfg.Mastodon.TriggerHashtag)

	pendingStore := cache.NewPendingSignatureStore(redisClient, 24*time.Hour)
	tippingService := tipping.NewService(social, accountService, ledger, pendingStore, cfg.Mastodon.Silent, log.Zap())

	// Workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	streaming := mastodon.NewStreamingClient(mastodon.StreamingConfig{
		StreamingBaseURL: cfg.Mastodon.StreamingBaseURL,
		AccessToken:      cfg.Mastodon.AccessToken,
		TriggerHashtag:   cfg.Mastodon.TriggerHashtag,
	}, log.Zap())

	listener := stream_listener.NewWorker(streaming, tippingService, redisClient, &stream_listener.Config{
		TriggerHashtag: cfg.Mastodon.TriggerHashtag,
		BotAccountID:   bot.ID,
		HandlerTimeout: cfg.Workers.HandlerTimeoutDuration(),
		SeenStatusTTL:  time.Duration(cfg.Workers.SeenStatusTTL) * time.Second,
	}, log.Zap())

	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		if err := listener.Start(ctx); err != nil && ctx.Err() == nil {
			log.Error("Stream listener exited", "error", err)
		}
	}()

	sweeper := receivables_sweeper.NewWorker(accountService, ledger, &receivables_sweeper.Config{
		Schedule: cfg.Workers.SweepSchedule,
	}, log.Zap())
	if err := sweeper.Start(ctx); err != nil {
		log.Fatal("Failed to start receivables sweeper", "error", err)
	}

	// Operational HTTP surface
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := routes.SetupRoutes(db, redisClient, log.Zap())
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}
	go func() {
		log.Info("Starting operational HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", "error", err)
		}
	}()

	shutdownManager := graceful.NewShutdownManager(server, db, log)
	shutdownManager.Register(shutdownFunc(func(timeout time.Duration) error {
		cancel()
		sweeper.Stop()
		select {
		case <-listenerDone:
		case <-time.After(timeout):
			return fmt.Errorf("stream listener did not drain within %s", timeout)
		}
		return redisClient.Close()
	}))
	shutdownManager.WaitForShutdown()
}
