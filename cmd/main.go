package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/eaglebank/accounts/config"
	"github.com/eaglebank/accounts/internal/command"
	"github.com/eaglebank/accounts/internal/handler"
	"github.com/eaglebank/accounts/internal/query"
	"github.com/eaglebank/accounts/internal/repository"
	"github.com/eaglebank/accounts/shared/events"
	"github.com/eaglebank/accounts/shared/logging"
	"github.com/eaglebank/accounts/shared/middleware"
	"github.com/eaglebank/accounts/shared/models"
	redisClient "github.com/eaglebank/accounts/shared/redis"
	"github.com/eaglebank/accounts/shared/token"
	"github.com/eaglebank/accounts/shared/utils"
)

const eventStreamMaxLen = 10000

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Pretty)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Service stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Write store
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Redis connection (read model cache + event streaming), optional
	var (
		cache     repository.ViewCache
		publisher command.EventPublisher
		redis     *redisClient.Client
	)
	if cfg.Redis.Addr != "" {
		redis, err = redisClient.NewClient(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer redis.Close()

		cache = redisClient.NewViewCache[models.UserView](redis.Client, cfg.Redis.CacheTTL, logger)
		publisher = events.NewPublisher(redis.Client, eventStreamMaxLen)
		logger.Info("Redis enabled", slog.String("addr", cfg.Redis.Addr))
	}

	// --- CQRS wiring ---
	hasher := utils.NewPasswordHasher(cfg.Auth.BcryptCost)
	tokens, err := token.New(token.Config{Secret: cfg.Token.Secret, TTL: cfg.Token.TTL})
	if err != nil {
		return err
	}

	readRepo := repository.NewUserReadRepository(store, cache)
	commandSvc := command.NewAccountCommandService(store, readRepo, hasher, publisher, logger)
	querySvc, err := query.NewAccountQueryService(store, readRepo, hasher, tokens, logger)
	if err != nil {
		return err
	}

	if redis != nil {
		subscriber := events.NewSubscriber(redis.Client, events.SubscriberConfig{
			Group:    cfg.Redis.Group,
			Consumer: cfg.Redis.Consumer,
			Stream:   events.UserEventsStream,
			Handler:  querySvc.HandleUserEvent,
			Logger:   logger,
		})
		go func() {
			if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Subscriber stopped", slog.Any("error", err))
			}
		}()
	}

	gin.SetMode(cfg.HTTP.GinMode)
	router := handler.NewRouter(handler.RouterConfig{
		Accounts: handler.NewAccountHandler(commandSvc, querySvc),
		Auth:     handler.NewAuthHandler(querySvc),
		Tokens:   querySvc,
		Metrics:  middleware.NewMetrics(),
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Account service starting", slog.Int("port", cfg.HTTP.Port), slog.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.RecordStore, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := sql.Open("postgres", cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		store := repository.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Info("Using postgres record store")
		return store, func() { _ = db.Close() }, nil

	default:
		store, err := repository.NewFileStore(cfg.Store.Path, cfg.Store.CreateIfMissing)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using file record store", slog.String("path", store.Path()))
		return store, func() {}, nil
	}
}
