package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/trailbook/slotsync/internal/config"
	"github.com/trailbook/slotsync/internal/database"
	"github.com/trailbook/slotsync/internal/handlers"
	"github.com/trailbook/slotsync/internal/notify"
	"github.com/trailbook/slotsync/internal/realtime"
	"github.com/trailbook/slotsync/internal/repositories"
	"github.com/trailbook/slotsync/internal/services"
)

func main() {
	ctx := context.Background()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create postgres pool: %v", err)
	}
	defer postgresPool.Close()

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to create redis client: %v", err)
	}
	defer redisClient.Close()

	// Wire the realtime core and the mutation path
	slotRepo := repositories.NewPostgresSlotRepository(postgresPool)
	auditRepo := repositories.NewPostgresSlotAuditRepository(postgresPool)
	source := realtime.NewRedisSource(redisClient)

	var notifier services.SoldOutNotifier
	if cfg.RabbitURL != "" {
		notifier = notify.NewPublisher(cfg.RabbitURL)
	}

	slotService := services.NewSlotService(slotRepo, auditRepo, source, notifier)

	watcherOpts := realtime.WatcherOptions{
		Manager: realtime.ManagerOptions{
			RetryOnError: cfg.RetryOnError,
			RetryDelay:   cfg.RetryDelay,
			ConnectGrace: cfg.ConnectGrace,
		},
		StaleThreshold:    cfg.StaleThreshold,
		StalePollInterval: cfg.StalePollInterval,
	}

	// Initialize HTTP Server
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Route("/api", func(r chi.Router) {
		handlers.NewSlotHandler(slotService).RegisterRoutes(r)
		handlers.NewStreamHandler(source, slotRepo, watcherOpts).RegisterRoutes(r)
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(runCtx)

	group.Go(func() error {
		log.Printf("Starting server on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.RabbitURL != "" {
		group.Go(func() error {
			err := notify.StartSoldOutConsumer(groupCtx, cfg.RabbitURL)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	// graceful shutdown
	group.Go(func() error {
		<-groupCtx.Done()

		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped gracefully")
}
