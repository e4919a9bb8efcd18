package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"homework-bot/internal/bot"
	"homework-bot/internal/config"
	"homework-bot/internal/database"
	"homework-bot/internal/models"
	"homework-bot/internal/practicum"
	"homework-bot/internal/queue"
	"homework-bot/internal/watcher"
	"homework-bot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		var missingErr *config.MissingEnvError
		if errors.As(err, &missingErr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", missingErr)
		} else {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		}
		os.Exit(1)
	}

	logger.Init(cfg.App.LogLevel, nil)
	logger.Info("Starting homework-bot",
		logger.String("app", cfg.App.Name),
		logger.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		var dbErr *database.ConnectionError
		if errors.As(err, &dbErr) {
			logger.Error("Failed to connect to database",
				logger.Err(dbErr),
				logger.String("host", cfg.Database.Host),
				logger.Int("port", cfg.Database.Port),
			)
		} else {
			logger.Error("Failed to connect to database",
				logger.Err(err),
			)
		}
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("Connected to database")

	q, err := queue.New(cfg.NATS)
	if err != nil {
		logger.Error("Failed to connect to NATS", logger.Err(err))
		os.Exit(1)
	}
	defer q.Close()
	logger.Info("Connected to NATS", logger.String("url", cfg.NATS.URL))

	statusRepo := database.NewStatusRepository(db)

	go func() {
		logger.Info("Starting status event consumer...")
		if err := q.ConsumeStatusEvents(ctx, func(event *queue.StatusEvent) error {
			rec := &models.StatusRecord{
				HomeworkName: event.HomeworkName,
				Status:       event.Status,
				Message:      event.Message,
				ChangedAt:    event.ChangedAt,
			}
			if err := statusRepo.Record(ctx, rec); err != nil {
				logger.Error("Failed to journal status event",
					logger.Err(err),
					logger.String("homework", event.HomeworkName),
				)
				return err
			}
			logger.Debug("Status event journaled",
				logger.String("homework", event.HomeworkName),
				logger.String("status", event.Status),
			)
			return nil
		}); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Status event consumer error", logger.Err(err))
		}
	}()

	telegramBot, err := bot.New(cfg.Telegram, statusRepo)
	if err != nil {
		logger.Error("Failed to create bot", logger.Err(err))
		os.Exit(1)
	}

	tbot, err := telegramBot.Start()
	if err != nil {
		logger.Error("Failed to start bot", logger.Err(err))
		os.Exit(1)
	}
	logger.Info("Telegram bot started")

	go func() {
		logger.Info("Starting watcher...")
		api := practicum.New(cfg.Practicum)
		w := watcher.New(cfg.Watcher, api, telegramBot, q)
		if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Watcher error", logger.Err(err))
		}
	}()

	healthMux := http.NewServeMux()
	healthMux.HandleFunc(cfg.Health.Endpoint, func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			logger.Warn("Health check failed", logger.Err(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("DB DOWN"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: healthMux,
	}

	go func() {
		logger.Info("Health server starting",
			logger.Int("port", cfg.Health.Port),
		)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health server error", logger.Err(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	tbot.Stop()

	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down health server", logger.Err(err))
	}

	logger.Info("Bot stopped gracefully")
}
