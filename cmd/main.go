package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hellonagi/fz99-lounge-sub001/config"
	"github.com/hellonagi/fz99-lounge-sub001/db"
	"github.com/hellonagi/fz99-lounge-sub001/handlers"
	"github.com/hellonagi/fz99-lounge-sub001/repositories"
	api "github.com/hellonagi/fz99-lounge-sub001/routes"
	"github.com/hellonagi/fz99-lounge-sub001/schedule"
	"github.com/hellonagi/fz99-lounge-sub001/services"
	_ "github.com/lib/pq"
)

const replenishInterval = 24 * time.Hour // How often the replenishment job runs

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	// Инициализация репозиториев
	seasonRepo := repositories.NewPostgresSeasonRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	recurringMatchRepo := repositories.NewPostgresRecurringMatchRepository(dbConn)
	logger.Info("Repositories initialized")

	// Инициализация сервисов
	txStarter := repositories.NewDB(dbConn)
	seasonService := services.NewSeasonService(seasonRepo)
	matchService := services.NewMatchService(txStarter, matchRepo, logger)
	recurringMatchService := services.NewRecurringMatchService(
		txStarter,
		recurringMatchRepo,
		matchRepo,
		seasonService,
		matchService,
		schedule.RealClock{},
		logger,
	)
	logger.Info("Services initialized")

	// Запуск ежедневного пополнения горизонта генерации матчей
	go func() {
		ticker := time.NewTicker(replenishInterval)
		defer ticker.Stop()
		logger.Info("Recurring match replenishment job started", slog.Duration("interval", replenishInterval))

		// Run once immediately at startup, then on ticker
		if err := recurringMatchService.MaterializeAll(context.Background()); err != nil {
			logger.Error("Replenishment: initial run failed", slog.Any("error", err))
		}

		for range ticker.C {
			logger.Info("Replenishment: triggering daily materialization.")
			if err := recurringMatchService.MaterializeAll(context.Background()); err != nil {
				logger.Error("Replenishment: periodic run failed", slog.Any("error", err))
			}
		}
	}()

	// Инициализация обработчиков HTTP
	recurringMatchHandler := handlers.NewRecurringMatchHandler(recurringMatchService)
	logger.Info("HTTP handlers initialized")

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(router, cfg.JWTSecretKey, recurringMatchHandler)
	logger.Info("Routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
