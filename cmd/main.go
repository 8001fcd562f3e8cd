package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"invest-referral/internal/api"
	"invest-referral/internal/config"
	"invest-referral/internal/metrics"
	"invest-referral/internal/migrations"
	"invest-referral/internal/referral"
	"invest-referral/internal/scheduler"
	"invest-referral/internal/store"
	"invest-referral/internal/webhook"

	"go.uber.org/zap"
)

func main() {
	// Инициализация логгера
	logger, err := initLogger()
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("запуск реферального движка")

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("ошибка загрузки конфигурации", zap.Error(err))
	}

	// Инициализация базы данных
	store, err := store.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal("ошибка инициализации базы данных", zap.Error(err))
	}
	defer store.Close()

	// Применение миграций
	if err := migrations.RunMigrations(cfg, logger); err != nil {
		logger.Fatal("ошибка применения миграций", zap.Error(err))
	}

	// Инициализация компонентов движка
	chainBuilder := referral.NewChainBuilder(store, cfg.Referral.CodeAttempts, logger)
	commissionEngine := referral.NewCommissionEngine(store, logger)
	statsAggregator := referral.NewStatsAggregator(store, logger)
	milestoneEvaluator := referral.NewMilestoneEvaluator(store, logger)
	pipeline := referral.NewPipeline(chainBuilder, commissionEngine, statsAggregator, milestoneEvaluator, logger)
	query := referral.NewQuery(store, logger)

	// Инициализация метрик
	metricsSystem := metrics.New(logger)
	metricsHandler := metrics.NewHandler(metricsSystem, store, logger)

	// Инициализация HTTP обработчиков
	eventHandler := webhook.NewEventHandler(pipeline, metricsSystem, cfg.App.WebhookSecret, logger)
	apiHandler := api.NewHandler(query, logger)
	adminHandler := api.NewAdminHandler(store, pipeline, logger)

	// Инициализация планировщика задач
	taskScheduler := scheduler.NewScheduler(logger)
	reconcileJob := scheduler.NewReconcileStatsJob(store, statsAggregator, milestoneEvaluator, cfg.Referral.ReconcileWindow, logger)
	taskScheduler.AddJob(reconcileJob)

	// Создание канала для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Обработка сигналов для graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Запуск HTTP сервера
	go startHTTPServer(ctx, cfg.App.Port, metricsHandler, eventHandler, apiHandler, adminHandler, logger)

	// Запуск планировщика задач
	go taskScheduler.Start(ctx, cfg.Referral.ReconcileInterval)

	logger.Info("реферальный движок запущен и готов к работе",
		zap.String("address", fmt.Sprintf("http://localhost:%d", cfg.App.Port)),
	)

	// Ожидание сигнала завершения
	<-sigChan
	logger.Info("получен сигнал завершения, начинаем graceful shutdown")

	cancel()
	time.Sleep(time.Second)

	logger.Info("приложение завершено")
}

// initLogger инициализирует логгер
func initLogger() (*zap.Logger, error) {
	// В продакшене можно использовать JSON формат
	config := zap.NewDevelopmentConfig()
	config.OutputPaths = []string{"stdout", "logs/app.log"}
	config.ErrorOutputPaths = []string{"stderr", "logs/error.log"}

	// Создаем директорию для логов если её нет
	if err := os.MkdirAll("logs", 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории логов: %w", err)
	}

	return config.Build()
}

// startHTTPServer запускает HTTP сервер событий, API и метрик
func startHTTPServer(
	ctx context.Context,
	port int,
	metricsHandler *metrics.Handler,
	eventHandler *webhook.EventHandler,
	apiHandler *api.Handler,
	adminHandler *api.AdminHandler,
	logger *zap.Logger,
) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler.MetricsHandler())
	mux.HandleFunc("/health", metricsHandler.HealthHandler)

	// События инвестиционной платформы
	mux.HandleFunc("/events/registration", eventHandler.HandleRegistration)
	mux.HandleFunc("/events/investment", eventHandler.HandleInvestment)

	// API чтения
	mux.HandleFunc("/api/referrals/summary", apiHandler.Summary)
	mux.HandleFunc("/api/referrals/earnings", apiHandler.Earnings)
	mux.HandleFunc("/api/referrals/tree", apiHandler.Tree)
	mux.HandleFunc("/api/referrals/code", apiHandler.ValidateCode)

	// Административные операции
	mux.HandleFunc("/api/admin/config", adminHandler.CreateConfig)
	mux.HandleFunc("/api/admin/milestones", adminHandler.CreateMilestone)
	mux.HandleFunc("/api/admin/reprocess", adminHandler.Reprocess)
	mux.HandleFunc("/api/admin/earnings/cancel", adminHandler.CancelEarning)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	logger.Info("HTTP сервер запущен", zap.String("address", server.Addr))

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ошибка HTTP сервера", zap.Error(err))
		}
	}()

	// Ожидание сигнала завершения
	<-ctx.Done()

	// Graceful shutdown HTTP сервера
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ошибка при остановке HTTP сервера", zap.Error(err))
	}

	logger.Info("HTTP сервер остановлен")
}
