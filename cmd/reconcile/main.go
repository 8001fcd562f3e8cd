package main

import (
	"context"
	"flag"
	"log"
	"time"

	"invest-referral/internal/config"
	"invest-referral/internal/referral"
	"invest-referral/internal/store"

	"go.uber.org/zap"
)

func main() {
	var (
		userID = flag.Int64("user", 0, "ID пользователя для пересчета (0 = все недавние получатели)")
		window = flag.Duration("window", 24*time.Hour, "Окно выборки недавних получателей")
		dryRun = flag.Bool("dry-run", false, "Показать расхождения без записи")
	)
	flag.Parse()

	// Инициализация логгера
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Ошибка инициализации логгера:", err)
	}
	defer logger.Sync()

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	// Подключение к базе данных
	store, err := store.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal("Ошибка подключения к базе данных", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	aggregator := referral.NewStatsAggregator(store, logger)

	if *userID > 0 {
		err = reconcileUser(ctx, store, aggregator, *userID, *dryRun, logger)
	} else {
		err = reconcileRecent(ctx, store, aggregator, *window, *dryRun, logger)
	}

	if err != nil {
		logger.Fatal("Ошибка пересчета статистики", zap.Error(err))
	}

	logger.Info("Пересчет статистики завершен успешно")
}

func reconcileUser(ctx context.Context, s store.Store, aggregator *referral.StatsAggregator, userID int64, dryRun bool, logger *zap.Logger) error {
	if dryRun {
		return showDiff(ctx, s, userID, logger)
	}

	if _, err := aggregator.Refresh(ctx, userID); err != nil {
		return err
	}

	logger.Info("Статистика пользователя пересчитана", zap.Int64("user_id", userID))
	return nil
}

func reconcileRecent(ctx context.Context, s store.Store, aggregator *referral.StatsAggregator, window time.Duration, dryRun bool, logger *zap.Logger) error {
	since := time.Now().Add(-window)

	userIDs, err := s.Stats().GetRecentlyEarned(ctx, since)
	if err != nil {
		return err
	}

	logger.Info("Найдено пользователей для пересчета",
		zap.Int("count", len(userIDs)),
		zap.Time("since", since))

	for _, userID := range userIDs {
		if err := reconcileUser(ctx, s, aggregator, userID, dryRun, logger); err != nil {
			logger.Error("Ошибка пересчета пользователя",
				zap.Error(err),
				zap.Int64("user_id", userID))
		}
	}

	return nil
}

// showDiff сравнивает сохраненные агрегаты с пересчитанными без записи
func showDiff(ctx context.Context, s store.Store, userID int64, logger *zap.Logger) error {
	stats, err := s.Stats().GetByUserID(ctx, userID)
	if err != nil {
		return err
	}

	count, err := s.Edge().CountByAncestor(ctx, userID)
	if err != nil {
		return err
	}

	totals, err := s.Earning().SumCreditedByAncestor(ctx, userID)
	if err != nil {
		return err
	}

	logger.Info("DRY RUN: сравнение агрегатов",
		zap.Int64("user_id", userID),
		zap.Int("stored_referrals", stats.TotalReferrals),
		zap.Int("actual_referrals", count),
		zap.String("stored_inr", stats.TotalEarningsINR.String()),
		zap.String("stored_usdt", stats.TotalEarningsUSDT.String()),
		zap.Any("actual_by_currency", totals.ByCurrency))

	return nil
}
