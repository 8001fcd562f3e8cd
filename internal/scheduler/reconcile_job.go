package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"invest-referral/internal/referral"
	"invest-referral/internal/store"
)

// ReconcileStatsJob пересчитывает статистику получателей недавних начислений.
// Агрегаты в user_referral_stats обновляются в момент зачисления, но сбой
// процесса между коммитом начисления и пересчетом оставляет их устаревшими.
// Джоба закрывает это окно полным пересчетом.
type ReconcileStatsJob struct {
	store      store.Store
	aggregator *referral.StatsAggregator
	milestones *referral.MilestoneEvaluator
	window     time.Duration
	logger     *zap.Logger
}

// NewReconcileStatsJob создает джобу сверки статистики
func NewReconcileStatsJob(
	store store.Store,
	aggregator *referral.StatsAggregator,
	milestones *referral.MilestoneEvaluator,
	window time.Duration,
	logger *zap.Logger,
) *ReconcileStatsJob {
	return &ReconcileStatsJob{
		store:      store,
		aggregator: aggregator,
		milestones: milestones,
		window:     window,
		logger:     logger,
	}
}

// Name возвращает имя джобы для логов планировщика
func (j *ReconcileStatsJob) Name() string {
	return "reconcile_stats"
}

// Run запускает сверку статистики
func (j *ReconcileStatsJob) Run(ctx context.Context) error {
	since := time.Now().Add(-j.window)
	j.logger.Info("запуск сверки реферальной статистики", zap.Time("since", since))

	userIDs, err := j.store.Stats().GetRecentlyEarned(ctx, since)
	if err != nil {
		return fmt.Errorf("ошибка получения получателей начислений: %w", err)
	}

	j.logger.Info("найдено пользователей для сверки", zap.Int("count", len(userIDs)))

	var failed int
	for _, userID := range userIDs {
		if _, err := j.aggregator.Refresh(ctx, userID); err != nil {
			j.logger.Error("ошибка пересчета статистики пользователя",
				zap.Error(err),
				zap.Int64("user_id", userID))
			failed++
			continue
		}

		// Пересчет мог довести пользователя до порога достижения
		if _, err := j.milestones.Evaluate(ctx, userID); err != nil {
			j.logger.Error("ошибка проверки достижений пользователя",
				zap.Error(err),
				zap.Int64("user_id", userID))
			failed++
		}
	}

	j.logger.Info("сверка реферальной статистики завершена",
		zap.Int("processed", len(userIDs)),
		zap.Int("failed", failed))
	return nil
}
