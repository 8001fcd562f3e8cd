package referral

import (
	"context"
	"errors"
	"fmt"

	"invest-referral/internal/store"
	"invest-referral/pkg/models"

	"go.uber.org/zap"
)

// StatsAggregator пересчитывает денормализованную статистику рефералов
type StatsAggregator struct {
	store  store.Store
	logger *zap.Logger
}

// NewStatsAggregator создает новый агрегатор статистики
func NewStatsAggregator(s store.Store, logger *zap.Logger) *StatsAggregator {
	return &StatsAggregator{
		store:  s,
		logger: logger,
	}
}

// Refresh полностью пересчитывает статистику пользователя из авторитетных
// записей ребер и начислений. Инкрементальные обновления не используются:
// при конкурентных зачислениях и повторных доставках они теряют обновления,
// а полный пересчет идемпотентен.
func (a *StatsAggregator) Refresh(ctx context.Context, userID int64) (*models.UserReferralStats, error) {
	stats, err := a.store.Stats().GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.logger.Warn("статистика пользователя отсутствует, пересчет пропущен",
				zap.Int64("user_id", userID))
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения статистики: %w", err)
	}

	count, err := a.store.Edge().CountByAncestor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчета потомков: %w", err)
	}

	totals, err := a.store.Earning().SumCreditedByAncestor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка агрегации начислений: %w", err)
	}

	stats.TotalReferrals = count
	stats.TotalEarningsINR = totals.ByCurrency[models.CurrencyINR]
	stats.TotalEarningsUSDT = totals.ByCurrency[models.CurrencyUSDT]
	stats.LastEarningAt = totals.LastCreditedAt

	if err := a.store.Stats().UpdateAggregates(ctx, stats); err != nil {
		return nil, fmt.Errorf("ошибка сохранения агрегатов: %w", err)
	}

	a.logger.Debug("статистика пользователя пересчитана",
		zap.Int64("user_id", userID),
		zap.Int("total_referrals", count))

	return stats, nil
}
