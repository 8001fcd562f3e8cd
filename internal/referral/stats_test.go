package referral

import (
	"context"
	"testing"
	"time"

	"invest-referral/pkg/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	seedStats(s, 1, "CODE0001")
	seedChain(t, s, 2, 1)
	seedChain(t, s, 3, 1)

	// Два зачисленных начисления в разных валютах и одно неудачное
	creditedAt := time.Now()
	s.earnings.earnings = []*models.Earning{
		{ID: 1, AncestorID: 1, DescendantID: 2, Level: 1, InvestmentRef: uuid.New(),
			Amount: decimal.RequireFromString("50"), Currency: models.CurrencyINR,
			Status: models.EarningStatusCredited, CreditedAt: &creditedAt},
		{ID: 2, AncestorID: 1, DescendantID: 3, Level: 1, InvestmentRef: uuid.New(),
			Amount: decimal.RequireFromString("0.5"), Currency: models.CurrencyUSDT,
			Status: models.EarningStatusCredited, CreditedAt: &creditedAt},
		{ID: 3, AncestorID: 1, DescendantID: 3, Level: 1, InvestmentRef: uuid.New(),
			Amount: decimal.RequireFromString("100"), Currency: models.CurrencyINR,
			Status: models.EarningStatusFailed},
	}

	aggregator := NewStatsAggregator(s, zap.NewNop())

	stats, err := aggregator.Refresh(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, stats)

	// Агрегаты пересчитаны из ребер и зачисленных начислений,
	// неудачные начисления не учитываются
	assert.Equal(t, 2, stats.TotalReferrals)
	assert.Equal(t, "50", stats.TotalEarningsINR.String())
	assert.Equal(t, "0.5", stats.TotalEarningsUSDT.String())
	require.NotNil(t, stats.LastEarningAt)
	assert.Equal(t, creditedAt, *stats.LastEarningAt)

	stored := s.stats.byUser[1]
	assert.Equal(t, 2, stored.TotalReferrals)
}

func TestRefreshIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	seedStats(s, 1, "CODE0001")
	seedChain(t, s, 2, 1)

	aggregator := NewStatsAggregator(s, zap.NewNop())

	first, err := aggregator.Refresh(ctx, 1)
	require.NoError(t, err)

	// Повторный пересчет дает тот же результат
	second, err := aggregator.Refresh(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first.TotalReferrals, second.TotalReferrals)
	assert.True(t, first.TotalEarningsINR.Equal(second.TotalEarningsINR))
}

func TestRefreshWithoutStats(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()

	aggregator := NewStatsAggregator(s, zap.NewNop())

	// Отсутствие записи статистики не является ошибкой
	stats, err := aggregator.Refresh(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, stats)
}
