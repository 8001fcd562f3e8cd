package referral

import (
	"context"
	"fmt"
	"time"

	"invest-referral/internal/store"
	"invest-referral/pkg/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var oneHundred = decimal.NewFromInt(100)

// CommissionEngine начисляет реферальные комиссии по инвестиционному событию
type CommissionEngine struct {
	store  store.Store
	logger *zap.Logger
}

// DistributionResult представляет итог обработки одной инвестиции
type DistributionResult struct {
	// Успешно зачисленные начисления по возрастанию уровня
	Settled []*models.Earning
	// Предки, получившие зачисление
	CreditedAncestors []int64
	// Количество уровней, зачисление по которым не удалось
	FailedCount int
	// Количество уровней, уже обработанных ранее (повторная доставка)
	DuplicateCount int
}

// SettledCount возвращает число успешно зачисленных уровней
func (r *DistributionResult) SettledCount() int {
	return len(r.Settled)
}

// NewCommissionEngine создает новый движок начисления комиссий
func NewCommissionEngine(s store.Store, logger *zap.Logger) *CommissionEngine {
	return &CommissionEngine{
		store:  s,
		logger: logger,
	}
}

// Distribute начисляет комиссии предкам инвестора по всем уровням цепочки.
// Каждый уровень - независимая единица работы: сбой одного уровня не
// прерывает обработку остальных. Повторный вызов для той же инвестиции
// не приводит к двойным зачислениям благодаря уникальности пары
// (investment_ref, level).
func (e *CommissionEngine) Distribute(ctx context.Context, inv *models.Investment) (*DistributionResult, error) {
	result := &DistributionResult{}

	cfg, err := e.store.Config().GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения конфигурации: %w", err)
	}
	if cfg == nil {
		// Без активной конфигурации комиссии не начисляются
		e.logger.Info("нет активной конфигурации, комиссии не начисляются",
			zap.String("investment_id", inv.ID.String()))
		return result, nil
	}

	edges, err := e.store.Edge().GetChain(ctx, inv.UserID, cfg.MaxLevels)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения цепочки предков: %w", err)
	}

	if len(edges) == 0 {
		e.logger.Info("у инвестора нет предков, комиссии не начисляются",
			zap.Int64("user_id", inv.UserID),
			zap.String("investment_id", inv.ID.String()))
		return result, nil
	}

	for _, edge := range edges {
		e.processLevel(ctx, inv, cfg, edge, result)
	}

	e.logger.Info("обработка комиссий завершена",
		zap.String("investment_id", inv.ID.String()),
		zap.Int("settled", result.SettledCount()),
		zap.Int("failed", result.FailedCount),
		zap.Int("duplicates", result.DuplicateCount))

	return result, nil
}

// processLevel начисляет комиссию по одному ребру цепочки.
// Нулевой или отсутствующий процент уровня пропускается без создания записи.
func (e *CommissionEngine) processLevel(ctx context.Context, inv *models.Investment, cfg *models.ReferralConfig, edge *models.ReferralEdge, result *DistributionResult) {
	pct := cfg.PercentageForLevel(edge.Level)
	if !pct.IsPositive() {
		return
	}

	amount := inv.Currency.Round(inv.Amount.Mul(pct).Div(oneHundred))
	if !amount.IsPositive() {
		// Сумма округлилась до нуля - начисление не создается
		e.logger.Debug("комиссия округлилась до нуля",
			zap.String("investment_id", inv.ID.String()),
			zap.Int("level", edge.Level))
		return
	}

	earning := &models.Earning{
		AncestorID:     edge.AncestorID,
		DescendantID:   inv.UserID,
		Level:          edge.Level,
		InvestmentRef:  inv.ID,
		Amount:         amount,
		Currency:       inv.Currency,
		PercentageUsed: pct,
	}

	created, err := e.store.Earning().Create(ctx, earning)
	if err != nil {
		e.logger.Error("ошибка создания начисления",
			zap.Error(err),
			zap.String("investment_id", inv.ID.String()),
			zap.Int("level", edge.Level))
		result.FailedCount++
		return
	}
	if !created {
		// Уровень уже обработан ранее
		result.DuplicateCount++
		return
	}

	if err := e.settle(ctx, earning); err != nil {
		e.logger.Error("ошибка зачисления комиссии",
			zap.Error(err),
			zap.Int64("earning_id", earning.ID),
			zap.Int64("ancestor_id", earning.AncestorID),
			zap.Int("level", earning.Level))

		if failErr := e.store.Earning().MarkFailed(ctx, earning.ID); failErr != nil {
			e.logger.Error("ошибка перевода начисления в failed",
				zap.Error(failErr),
				zap.Int64("earning_id", earning.ID))
		}
		result.FailedCount++
		return
	}

	result.Settled = append(result.Settled, earning)
	result.CreditedAncestors = append(result.CreditedAncestors, earning.AncestorID)

	e.logger.Info("комиссия зачислена",
		zap.Int64("ancestor_id", earning.AncestorID),
		zap.Int("level", earning.Level),
		zap.String("amount", earning.Amount.String()),
		zap.String("currency", string(earning.Currency)))
}

// settle атомарно зачисляет комиссию на кошелек предка и переводит
// начисление в credited: либо происходит и то и другое, либо ничего
func (e *CommissionEngine) settle(ctx context.Context, earning *models.Earning) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = e.store.Wallet().CreditTx(ctx, tx, store.WalletCredit{
		UserID:      earning.AncestorID,
		Currency:    earning.Currency,
		Amount:      earning.Amount,
		Type:        models.WalletTxReferralBonus,
		ReferenceID: earning.InvestmentRef.String(),
		Description: fmt.Sprintf("Реферальная комиссия уровня %d от пользователя %d", earning.Level, earning.DescendantID),
	})
	if err != nil {
		return err
	}

	creditedAt := time.Now()
	if err := e.store.Earning().MarkCreditedTx(ctx, tx, earning.ID, creditedAt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	earning.Status = models.EarningStatusCredited
	earning.CreditedAt = &creditedAt
	return nil
}
