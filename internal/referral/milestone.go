package referral

import (
	"context"
	"errors"
	"fmt"

	"invest-referral/internal/store"
	"invest-referral/pkg/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MilestoneEvaluator проверяет достижения пользователя и выплачивает
// разовые бонусы
type MilestoneEvaluator struct {
	store  store.Store
	logger *zap.Logger
}

// NewMilestoneEvaluator создает новый вычислитель достижений
func NewMilestoneEvaluator(s store.Store, logger *zap.Logger) *MilestoneEvaluator {
	return &MilestoneEvaluator{
		store:  s,
		logger: logger,
	}
}

// Evaluate проверяет активные достижения по текущей статистике пользователя
// и выплачивает каждый впервые достигнутый бонус. Возвращает список
// выплаченных достижений. Статистика должна быть обновлена до вызова.
func (e *MilestoneEvaluator) Evaluate(ctx context.Context, userID int64) ([]*models.Milestone, error) {
	stats, err := e.store.Stats().GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения статистики пользователя: %w", err)
	}

	milestones, err := e.store.Milestone().GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения активных достижений: %w", err)
	}

	var triggered []*models.Milestone
	for _, m := range milestones {
		if !e.satisfied(stats, m) {
			continue
		}

		awarded, err := e.award(ctx, userID, m)
		if err != nil {
			e.logger.Error("ошибка выплаты бонуса за достижение",
				zap.Error(err),
				zap.Int64("user_id", userID),
				zap.String("milestone", m.Name))
			continue
		}
		if awarded {
			triggered = append(triggered, m)
			e.logger.Info("бонус за достижение выплачен",
				zap.Int64("user_id", userID),
				zap.String("milestone", m.Name),
				zap.String("amount", m.BonusAmount.String()),
				zap.String("currency", string(m.Currency)))
		}
	}

	return triggered, nil
}

// satisfied проверяет условие достижения по статистике.
// Неизвестный тип условия считается невыполнимым.
func (e *MilestoneEvaluator) satisfied(stats *models.UserReferralStats, m *models.Milestone) bool {
	switch m.ConditionType {
	case models.MilestoneConditionTotalReferrals:
		return decimal.NewFromInt(int64(stats.TotalReferrals)).GreaterThanOrEqual(m.ConditionValue)
	case models.MilestoneConditionTotalEarnings:
		return stats.EarningsFor(m.Currency).GreaterThanOrEqual(m.ConditionValue)
	default:
		e.logger.Warn("неизвестный тип условия достижения",
			zap.String("milestone", m.Name),
			zap.String("condition_type", string(m.ConditionType)))
		return false
	}
}

// award атомарно создает запись о выплате и зачисляет бонус на кошелек.
// Возвращает false, если бонус уже выплачивался: запись о выплате
// вставляется первой, и конфликт уникальности отменяет зачисление.
func (e *MilestoneEvaluator) award(ctx context.Context, userID int64, m *models.Milestone) (bool, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	award := &models.MilestoneAward{
		UserID:      userID,
		MilestoneID: m.ID,
		Amount:      m.BonusAmount,
		Currency:    m.Currency,
	}

	created, err := e.store.Milestone().CreateAwardTx(ctx, tx, award)
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}

	_, err = e.store.Wallet().CreditTx(ctx, tx, store.WalletCredit{
		UserID:      userID,
		Currency:    m.Currency,
		Amount:      m.BonusAmount,
		Type:        models.WalletTxMilestoneBonus,
		ReferenceID: m.ID.String(),
		Description: fmt.Sprintf("Бонус за достижение: %s", m.Name),
	})
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	return true, nil
}
