package referral

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"invest-referral/internal/store"
	"invest-referral/pkg/models"

	"go.uber.org/zap"
)

// DefaultMaxLevels используется для построения цепочки, когда активная
// конфигурация отсутствует: граф остается полным, а комиссии в это время
// все равно не начисляются
const DefaultMaxLevels = 3

// Алфавит и длина реферального кода
const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 8
)

// ChainBuilder строит реферальную цепочку при регистрации пользователя
type ChainBuilder struct {
	store        store.Store
	logger       *zap.Logger
	codeAttempts int
}

// ChainResult представляет результат построения цепочки
type ChainResult struct {
	Stats *models.UserReferralStats
	// Предки, получившие новое ребро, по возрастанию уровня
	Ancestors []int64
}

// NewChainBuilder создает новый построитель реферальных цепочек
func NewChainBuilder(s store.Store, codeAttempts int, logger *zap.Logger) *ChainBuilder {
	if codeAttempts <= 0 {
		codeAttempts = 10
	}
	return &ChainBuilder{
		store:        s,
		logger:       logger,
		codeAttempts: codeAttempts,
	}
}

// BuildChain создает статистику нового пользователя и материализует ребра
// до каждого предка в пределах максимальной глубины. Отсутствующий или
// неизвестный реферальный код не является ошибкой - пользователь
// регистрируется без реферера. Построение идемпотентно: повторная
// доставка события проходит обход заново и довставляет ребра,
// отсутствующие после сбоя предыдущей попытки.
func (b *ChainBuilder) BuildChain(ctx context.Context, userID int64, referralCode string) (*ChainResult, error) {
	stats, err := b.registerStats(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &ChainResult{Stats: stats}

	referrer, err := b.resolveReferrer(ctx, stats, referralCode)
	if err != nil {
		return nil, err
	}
	if referrer == nil {
		return result, nil
	}

	if stats.ReferredBy == nil {
		if err := b.store.Stats().SetReferredBy(ctx, userID, referrer.UserID); err != nil {
			return nil, fmt.Errorf("ошибка установки реферера: %w", err)
		}
		stats.ReferredBy = &referrer.UserID
	}

	maxLevels := b.maxLevels(ctx)

	ancestors, err := b.walkChain(ctx, userID, referrer, maxLevels)
	if err != nil {
		return nil, err
	}
	result.Ancestors = ancestors

	b.logger.Info("реферальная цепочка построена",
		zap.Int64("user_id", userID),
		zap.Int64("referrer_id", referrer.UserID),
		zap.Int("edges", len(ancestors)))

	return result, nil
}

// resolveReferrer определяет реферера пользователя. Уже установленный
// реферер имеет приоритет над кодом из события: при повторной доставке
// обход выполняется заново, и ребра, не созданные из-за сбоя в прошлый
// раз, довставляются. Возврат nil без ошибки означает регистрацию
// без реферера.
func (b *ChainBuilder) resolveReferrer(ctx context.Context, stats *models.UserReferralStats, referralCode string) (*models.UserReferralStats, error) {
	if stats.ReferredBy != nil {
		referrer, err := b.store.Stats().GetByUserID(ctx, *stats.ReferredBy)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Разрыв в начале цепочки: у реферера нет записи статистики
				b.logger.Warn("реферер без записи статистики",
					zap.Int64("user_id", stats.UserID),
					zap.Int64("referrer_id", *stats.ReferredBy))
				return nil, nil
			}
			return nil, fmt.Errorf("ошибка получения реферера: %w", err)
		}
		return referrer, nil
	}

	if referralCode == "" {
		return nil, nil
	}

	referrer, err := b.store.Stats().GetByCode(ctx, referralCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			b.logger.Warn("неизвестный реферальный код",
				zap.Int64("user_id", stats.UserID),
				zap.String("referral_code", referralCode))
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка поиска реферера по коду: %w", err)
	}

	// Самоприглашение отклоняется на границе построения цепочки
	if referrer.UserID == stats.UserID {
		b.logger.Warn("попытка самоприглашения отклонена",
			zap.Int64("user_id", stats.UserID),
			zap.String("referral_code", referralCode))
		return nil, nil
	}

	return referrer, nil
}

// registerStats создает запись статистики с уникальным реферальным кодом.
// Коллизия кода разрешается повторной вставкой с новым кодом, а не
// предварительной проверкой.
func (b *ChainBuilder) registerStats(ctx context.Context, userID int64) (*models.UserReferralStats, error) {
	for attempt := 0; attempt < b.codeAttempts; attempt++ {
		stats := &models.UserReferralStats{
			UserID:       userID,
			ReferralCode: generateCode(),
		}

		err := b.store.Stats().Create(ctx, stats)
		if err == nil {
			return stats, nil
		}

		if store.IsUniqueViolationOn(err, store.ConstraintStatsReferralCode) {
			b.logger.Warn("коллизия реферального кода, пробуем снова",
				zap.String("code", stats.ReferralCode),
				zap.Int("attempt", attempt+1))
			continue
		}

		if store.IsUniqueViolation(err) {
			// Пользователь уже зарегистрирован - событие доставлено повторно
			existing, getErr := b.store.Stats().GetByUserID(ctx, userID)
			if getErr != nil {
				return nil, fmt.Errorf("ошибка получения существующей статистики: %w", getErr)
			}
			return existing, nil
		}

		return nil, fmt.Errorf("ошибка создания статистики пользователя: %w", err)
	}

	return nil, fmt.Errorf("не удалось сгенерировать уникальный реферальный код после %d попыток", b.codeAttempts)
}

// walkChain итеративно поднимается по цепочке реферера и создает по одному
// ребру на уровень. Счетчик уровня ограничивает обход даже при аномалиях
// в данных (например, случайном цикле). Разрыв цепочки завершает обход -
// уровни за разрывом ребер не получают.
func (b *ChainBuilder) walkChain(ctx context.Context, userID int64, referrer *models.UserReferralStats, maxLevels int) ([]int64, error) {
	var ancestors []int64

	current := referrer
	for level := 1; level <= maxLevels && current != nil; level++ {
		edge := &models.ReferralEdge{
			AncestorID:   current.UserID,
			DescendantID: userID,
			Level:        level,
		}

		created, err := b.store.Edge().Create(ctx, edge)
		if err != nil {
			return ancestors, fmt.Errorf("ошибка создания ребра уровня %d: %w", level, err)
		}
		if created {
			ancestors = append(ancestors, current.UserID)
		}

		if current.ReferredBy == nil {
			break
		}

		next, err := b.store.Stats().GetByUserID(ctx, *current.ReferredBy)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Разрыв цепочки: у предка нет записи статистики
				break
			}
			return ancestors, fmt.Errorf("ошибка получения предка уровня %d: %w", level+1, err)
		}
		current = next
	}

	return ancestors, nil
}

// maxLevels возвращает глубину цепочки из активной конфигурации
func (b *ChainBuilder) maxLevels(ctx context.Context) int {
	cfg, err := b.store.Config().GetActive(ctx)
	if err != nil {
		b.logger.Error("ошибка получения конфигурации, используется глубина по умолчанию", zap.Error(err))
		return DefaultMaxLevels
	}
	if cfg == nil {
		b.logger.Warn("нет активной конфигурации, используется глубина по умолчанию",
			zap.Int("max_levels", DefaultMaxLevels))
		return DefaultMaxLevels
	}
	return cfg.MaxLevels
}

// generateCode генерирует случайный реферальный код
func generateCode() string {
	buf := make([]byte, codeLength)
	for i := range buf {
		buf[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(buf)
}
