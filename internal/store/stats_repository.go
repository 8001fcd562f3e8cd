package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"invest-referral/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Имя уникального ограничения на реферальный код
const ConstraintStatsReferralCode = "user_referral_stats_referral_code_key"

// StatsRepository определяет интерфейс для работы со статистикой рефералов
type StatsRepository interface {
	Create(ctx context.Context, stats *models.UserReferralStats) error
	GetByUserID(ctx context.Context, userID int64) (*models.UserReferralStats, error)
	GetByCode(ctx context.Context, code string) (*models.UserReferralStats, error)
	SetReferredBy(ctx context.Context, userID, referrerID int64) error
	UpdateAggregates(ctx context.Context, stats *models.UserReferralStats) error
	GetRecentlyEarned(ctx context.Context, since time.Time) ([]int64, error)
}

// PostgresStatsRepository реализует StatsRepository для PostgreSQL
type PostgresStatsRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewStatsRepository создает новый репозиторий статистики рефералов
func NewStatsRepository(db *pgxpool.Pool, logger *zap.Logger) StatsRepository {
	return &PostgresStatsRepository{
		db:     db,
		logger: logger,
	}
}

const statsColumns = `user_id, referral_code, referred_by, total_referrals,
	       total_earnings_inr, total_earnings_usdt, last_earning_at, created_at, updated_at`

// Create создает запись статистики для нового пользователя.
// Нарушение уникальности реферального кода возвращается наружу,
// чтобы вызывающая сторона повторила попытку с новым кодом.
func (r *PostgresStatsRepository) Create(ctx context.Context, stats *models.UserReferralStats) error {
	query := `
		INSERT INTO user_referral_stats (user_id, referral_code, referred_by, total_referrals,
		                                 total_earnings_inr, total_earnings_usdt, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	now := time.Now()
	stats.CreatedAt = now
	stats.UpdatedAt = now

	_, err := r.db.Exec(ctx, query,
		stats.UserID,
		stats.ReferralCode,
		stats.ReferredBy,
		stats.TotalReferrals,
		stats.TotalEarningsINR,
		stats.TotalEarningsUSDT,
		stats.CreatedAt,
		stats.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка создания статистики пользователя: %w", err)
	}

	return nil
}

// GetByUserID получает статистику пользователя
func (r *PostgresStatsRepository) GetByUserID(ctx context.Context, userID int64) (*models.UserReferralStats, error) {
	query := `
		SELECT ` + statsColumns + `
		FROM user_referral_stats
		WHERE user_id = $1`

	return r.scanOne(r.db.QueryRow(ctx, query, userID))
}

// GetByCode получает статистику пользователя по реферальному коду
func (r *PostgresStatsRepository) GetByCode(ctx context.Context, code string) (*models.UserReferralStats, error) {
	query := `
		SELECT ` + statsColumns + `
		FROM user_referral_stats
		WHERE referral_code = $1`

	return r.scanOne(r.db.QueryRow(ctx, query, code))
}

// SetReferredBy проставляет прямого реферера пользователя
func (r *PostgresStatsRepository) SetReferredBy(ctx context.Context, userID, referrerID int64) error {
	query := `
		UPDATE user_referral_stats
		SET referred_by = $2, updated_at = $3
		WHERE user_id = $1`

	result, err := r.db.Exec(ctx, query, userID, referrerID, time.Now())
	if err != nil {
		return fmt.Errorf("ошибка обновления реферера: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("статистика пользователя %d не найдена: %w", userID, ErrNotFound)
	}

	return nil
}

// UpdateAggregates полностью перезаписывает агрегаты пользователя.
// Перезапись последним значением безопасна, так как агрегаты - чистая
// функция от авторитетных записей, а не от предыдущего кеша.
func (r *PostgresStatsRepository) UpdateAggregates(ctx context.Context, stats *models.UserReferralStats) error {
	query := `
		UPDATE user_referral_stats
		SET total_referrals = $2, total_earnings_inr = $3, total_earnings_usdt = $4,
		    last_earning_at = $5, updated_at = $6
		WHERE user_id = $1`

	stats.UpdatedAt = time.Now()

	result, err := r.db.Exec(ctx, query,
		stats.UserID,
		stats.TotalReferrals,
		stats.TotalEarningsINR,
		stats.TotalEarningsUSDT,
		stats.LastEarningAt,
		stats.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления агрегатов: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("статистика пользователя %d не найдена: %w", stats.UserID, ErrNotFound)
	}

	return nil
}

// GetRecentlyEarned получает пользователей, получавших зачисления
// после указанного момента
func (r *PostgresStatsRepository) GetRecentlyEarned(ctx context.Context, since time.Time) ([]int64, error) {
	query := `
		SELECT user_id
		FROM user_referral_stats
		WHERE last_earning_at >= $1
		ORDER BY last_earning_at DESC`

	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки недавних получателей: %w", err)
	}
	defer rows.Close()

	var userIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования user_id: %w", err)
		}
		userIDs = append(userIDs, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения недавних получателей: %w", err)
	}

	return userIDs, nil
}

// scanOne сканирует одну строку статистики
func (r *PostgresStatsRepository) scanOne(row pgx.Row) (*models.UserReferralStats, error) {
	stats := &models.UserReferralStats{}
	err := row.Scan(
		&stats.UserID,
		&stats.ReferralCode,
		&stats.ReferredBy,
		&stats.TotalReferrals,
		&stats.TotalEarningsINR,
		&stats.TotalEarningsUSDT,
		&stats.LastEarningAt,
		&stats.CreatedAt,
		&stats.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("статистика не найдена: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка получения статистики: %w", err)
	}

	return stats, nil
}
