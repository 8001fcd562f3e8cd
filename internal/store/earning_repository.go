package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"invest-referral/pkg/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EarningFilter задает необязательные фильтры выборки начислений
type EarningFilter struct {
	Currency models.Currency
	Level    int
	Status   models.EarningStatus
}

// EarningTotals представляет агрегаты по зачисленным начислениям пользователя
type EarningTotals struct {
	ByCurrency     map[models.Currency]decimal.Decimal
	LastCreditedAt *time.Time
}

// EarningRepository определяет интерфейс для работы с начислениями
type EarningRepository interface {
	Create(ctx context.Context, earning *models.Earning) (bool, error)
	MarkCreditedTx(ctx context.Context, tx pgx.Tx, id int64, creditedAt time.Time) error
	MarkFailed(ctx context.Context, id int64) error
	MarkCancelled(ctx context.Context, id int64) error
	GetByInvestment(ctx context.Context, investmentRef uuid.UUID) ([]*models.Earning, error)
	GetByAncestor(ctx context.Context, ancestorID int64, filter EarningFilter, limit int) ([]*models.Earning, error)
	SumCreditedByAncestor(ctx context.Context, ancestorID int64) (*EarningTotals, error)
}

// PostgresEarningRepository реализует EarningRepository для PostgreSQL
type PostgresEarningRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewEarningRepository создает новый репозиторий начислений
func NewEarningRepository(db *pgxpool.Pool, logger *zap.Logger) EarningRepository {
	return &PostgresEarningRepository{
		db:     db,
		logger: logger,
	}
}

const earningColumns = `id, ancestor_id, descendant_id, level, investment_ref,
	       amount, currency, percentage_used, status, created_at, credited_at`

// Create создает начисление в статусе pending.
// Возвращает false, если начисление для пары (investment_ref, level)
// уже существует - повторная доставка события не является ошибкой.
func (r *PostgresEarningRepository) Create(ctx context.Context, earning *models.Earning) (bool, error) {
	query := `
		INSERT INTO referral_earnings (ancestor_id, descendant_id, level, investment_ref,
		                               amount, currency, percentage_used, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (investment_ref, level) DO NOTHING
		RETURNING id`

	earning.Status = models.EarningStatusPending
	earning.CreatedAt = time.Now()

	err := r.db.QueryRow(ctx, query,
		earning.AncestorID,
		earning.DescendantID,
		earning.Level,
		earning.InvestmentRef,
		earning.Amount,
		earning.Currency,
		earning.PercentageUsed,
		earning.Status,
		earning.CreatedAt,
	).Scan(&earning.ID)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Инвестиция на этом уровне уже обработана
			return false, nil
		}
		return false, fmt.Errorf("ошибка создания начисления: %w", err)
	}

	return true, nil
}

// MarkCreditedTx переводит начисление в статус credited в рамках транзакции,
// в которой выполняется зачисление на кошелек
func (r *PostgresEarningRepository) MarkCreditedTx(ctx context.Context, tx pgx.Tx, id int64, creditedAt time.Time) error {
	query := `
		UPDATE referral_earnings
		SET status = $2, credited_at = $3
		WHERE id = $1 AND status = $4`

	result, err := tx.Exec(ctx, query, id, models.EarningStatusCredited, creditedAt, models.EarningStatusPending)
	if err != nil {
		return fmt.Errorf("ошибка перевода начисления в credited: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("начисление %d не находится в статусе pending: %w", id, ErrNotFound)
	}

	return nil
}

// MarkFailed переводит начисление в статус failed
func (r *PostgresEarningRepository) MarkFailed(ctx context.Context, id int64) error {
	query := `
		UPDATE referral_earnings
		SET status = $2
		WHERE id = $1 AND status = $3`

	_, err := r.db.Exec(ctx, query, id, models.EarningStatusFailed, models.EarningStatusPending)
	if err != nil {
		return fmt.Errorf("ошибка перевода начисления в failed: %w", err)
	}

	return nil
}

// MarkCancelled переводит начисление в статус cancelled. Отменить можно
// только незачисленное начисление: pending или failed.
func (r *PostgresEarningRepository) MarkCancelled(ctx context.Context, id int64) error {
	query := `
		UPDATE referral_earnings
		SET status = $2
		WHERE id = $1 AND status IN ($3, $4)`

	result, err := r.db.Exec(ctx, query, id,
		models.EarningStatusCancelled,
		models.EarningStatusPending,
		models.EarningStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("ошибка отмены начисления: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("начисление %d нельзя отменить: %w", id, ErrNotFound)
	}

	return nil
}

// GetByInvestment получает все начисления по инвестиции
func (r *PostgresEarningRepository) GetByInvestment(ctx context.Context, investmentRef uuid.UUID) ([]*models.Earning, error) {
	query := `
		SELECT ` + earningColumns + `
		FROM referral_earnings
		WHERE investment_ref = $1
		ORDER BY level ASC`

	rows, err := r.db.Query(ctx, query, investmentRef)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения начислений по инвестиции: %w", err)
	}
	defer rows.Close()

	return scanEarnings(rows)
}

// GetByAncestor получает начисления предка с необязательными фильтрами
func (r *PostgresEarningRepository) GetByAncestor(ctx context.Context, ancestorID int64, filter EarningFilter, limit int) ([]*models.Earning, error) {
	query := `
		SELECT ` + earningColumns + `
		FROM referral_earnings
		WHERE ancestor_id = $1`
	args := []interface{}{ancestorID}

	if filter.Currency != "" {
		args = append(args, filter.Currency)
		query += fmt.Sprintf(" AND currency = $%d", len(args))
	}
	if filter.Level > 0 {
		args = append(args, filter.Level)
		query += fmt.Sprintf(" AND level = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения начислений предка: %w", err)
	}
	defer rows.Close()

	return scanEarnings(rows)
}

// SumCreditedByAncestor считает суммы зачисленных начислений предка
// по валютам и время последнего зачисления
func (r *PostgresEarningRepository) SumCreditedByAncestor(ctx context.Context, ancestorID int64) (*EarningTotals, error) {
	query := `
		SELECT currency, COALESCE(SUM(amount), 0), MAX(credited_at)
		FROM referral_earnings
		WHERE ancestor_id = $1 AND status = $2
		GROUP BY currency`

	rows, err := r.db.Query(ctx, query, ancestorID, models.EarningStatusCredited)
	if err != nil {
		return nil, fmt.Errorf("ошибка агрегации начислений: %w", err)
	}
	defer rows.Close()

	totals := &EarningTotals{
		ByCurrency: make(map[models.Currency]decimal.Decimal),
	}

	for rows.Next() {
		var currency models.Currency
		var sum decimal.Decimal
		var lastAt *time.Time

		if err := rows.Scan(&currency, &sum, &lastAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования агрегата: %w", err)
		}

		totals.ByCurrency[currency] = sum
		if lastAt != nil && (totals.LastCreditedAt == nil || lastAt.After(*totals.LastCreditedAt)) {
			totals.LastCreditedAt = lastAt
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения агрегатов: %w", err)
	}

	return totals, nil
}

// scanEarnings сканирует строки выборки начислений
func scanEarnings(rows pgx.Rows) ([]*models.Earning, error) {
	var earnings []*models.Earning
	for rows.Next() {
		earning := &models.Earning{}
		err := rows.Scan(
			&earning.ID,
			&earning.AncestorID,
			&earning.DescendantID,
			&earning.Level,
			&earning.InvestmentRef,
			&earning.Amount,
			&earning.Currency,
			&earning.PercentageUsed,
			&earning.Status,
			&earning.CreatedAt,
			&earning.CreditedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования начисления: %w", err)
		}
		earnings = append(earnings, earning)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения начислений: %w", err)
	}

	return earnings, nil
}
