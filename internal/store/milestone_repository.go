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
	"go.uber.org/zap"
)

// MilestoneRepository определяет интерфейс для работы с бонусами за достижения
type MilestoneRepository interface {
	GetActive(ctx context.Context) ([]*models.Milestone, error)
	Create(ctx context.Context, milestone *models.Milestone) error
	CreateAwardTx(ctx context.Context, tx pgx.Tx, award *models.MilestoneAward) (bool, error)
	GetAwardsByUser(ctx context.Context, userID int64) ([]*models.MilestoneAward, error)
}

// PostgresMilestoneRepository реализует MilestoneRepository для PostgreSQL
type PostgresMilestoneRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewMilestoneRepository создает новый репозиторий бонусов за достижения
func NewMilestoneRepository(db *pgxpool.Pool, logger *zap.Logger) MilestoneRepository {
	return &PostgresMilestoneRepository{
		db:     db,
		logger: logger,
	}
}

// GetActive получает активные определения бонусов, отсортированные по порогу
func (r *PostgresMilestoneRepository) GetActive(ctx context.Context) ([]*models.Milestone, error) {
	query := `
		SELECT id, name, condition_type, condition_value, bonus_amount, currency, is_active, created_at
		FROM referral_milestones
		WHERE is_active = true
		ORDER BY condition_value ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения активных бонусов: %w", err)
	}
	defer rows.Close()

	var milestones []*models.Milestone
	for rows.Next() {
		m := &models.Milestone{}
		err := rows.Scan(
			&m.ID,
			&m.Name,
			&m.ConditionType,
			&m.ConditionValue,
			&m.BonusAmount,
			&m.Currency,
			&m.IsActive,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования бонуса: %w", err)
		}
		milestones = append(milestones, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения бонусов: %w", err)
	}

	return milestones, nil
}

// Create создает определение бонуса за достижение
func (r *PostgresMilestoneRepository) Create(ctx context.Context, milestone *models.Milestone) error {
	query := `
		INSERT INTO referral_milestones (id, name, condition_type, condition_value,
		                                 bonus_amount, currency, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if milestone.ID == uuid.Nil {
		milestone.ID = uuid.New()
	}
	milestone.CreatedAt = time.Now()

	_, err := r.db.Exec(ctx, query,
		milestone.ID,
		milestone.Name,
		milestone.ConditionType,
		milestone.ConditionValue,
		milestone.BonusAmount,
		milestone.Currency,
		milestone.IsActive,
		milestone.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка создания бонуса: %w", err)
	}

	return nil
}

// CreateAwardTx создает запись о выплате бонуса в рамках транзакции зачисления.
// Возвращает false, если бонус пользователю уже выплачивался -
// уникальность пары (user_id, milestone_id) гарантирует разовость выплаты
// без предварительного чтения.
func (r *PostgresMilestoneRepository) CreateAwardTx(ctx context.Context, tx pgx.Tx, award *models.MilestoneAward) (bool, error) {
	query := `
		INSERT INTO milestone_awards (user_id, milestone_id, amount, currency, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, milestone_id) DO NOTHING
		RETURNING id`

	award.CreatedAt = time.Now()

	err := tx.QueryRow(ctx, query,
		award.UserID,
		award.MilestoneID,
		award.Amount,
		award.Currency,
		award.CreatedAt,
	).Scan(&award.ID)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Бонус уже выплачен
			return false, nil
		}
		return false, fmt.Errorf("ошибка создания записи о выплате бонуса: %w", err)
	}

	return true, nil
}

// GetAwardsByUser получает выплаченные пользователю бонусы
func (r *PostgresMilestoneRepository) GetAwardsByUser(ctx context.Context, userID int64) ([]*models.MilestoneAward, error) {
	query := `
		SELECT id, user_id, milestone_id, amount, currency, created_at
		FROM milestone_awards
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения выплаченных бонусов: %w", err)
	}
	defer rows.Close()

	var awards []*models.MilestoneAward
	for rows.Next() {
		award := &models.MilestoneAward{}
		err := rows.Scan(
			&award.ID,
			&award.UserID,
			&award.MilestoneID,
			&award.Amount,
			&award.Currency,
			&award.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования выплаты: %w", err)
		}
		awards = append(awards, award)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения выплат: %w", err)
	}

	return awards, nil
}
