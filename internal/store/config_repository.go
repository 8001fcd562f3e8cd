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

// ConfigRepository определяет интерфейс для работы с конфигурацией
// реферальной программы
type ConfigRepository interface {
	GetActive(ctx context.Context) (*models.ReferralConfig, error)
	Create(ctx context.Context, cfg *models.ReferralConfig) error
	Activate(ctx context.Context, id uuid.UUID) error
}

// PostgresConfigRepository реализует ConfigRepository для PostgreSQL
type PostgresConfigRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewConfigRepository создает новый репозиторий конфигураций
func NewConfigRepository(db *pgxpool.Pool, logger *zap.Logger) ConfigRepository {
	return &PostgresConfigRepository{
		db:     db,
		logger: logger,
	}
}

// GetActive получает активную конфигурацию реферальной программы.
// Отсутствие активной конфигурации не является ошибкой - возвращается nil.
func (r *PostgresConfigRepository) GetActive(ctx context.Context) (*models.ReferralConfig, error) {
	query := `
		SELECT id, max_levels, percentages, is_active, created_at, updated_at
		FROM referral_config
		WHERE is_active = true
		ORDER BY updated_at DESC
		LIMIT 1`

	cfg := &models.ReferralConfig{}
	err := r.db.QueryRow(ctx, query).Scan(
		&cfg.ID,
		&cfg.MaxLevels,
		&cfg.Percentages,
		&cfg.IsActive,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения активной конфигурации: %w", err)
	}

	return cfg, nil
}

// Create создает новую конфигурацию реферальной программы
func (r *PostgresConfigRepository) Create(ctx context.Context, cfg *models.ReferralConfig) error {
	query := `
		INSERT INTO referral_config (id, max_levels, percentages, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	now := time.Now()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	_, err := r.db.Exec(ctx, query,
		cfg.ID,
		cfg.MaxLevels,
		cfg.Percentages,
		cfg.IsActive,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка создания конфигурации: %w", err)
	}

	r.logger.Info("создана конфигурация реферальной программы",
		zap.String("config_id", cfg.ID.String()),
		zap.Int("max_levels", cfg.MaxLevels))

	return nil
}

// Activate делает конфигурацию активной, деактивируя все остальные
// в одной транзакции. Инвариант "не более одной активной конфигурации"
// обеспечивается этим методом, а не схемой.
func (r *PostgresConfigRepository) Activate(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()

	_, err = tx.Exec(ctx,
		`UPDATE referral_config SET is_active = false, updated_at = $1 WHERE is_active = true AND id <> $2`,
		now, id)
	if err != nil {
		return fmt.Errorf("ошибка деактивации конфигураций: %w", err)
	}

	result, err := tx.Exec(ctx,
		`UPDATE referral_config SET is_active = true, updated_at = $1 WHERE id = $2`,
		now, id)
	if err != nil {
		return fmt.Errorf("ошибка активации конфигурации: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("конфигурация %s не найдена: %w", id, ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	r.logger.Info("конфигурация активирована", zap.String("config_id", id.String()))
	return nil
}
