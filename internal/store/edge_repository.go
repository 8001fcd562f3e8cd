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

// EdgeRepository определяет интерфейс для работы с ребрами реферального графа
type EdgeRepository interface {
	Create(ctx context.Context, edge *models.ReferralEdge) (bool, error)
	GetChain(ctx context.Context, descendantID int64, maxLevel int) ([]*models.ReferralEdge, error)
	GetByAncestor(ctx context.Context, ancestorID int64, level int) ([]*models.ReferralEdge, error)
	CountByAncestor(ctx context.Context, ancestorID int64) (int, error)
}

// PostgresEdgeRepository реализует EdgeRepository для PostgreSQL
type PostgresEdgeRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewEdgeRepository создает новый репозиторий ребер реферального графа
func NewEdgeRepository(db *pgxpool.Pool, logger *zap.Logger) EdgeRepository {
	return &PostgresEdgeRepository{
		db:     db,
		logger: logger,
	}
}

// Create создает новое ребро реферального графа.
// Возвращает false, если ребро с такой тройкой (ancestor, descendant, level)
// уже существует - повторная вставка не является ошибкой.
func (r *PostgresEdgeRepository) Create(ctx context.Context, edge *models.ReferralEdge) (bool, error) {
	query := `
		INSERT INTO referral_edges (ancestor_id, descendant_id, level, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ancestor_id, descendant_id, level) DO NOTHING
		RETURNING id`

	edge.CreatedAt = time.Now()

	err := r.db.QueryRow(
		ctx, query,
		edge.AncestorID,
		edge.DescendantID,
		edge.Level,
		edge.CreatedAt,
	).Scan(&edge.ID)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Ребро уже существует
			return false, nil
		}
		return false, fmt.Errorf("ошибка создания ребра реферального графа: %w", err)
	}

	return true, nil
}

// GetChain получает цепочку предков пользователя до указанного уровня,
// отсортированную по возрастанию уровня
func (r *PostgresEdgeRepository) GetChain(ctx context.Context, descendantID int64, maxLevel int) ([]*models.ReferralEdge, error) {
	query := `
		SELECT id, ancestor_id, descendant_id, level, created_at
		FROM referral_edges
		WHERE descendant_id = $1 AND level <= $2
		ORDER BY level ASC`

	rows, err := r.db.Query(ctx, query, descendantID, maxLevel)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения цепочки предков: %w", err)
	}
	defer rows.Close()

	var edges []*models.ReferralEdge
	for rows.Next() {
		edge := &models.ReferralEdge{}
		err := rows.Scan(
			&edge.ID,
			&edge.AncestorID,
			&edge.DescendantID,
			&edge.Level,
			&edge.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования ребра: %w", err)
		}
		edges = append(edges, edge)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения ребер: %w", err)
	}

	return edges, nil
}

// GetByAncestor получает ребра, в которых пользователь является предком
// на указанном уровне
func (r *PostgresEdgeRepository) GetByAncestor(ctx context.Context, ancestorID int64, level int) ([]*models.ReferralEdge, error) {
	query := `
		SELECT id, ancestor_id, descendant_id, level, created_at
		FROM referral_edges
		WHERE ancestor_id = $1 AND level = $2
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, ancestorID, level)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ребер предка: %w", err)
	}
	defer rows.Close()

	var edges []*models.ReferralEdge
	for rows.Next() {
		edge := &models.ReferralEdge{}
		err := rows.Scan(
			&edge.ID,
			&edge.AncestorID,
			&edge.DescendantID,
			&edge.Level,
			&edge.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования ребра: %w", err)
		}
		edges = append(edges, edge)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения ребер: %w", err)
	}

	return edges, nil
}

// CountByAncestor подсчитывает общее число потомков пользователя
// по всем уровням
func (r *PostgresEdgeRepository) CountByAncestor(ctx context.Context, ancestorID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM referral_edges
		WHERE ancestor_id = $1`

	var count int
	err := r.db.QueryRow(ctx, query, ancestorID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета потомков: %w", err)
	}

	return count, nil
}
