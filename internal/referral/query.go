package referral

import (
	"context"
	"fmt"
	"time"

	"invest-referral/internal/store"
	"invest-referral/pkg/models"

	"go.uber.org/zap"
)

// Query предоставляет операции чтения для API реферальной программы
type Query struct {
	store  store.Store
	logger *zap.Logger
}

// NewQuery создает новый сервис чтения
func NewQuery(s store.Store, logger *zap.Logger) *Query {
	return &Query{
		store:  s,
		logger: logger,
	}
}

// Summary представляет сводку по рефералам пользователя
type Summary struct {
	Stats          *models.UserReferralStats `json:"stats"`
	RecentEarnings []*models.Earning         `json:"recent_earnings"`
	Awards         []*models.MilestoneAward  `json:"awards"`
}

// TreeNode представляет узел реферального дерева
type TreeNode struct {
	UserID   int64       `json:"user_id"`
	Level    int         `json:"level"`
	JoinedAt time.Time   `json:"joined_at"`
	Children []*TreeNode `json:"children,omitempty"`
}

// Tree представляет реферальное дерево пользователя
type Tree struct {
	UserID         int64       `json:"user_id"`
	ReferralCode   string      `json:"referral_code"`
	Direct         []*TreeNode `json:"direct_referrals"`
	TotalReferrals int         `json:"total_referrals"`
}

// Summary возвращает сводку: статистику, последние начисления
// и выплаченные бонусы
func (q *Query) Summary(ctx context.Context, userID int64) (*Summary, error) {
	stats, err := q.store.Stats().GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения статистики: %w", err)
	}

	recent, err := q.store.Earning().GetByAncestor(ctx, userID, store.EarningFilter{
		Status: models.EarningStatusCredited,
	}, 5)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения последних начислений: %w", err)
	}

	awards, err := q.store.Milestone().GetAwardsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения выплаченных бонусов: %w", err)
	}

	return &Summary{
		Stats:          stats,
		RecentEarnings: recent,
		Awards:         awards,
	}, nil
}

// Earnings возвращает начисления пользователя с необязательными фильтрами
func (q *Query) Earnings(ctx context.Context, userID int64, filter store.EarningFilter, limit int) ([]*models.Earning, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	earnings, err := q.store.Earning().GetByAncestor(ctx, userID, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения начислений: %w", err)
	}

	return earnings, nil
}

// ValidateCode проверяет реферальный код и возвращает статистику владельца
func (q *Query) ValidateCode(ctx context.Context, code string) (*models.UserReferralStats, error) {
	stats, err := q.store.Stats().GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("неверный реферальный код: %w", err)
	}

	return stats, nil
}

// Tree строит реферальное дерево пользователя на два уровня вглубь:
// прямые приглашенные и их прямые приглашенные
func (q *Query) Tree(ctx context.Context, userID int64) (*Tree, error) {
	stats, err := q.store.Stats().GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения статистики: %w", err)
	}

	direct, err := q.store.Edge().GetByAncestor(ctx, userID, 1)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения прямых приглашенных: %w", err)
	}

	tree := &Tree{
		UserID:         userID,
		ReferralCode:   stats.ReferralCode,
		TotalReferrals: stats.TotalReferrals,
	}

	for _, edge := range direct {
		node := &TreeNode{
			UserID:   edge.DescendantID,
			Level:    1,
			JoinedAt: edge.CreatedAt,
		}

		subEdges, err := q.store.Edge().GetByAncestor(ctx, edge.DescendantID, 1)
		if err != nil {
			return nil, fmt.Errorf("ошибка получения приглашенных второго уровня: %w", err)
		}
		for _, sub := range subEdges {
			node.Children = append(node.Children, &TreeNode{
				UserID:   sub.DescendantID,
				Level:    2,
				JoinedAt: sub.CreatedAt,
			})
		}

		tree.Direct = append(tree.Direct, node)
	}

	return tree, nil
}
