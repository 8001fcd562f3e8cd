package referral

import (
	"context"

	"invest-referral/pkg/models"

	"go.uber.org/zap"
)

// Pipeline связывает компоненты движка в явную упорядоченную цепочку
// вызовов: построение цепочки → начисление комиссий → пересчет
// статистики → проверка достижений. Порядок и изоляция ошибок
// зафиксированы здесь, а не разбросаны по неявным хукам.
type Pipeline struct {
	chain      *ChainBuilder
	commission *CommissionEngine
	aggregator *StatsAggregator
	milestones *MilestoneEvaluator
	logger     *zap.Logger
}

// NewPipeline создает конвейер обработки реферальных событий
func NewPipeline(chain *ChainBuilder, commission *CommissionEngine, aggregator *StatsAggregator, milestones *MilestoneEvaluator, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		chain:      chain,
		commission: commission,
		aggregator: aggregator,
		milestones: milestones,
		logger:     logger,
	}
}

// HandleRegistration обрабатывает событие регистрации нового пользователя:
// строит цепочку и обновляет статистику затронутых предков. Новые ребра
// могут выполнить условия достижений по числу приглашенных, поэтому
// достижения проверяются и здесь.
func (p *Pipeline) HandleRegistration(ctx context.Context, userID int64, referralCode string) (*ChainResult, error) {
	result, err := p.chain.BuildChain(ctx, userID, referralCode)
	if err != nil {
		return nil, err
	}

	p.refreshAndEvaluate(ctx, result.Ancestors)

	return result, nil
}

// HandleInvestment обрабатывает инвестиционное событие: начисляет комиссии,
// затем обновляет статистику и проверяет достижения каждого предка,
// получившего зачисление
func (p *Pipeline) HandleInvestment(ctx context.Context, inv *models.Investment) (*DistributionResult, error) {
	result, err := p.commission.Distribute(ctx, inv)
	if err != nil {
		return nil, err
	}

	p.refreshAndEvaluate(ctx, result.CreditedAncestors)

	return result, nil
}

// refreshAndEvaluate пересчитывает статистику и проверяет достижения
// для набора предков. Ошибки отдельных пользователей логируются и не
// прерывают обработку остальных.
func (p *Pipeline) refreshAndEvaluate(ctx context.Context, ancestors []int64) {
	seen := make(map[int64]bool, len(ancestors))

	for _, ancestorID := range ancestors {
		if seen[ancestorID] {
			continue
		}
		seen[ancestorID] = true

		if _, err := p.aggregator.Refresh(ctx, ancestorID); err != nil {
			p.logger.Error("ошибка пересчета статистики предка",
				zap.Error(err),
				zap.Int64("ancestor_id", ancestorID))
			continue
		}

		if _, err := p.milestones.Evaluate(ctx, ancestorID); err != nil {
			p.logger.Error("ошибка проверки достижений предка",
				zap.Error(err),
				zap.Int64("ancestor_id", ancestorID))
		}
	}
}
