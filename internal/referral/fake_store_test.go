package referral

import (
	"context"
	"fmt"
	"sort"
	"time"

	"invest-referral/internal/store"
	"invest-referral/pkg/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// fakeStore - in-memory реализация store.Store для тестов компонентов движка
type fakeStore struct {
	edges      *fakeEdgeRepo
	configs    *fakeConfigRepo
	earnings   *fakeEarningRepo
	milestones *fakeMilestoneRepo
	stats      *fakeStatsRepo
	wallets    *fakeWalletRepo
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		edges:      &fakeEdgeRepo{},
		configs:    &fakeConfigRepo{},
		earnings:   &fakeEarningRepo{},
		milestones: &fakeMilestoneRepo{},
		stats:      &fakeStatsRepo{byUser: make(map[int64]*models.UserReferralStats)},
		wallets:    &fakeWalletRepo{balances: make(map[string]decimal.Decimal)},
	}
}

func (s *fakeStore) Edge() store.EdgeRepository           { return s.edges }
func (s *fakeStore) Config() store.ConfigRepository       { return s.configs }
func (s *fakeStore) Earning() store.EarningRepository     { return s.earnings }
func (s *fakeStore) Milestone() store.MilestoneRepository { return s.milestones }
func (s *fakeStore) Stats() store.StatsRepository         { return s.stats }
func (s *fakeStore) Wallet() store.WalletRepository       { return s.wallets }
func (s *fakeStore) Close() error                         { return nil }

func (s *fakeStore) Ping(ctx context.Context) error { return nil }

func (s *fakeStore) Begin(ctx context.Context) (pgx.Tx, error) {
	return &fakeTx{}, nil
}

// fakeTx реализует pgx.Tx без реальной транзакционности: мутации
// применяются репозиториями сразу, тесты проверяют итоговое состояние
type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}
func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}
func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *fakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *fakeTx) Conn() *pgx.Conn                                               { return nil }

// uniqueViolation строит ошибку нарушения уникальности в формате PostgreSQL
func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

// --- ребра ---

type fakeEdgeRepo struct {
	edges  []*models.ReferralEdge
	nextID int64
	// failLevel и failCount имитируют сбой вставки ребра заданного
	// уровня указанное число раз
	failLevel int
	failCount int
}

func (r *fakeEdgeRepo) Create(ctx context.Context, edge *models.ReferralEdge) (bool, error) {
	if edge.Level == r.failLevel && r.failCount > 0 {
		r.failCount--
		return false, fmt.Errorf("ошибка вставки ребра уровня %d", edge.Level)
	}
	for _, e := range r.edges {
		if e.AncestorID == edge.AncestorID && e.DescendantID == edge.DescendantID && e.Level == edge.Level {
			return false, nil
		}
	}
	r.nextID++
	edge.ID = r.nextID
	edge.CreatedAt = time.Now()
	copied := *edge
	r.edges = append(r.edges, &copied)
	return true, nil
}

func (r *fakeEdgeRepo) GetChain(ctx context.Context, descendantID int64, maxLevel int) ([]*models.ReferralEdge, error) {
	var result []*models.ReferralEdge
	for _, e := range r.edges {
		if e.DescendantID == descendantID && e.Level <= maxLevel {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Level < result[j].Level })
	return result, nil
}

func (r *fakeEdgeRepo) GetByAncestor(ctx context.Context, ancestorID int64, level int) ([]*models.ReferralEdge, error) {
	var result []*models.ReferralEdge
	for _, e := range r.edges {
		if e.AncestorID == ancestorID && e.Level == level {
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *fakeEdgeRepo) CountByAncestor(ctx context.Context, ancestorID int64) (int, error) {
	count := 0
	for _, e := range r.edges {
		if e.AncestorID == ancestorID {
			count++
		}
	}
	return count, nil
}

// --- конфигурация ---

type fakeConfigRepo struct {
	configs []*models.ReferralConfig
}

func (r *fakeConfigRepo) GetActive(ctx context.Context) (*models.ReferralConfig, error) {
	for _, c := range r.configs {
		if c.IsActive {
			return c, nil
		}
	}
	return nil, nil
}

func (r *fakeConfigRepo) Create(ctx context.Context, cfg *models.ReferralConfig) error {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	r.configs = append(r.configs, cfg)
	return nil
}

func (r *fakeConfigRepo) Activate(ctx context.Context, id uuid.UUID) error {
	found := false
	for _, c := range r.configs {
		c.IsActive = c.ID == id
		if c.IsActive {
			found = true
		}
	}
	if !found {
		return store.ErrNotFound
	}
	return nil
}

// --- начисления ---

type fakeEarningRepo struct {
	earnings []*models.Earning
	nextID   int64
}

func (r *fakeEarningRepo) Create(ctx context.Context, earning *models.Earning) (bool, error) {
	for _, e := range r.earnings {
		if e.InvestmentRef == earning.InvestmentRef && e.Level == earning.Level {
			return false, nil
		}
	}
	r.nextID++
	earning.ID = r.nextID
	earning.Status = models.EarningStatusPending
	earning.CreatedAt = time.Now()
	r.earnings = append(r.earnings, earning)
	return true, nil
}

func (r *fakeEarningRepo) MarkCreditedTx(ctx context.Context, tx pgx.Tx, id int64, creditedAt time.Time) error {
	for _, e := range r.earnings {
		if e.ID == id && e.Status == models.EarningStatusPending {
			e.Status = models.EarningStatusCredited
			e.CreditedAt = &creditedAt
			return nil
		}
	}
	return fmt.Errorf("начисление %d не находится в статусе pending: %w", id, store.ErrNotFound)
}

func (r *fakeEarningRepo) MarkFailed(ctx context.Context, id int64) error {
	for _, e := range r.earnings {
		if e.ID == id && e.Status == models.EarningStatusPending {
			e.Status = models.EarningStatusFailed
		}
	}
	return nil
}

func (r *fakeEarningRepo) MarkCancelled(ctx context.Context, id int64) error {
	for _, e := range r.earnings {
		if e.ID == id && !e.Status.IsTerminal() {
			e.Status = models.EarningStatusCancelled
			return nil
		}
	}
	return fmt.Errorf("начисление %d нельзя отменить: %w", id, store.ErrNotFound)
}

func (r *fakeEarningRepo) GetByInvestment(ctx context.Context, investmentRef uuid.UUID) ([]*models.Earning, error) {
	var result []*models.Earning
	for _, e := range r.earnings {
		if e.InvestmentRef == investmentRef {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Level < result[j].Level })
	return result, nil
}

func (r *fakeEarningRepo) GetByAncestor(ctx context.Context, ancestorID int64, filter store.EarningFilter, limit int) ([]*models.Earning, error) {
	var result []*models.Earning
	for i := len(r.earnings) - 1; i >= 0 && len(result) < limit; i-- {
		e := r.earnings[i]
		if e.AncestorID != ancestorID {
			continue
		}
		if filter.Currency != "" && e.Currency != filter.Currency {
			continue
		}
		if filter.Level > 0 && e.Level != filter.Level {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

func (r *fakeEarningRepo) SumCreditedByAncestor(ctx context.Context, ancestorID int64) (*store.EarningTotals, error) {
	totals := &store.EarningTotals{ByCurrency: make(map[models.Currency]decimal.Decimal)}
	for _, e := range r.earnings {
		if e.AncestorID != ancestorID || e.Status != models.EarningStatusCredited {
			continue
		}
		totals.ByCurrency[e.Currency] = totals.ByCurrency[e.Currency].Add(e.Amount)
		if e.CreditedAt != nil && (totals.LastCreditedAt == nil || e.CreditedAt.After(*totals.LastCreditedAt)) {
			totals.LastCreditedAt = e.CreditedAt
		}
	}
	return totals, nil
}

// --- достижения ---

type fakeMilestoneRepo struct {
	milestones []*models.Milestone
	awards     []*models.MilestoneAward
	nextID     int64
}

func (r *fakeMilestoneRepo) GetActive(ctx context.Context) ([]*models.Milestone, error) {
	var result []*models.Milestone
	for _, m := range r.milestones {
		if m.IsActive {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ConditionValue.LessThan(result[j].ConditionValue)
	})
	return result, nil
}

func (r *fakeMilestoneRepo) Create(ctx context.Context, milestone *models.Milestone) error {
	if milestone.ID == uuid.Nil {
		milestone.ID = uuid.New()
	}
	r.milestones = append(r.milestones, milestone)
	return nil
}

func (r *fakeMilestoneRepo) CreateAwardTx(ctx context.Context, tx pgx.Tx, award *models.MilestoneAward) (bool, error) {
	for _, a := range r.awards {
		if a.UserID == award.UserID && a.MilestoneID == award.MilestoneID {
			return false, nil
		}
	}
	r.nextID++
	award.ID = r.nextID
	award.CreatedAt = time.Now()
	r.awards = append(r.awards, award)
	return true, nil
}

func (r *fakeMilestoneRepo) GetAwardsByUser(ctx context.Context, userID int64) ([]*models.MilestoneAward, error) {
	var result []*models.MilestoneAward
	for _, a := range r.awards {
		if a.UserID == userID {
			result = append(result, a)
		}
	}
	return result, nil
}

// --- статистика ---

type fakeStatsRepo struct {
	byUser map[int64]*models.UserReferralStats
}

func (r *fakeStatsRepo) Create(ctx context.Context, stats *models.UserReferralStats) error {
	if _, ok := r.byUser[stats.UserID]; ok {
		return uniqueViolation("user_referral_stats_pkey")
	}
	for _, s := range r.byUser {
		if s.ReferralCode == stats.ReferralCode {
			return uniqueViolation(store.ConstraintStatsReferralCode)
		}
	}
	now := time.Now()
	stats.CreatedAt = now
	stats.UpdatedAt = now
	r.byUser[stats.UserID] = stats
	return nil
}

func (r *fakeStatsRepo) GetByUserID(ctx context.Context, userID int64) (*models.UserReferralStats, error) {
	s, ok := r.byUser[userID]
	if !ok {
		return nil, fmt.Errorf("статистика не найдена: %w", store.ErrNotFound)
	}
	return s, nil
}

func (r *fakeStatsRepo) GetByCode(ctx context.Context, code string) (*models.UserReferralStats, error) {
	for _, s := range r.byUser {
		if s.ReferralCode == code {
			return s, nil
		}
	}
	return nil, fmt.Errorf("статистика не найдена: %w", store.ErrNotFound)
}

func (r *fakeStatsRepo) SetReferredBy(ctx context.Context, userID, referrerID int64) error {
	s, ok := r.byUser[userID]
	if !ok {
		return store.ErrNotFound
	}
	s.ReferredBy = &referrerID
	return nil
}

func (r *fakeStatsRepo) UpdateAggregates(ctx context.Context, stats *models.UserReferralStats) error {
	s, ok := r.byUser[stats.UserID]
	if !ok {
		return store.ErrNotFound
	}
	s.TotalReferrals = stats.TotalReferrals
	s.TotalEarningsINR = stats.TotalEarningsINR
	s.TotalEarningsUSDT = stats.TotalEarningsUSDT
	s.LastEarningAt = stats.LastEarningAt
	s.UpdatedAt = time.Now()
	return nil
}

func (r *fakeStatsRepo) GetRecentlyEarned(ctx context.Context, since time.Time) ([]int64, error) {
	var userIDs []int64
	for _, s := range r.byUser {
		if s.LastEarningAt != nil && !s.LastEarningAt.Before(since) {
			userIDs = append(userIDs, s.UserID)
		}
	}
	return userIDs, nil
}

// --- кошельки ---

type fakeWalletRepo struct {
	balances     map[string]decimal.Decimal
	transactions []*models.WalletTransaction
	nextID       int64
	// failFor имитирует сбой зачисления для конкретного пользователя
	failFor map[int64]bool
}

func walletKey(userID int64, currency models.Currency) string {
	return fmt.Sprintf("%d/%s", userID, currency)
}

func (r *fakeWalletRepo) Get(ctx context.Context, userID int64, currency models.Currency) (*models.Wallet, error) {
	balance, ok := r.balances[walletKey(userID, currency)]
	if !ok {
		return nil, fmt.Errorf("кошелек не найден: %w", store.ErrNotFound)
	}
	return &models.Wallet{
		UserID:   userID,
		Currency: currency,
		Balance:  balance,
		IsActive: true,
	}, nil
}

func (r *fakeWalletRepo) CreditTx(ctx context.Context, tx pgx.Tx, credit store.WalletCredit) (*models.WalletTransaction, error) {
	if r.failFor[credit.UserID] {
		return nil, fmt.Errorf("ошибка зачисления на кошелек пользователя %d", credit.UserID)
	}
	if !credit.Amount.IsPositive() {
		return nil, fmt.Errorf("сумма зачисления должна быть положительной: %s", credit.Amount)
	}

	key := walletKey(credit.UserID, credit.Currency)
	before := r.balances[key]
	after := before.Add(credit.Amount)
	r.balances[key] = after

	r.nextID++
	walletTx := &models.WalletTransaction{
		ID:            r.nextID,
		UserID:        credit.UserID,
		Type:          credit.Type,
		Currency:      credit.Currency,
		Amount:        credit.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		ReferenceID:   credit.ReferenceID,
		Description:   credit.Description,
		CreatedAt:     time.Now(),
	}
	r.transactions = append(r.transactions, walletTx)
	return walletTx, nil
}

func (r *fakeWalletRepo) GetTransactions(ctx context.Context, userID int64, limit int) ([]*models.WalletTransaction, error) {
	var result []*models.WalletTransaction
	for i := len(r.transactions) - 1; i >= 0 && len(result) < limit; i-- {
		if r.transactions[i].UserID == userID {
			result = append(result, r.transactions[i])
		}
	}
	return result, nil
}
