package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"invest-referral/internal/store"
	"invest-referral/pkg/models"
)

// fakeAdminStore реализует store.Store для тестов административных
// операций: используется только репозиторий начислений
type fakeAdminStore struct {
	earnings *fakeEarningRepo
}

func (s *fakeAdminStore) Edge() store.EdgeRepository                { return nil }
func (s *fakeAdminStore) Config() store.ConfigRepository            { return nil }
func (s *fakeAdminStore) Earning() store.EarningRepository          { return s.earnings }
func (s *fakeAdminStore) Milestone() store.MilestoneRepository      { return nil }
func (s *fakeAdminStore) Stats() store.StatsRepository              { return nil }
func (s *fakeAdminStore) Wallet() store.WalletRepository            { return nil }
func (s *fakeAdminStore) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (s *fakeAdminStore) Ping(ctx context.Context) error            { return nil }
func (s *fakeAdminStore) Close() error                              { return nil }

type fakeEarningRepo struct {
	earnings []*models.Earning
}

func (r *fakeEarningRepo) Create(ctx context.Context, earning *models.Earning) (bool, error) {
	return false, nil
}

func (r *fakeEarningRepo) MarkCreditedTx(ctx context.Context, tx pgx.Tx, id int64, creditedAt time.Time) error {
	return nil
}

func (r *fakeEarningRepo) MarkFailed(ctx context.Context, id int64) error { return nil }

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
	return result, nil
}

func (r *fakeEarningRepo) GetByAncestor(ctx context.Context, ancestorID int64, filter store.EarningFilter, limit int) ([]*models.Earning, error) {
	return nil, nil
}

func (r *fakeEarningRepo) SumCreditedByAncestor(ctx context.Context, ancestorID int64) (*store.EarningTotals, error) {
	return &store.EarningTotals{}, nil
}

func newAdminHandlerWithEarnings(earnings ...*models.Earning) (*AdminHandler, *fakeEarningRepo) {
	repo := &fakeEarningRepo{earnings: earnings}
	s := &fakeAdminStore{earnings: repo}
	return NewAdminHandler(s, nil, zap.NewNop()), repo
}

func cancelRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/api/admin/earnings/cancel", bytes.NewBufferString(body))
}

func TestCancelEarningFailed(t *testing.T) {
	ref := uuid.New()
	handler, repo := newAdminHandlerWithEarnings(&models.Earning{
		ID:            7,
		Level:         2,
		InvestmentRef: ref,
		Amount:        decimal.NewFromInt(30),
		Currency:      models.CurrencyINR,
		Status:        models.EarningStatusFailed,
	})

	rec := httptest.NewRecorder()
	handler.CancelEarning(rec, cancelRequest(fmt.Sprintf(`{"investment_ref":%q,"level":2}`, ref)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.EarningStatusCancelled, repo.earnings[0].Status)
}

func TestCancelEarningRejectsTerminal(t *testing.T) {
	ref := uuid.New()
	handler, repo := newAdminHandlerWithEarnings(&models.Earning{
		ID:            8,
		Level:         1,
		InvestmentRef: ref,
		Amount:        decimal.NewFromInt(50),
		Currency:      models.CurrencyINR,
		Status:        models.EarningStatusCredited,
	})

	// Зачисленное начисление отменить нельзя
	rec := httptest.NewRecorder()
	handler.CancelEarning(rec, cancelRequest(fmt.Sprintf(`{"investment_ref":%q,"level":1}`, ref)))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, models.EarningStatusCredited, repo.earnings[0].Status)
}

func TestCancelEarningNotFound(t *testing.T) {
	handler, _ := newAdminHandlerWithEarnings()

	rec := httptest.NewRecorder()
	handler.CancelEarning(rec, cancelRequest(fmt.Sprintf(`{"investment_ref":%q,"level":1}`, uuid.New())))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelEarningBadRequest(t *testing.T) {
	handler, _ := newAdminHandlerWithEarnings()

	tests := []struct {
		name string
		body string
	}{
		{"не UUID", `{"investment_ref":"abc","level":1}`},
		{"нулевой уровень", fmt.Sprintf(`{"investment_ref":%q,"level":0}`, uuid.New())},
		{"не JSON", `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.CancelEarning(rec, cancelRequest(tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
