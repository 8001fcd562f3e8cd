package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"invest-referral/internal/referral"
	"invest-referral/internal/store"
	"invest-referral/pkg/models"
)

// AdminHandler обрабатывает административные запросы: управление
// конфигурацией программы, определениями достижений и повторную
// обработку инвестиций
type AdminHandler struct {
	store    store.Store
	pipeline *referral.Pipeline
	logger   *zap.Logger
}

// NewAdminHandler создает новый административный обработчик
func NewAdminHandler(s store.Store, pipeline *referral.Pipeline, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		store:    s,
		pipeline: pipeline,
		logger:   logger,
	}
}

// CreateConfigRequest представляет запрос на создание конфигурации
type CreateConfigRequest struct {
	MaxLevels   int      `json:"max_levels"`
	Percentages []string `json:"percentages"`
	Activate    bool     `json:"activate"`
}

// CreateConfig создает новую конфигурацию реферальной программы
// и при необходимости сразу активирует ее
// POST /api/admin/config
func (h *AdminHandler) CreateConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CreateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	percentages, err := h.parsePercentages(req)
	if err != nil {
		h.logger.Warn("некорректная конфигурация", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cfg := &models.ReferralConfig{
		MaxLevels:   req.MaxLevels,
		Percentages: percentages,
	}

	if err := h.store.Config().Create(r.Context(), cfg); err != nil {
		h.logger.Error("ошибка создания конфигурации", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if req.Activate {
		if err := h.store.Config().Activate(r.Context(), cfg.ID); err != nil {
			h.logger.Error("ошибка активации конфигурации",
				zap.Error(err),
				zap.String("config_id", cfg.ID.String()))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		cfg.IsActive = true
	}

	h.respondJSON(w, cfg)
}

// parsePercentages валидирует и разбирает таблицу процентов
func (h *AdminHandler) parsePercentages(req CreateConfigRequest) ([]decimal.Decimal, error) {
	if req.MaxLevels < 1 {
		return nil, models.ErrInvalidConfig
	}
	if len(req.Percentages) != req.MaxLevels {
		return nil, models.ErrInvalidConfig
	}

	percentages := make([]decimal.Decimal, 0, len(req.Percentages))
	total := decimal.Zero
	for _, raw := range req.Percentages {
		pct, err := decimal.NewFromString(raw)
		if err != nil || pct.IsNegative() {
			return nil, models.ErrInvalidConfig
		}
		percentages = append(percentages, pct)
		total = total.Add(pct)
	}

	// Суммарная комиссия не может превышать сумму инвестиции
	if total.GreaterThan(decimal.NewFromInt(100)) {
		return nil, models.ErrInvalidConfig
	}

	return percentages, nil
}

// CreateMilestoneRequest представляет запрос на создание достижения
type CreateMilestoneRequest struct {
	Name           string `json:"name"`
	ConditionType  string `json:"condition_type"`
	ConditionValue string `json:"condition_value"`
	BonusAmount    string `json:"bonus_amount"`
	Currency       string `json:"currency"`
}

// CreateMilestone создает новое определение достижения
// POST /api/admin/milestones
func (h *AdminHandler) CreateMilestone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CreateMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	milestone, err := h.parseMilestone(req)
	if err != nil {
		h.logger.Warn("некорректное определение достижения", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.Milestone().Create(r.Context(), milestone); err != nil {
		h.logger.Error("ошибка создания достижения", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, milestone)
}

// parseMilestone валидирует и строит модель достижения
func (h *AdminHandler) parseMilestone(req CreateMilestoneRequest) (*models.Milestone, error) {
	conditionType := models.MilestoneCondition(req.ConditionType)
	if conditionType != models.MilestoneConditionTotalReferrals &&
		conditionType != models.MilestoneConditionTotalEarnings {
		return nil, models.ErrInvalidMilestone
	}

	currency := models.Currency(req.Currency)
	if !currency.IsValid() {
		return nil, models.ErrUnknownCurrency
	}

	conditionValue, err := decimal.NewFromString(req.ConditionValue)
	if err != nil || !conditionValue.IsPositive() {
		return nil, models.ErrInvalidMilestone
	}

	bonusAmount, err := decimal.NewFromString(req.BonusAmount)
	if err != nil || !bonusAmount.IsPositive() {
		return nil, models.ErrInvalidMilestone
	}

	if req.Name == "" {
		return nil, models.ErrInvalidMilestone
	}

	return &models.Milestone{
		Name:           req.Name,
		ConditionType:  conditionType,
		ConditionValue: conditionValue,
		BonusAmount:    bonusAmount,
		Currency:       currency,
		IsActive:       true,
	}, nil
}

// ReprocessRequest представляет запрос на повторную обработку инвестиции
type ReprocessRequest struct {
	InvestmentRef string `json:"investment_ref"`
	UserID        int64  `json:"user_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
}

// Reprocess повторно запускает начисление комиссий по инвестиции.
// Уже обработанные уровни пропускаются, поэтому повторный запуск
// дозачисляет только пропущенные и неудачные ранее уровни.
// POST /api/admin/reprocess
func (h *AdminHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ReprocessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	ref, err := uuid.Parse(req.InvestmentRef)
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	currency := models.Currency(req.Currency)
	if !currency.IsValid() || req.UserID <= 0 {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	h.logger.Info("повторная обработка инвестиции",
		zap.String("investment_ref", req.InvestmentRef),
		zap.Int64("user_id", req.UserID))

	result, err := h.pipeline.HandleInvestment(r.Context(), &models.Investment{
		ID:       ref,
		UserID:   req.UserID,
		Amount:   amount,
		Currency: currency,
	})
	if err != nil {
		h.logger.Error("ошибка повторной обработки инвестиции",
			zap.Error(err),
			zap.String("investment_ref", req.InvestmentRef))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, map[string]interface{}{
		"credited":   result.SettledCount(),
		"failed":     result.FailedCount,
		"duplicates": result.DuplicateCount,
	})
}

// CancelEarningRequest представляет запрос на отмену начисления
type CancelEarningRequest struct {
	InvestmentRef string `json:"investment_ref"`
	Level         int    `json:"level"`
}

// CancelEarning списывает неудачное или зависшее начисление.
// Терминальные начисления (credited, cancelled) отмене не подлежат.
// POST /api/admin/earnings/cancel
func (h *AdminHandler) CancelEarning(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CancelEarningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	ref, err := uuid.Parse(req.InvestmentRef)
	if err != nil || req.Level < 1 {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	earnings, err := h.store.Earning().GetByInvestment(r.Context(), ref)
	if err != nil {
		h.logger.Error("ошибка получения начислений", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var earning *models.Earning
	for _, e := range earnings {
		if e.Level == req.Level {
			earning = e
			break
		}
	}
	if earning == nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	if earning.Status.IsTerminal() {
		http.Error(w, "Conflict", http.StatusConflict)
		return
	}

	if err := h.store.Earning().MarkCancelled(r.Context(), earning.ID); err != nil {
		h.logger.Error("ошибка отмены начисления",
			zap.Error(err),
			zap.Int64("earning_id", earning.ID))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("начисление отменено",
		zap.Int64("earning_id", earning.ID),
		zap.String("investment_ref", req.InvestmentRef),
		zap.Int("level", req.Level))

	earning.Status = models.EarningStatusCancelled
	h.respondJSON(w, earning)
}

// respondJSON отправляет успешный JSON ответ
func (h *AdminHandler) respondJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("ошибка сериализации ответа", zap.Error(err))
	}
}
