package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"invest-referral/internal/metrics"
	"invest-referral/internal/referral"
	"invest-referral/pkg/models"
)

// EventHandler обрабатывает входящие события инвестиционной платформы
type EventHandler struct {
	pipeline  *referral.Pipeline
	metrics   *metrics.Metrics
	logger    *zap.Logger
	secretKey string
}

// NewEventHandler создает новый обработчик событий
func NewEventHandler(pipeline *referral.Pipeline, metrics *metrics.Metrics, secretKey string, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		pipeline:  pipeline,
		metrics:   metrics,
		logger:    logger,
		secretKey: secretKey,
	}
}

// RegistrationEvent представляет событие регистрации пользователя
type RegistrationEvent struct {
	UserID       int64  `json:"user_id"`
	ReferralCode string `json:"referral_code"`
}

// InvestmentEvent представляет событие подтвержденной инвестиции
type InvestmentEvent struct {
	InvestmentRef string `json:"investment_ref"`
	UserID        int64  `json:"user_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
}

// HandleRegistration обрабатывает событие регистрации
func (h *EventHandler) HandleRegistration(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	var event RegistrationEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("ошибка парсинга события регистрации", zap.Error(err))
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if event.UserID <= 0 {
		h.logger.Warn("событие регистрации без user_id")
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	h.logger.Info("получено событие регистрации",
		zap.Int64("user_id", event.UserID),
		zap.String("referral_code", event.ReferralCode))

	result, err := h.pipeline.HandleRegistration(context.Background(), event.UserID, event.ReferralCode)
	if err != nil {
		h.logger.Error("ошибка обработки регистрации",
			zap.Error(err),
			zap.Int64("user_id", event.UserID))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordRegistration(len(result.Ancestors) > 0)

	h.respondJSON(w, map[string]interface{}{
		"referral_code": result.Stats.ReferralCode,
		"chain_levels":  len(result.Ancestors),
	})
}

// HandleInvestment обрабатывает событие подтвержденной инвестиции
func (h *EventHandler) HandleInvestment(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	var event InvestmentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("ошибка парсинга инвестиционного события", zap.Error(err))
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	inv, err := h.parseInvestment(event)
	if err != nil {
		h.logger.Warn("некорректное инвестиционное событие",
			zap.Error(err),
			zap.String("investment_ref", event.InvestmentRef))
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	h.logger.Info("получено инвестиционное событие",
		zap.String("investment_ref", event.InvestmentRef),
		zap.Int64("user_id", inv.UserID),
		zap.String("amount", inv.Amount.String()),
		zap.String("currency", string(inv.Currency)))

	result, err := h.pipeline.HandleInvestment(context.Background(), inv)
	if err != nil {
		h.logger.Error("ошибка начисления комиссий",
			zap.Error(err),
			zap.String("investment_ref", event.InvestmentRef))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.recordDistribution(inv, result)

	h.respondJSON(w, map[string]interface{}{
		"credited":   result.SettledCount(),
		"failed":     result.FailedCount,
		"duplicates": result.DuplicateCount,
	})
}

// parseInvestment валидирует событие и строит модель инвестиции
func (h *EventHandler) parseInvestment(event InvestmentEvent) (*models.Investment, error) {
	ref, err := uuid.Parse(event.InvestmentRef)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(event.Amount)
	if err != nil {
		return nil, err
	}

	currency := models.Currency(event.Currency)
	if !currency.IsValid() {
		return nil, models.ErrUnknownCurrency
	}

	if event.UserID <= 0 || !amount.IsPositive() {
		return nil, models.ErrInvalidInvestment
	}

	return &models.Investment{
		ID:       ref,
		UserID:   event.UserID,
		Amount:   amount,
		Currency: currency,
	}, nil
}

// recordDistribution записывает метрики по итогам начисления
func (h *EventHandler) recordDistribution(inv *models.Investment, result *referral.DistributionResult) {
	for _, earning := range result.Settled {
		h.metrics.RecordEarning(string(earning.Currency), earning.Amount.InexactFloat64())
	}
	for i := 0; i < result.FailedCount; i++ {
		h.metrics.RecordEarningFailed(string(inv.Currency))
	}
	for i := 0; i < result.DuplicateCount; i++ {
		h.metrics.RecordDuplicate()
	}
	h.metrics.RecordDistribution(result.SettledCount())
}

// readBody проверяет метод и подпись запроса и возвращает тело
func (h *EventHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Method != http.MethodPost {
		h.logger.Warn("неверный метод запроса", zap.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("ошибка чтения тела запроса", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}
	defer r.Body.Close()

	if !h.verifySignature(r.Header.Get("X-Platform-Signature"), body) {
		h.logger.Warn("неверная подпись события")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	return body, true
}

// verifySignature проверяет HMAC подпись события
func (h *EventHandler) verifySignature(signature string, body []byte) bool {
	if h.secretKey == "" {
		// Если секретный ключ не настроен, пропускаем проверку
		return true
	}

	mac := hmac.New(sha256.New, []byte(h.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

// respondJSON отправляет успешный JSON ответ
func (h *EventHandler) respondJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("ошибка сериализации ответа", zap.Error(err))
	}
}
