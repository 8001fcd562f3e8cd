package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"invest-referral/internal/referral"
	"invest-referral/internal/store"
	"invest-referral/pkg/models"
)

// Handler обрабатывает HTTP запросы чтения реферальной программы
type Handler struct {
	query  *referral.Query
	logger *zap.Logger
}

// NewHandler создает новый обработчик API
func NewHandler(query *referral.Query, logger *zap.Logger) *Handler {
	return &Handler{
		query:  query,
		logger: logger,
	}
}

// Summary возвращает сводку по рефералам пользователя
// GET /api/referrals/summary?user_id=123
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	summary, err := h.query.Summary(r.Context(), userID)
	if err != nil {
		h.respondError(w, err, userID)
		return
	}

	h.respondJSON(w, summary)
}

// Earnings возвращает начисления пользователя с фильтрами
// GET /api/referrals/earnings?user_id=123&currency=INR&level=2&status=credited&limit=20
func (h *Handler) Earnings(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	filter := store.EarningFilter{}
	if c := r.URL.Query().Get("currency"); c != "" {
		currency := models.Currency(c)
		if !currency.IsValid() {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		filter.Currency = currency
	}
	if l := r.URL.Query().Get("level"); l != "" {
		level, err := strconv.Atoi(l)
		if err != nil || level < 1 {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		filter.Level = level
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := models.EarningStatus(s)
		if !status.IsValid() {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		filter.Status = status
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	earnings, err := h.query.Earnings(r.Context(), userID, filter, limit)
	if err != nil {
		h.respondError(w, err, userID)
		return
	}

	h.respondJSON(w, map[string]interface{}{
		"user_id":  userID,
		"earnings": earnings,
	})
}

// Tree возвращает реферальное дерево пользователя
// GET /api/referrals/tree?user_id=123
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	tree, err := h.query.Tree(r.Context(), userID)
	if err != nil {
		h.respondError(w, err, userID)
		return
	}

	h.respondJSON(w, tree)
}

// ValidateCode проверяет существование реферального кода
// GET /api/referrals/code?code=AB12CD34
func (h *Handler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	stats, err := h.query.ValidateCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.respondJSON(w, map[string]interface{}{"valid": false})
			return
		}
		h.logger.Error("ошибка проверки реферального кода", zap.Error(err), zap.String("code", code))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, map[string]interface{}{
		"valid":   true,
		"user_id": stats.UserID,
	})
}

// userIDParam извлекает и валидирует user_id из параметров запроса
func (h *Handler) userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return 0, false
	}
	return userID, true
}

// respondError отвечает 404 для отсутствующих пользователей и 500 для остального
func (h *Handler) respondError(w http.ResponseWriter, err error, userID int64) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	h.logger.Error("ошибка обработки запроса API",
		zap.Error(err),
		zap.Int64("user_id", userID))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

// respondJSON отправляет успешный JSON ответ
func (h *Handler) respondJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("ошибка сериализации ответа", zap.Error(err))
	}
}
