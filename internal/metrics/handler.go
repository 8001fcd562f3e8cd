package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger проверяет доступность хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler обрабатывает HTTP запросы метрик и проверки здоровья
type Handler struct {
	metrics *Metrics
	db      Pinger
	logger  *zap.Logger
}

// NewHandler создает новый обработчик метрик
func NewHandler(metrics *Metrics, db Pinger, logger *zap.Logger) *Handler {
	return &Handler{
		metrics: metrics,
		db:      db,
		logger:  logger,
	}
}

// MetricsHandler возвращает HTTP handler для Prometheus метрик
func (h *Handler) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// healthResponse представляет ответ проверки здоровья
type healthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Database string `json:"database"`
}

// HealthHandler возвращает статус здоровья сервиса, включая доступность
// базы данных. При недоступном хранилище сервис отвечает 503,
// чтобы оркестратор перестал направлять на него события.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Service:  "invest-referral",
		Database: "ok",
	}
	code := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("база данных недоступна", zap.Error(err))
		resp.Status = "degraded"
		resp.Database = "unavailable"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("ошибка сериализации ответа", zap.Error(err))
	}
}
