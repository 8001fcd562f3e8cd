package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Metrics содержит все метрики реферального движка
type Metrics struct {
	logger *zap.Logger

	// Счетчики
	registrations  *prometheus.CounterVec
	earnings       *prometheus.CounterVec
	milestones     *prometheus.CounterVec
	duplicateDrops prometheus.Counter

	// Гистограммы
	commissionAmount   *prometheus.HistogramVec
	distributionLevels prometheus.Histogram
}

// New создает новый экземпляр метрик
func New(logger *zap.Logger) *Metrics {
	m := &Metrics{
		logger: logger,

		// Счетчик регистраций
		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referral_registrations_total",
				Help: "Общее количество обработанных регистраций",
			},
			[]string{"type"}, // with_referrer, organic
		),

		// Счетчик начислений по статусам
		earnings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referral_earnings_total",
				Help: "Общее количество начислений комиссий",
			},
			[]string{"status", "currency"}, // status: credited, failed
		),

		// Счетчик выплаченных достижений
		milestones: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referral_milestones_awarded_total",
				Help: "Общее количество выплаченных бонусов за достижения",
			},
			[]string{"currency"},
		),

		// Счетчик повторных доставок событий
		duplicateDrops: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "referral_duplicate_events_total",
				Help: "Количество повторно доставленных и пропущенных событий",
			},
		),

		// Гистограмма сумм комиссий
		commissionAmount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "referral_commission_amount",
				Help:    "Суммы зачисленных комиссий",
				Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 10000, 50000},
			},
			[]string{"currency"},
		),

		// Гистограмма числа уровней на инвестицию
		distributionLevels: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "referral_distribution_levels",
				Help:    "Число зачисленных уровней на одну инвестицию",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 10},
			},
		),
	}

	// Регистрируем все метрики
	prometheus.MustRegister(
		m.registrations,
		m.earnings,
		m.milestones,
		m.duplicateDrops,
		m.commissionAmount,
		m.distributionLevels,
	)

	return m
}

// RecordRegistration записывает обработанную регистрацию
func (m *Metrics) RecordRegistration(withReferrer bool) {
	regType := "organic"
	if withReferrer {
		regType = "with_referrer"
	}
	m.registrations.WithLabelValues(regType).Inc()
}

// RecordEarning записывает зачисленную комиссию
func (m *Metrics) RecordEarning(currency string, amount float64) {
	m.earnings.WithLabelValues("credited", currency).Inc()
	m.commissionAmount.WithLabelValues(currency).Observe(amount)
}

// RecordEarningFailed записывает неудачное зачисление
func (m *Metrics) RecordEarningFailed(currency string) {
	m.earnings.WithLabelValues("failed", currency).Inc()
}

// RecordMilestone записывает выплаченный бонус за достижение
func (m *Metrics) RecordMilestone(currency string) {
	m.milestones.WithLabelValues(currency).Inc()
}

// RecordDuplicate записывает пропущенную повторную доставку
func (m *Metrics) RecordDuplicate() {
	m.duplicateDrops.Inc()
}

// RecordDistribution записывает итог обработки инвестиции
func (m *Metrics) RecordDistribution(settledLevels int) {
	m.distributionLevels.Observe(float64(settledLevels))
}
