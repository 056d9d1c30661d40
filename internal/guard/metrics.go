package guard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: вердикты по агентам и действиям
	VerdictTotal *prometheus.CounterVec

	// Latency: полное время от вызова до вердикта (включая ожидание оператора)
	DecisionDuration *prometheus.HistogramVec

	// Saturation: состояние предохранителя хранилища (0 - ок, 1 - выбило)
	StoreBreakerState prometheus.Gauge

	// Audit: заполненность буфера журнала (backpressure)
	AuditBufferFill prometheus.Gauge

	// HITL: сколько горутин прямо сейчас ждут оператора
	ApprovalsWaiting prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		VerdictTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_verdicts_total",
			Help: "Total number of finalized verdicts.",
		}, []string{"agent", "action", "verdict"}),

		DecisionDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aegis_decision_duration_seconds",
			Help:    "Histogram of wall time from call to verdict.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"agent", "verdict"}),

		StoreBreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "aegis_store_breaker_state",
			Help: "Current state of the store circuit breaker (0=closed, 1=open).",
		}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "aegis_audit_buffer_utilization",
			Help: "Current number of entries in the audit buffer.",
		}),

		ApprovalsWaiting: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "aegis_approvals_waiting",
			Help: "Number of goroutines currently blocked on operator decision.",
		}),
	}
}
