package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "reduction_"

	resultSuccess      = "success"
	resultError        = "error"
	resultInapplicable = "inapplicable"
	resultPartial      = "partial"
)

var (
	registerOnce sync.Once

	recomputeTotal   *prometheus.CounterVec
	recomputeLatency *prometheus.HistogramVec

	portEvaluationsTotal *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	storeTotal   *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec

	simulationsActive prometheus.Gauge
)

// Init registers the collectors with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		recomputeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "recompute_total",
				Help: "Total year recomputations by regularisation mode and result",
			},
			[]string{"mode", "result"},
		)
		recomputeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "recompute_latency_seconds",
				Help:    "Year recomputation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		)

		portEvaluationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "port_evaluations_total",
				Help: "Total rule evaluations by target rule and result",
			},
			[]string{"rule", "result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total year exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Year export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		)

		storeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "store_operations_total",
				Help: "Total simulation store operations by driver, operation and result",
			},
			[]string{"driver", "op", "result"},
		)
		storeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "store_latency_seconds",
				Help:    "Simulation store latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"driver", "op"},
		)

		simulationsActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "simulations_active",
				Help: "Simulations currently held in memory",
			},
		)

		prometheus.MustRegister(
			recomputeTotal,
			recomputeLatency,
			portEvaluationsTotal,
			exportTotal,
			exportLatency,
			storeTotal,
			storeLatency,
			simulationsActive,
		)
	})
}

// ObserveRecompute records one full reconciliation pass.
func ObserveRecompute(mode, result string, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if recomputeTotal != nil {
		recomputeTotal.WithLabelValues(mode, result).Inc()
	}
	if recomputeLatency != nil {
		recomputeLatency.WithLabelValues(mode).Observe(duration.Seconds())
	}
}

// IncPortEvaluation counts one call to the rule evaluation port.
func IncPortEvaluation(rule, result string) {
	if rule == "" {
		rule = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if portEvaluationsTotal != nil {
		portEvaluationsTotal.WithLabelValues(rule, result).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format).Observe(duration.Seconds())
	}
}

// ObserveStore records one store operation.
func ObserveStore(driver, op string, err error, duration time.Duration) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if storeTotal != nil {
		storeTotal.WithLabelValues(driver, op, result).Inc()
	}
	if storeLatency != nil {
		storeLatency.WithLabelValues(driver, op).Observe(duration.Seconds())
	}
}

// SetSimulationsActive sets the in-memory simulation gauge.
func SetSimulationsActive(n int) {
	if n < 0 {
		n = 0
	}
	if simulationsActive != nil {
		simulationsActive.Set(float64(n))
	}
}

// Exported constants for callers.
const (
	ResultSuccess      = resultSuccess
	ResultError        = resultError
	ResultInapplicable = resultInapplicable
	ResultPartial      = resultPartial
)
