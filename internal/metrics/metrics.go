// Package metrics exposes Prometheus instrumentation for the metering
// pipeline on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric collectors for the meter.
type Metrics struct {
	registry *prometheus.Registry

	// Stream pipeline metrics.
	ExchangesTotal     *prometheus.CounterVec
	FramesDecodedTotal prometheus.Counter
	DeltasTotal        prometheus.Counter
	ExchangeDuration   *prometheus.HistogramVec
	TTFBDuration       *prometheus.HistogramVec
	ActiveExchanges    prometheus.Gauge

	// Tokenizer metrics.
	TokenizerFallbacksTotal prometheus.Counter
	TokensCountedTotal      *prometheus.CounterVec

	// Cost metrics.
	CostUSDTotal *prometheus.CounterVec

	// Persistence metrics.
	PersistErrorsTotal prometheus.Counter

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		ExchangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meter_exchanges_total",
			Help: "Total number of metered exchanges.",
		}, []string{"model", "status"}),

		FramesDecodedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meter_frames_decoded_total",
			Help: "Total number of SSE frames decoded from upstream bodies.",
		}),

		DeltasTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meter_deltas_extracted_total",
			Help: "Total number of text deltas extracted from frames.",
		}),

		ExchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meter_exchange_duration_seconds",
			Help:    "End-to-end exchange duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"model"}),

		TTFBDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meter_exchange_ttfb_seconds",
			Help:    "Time to first upstream body byte in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),

		ActiveExchanges: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meter_active_exchanges",
			Help: "Number of exchanges currently streaming.",
		}),

		TokenizerFallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meter_tokenizer_fallbacks_total",
			Help: "Total number of counts served by the approximate fallback.",
		}),

		TokensCountedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meter_tokens_counted_total",
			Help: "Total tokens attributed, by direction.",
		}, []string{"direction"}),

		CostUSDTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meter_cost_usd_total",
			Help: "Total estimated cost in USD, by model.",
		}, []string{"model"}),

		PersistErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meter_persist_errors_total",
			Help: "Total number of swallowed persistence errors.",
		}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meter_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.ExchangesTotal,
		m.FramesDecodedTotal,
		m.DeltasTotal,
		m.ExchangeDuration,
		m.TTFBDuration,
		m.ActiveExchanges,
		m.TokenizerFallbacksTotal,
		m.TokensCountedTotal,
		m.CostUSDTotal,
		m.PersistErrorsTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveExchange records one finalized exchange.
func (m *Metrics) ObserveExchange(model, status string, latency, ttfb time.Duration, promptTokens, completionTokens int, costUSD float64) {
	m.ExchangesTotal.WithLabelValues(model, status).Inc()
	m.ExchangeDuration.WithLabelValues(model).Observe(latency.Seconds())
	if ttfb > 0 {
		m.TTFBDuration.WithLabelValues(model).Observe(ttfb.Seconds())
	}
	m.TokensCountedTotal.WithLabelValues("prompt").Add(float64(promptTokens))
	m.TokensCountedTotal.WithLabelValues("completion").Add(float64(completionTokens))
	m.CostUSDTotal.WithLabelValues(model).Add(costUSD)
}
