package metrics

import "github.com/prometheus/client_golang/prometheus"

// Provider call Prometheus metrics.
var (
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelmux",
			Name:      "provider_requests_total",
			Help:      "Total number of provider API calls",
		},
		[]string{"provider", "model", "op", "status"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelmux",
			Name:      "provider_request_duration_seconds",
			Help:      "Provider API call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "model", "op"},
	)

	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelmux",
			Name:      "provider_tokens_total",
			Help:      "Total tokens consumed across providers",
		},
		[]string{"provider", "model", "type"}, // type: prompt / completion
	)

	ProviderCostUSDTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelmux",
			Name:      "provider_cost_usd_total",
			Help:      "Accumulated estimated cost in USD",
		},
		[]string{"provider", "model"},
	)

	ProviderFailoversTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelmux",
			Name:      "provider_failovers_total",
			Help:      "Failover advances past a provider, by fault kind",
		},
		[]string{"provider", "fault"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelmux",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var providerMetricsRegistered bool

// RegisterProviderMetrics registers provider metrics. Must be called once from main.
func RegisterProviderMetrics() {
	if providerMetricsRegistered {
		return
	}
	prometheus.MustRegister(ProviderRequestsTotal)
	prometheus.MustRegister(ProviderRequestDuration)
	prometheus.MustRegister(ProviderTokensTotal)
	prometheus.MustRegister(ProviderCostUSDTotal)
	prometheus.MustRegister(ProviderFailoversTotal)
	prometheus.MustRegister(EmbeddingCacheTotal)
	providerMetricsRegistered = true
}
