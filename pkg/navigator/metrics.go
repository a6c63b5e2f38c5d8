package navigator

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TopolordViewsTotal counts view builds by level and outcome
	TopolordViewsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topolord_views_total",
			Help: "Total number of hierarchy views built",
		},
		[]string{"level", "result"},
	)

	// TopolordViewSeconds tracks how long a view takes to build
	TopolordViewSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "topolord_view_build_seconds",
			Help:    "Time spent fetching documents and generating a view",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"level"},
	)

	// TopolordDegradedFetches counts secondary fetches that fell back to
	// an empty result
	TopolordDegradedFetches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "topolord_degraded_fetches_total",
			Help: "Secondary document fetches that failed and were rendered empty",
		},
	)

	// TopolordStaleNavigations counts results discarded because a newer
	// navigation started first
	TopolordStaleNavigations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "topolord_stale_navigations_total",
			Help: "Navigation results discarded as superseded",
		},
	)

	// TopolordCacheInvalidations counts watcher-triggered cache flushes
	TopolordCacheInvalidations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "topolord_cache_invalidations_total",
			Help: "Lookup cache flushes caused by document store changes",
		},
	)
)

func init() {
	prometheus.MustRegister(TopolordViewsTotal)
	prometheus.MustRegister(TopolordViewSeconds)
	prometheus.MustRegister(TopolordDegradedFetches)
	prometheus.MustRegister(TopolordStaleNavigations)
	prometheus.MustRegister(TopolordCacheInvalidations)
}
