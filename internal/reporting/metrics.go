package reporting

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheMetricsMu          sync.Mutex
	cacheMetricsInitialized bool

	cacheHitCounter   *prometheus.CounterVec
	cacheMissCounter  *prometheus.CounterVec
	buildHistogram    *prometheus.HistogramVec
	cacheMetricsError error
)

// SetupCacheMetrics registers the report cache collectors once.
func SetupCacheMetrics(reg prometheus.Registerer) error {
	cacheMetricsMu.Lock()
	defer cacheMetricsMu.Unlock()
	if cacheMetricsInitialized {
		return cacheMetricsError
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	hits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pomaster_report_cache_hits_total",
		Help: "Number of report views served from cache.",
	}, []string{"view"})
	misses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pomaster_report_cache_miss_total",
		Help: "Number of report views built because the cache had no entry.",
	}, []string{"view"})
	builds := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pomaster_report_build_duration_seconds",
		Help:    "Duration required to load the dataset and build a report view.",
		Buckets: prometheus.DefBuckets,
	}, []string{"view"})

	registered := make([]prometheus.Collector, 0, 3)
	for _, collector := range []prometheus.Collector{hits, misses, builds} {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				registered = append(registered, already.ExistingCollector)
				continue
			}
			cacheMetricsError = err
			cacheMetricsInitialized = true
			return err
		}
		registered = append(registered, collector)
	}

	var ok bool
	if cacheHitCounter, ok = registered[0].(*prometheus.CounterVec); !ok {
		cacheMetricsError = fmt.Errorf("report cache metrics: unexpected collector type %T", registered[0])
	}
	if cacheMissCounter, ok = registered[1].(*prometheus.CounterVec); !ok {
		cacheMetricsError = fmt.Errorf("report cache metrics: unexpected collector type %T", registered[1])
	}
	if buildHistogram, ok = registered[2].(*prometheus.HistogramVec); !ok {
		cacheMetricsError = fmt.Errorf("report cache metrics: unexpected collector type %T", registered[2])
	}
	cacheMetricsInitialized = true
	return cacheMetricsError
}

func recordCacheHit(view string) {
	if cacheHitCounter == nil {
		return
	}
	cacheHitCounter.WithLabelValues(view).Inc()
}

func recordCacheMiss(view string) {
	if cacheMissCounter == nil {
		return
	}
	cacheMissCounter.WithLabelValues(view).Inc()
}

func observeBuildDuration(view string, d time.Duration) {
	if buildHistogram == nil {
		return
	}
	buildHistogram.WithLabelValues(view).Observe(d.Seconds())
}
