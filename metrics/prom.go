package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PasteConstructed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherpaste_paste_constructed_total",
			Help: "no. of pastes constructed",
		},
		[]string{"visibility"},
	)
	PastePublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cipherpaste_paste_published_total",
		Help: "no. of pastes stored under an id",
	})
	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cipherpaste_publish_failures_total",
		Help: "no. of best-effort publishes that failed",
	})
	PasteOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherpaste_paste_opened_total",
			Help: "no. of pastes verified and opened",
		},
		[]string{"visibility"},
	)
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cipherpaste_cache_hits_total",
		Help: "no. of resolve cache hits",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cipherpaste_cache_misses_total",
		Help: "no. of resolve cache misses",
	})
	CodecFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherpaste_codec_failures_total",
			Help: "no. of decode/verify/decrypt failures by error code",
		},
		[]string{"code"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cipherpaste_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherpaste_rate_limit_hits_total",
			Help: "no. of rate limit violations",
		},
		[]string{"endpoint"},
	)
	ExpiredPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cipherpaste_expired_purged_total",
		Help: "no. of expired pastes removed by maintenance",
	})
)

func Visibility(public bool) string {
	if public {
		return "public"
	}
	return "private"
}
