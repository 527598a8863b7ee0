package observability

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hostel", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hostel", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	BookingWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hostel", Name: "booking_writes_total", Help: "Booking/room write attempts by outcome."},
		[]string{"op", "outcome"}, // outcome: ok|validation|conflict|stale_version|not_found|exhausted|error
	)
	TxRetries = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "hostel", Name: "tx_retries_total", Help: "Write transactions rerun after deadlock/lock-wait timeout."},
	)
	LockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hostel", Name: "room_lock_wait_seconds",
			Help:    "Time spent waiting for the room row lock.",
			Buckets: prometheus.DefBuckets,
		},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hostel", Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
)

func Serve() {
	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		return // disabled
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(HTTPRequests, HTTPLatency, BookingWrites, TxRetries, LockWait, CacheEvents)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveBookingWrite(op, outcome string) {
	BookingWrites.WithLabelValues(op, outcome).Inc()
}

func ObserveTxRetry() { TxRetries.Inc() }

func ObserveLockWait(dur time.Duration) { LockWait.Observe(dur.Seconds()) }

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}
