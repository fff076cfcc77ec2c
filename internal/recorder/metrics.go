package recorder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recorder_sessions_started_total",
		Help: "Total recording sessions started successfully",
	})

	metricSessionsStopped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recorder_sessions_stopped_total",
		Help: "Total recording sessions stopped successfully",
	})

	metricStartFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recorder_start_failures_total",
		Help: "Total start workflows that failed",
	})

	metricStopFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recorder_stop_failures_total",
		Help: "Total stop workflows that failed",
	})

	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recorder_active_sessions",
		Help: "Sessions currently recording or streaming",
	})

	metricWatchdogStops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recorder_watchdog_stops_total",
		Help: "Stops forced by the max-duration watchdog",
	})

	metricStartDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recorder_start_duration_seconds",
		Help:    "Time spent in the start workflow",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	metricStopDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recorder_stop_duration_seconds",
		Help:    "Time spent in the stop workflow",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)
