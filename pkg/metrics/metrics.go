package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartpost_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// NotificationPublishes counts publish calls by result status (ok|skipped).
	NotificationPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartpost_notification_publishes_total",
			Help: "Total number of notification publish calls",
		},
		[]string{"status"},
	)

	// ChannelDeliveries counts per-channel delivery outcomes.
	ChannelDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartpost_notification_channel_deliveries_total",
			Help: "Notification channel delivery outcomes",
		},
		[]string{"channel", "status"},
	)

	// ChannelLatency measures how long each channel takes to deliver an event.
	ChannelLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartpost_notification_channel_latency_seconds",
			Help:    "Notification channel delivery latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	// MediaUploads counts registered media uploads.
	MediaUploads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smartpost_media_uploads_total",
			Help: "Total number of registered media uploads",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartpost_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
