package collab

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsApplied counts operations applied to document content by source
	operationsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otmerge_operations_applied_total",
		Help: "Operations applied to document content",
	}, []string{"source"}) // "local", "remote" or "resolution"

	// operationsDropped counts operations that could not be applied
	operationsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otmerge_operations_dropped_total",
		Help: "Operations dropped instead of applied",
	}, []string{"reason"})

	// conflictsDetected counts conflicts by kind and severity
	conflictsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otmerge_conflicts_detected_total",
		Help: "Conflicts flagged by the detector",
	}, []string{"kind", "severity"})

	// conflictsResolved counts committed resolutions
	conflictsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otmerge_conflicts_resolved_total",
		Help: "Conflicts resolved by strategy and resolution kind",
	}, []string{"strategy", "resolution"})

	// strategyConfidence tracks the score of the top strategy per conflict
	strategyConfidence = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "otmerge_top_strategy_confidence",
		Help:    "Confidence of the best ranked merge strategy",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	}, []string{"strategy"})

	// notificationsDropped counts events lost to full notification channels
	notificationsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otmerge_notifications_dropped_total",
		Help: "Notifications dropped because the consumer fell behind",
	}, []string{"channel"})
)
