// Package metrics defines the prometheus instrumentation for the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StreamEventsTotal counts decoded stream frames by routed kind.
	StreamEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tipbot_stream_events_total",
		Help: "Stream events processed, by kind",
	}, []string{"kind"})

	// TipOutcomesTotal counts user-visible outcomes by category.
	TipOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tipbot_tip_outcomes_total",
		Help: "Tip command outcomes, by category",
	}, []string{"outcome"})

	// BlocksSubmittedTotal counts blocks accepted by the ledger node.
	BlocksSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tipbot_blocks_submitted_total",
		Help: "State blocks accepted by the node, by subtype",
	}, []string{"subtype"})

	// RPCDuration observes ledger node and work service call latency.
	RPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tipbot_rpc_duration_seconds",
		Help:    "Latency of ledger node and work service calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	// StreamReconnectsTotal counts websocket reconnections.
	StreamReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tipbot_stream_reconnects_total",
		Help: "Websocket stream reconnections",
	})
)
