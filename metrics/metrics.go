// Package metrics holds the prometheus collectors of the remux pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Input
	BytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flv2fmp4_bytes_received_total",
		Help: "Total number of FLV bytes pushed into decoders",
	})
	TagsDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flv2fmp4_tags_decoded_total",
			Help: "Total number of FLV tags decoded",
		},
		[]string{"type"}, // audio, video, script
	)
	TagsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flv2fmp4_tags_recorded_total",
			Help: "Total number of FLV tags written to stream archives",
		},
	)
	TagsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flv2fmp4_tags_dropped_total",
			Help: "Total number of FLV tags dropped before remuxing",
		},
		[]string{"reason"},
	)

	// Output
	InitSegments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flv2fmp4_init_segments_total",
		Help: "Total number of initialization segments emitted",
	})
	Fragments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flv2fmp4_fragments_total",
			Help: "Total number of moof+mdat fragments emitted",
		},
		[]string{"track"}, // audio, video
	)
	FragmentSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flv2fmp4_fragment_size_bytes",
		Help:    "Size of emitted fragments in bytes",
		Buckets: prometheus.ExponentialBuckets(256, 2, 12), // 256B to ~512KB
	})
	BytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flv2fmp4_bytes_sent_total",
		Help: "Total number of fMP4 bytes handed to consumers",
	})

	// Errors
	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flv2fmp4_errors_total",
			Help: "Total number of fatal session errors",
		},
		[]string{"component"},
	)
	DeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flv2fmp4_delivery_failures_total",
			Help: "Total number of envelopes the exchange could not deliver",
		},
		[]string{"destination"},
	)

	// Sessions
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flv2fmp4_active_sessions",
		Help: "Number of running remux pipelines",
	})
	ActiveViewers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flv2fmp4_active_viewers",
		Help: "Number of connected fMP4 players",
	})
)
