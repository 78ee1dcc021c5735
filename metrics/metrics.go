package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type VideonestMetrics struct {
	// ingestion service
	UploadsIngested       prometheus.Counter
	UploadsDropped        prometheus.Counter
	ConversionsConfirmed  prometheus.Counter
	ConfirmationsOrphaned prometheus.Counter

	// transcoder worker
	TranscodedVideos     prometheus.Counter
	TranscodeFailures    prometheus.Counter
	TranscodeDurationSec prometheus.Histogram

	// read API
	APIRequestDurationSec *prometheus.SummaryVec
}

func NewMetrics() *VideonestMetrics {
	m := &VideonestMetrics{
		UploadsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "uploads_ingested_count",
			Help: "The total number of upload notifications turned into conversion jobs",
		}),
		UploadsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "uploads_dropped_count",
			Help: "The total number of malformed upload notifications dropped",
		}),
		ConversionsConfirmed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conversions_confirmed_count",
			Help: "The total number of videos marked complete",
		}),
		ConfirmationsOrphaned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "confirmations_orphaned_count",
			Help: "The total number of confirmations with no matching video row",
		}),

		TranscodedVideos: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcoded_videos_count",
			Help: "The total number of videos fully converted to HLS",
		}),
		TranscodeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcode_failures_count",
			Help: "The total number of conversion jobs that failed in ffmpeg",
		}),
		TranscodeDurationSec: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcode_duration_seconds",
			Help:    "Time taken to convert one video to HLS",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),

		APIRequestDurationSec: promauto.NewSummaryVec(prometheus.SummaryOpts{
			Name: "api_request_duration_seconds",
			Help: "The latency of read API requests broken up by handler and status code",
		}, []string{"handler", "status_code"}),
	}

	return m
}

var Metrics = NewMetrics()
