package engine

import (
	m "github.com/dmitrijs2005/clipsync/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	FramesReceived    *prometheus.CounterVec
	FramesDropped     *prometheus.CounterVec
	Transitions       *prometheus.CounterVec
	UploadsCompleted  prometheus.Counter
	UploadsFailed     *prometheus.CounterVec
	DownloadsApplied  prometheus.Counter
	DownloadsFailed   *prometheus.CounterVec
	TransfersCanceled prometheus.Counter
	SessionsExpired   prometheus.Counter
}

func newMetrics() metrics {
	subsystem := "edge"

	return metrics{
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "frames_received_total",
			Help:      "Decoded frames from the relay by kind.",
		}, []string{"kind"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "frames_dropped_total",
			Help:      "Frames rejected before dispatch, by reason.",
		}, []string{"reason"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "state_transitions_total",
			Help:      "Sync state transitions by target state.",
		}, []string{"state"}),
		UploadsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "uploads_completed_total",
			Help:      "Local changes fully sent or stored.",
		}),
		UploadsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "uploads_failed_total",
			Help:      "Local changes that were not published, by reason.",
		}, []string{"reason"}),
		DownloadsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "downloads_applied_total",
			Help:      "Remote clipboards written to the source.",
		}),
		DownloadsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "downloads_failed_total",
			Help:      "Downloads that were not applied, by reason.",
		}, []string{"reason"}),
		TransfersCanceled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "transfers_canceled_total",
			Help:      "Transfers abandoned by a cancel or a newer local change.",
		}),
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "sessions_expired_total",
			Help:      "Download sessions removed by the expiry sweep.",
		}),
	}
}

func (e *Engine) Metrics() []prometheus.Collector {
	return m.CollectorsFromFields(e.metrics)
}
