package hub

import (
	m "github.com/dmitrijs2005/clipsync/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	ConnectedNodes   prometheus.Gauge
	HostedOwners     prometheus.Gauge
	FramesReceived   *prometheus.CounterVec
	FramesDropped    *prometheus.CounterVec
	FramesSent       *prometheus.CounterVec
	UploadsCompleted prometheus.Counter
	UploadsFailed    *prometheus.CounterVec
	DownloadsServed  prometheus.Counter
	SessionsExpired  prometheus.Counter
	BlobBytes        prometheus.Histogram
}

func newMetrics() metrics {
	subsystem := "hub"

	return metrics{
		ConnectedNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "connected_nodes",
			Help:      "Edge nodes with an open stream.",
		}),
		HostedOwners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "hosted_owners",
			Help:      "Owners attached to some edge node.",
		}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "frames_received_total",
			Help:      "Decoded frames by kind.",
		}, []string{"kind"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "frames_dropped_total",
			Help:      "Frames rejected before dispatch, by reason.",
		}, []string{"reason"}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "frames_sent_total",
			Help:      "Frames sent to edge nodes by kind.",
		}, []string{"kind"}),
		UploadsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "uploads_completed_total",
			Help:      "Uploads assembled and stored.",
		}),
		UploadsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "uploads_failed_total",
			Help:      "Uploads that were not stored, by reason.",
		}, []string{"reason"}),
		DownloadsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "downloads_served_total",
			Help:      "Downloads whose last chunk was sent.",
		}),
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "sessions_expired_total",
			Help:      "Sessions removed by the expiry sweep.",
		}),
		BlobBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "blob_bytes",
			Help:      "Size of stored blobs.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 9),
		}),
	}
}

func (h *Hub) Metrics() []prometheus.Collector {
	return m.CollectorsFromFields(h.metrics)
}
