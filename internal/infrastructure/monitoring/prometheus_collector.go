package monitoring

import (
	"livecast/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	viewersConnected   prometheus.Gauge
	streamsActiveTotal prometheus.Gauge
	envelopesTotal     *prometheus.CounterVec

	streamViewerCount     *prometheus.GaugeVec
	streamBroadcasterLive *prometheus.GaugeVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		viewersConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "livecast_viewers_connected",
			Help: "Number of viewer sockets currently attached to the relay",
		}),

		streamsActiveTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "livecast_streams_active_total",
			Help: "Total number of active streams",
		}),

		envelopesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "livecast_signal_envelopes_total",
			Help: "Signaling envelopes relayed, by envelope type",
		}, []string{"type"}),

		streamViewerCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "livecast_stream_viewer_count",
			Help: "Number of viewers attached to each stream",
		}, []string{"stream_id"}),

		streamBroadcasterLive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "livecast_stream_broadcaster_live",
			Help: "Whether the broadcaster socket is attached (1) or not (0)",
		}, []string{"stream_id"}),
	}
}

func (p *PrometheusCollector) RecordEnvelope(envelopeType string) {
	p.envelopesTotal.WithLabelValues(envelopeType).Inc()
}

func (p *PrometheusCollector) RecordViewerConnected(streamID domain.StreamID) {
	p.viewersConnected.Inc()
	p.streamViewerCount.WithLabelValues(string(streamID)).Inc()
}

func (p *PrometheusCollector) RecordViewerDisconnected(streamID domain.StreamID) {
	p.viewersConnected.Dec()
	p.streamViewerCount.WithLabelValues(string(streamID)).Dec()
}

func (p *PrometheusCollector) RecordBroadcasterConnected(streamID domain.StreamID) {
	p.streamBroadcasterLive.WithLabelValues(string(streamID)).Set(1)
}

func (p *PrometheusCollector) RecordBroadcasterDisconnected(streamID domain.StreamID) {
	p.streamBroadcasterLive.WithLabelValues(string(streamID)).Set(0)
	p.streamViewerCount.DeleteLabelValues(string(streamID))
	p.streamBroadcasterLive.DeleteLabelValues(string(streamID))
}

func (p *PrometheusCollector) RecordStreamCreated(streamID domain.StreamID) {
	p.streamsActiveTotal.Inc()
}

func (p *PrometheusCollector) RecordStreamEnded(streamID domain.StreamID) {
	p.streamsActiveTotal.Dec()
	p.streamViewerCount.DeleteLabelValues(string(streamID))
	p.streamBroadcasterLive.DeleteLabelValues(string(streamID))
}
