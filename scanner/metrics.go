package scanner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	frames     prometheus.Counter
	previews   prometheus.Counter
	detections prometheus.Counter
	sessions   prometheus.Counter
	errors     *prometheus.CounterVec
	capturing  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		frames: f.NewCounter(prometheus.CounterOpts{
			Namespace: "qrcam", Name: "frames_processed_total",
			Help: "Frames read from the camera and run through the decoder.",
		}),
		previews: f.NewCounter(prometheus.CounterOpts{
			Namespace: "qrcam", Name: "previews_emitted_total",
			Help: "Preview frames pushed to the front-end.",
		}),
		detections: f.NewCounter(prometheus.CounterOpts{
			Namespace: "qrcam", Name: "qr_detected_total",
			Help: "QR codes decoded.",
		}),
		sessions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "qrcam", Name: "sessions_started_total",
			Help: "Capture sessions that opened a camera stream.",
		}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrcam", Name: "session_errors_total",
			Help: "Sessions terminated by an error, by pipeline stage.",
		}, []string{"stage"}),
		capturing: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "qrcam", Name: "capturing",
			Help: "1 while a capture loop is running.",
		}),
	}
}

func (m *Metrics) frame() {
	if m != nil {
		m.frames.Inc()
	}
}

func (m *Metrics) preview() {
	if m != nil {
		m.previews.Inc()
	}
}

func (m *Metrics) detected() {
	if m != nil {
		m.detections.Inc()
	}
}

func (m *Metrics) started() {
	if m != nil {
		m.sessions.Inc()
		m.capturing.Set(1)
	}
}

func (m *Metrics) ended(err error) {
	if m == nil {
		return
	}
	m.capturing.Set(0)
	if err != nil {
		m.errors.WithLabelValues(string(stageOf(err))).Inc()
	}
}
