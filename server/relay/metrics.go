package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics はリレーの計測値です。
type Metrics struct {
	Sessions      prometheus.Gauge
	Rooms         prometheus.Gauge
	Frames        *prometheus.CounterVec
	Disconnects   *prometheus.CounterVec
	MasterChanges prometheus.Counter
}

// NewMetrics は reg にメトリクスを登録します。reg が nil の場合は登録しません。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "crossfire",
			Subsystem: "relay",
			Name:      "sessions",
			Help:      "Connected sessions.",
		}),
		Rooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "crossfire",
			Subsystem: "relay",
			Name:      "rooms",
			Help:      "Running rooms.",
		}),
		Frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crossfire",
			Subsystem: "relay",
			Name:      "frames_total",
			Help:      "Frames handled by the relay, by result.",
		}, []string{"result"}),
		Disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crossfire",
			Subsystem: "relay",
			Name:      "disconnects_total",
			Help:      "Closed sessions, by reason.",
		}, []string{"reason"}),
		MasterChanges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "crossfire",
			Subsystem: "relay",
			Name:      "master_changes_total",
			Help:      "Master client re-elections.",
		}),
	}
}

const (
	frameRelayed  = "relayed"
	frameDropped  = "dropped"
	frameRejected = "rejected"
)
