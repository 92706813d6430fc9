package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"crossfire/event"
)

const (
	resultOK           = "ok"
	resultNoHandler    = "no_handler"
	resultNoDecoder    = "no_decoder"
	resultDecodeError  = "decode_error"
	resultPublishError = "publish_error"
	resultReserved     = "reserved"
)

type metrics struct {
	eventsSent     *prometheus.CounterVec
	eventsReceived *prometheus.CounterVec
	handlerPanics  *prometheus.CounterVec
}

// registerer が nil の場合 promauto.With は登録を行わない
func newMetrics(cfg config) *metrics {
	factory := promauto.With(cfg.registerer)
	return &metrics{
		eventsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crossfire",
			Subsystem: "dispatch",
			Name:      "events_sent_total",
			Help:      "Events passed to SendEvent, by kind and result.",
		}, []string{"kind", "result"}),
		eventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crossfire",
			Subsystem: "dispatch",
			Name:      "events_received_total",
			Help:      "Inbound application events, by kind and result.",
		}, []string{"kind", "result"}),
		handlerPanics: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crossfire",
			Subsystem: "dispatch",
			Name:      "handler_panics_total",
			Help:      "Handlers that panicked while processing an inbound event.",
		}, []string{"kind"}),
	}
}

func (m *metrics) sent(kind event.Kind, result string) {
	m.eventsSent.WithLabelValues(kind.String(), result).Inc()
}

func (m *metrics) received(kind event.Kind, result string) {
	m.eventsReceived.WithLabelValues(kind.String(), result).Inc()
}
