package congregate

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ChannelOpens = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "congregate",
		Subsystem: "channel",
		Name:      "opens_total",
		Help:      "Number of successful push channel opens",
	})
	ChannelsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "congregate",
		Subsystem: "channel",
		Name:      "active",
		Help:      "Number of currently open push channels",
	})
	ReconnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "congregate",
		Subsystem: "channel",
		Name:      "reconnect_attempts_total",
		Help:      "Number of scheduled reconnect attempts",
	})
	ChannelsDegraded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "congregate",
		Subsystem: "channel",
		Name:      "degraded_total",
		Help:      "Number of channels that exhausted their reconnect attempts",
	})
	EventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "congregate",
		Subsystem: "channel",
		Name:      "events_total",
		Help:      "Decoded push events delivered, by type",
	}, []string{"type"})
	FramesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "congregate",
		Subsystem: "channel",
		Name:      "frames_dropped_total",
		Help:      "Frames dropped before delivery, by reason",
	}, []string{"reason"})
	MergeOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "congregate",
		Subsystem: "merge",
		Name:      "outcomes_total",
		Help:      "Outcome of every pushed or locally created item",
	}, []string{"outcome"})
	ToggleRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "congregate",
		Subsystem: "toggle",
		Name:      "requests_total",
		Help:      "Toggle requests sent, by kind and result",
	}, []string{"kind", "result"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		ChannelOpens,
		ChannelsActive,
		ReconnectAttempts,
		ChannelsDegraded,
		EventsReceived,
		FramesDropped,
		MergeOutcomes,
		ToggleRequests,
	}
}

// RegisterMetrics registers the package collectors with reg. Registering
// twice with the same registry is not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
