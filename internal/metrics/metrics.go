// Package metrics agrupa los colectores Prometheus del monitor, el broker
// de procesos y el front-end de cabina.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ScenarioEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "avsim_scenario_events_total",
			Help: "Scenario events emitted by the player",
		},
	)
	ScenarioFinished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "avsim_scenario_finished_total",
			Help: "Scenario playbacks that reached the end",
		},
	)
	Dispatch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avsim_dispatch_total",
			Help: "Inbound bus messages by dispatch result",
		},
		[]string{"result"}, // ok, decode_error, unknown_key, self, handler_error
	)
	BusDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avsim_bus_dropped_total",
			Help: "Messages dropped because a bounded queue was full",
		},
		[]string{"queue"},
	)
	Frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avsim_device_samples_total",
			Help: "Samples grabbed per device",
		},
		[]string{"device"},
	)
	FramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avsim_device_samples_dropped_total",
			Help: "Samples discarded by drop-oldest backpressure",
		},
		[]string{"device"},
	)
	DeviceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avsim_device_errors_total",
			Help: "Grab/open errors per device",
		},
		[]string{"device"},
	)
	Processes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "avsim_broker_processes",
			Help: "Child processes currently tracked by the broker",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ScenarioEvents,
		ScenarioFinished,
		Dispatch,
		BusDropped,
		Frames,
		FramesDropped,
		DeviceErrors,
		Processes,
	)
}

// Handler retorna el handler HTTP de /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
