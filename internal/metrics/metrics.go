package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Scheduler metrics
	ControllerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blepacer_controller_state",
			Help: "Current scan state (0=no scan, 1=slow scan, 2=fast scan)",
		},
	)

	StateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blepacer_state_transitions_total",
			Help: "Scan state transitions",
		},
		[]string{"from", "to"},
	)

	ControllerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blepacer_controller_events_total",
			Help: "Events evaluated by the scan controller",
		},
		[]string{"event"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blepacer_sessions",
			Help: "Number of registered scan sessions",
		},
	)

	TransportFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blepacer_transport_failures_total",
			Help: "Scan transport start failures",
		},
		[]string{"op"},
	)

	// Motion metrics
	MotionEdges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blepacer_motion_edges_total",
			Help: "Motion started / timed out edges emitted by the detector",
		},
		[]string{"edge"},
	)

	SamplesDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blepacer_motion_samples_discarded_total",
			Help: "Malformed motion samples that forced a re-baseline",
		},
	)

	// Radio metrics
	ScanResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blepacer_scan_results_total",
			Help: "Advertisements received from the radio",
		},
		[]string{"radio"},
	)

	RadioRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blepacer_radio_restarts_total",
			Help: "Radio scan restarts, by effective mode",
		},
		[]string{"radio", "mode"},
	)

	RadioErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blepacer_radio_errors_total",
			Help: "Radio scans that ended with an error",
		},
		[]string{"radio"},
	)

	DevicesTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blepacer_devices_tracked",
			Help: "Discovered advertisers currently cached",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ControllerState,
		StateTransitions,
		ControllerEvents,
		ActiveSessions,
		TransportFailures,
		MotionEdges,
		SamplesDiscarded,
		ScanResults,
		RadioRestarts,
		RadioErrors,
		DevicesTracked,
	)
}
