package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds the controller's collectors; /metrics serves it.
var Registry = prometheus.NewRegistry()

var (
	TicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parking_dispatch_ticks_total",
		Help: "Dispatch cycles executed.",
	})
	TickOverrunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parking_dispatch_tick_overruns_total",
		Help: "Ticks that arrived while the previous tick was still unconsumed.",
	})
	SensorPollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parking_sensor_polls_total",
		Help: "Sensor presence queries by slot and result.",
	}, []string{"slot", "result"})
	SlotsOccupied = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parking_slots_occupied",
		Help: "Slots currently reporting presence.",
	})
	SlotsAvailable = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parking_slots_available",
		Help: "Slots currently vacant, the value shown on the display.",
	})
	UserRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parking_user_requests_total",
		Help: "User requests by outcome.",
	}, []string{"outcome"})
	BlinkToggleTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parking_display_blink_toggles_total",
		Help: "Display phase toggles while signalling a full lot.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		TicksTotal,
		TickOverrunsTotal,
		SensorPollsTotal,
		SlotsOccupied,
		SlotsAvailable,
		UserRequestsTotal,
		BlinkToggleTotal,
	)
}
