package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/debris-avoidance-sim/model"
)

// EngineCollector bundles Prometheus metrics for the simulation loop. It
// satisfies core.EngineMetricsRecorder.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	Ticks        prometheus.Counter
	TickDuration prometheus.Histogram
	Events       *prometheus.CounterVec
	Commands     *prometheus.CounterVec

	ActiveSatellites prometheus.Gauge
	ActiveDebris     prometheus.Gauge
	Score            prometheus.Gauge
}

// NewEngineCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_ticks_total",
		Help: "Total number of simulation ticks executed.",
	}), "sim_ticks_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_tick_duration_seconds",
		Help:    "Wall-clock time spent computing one simulation tick.",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
	}), "sim_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	events, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_events_total",
		Help: "Simulation events emitted, labeled by kind.",
	}, []string{"kind"}), "sim_events_total")
	if err != nil {
		return nil, err
	}

	commands, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_commands_total",
		Help: "Operator commands issued, labeled by command and result.",
	}, []string{"command", "result"}), "sim_commands_total")
	if err != nil {
		return nil, err
	}

	satellites, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_active_satellites",
		Help: "Satellites neither destroyed nor deorbited.",
	}), "sim_active_satellites")
	if err != nil {
		return nil, err
	}
	debris, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_active_debris",
		Help: "Tracked debris objects.",
	}), "sim_active_debris")
	if err != nil {
		return nil, err
	}
	score, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_score",
		Help: "Current running score.",
	}), "sim_score")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:         gatherer,
		Ticks:            ticks,
		TickDuration:     duration,
		Events:           events,
		Commands:         commands,
		ActiveSatellites: satellites,
		ActiveDebris:     debris,
		Score:            score,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveTick counts a tick and records how long it took.
func (c *EngineCollector) ObserveTick(d time.Duration) {
	if c == nil {
		return
	}
	c.Ticks.Inc()
	c.TickDuration.Observe(d.Seconds())
}

// RecordEvents increments the per-kind event counters.
func (c *EngineCollector) RecordEvents(events []model.Event) {
	if c == nil {
		return
	}
	for _, ev := range events {
		c.Events.WithLabelValues(ev.Kind.String()).Inc()
	}
}

// SetPopulation updates the population gauges.
func (c *EngineCollector) SetPopulation(satellites, debris int) {
	if c == nil {
		return
	}
	c.ActiveSatellites.Set(float64(satellites))
	c.ActiveDebris.Set(float64(debris))
}

// SetScore updates the score gauge.
func (c *EngineCollector) SetScore(score float64) {
	if c == nil {
		return
	}
	c.Score.Set(score)
}

// RecordCommand counts an issued command. accepted is false when the engine
// rejected it.
func (c *EngineCollector) RecordCommand(kind model.CommandKind, accepted bool) {
	if c == nil {
		return
	}
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	c.Commands.WithLabelValues(kind.String(), result).Inc()
}
