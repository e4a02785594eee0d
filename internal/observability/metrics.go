// Package observability exposes the bridge's Prometheus metrics.
package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/w1xm/rotator_bridge/rotator"
	"github.com/w1xm/rotator_bridge/telemetry"
)

// Collector bundles the control loop, rotctld and telemetry metrics. It
// satisfies gimbal.Recorder and rotctld.Recorder.
type Collector struct {
	gatherer prometheus.Gatherer

	TickDuration prometheus.Histogram
	LateTicks    prometheus.Counter
	Position     *prometheus.GaugeVec
	Target       *prometheus.GaugeVec
	Drive        *prometheus.GaugeVec
	SensorOkay   prometheus.Gauge

	Commands *prometheus.CounterVec
	Sessions prometheus.Gauge

	PeakPower   prometheus.Gauge
	PeakFreq    prometheus.Gauge
	SignalRatio prometheus.Gauge
}

// NewCollector registers metrics against reg, defaulting to the global
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	c := &Collector{gatherer: gatherer}
	var err error

	if c.TickDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gimbal_tick_duration_seconds",
		Help:    "Time spent in one control loop tick.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.05},
	}), "gimbal_tick_duration_seconds"); err != nil {
		return nil, err
	}
	if c.LateTicks, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gimbal_late_ticks_total",
		Help: "Ticks that started more than two intervals after the previous one.",
	}), "gimbal_late_ticks_total"); err != nil {
		return nil, err
	}
	if c.Position, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gimbal_position_degrees",
		Help: "Measured position by axis.",
	}, []string{"axis"}), "gimbal_position_degrees"); err != nil {
		return nil, err
	}
	if c.Target, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gimbal_target_degrees",
		Help: "Commanded position by axis.",
	}, []string{"axis"}), "gimbal_target_degrees"); err != nil {
		return nil, err
	}
	if c.Drive, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gimbal_drive_duty",
		Help: "Signed duty cycle sent to the actuator by axis.",
	}, []string{"axis"}), "gimbal_drive_duty"); err != nil {
		return nil, err
	}
	if c.SensorOkay, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gimbal_sensor_okay",
		Help: "1 if the last orientation reading was usable.",
	}), "gimbal_sensor_okay"); err != nil {
		return nil, err
	}
	if c.Commands, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rotctld_commands_total",
		Help: "Handled rotctld commands, labeled by command and RPRT code.",
	}, []string{"command", "rprt"}), "rotctld_commands_total"); err != nil {
		return nil, err
	}
	if c.Sessions, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rotctld_sessions",
		Help: "Open rotctld sessions.",
	}), "rotctld_sessions"); err != nil {
		return nil, err
	}
	if c.PeakPower, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sdr_peak_power_db",
		Help: "Peak power from the latest SDR record.",
	}), "sdr_peak_power_db"); err != nil {
		return nil, err
	}
	if c.PeakFreq, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sdr_peak_freq_hz",
		Help: "Peak frequency from the latest SDR record.",
	}), "sdr_peak_freq_hz"); err != nil {
		return nil, err
	}
	if c.SignalRatio, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sdr_signal_strength_ratio",
		Help: "Signal strength ratio from the latest SDR record.",
	}), "sdr_signal_strength_ratio"); err != nil {
		return nil, err
	}
	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveTick(d time.Duration, late bool) {
	c.TickDuration.Observe(d.Seconds())
	if late {
		c.LateTicks.Inc()
	}
}

func (c *Collector) ObserveAxis(axis rotator.Axis, position, target, drive float64) {
	c.Position.WithLabelValues(axis.String()).Set(position)
	c.Target.WithLabelValues(axis.String()).Set(target)
	c.Drive.WithLabelValues(axis.String()).Set(drive)
}

func (c *Collector) ObserveSensor(okay bool) {
	if okay {
		c.SensorOkay.Set(1)
	} else {
		c.SensorOkay.Set(0)
	}
}

func (c *Collector) ObserveCommand(cmd string, rprt int) {
	c.Commands.WithLabelValues(cmd, strconv.Itoa(rprt)).Inc()
}

func (c *Collector) ObserveSession(delta int) {
	c.Sessions.Add(float64(delta))
}

// ObserveTelemetry updates the SDR gauges from the fields present in r.
func (c *Collector) ObserveTelemetry(r telemetry.Record) {
	if r.PeakPowerDB != nil {
		c.PeakPower.Set(*r.PeakPowerDB)
	}
	if r.PeakFreqHz != nil {
		c.PeakFreq.Set(*r.PeakFreqHz)
	}
	if r.SignalStrengthRatio != nil {
		c.SignalRatio.Set(*r.SignalStrengthRatio)
	}
}

// register adds collector to reg, returning the existing collector if an
// identical one is already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, collector T, name string) (T, error) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			return collector, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return collector, err
	}
	return collector, nil
}
