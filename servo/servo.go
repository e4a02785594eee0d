// Package servo implements the per-axis adaptive PID used by the gimbal
// control loop.
package servo

import (
	"fmt"
	"math"
	"time"

	"github.com/w1xm/rotator_bridge/rotator"
)

// Gains is one PID gain triple.
type Gains struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`
}

// Bracket applies Gains when the absolute error is strictly greater than Above.
type Bracket struct {
	Above float64 `yaml:"above"`
	Gains `yaml:",inline"`
}

// GainSchedule is ordered by descending Above. The last bracket is the lock
// zone and should have Above == 0 so that every error matches something.
type GainSchedule []Bracket

// Gains returns the gains for the given error magnitude.
func (gs GainSchedule) Gains(absErr float64) Gains {
	for _, b := range gs {
		if absErr > b.Above {
			return b.Gains
		}
	}
	if len(gs) == 0 {
		return Gains{}
	}
	return gs[len(gs)-1].Gains
}

// ScaleBand multiplies the output when Min <= |error| < Max.
type ScaleBand struct {
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
	Factor float64 `yaml:"factor"`
}

type Shaping struct {
	ScaleBands []ScaleBand `yaml:"scale_bands"`
	// GravityGain is the duty added at 90 degrees of elevation.
	GravityGain float64 `yaml:"gravity_gain"`
	// MinOutput is the smallest non-zero duty; anything below is raised to it.
	MinOutput float64 `yaml:"min_output"`
}

type Config struct {
	// Wrap selects shortest-path error for circular axes.
	Wrap          bool         `yaml:"wrap"`
	Schedule      GainSchedule `yaml:"schedule"`
	IntegralLimit float64      `yaml:"integral_limit"`
	Deadzone      float64      `yaml:"deadzone"`
	Lock          float64      `yaml:"lock"`
	OutMin        float64      `yaml:"out_min"`
	OutMax        float64      `yaml:"out_max"`
	Shaping       Shaping      `yaml:"shaping"`
}

func (c Config) Validate() error {
	if len(c.Schedule) == 0 {
		return fmt.Errorf("empty gain schedule")
	}
	for i := 1; i < len(c.Schedule); i++ {
		if c.Schedule[i].Above >= c.Schedule[i-1].Above {
			return fmt.Errorf("gain schedule not in descending order at bracket %d", i)
		}
	}
	if c.IntegralLimit < 0 {
		return fmt.Errorf("negative integral limit %v", c.IntegralLimit)
	}
	if c.Deadzone < 0 || c.Lock < 0 {
		return fmt.Errorf("negative deadzone or lock threshold")
	}
	if c.OutMin > 0 || c.OutMax < 0 || c.OutMin >= c.OutMax {
		return fmt.Errorf("bad output bounds [%v, %v]", c.OutMin, c.OutMax)
	}
	if c.Shaping.MinOutput < 0 || c.Shaping.MinOutput > c.OutMax {
		return fmt.Errorf("minimum output %v outside [0, %v]", c.Shaping.MinOutput, c.OutMax)
	}
	return nil
}

// DefaultSchedule favours speed far from the target and settling near it.
func DefaultSchedule() GainSchedule {
	return GainSchedule{
		{Above: 10, Gains: Gains{Kp: 9.0, Ki: 0.02, Kd: 1.2}},
		{Above: 3, Gains: Gains{Kp: 8.0, Ki: 0.05, Kd: 2.0}},
		{Above: 0.8, Gains: Gains{Kp: 6.0, Ki: 0.03, Kd: 3.0}},
		{Above: 0, Gains: Gains{Kp: 4.0, Ki: 0, Kd: 4.0}},
	}
}

func defaultShaping() Shaping {
	return Shaping{
		ScaleBands: []ScaleBand{
			{Min: 0, Max: 0.8, Factor: 0.9},
			{Min: 0.8, Max: 2, Factor: 1.1},
			{Min: 0.8, Max: 2, Factor: 1.15},
			{Min: 2, Max: 5, Factor: 1.2},
		},
		MinOutput: 18,
	}
}

func DefaultAzimuth() Config {
	return Config{
		Wrap:          true,
		Schedule:      DefaultSchedule(),
		IntegralLimit: 40,
		Deadzone:      0.1,
		Lock:          0.2,
		OutMin:        -70,
		OutMax:        70,
		Shaping:       defaultShaping(),
	}
}

func DefaultElevation() Config {
	c := Config{
		Schedule:      DefaultSchedule(),
		IntegralLimit: 40,
		Deadzone:      0.1,
		Lock:          0.2,
		OutMin:        -80,
		OutMax:        80,
		Shaping:       defaultShaping(),
	}
	c.Shaping.GravityGain = 12
	return c
}

// State is the running state carried between ticks.
type State struct {
	Integral  float64
	LastError float64
	LastTick  time.Time
}

// Controller is not safe for concurrent use; the gimbal loop owns it.
type Controller struct {
	cfg   Config
	state State
}

func New(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

func (c *Controller) Config() Config {
	return c.cfg
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) Reset() {
	c.state = State{}
}

// Error returns the control error for the axis.
func (c *Controller) Error(target, measured float64) float64 {
	if c.cfg.Wrap {
		return rotator.ShortestError(target, measured)
	}
	return target - measured
}

// Compute advances the controller by one tick and returns the duty cycle to
// command, within [OutMin, OutMax]. A tick with no positive interval since
// the last one commands zero.
func (c *Controller) Compute(target, measured float64, now time.Time) float64 {
	raw := c.Error(target, measured)
	gains := c.cfg.Schedule.Gains(math.Abs(raw))
	err := raw
	if math.Abs(err) < c.cfg.Deadzone {
		err = 0
	}

	first := c.state.LastTick.IsZero()
	dt := now.Sub(c.state.LastTick).Seconds()
	if first || dt <= 0 {
		c.state.LastError = err
		if first || now.After(c.state.LastTick) {
			c.state.LastTick = now
		}
		return 0
	}

	c.state.Integral = rotator.Clamp(c.state.Integral+err*dt, -c.cfg.IntegralLimit, c.cfg.IntegralLimit)
	derivative := (err - c.state.LastError) / dt
	c.state.LastError = err
	c.state.LastTick = now

	out := gains.Kp*err + gains.Ki*c.state.Integral + gains.Kd*derivative
	out = c.shape(err, measured, out)

	out = rotator.Clamp(out, c.cfg.OutMin, c.cfg.OutMax)
	if math.Abs(err) < c.cfg.Lock {
		return 0
	}
	return out
}

func (c *Controller) shape(err, measured, out float64) float64 {
	s := c.cfg.Shaping
	e := math.Abs(err)
	for _, b := range s.ScaleBands {
		if e >= b.Min && e < b.Max {
			out *= b.Factor
		}
	}
	out += s.GravityGain * measured / 90
	if out != 0 && math.Abs(out) < s.MinOutput {
		out = math.Copysign(s.MinOutput, out)
	}
	return out
}
