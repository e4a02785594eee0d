package gimbal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/w1xm/rotator_bridge/rotator"
	"github.com/w1xm/rotator_bridge/servo"
)

var (
	ErrNonFinite     = errors.New("non-finite target")
	ErrNoOrientation = errors.New("no orientation reading available")
	errStale         = errors.New("stale orientation reading")
)

type Limits struct {
	AzMin  float64 `yaml:"az_min"`
	AzMax  float64 `yaml:"az_max"`
	AzWrap bool    `yaml:"az_wrap"`
	ElMin  float64 `yaml:"el_min"`
	ElMax  float64 `yaml:"el_max"`
}

type Config struct {
	Limits    Limits       `yaml:"limits"`
	Azimuth   servo.Config `yaml:"azimuth"`
	Elevation servo.Config `yaml:"elevation"`

	TickInterval time.Duration `yaml:"tick_interval"`
	// MaxSensorAge is how old an orientation reading may be before the tick
	// fails safe. Zero disables the check.
	MaxSensorAge time.Duration `yaml:"max_sensor_age"`

	// Simulate replaces the orientation source with a ramp toward the target.
	Simulate bool `yaml:"-"`
	// SimRate is the simulated slew rate in degrees/second.
	SimRate float64 `yaml:"sim_rate"`
}

func DefaultConfig() Config {
	return Config{
		Limits: Limits{
			AzMin:  -180,
			AzMax:  180,
			AzWrap: true,
			ElMin:  0,
			ElMax:  90,
		},
		Azimuth:      servo.DefaultAzimuth(),
		Elevation:    servo.DefaultElevation(),
		TickInterval: 20 * time.Millisecond,
		MaxSensorAge: 500 * time.Millisecond,
		SimRate:      20,
	}
}

func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", c.TickInterval)
	}
	if c.Limits.AzMin >= c.Limits.AzMax || c.Limits.ElMin >= c.Limits.ElMax {
		return fmt.Errorf("bad angular limits %+v", c.Limits)
	}
	if c.Simulate && c.SimRate <= 0 {
		return fmt.Errorf("simulation rate must be positive, got %v", c.SimRate)
	}
	if err := c.Azimuth.Validate(); err != nil {
		return fmt.Errorf("azimuth: %w", err)
	}
	if err := c.Elevation.Validate(); err != nil {
		return fmt.Errorf("elevation: %w", err)
	}
	return nil
}

// Recorder receives per-tick measurements. Implemented by the metrics collector.
type Recorder interface {
	ObserveTick(duration time.Duration, late bool)
	ObserveAxis(axis rotator.Axis, position, target, drive float64)
	ObserveSensor(okay bool)
}

type Option func(g *Gimbal)

func WithStatusCallback(cb rotator.StatusCallback) Option {
	return func(g *Gimbal) {
		g.statusCallback = cb
	}
}

func WithRecorder(r Recorder) Option {
	return func(g *Gimbal) {
		g.recorder = r
	}
}

// Gimbal owns both axis controllers and the shared target/position state.
type Gimbal struct {
	cfg      Config
	src      rotator.OrientationSource
	act      rotator.Actuator
	azServo  *servo.Controller
	elServo  *servo.Controller
	recorder Recorder

	statusCallback rotator.StatusCallback

	// mu guards everything below. It is never held across actuator or
	// sensor calls.
	mu                 sync.Mutex
	targetAz, targetEl float64
	az, el             float64
	rawAz, rawEl       float64
	haveRaw            bool
	offsetAz, offsetEl float64
	azDrive, elDrive   float64
	stopped            bool
	sensorOkay         bool

	// Owned by the tick goroutine.
	lastTick   time.Time
	driveFault [2]bool
}

// New constructs a Gimbal. src may be nil in simulation mode.
func New(cfg Config, src rotator.OrientationSource, act rotator.Actuator, options ...Option) (*Gimbal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil && !cfg.Simulate {
		return nil, errors.New("an orientation source is required outside simulation mode")
	}
	if act == nil {
		return nil, errors.New("an actuator is required")
	}
	g := &Gimbal{
		cfg:        cfg,
		src:        src,
		act:        act,
		azServo:    servo.New(cfg.Azimuth),
		elServo:    servo.New(cfg.Elevation),
		sensorOkay: cfg.Simulate,
	}
	for _, option := range options {
		option(g)
	}
	return g, nil
}

func (g *Gimbal) Limits() Limits {
	return g.cfg.Limits
}

func (g *Gimbal) limitAzimuth(az float64) float64 {
	if g.cfg.Limits.AzWrap {
		az = rotator.Normalize(az)
	}
	return rotator.Clamp(az, g.cfg.Limits.AzMin, g.cfg.Limits.AzMax)
}

func (g *Gimbal) limitElevation(el float64) float64 {
	return rotator.Clamp(el, g.cfg.Limits.ElMin, g.cfg.Limits.ElMax)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SetTarget replaces both axis targets after limiting them.
func (g *Gimbal) SetTarget(az, el float64) error {
	if !finite(az) || !finite(el) {
		return ErrNonFinite
	}
	az, el = g.limitAzimuth(az), g.limitElevation(el)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.targetAz, g.targetEl = az, el
	g.stopped = false
	return nil
}

// Position returns the last committed measured position.
func (g *Gimbal) Position() (float64, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.az, g.el
}

// Target returns the current commanded position.
func (g *Gimbal) Target() (float64, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.targetAz, g.targetEl
}

// Stop holds the current position by making it the target.
func (g *Gimbal) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.targetAz, g.targetEl = g.az, g.el
	g.stopped = true
}

func (g *Gimbal) Status() rotator.Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked(time.Now())
}

func (g *Gimbal) statusLocked(now time.Time) rotator.Status {
	return rotator.Status{
		Time:         now,
		AzPos:        g.az,
		ElPos:        g.el,
		CommandAzPos: g.targetAz,
		CommandElPos: g.targetEl,
		AzDrive:      g.azDrive,
		ElDrive:      g.elDrive,
		OffsetAz:     g.offsetAz,
		OffsetEl:     g.offsetEl,
		Stopped:      g.stopped,
		Simulator:    g.cfg.Simulate,
		SensorOkay:   g.sensorOkay,
	}
}

// Run ticks the control loop until ctx is canceled, then commands zero on
// both axes.
func (g *Gimbal) Run(ctx context.Context) error {
	t := time.NewTicker(g.cfg.TickInterval)
	defer t.Stop()
	defer func() {
		g.drive(rotator.Azimuth, 0)
		g.drive(rotator.Elevation, 0)
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			g.tick(now)
		}
	}
}

func (g *Gimbal) tick(now time.Time) {
	start := time.Now()

	g.mu.Lock()
	targetAz, targetEl := g.targetAz, g.targetEl
	az, el := g.az, g.el
	sensorOkay := g.sensorOkay
	g.mu.Unlock()

	var azOut, elOut float64
	if sensorOkay {
		azOut = g.azServo.Compute(targetAz, az, now)
		elOut = g.elServo.Compute(targetEl, el, now)
	} else {
		// Position unknown; do not move, and restart both loops from
		// scratch once readings return.
		g.azServo.Reset()
		g.elServo.Reset()
	}
	azOut = g.drive(rotator.Azimuth, azOut)
	elOut = g.drive(rotator.Elevation, elOut)

	elapsed := g.cfg.TickInterval
	if !g.lastTick.IsZero() {
		elapsed = now.Sub(g.lastTick)
	}
	late := !g.lastTick.IsZero() && elapsed > 2*g.cfg.TickInterval
	g.lastTick = now

	var raw rotator.Orientation
	var err error
	if g.cfg.Simulate {
		az, el = g.ramp(az, targetAz, elapsed, true), g.ramp(el, targetEl, elapsed, false)
	} else {
		raw, err = g.read(now)
		if err != nil && sensorOkay {
			log.Printf("orientation source failed; holding actuation at zero: %v", err)
		} else if err == nil && !sensorOkay {
			log.Printf("orientation source okay: az %.2f el %.2f", raw.Azimuth, raw.Elevation)
		}
	}

	g.mu.Lock()
	if g.cfg.Simulate {
		g.az, g.el = az, el
	} else if err == nil {
		g.rawAz, g.rawEl, g.haveRaw = raw.Azimuth, raw.Elevation, true
		g.az, g.el = g.measure(raw)
	}
	g.sensorOkay = err == nil
	g.azDrive, g.elDrive = azOut, elOut
	status := g.statusLocked(now)
	g.mu.Unlock()

	if g.recorder != nil {
		g.recorder.ObserveTick(time.Since(start), late)
		g.recorder.ObserveAxis(rotator.Azimuth, status.AzPos, status.CommandAzPos, azOut)
		g.recorder.ObserveAxis(rotator.Elevation, status.ElPos, status.CommandElPos, elOut)
		g.recorder.ObserveSensor(status.SensorOkay)
	}
	if g.statusCallback != nil {
		g.statusCallback(status)
	}
}

func (g *Gimbal) read(now time.Time) (rotator.Orientation, error) {
	o, err := g.src.Orientation()
	if err != nil {
		return o, err
	}
	if g.cfg.MaxSensorAge > 0 && now.Sub(o.Time) > g.cfg.MaxSensorAge {
		return o, fmt.Errorf("%w: %v old", errStale, now.Sub(o.Time))
	}
	return o, nil
}

// drive writes duty to the actuator. If the write fails it tries to command
// zero instead and returns what was actually commanded.
func (g *Gimbal) drive(axis rotator.Axis, duty float64) float64 {
	err := g.act.Drive(axis, duty)
	if err == nil {
		if g.driveFault[axis] {
			log.Printf("%v actuator recovered", axis)
			g.driveFault[axis] = false
		}
		return duty
	}
	if !g.driveFault[axis] {
		log.Printf("%v actuator write failed: %v", axis, err)
		g.driveFault[axis] = true
	}
	if duty != 0 {
		g.act.Drive(axis, 0)
	}
	return 0
}
