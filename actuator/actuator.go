// Package actuator drives the gimbal motors.
package actuator

import (
	"fmt"
	"math"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/w1xm/rotator_bridge/rotator"
)

const (
	// PWMFreq is the motor PWM frequency in Hz.
	PWMFreq = 1000
	// PWMCycle is the number of steps per PWM period. Duty is a percentage.
	PWMCycle = 100
)

// Channel is the BCM pin assignment for one H-bridge channel.
type Channel struct {
	// Enable must be a hardware PWM pin (12, 13, 18 or 19).
	Enable int `yaml:"enable"`
	IN1    int `yaml:"in1"`
	IN2    int `yaml:"in2"`
	// Invert swaps the direction pins for a motor wired backwards.
	Invert bool `yaml:"invert"`
}

// Pins assigns one channel per axis.
type Pins struct {
	Azimuth   Channel `yaml:"azimuth"`
	Elevation Channel `yaml:"elevation"`
}

func DefaultPins() Pins {
	return Pins{
		Azimuth:   Channel{Enable: 18, IN1: 23, IN2: 24},
		Elevation: Channel{Enable: 13, IN1: 5, IN2: 6},
	}
}

var pwmPins = map[int]bool{12: true, 13: true, 18: true, 19: true}

type pwmPin interface {
	DutyCycle(dutyLen, cycleLen uint32)
}

type outputPin interface {
	High()
	Low()
}

type channel struct {
	en       pwmPin
	in1, in2 outputPin
	invert   bool
}

func (c *channel) set(duty float64) {
	duty = rotator.Clamp(duty, -PWMCycle, PWMCycle)
	forward := duty >= 0
	if c.invert {
		forward = !forward
	}
	switch {
	case duty == 0:
		c.in1.Low()
		c.in2.Low()
	case forward:
		c.in1.High()
		c.in2.Low()
	default:
		c.in1.Low()
		c.in2.High()
	}
	c.en.DutyCycle(uint32(math.Round(math.Abs(duty))), PWMCycle)
}

// HBridge drives two DC motors through a dual H-bridge on the Raspberry Pi
// GPIO header.
type HBridge struct {
	mu       sync.Mutex
	channels [2]*channel
	close    func() error
}

// OpenHBridge maps GPIO memory and configures the pins. Both motors start
// stopped.
func OpenHBridge(pins Pins) (*HBridge, error) {
	for _, c := range []Channel{pins.Azimuth, pins.Elevation} {
		if !pwmPins[c.Enable] {
			return nil, fmt.Errorf("pin %d is not a PWM pin", c.Enable)
		}
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("opening gpio: %w", err)
	}
	setup := func(c Channel) *channel {
		en := rpio.Pin(c.Enable)
		en.Mode(rpio.Pwm)
		// Param freq should be in range 4688Hz - 19.2MHz.
		en.Freq(PWMFreq * PWMCycle)
		in1, in2 := rpio.Pin(c.IN1), rpio.Pin(c.IN2)
		in1.Output()
		in2.Output()
		return &channel{en: en, in1: in1, in2: in2, invert: c.Invert}
	}
	h := &HBridge{
		channels: [2]*channel{setup(pins.Azimuth), setup(pins.Elevation)},
		close:    rpio.Close,
	}
	for _, c := range h.channels {
		c.set(0)
	}
	return h, nil
}

// Drive sets the signed duty cycle, in percent, for axis.
func (h *HBridge) Drive(axis rotator.Axis, duty float64) error {
	if axis != rotator.Azimuth && axis != rotator.Elevation {
		return fmt.Errorf("unknown axis %d", axis)
	}
	if math.IsNaN(duty) {
		return fmt.Errorf("%v: duty is NaN", axis)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels[axis].set(duty)
	return nil
}

// Close stops both motors and releases the GPIO mapping.
func (h *HBridge) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.channels {
		c.set(0)
	}
	return h.close()
}

// Null discards every command. Used in simulation.
type Null struct{}

func (Null) Drive(axis rotator.Axis, duty float64) error {
	return nil
}
