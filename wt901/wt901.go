// Package wt901 reads the WitMotion WT901 inclinometer used as the gimbal's
// absolute orientation source.
//
// Two transports are supported: Modbus RTU over RS-485 (ConnectModbus) and
// the TTL streaming protocol (ConnectSerial). Both keep the latest reading
// in memory; Orientation never blocks on the port.
package wt901

import (
	"errors"
	"sync"
	"time"

	"github.com/w1xm/rotator_bridge/rotator"
)

// DefaultAddress is the factory Modbus slave address.
const DefaultAddress = 0x50

var ErrNoReading = errors.New("wt901: no reading yet")

// Reading is one decoded angle sample, in degrees.
type Reading struct {
	Roll  float64
	Pitch float64
	Yaw   float64
	// Temperature in degrees Celsius. Only reported over Modbus.
	Temperature float64
	Time        time.Time
}

// Orientation maps the sensor frame onto the gimbal: yaw is azimuth and
// pitch is elevation.
func (r Reading) Orientation() rotator.Orientation {
	return rotator.Orientation{
		Azimuth:   r.Yaw,
		Elevation: r.Pitch,
		Time:      r.Time,
	}
}

type ReadingCallback func(r Reading)

// Device holds the latest reading from either transport.
type Device struct {
	callback ReadingCallback

	mu      sync.Mutex
	reading Reading
	have    bool
}

func (d *Device) update(r Reading) {
	d.mu.Lock()
	d.reading = r
	d.have = true
	d.mu.Unlock()
	if d.callback != nil {
		d.callback(r)
	}
}

func (d *Device) Reading() (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.have {
		return Reading{}, ErrNoReading
	}
	return d.reading, nil
}

func (d *Device) Orientation() (rotator.Orientation, error) {
	r, err := d.Reading()
	if err != nil {
		return rotator.Orientation{}, err
	}
	return r.Orientation(), nil
}

// angle converts a raw signed 16-bit register into degrees.
func angle(lo, hi byte) float64 {
	return float64(int16(uint16(hi)<<8|uint16(lo))) / 32768 * 180
}
