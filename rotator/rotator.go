package rotator

import "time"

// Axis identifies one of the two gimbal axes.
type Axis int

const (
	Azimuth Axis = iota
	Elevation
)

func (a Axis) String() string {
	switch a {
	case Azimuth:
		return "azimuth"
	case Elevation:
		return "elevation"
	}
	return "unknown"
}

// Rotator is the command surface shared by the network server and the console.
type Rotator interface {
	SetTarget(az, el float64) error
	Position() (az, el float64)
	Stop()
}

type Calibrator interface {
	Calibrate() error
	SetOffset(az, el float64)
}

// Orientation is one absolute reading from the orientation sensor, in degrees.
type Orientation struct {
	Azimuth   float64
	Elevation float64
	Time      time.Time
}

// OrientationSource returns the latest orientation snapshot. It must not
// block on the sensor transport.
type OrientationSource interface {
	Orientation() (Orientation, error)
}

// Actuator accepts a signed duty cycle per axis. The sign selects direction.
type Actuator interface {
	Drive(axis Axis, duty float64) error
}

type StatusCallback func(status Status)

// Status is a consistent snapshot of the gimbal, committed once per tick.
type Status struct {
	Time time.Time `json:"time"`

	AzPos float64 `json:"az_pos"`
	ElPos float64 `json:"el_pos"`

	CommandAzPos float64 `json:"command_az_pos"`
	CommandElPos float64 `json:"command_el_pos"`

	// AzDrive and ElDrive are the last commanded duty cycles.
	AzDrive float64 `json:"az_drive"`
	ElDrive float64 `json:"el_drive"`

	OffsetAz float64 `json:"offset_az"`
	OffsetEl float64 `json:"offset_el"`

	Stopped   bool `json:"stopped"`
	Simulator bool `json:"simulator"`
	// SensorOkay is false when the last tick could not read the orientation source.
	SensorOkay bool `json:"sensor_okay"`
}

func (s Status) AzimuthPosition() float64 {
	return s.AzPos
}

func (s Status) ElevationPosition() float64 {
	return s.ElPos
}
