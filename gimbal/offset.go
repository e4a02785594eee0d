package gimbal

import "github.com/w1xm/rotator_bridge/rotator"

// Offsets are subtracted from raw sensor readings to produce the reported
// position. They live in memory only.

// measure converts a raw reading to a limited position. Callers hold g.mu.
func (g *Gimbal) measure(raw rotator.Orientation) (float64, float64) {
	return g.limitAzimuth(raw.Azimuth - g.offsetAz), g.limitElevation(raw.Elevation - g.offsetEl)
}

// SetOffset replaces the calibration offsets. The target is moved with the
// position so the gimbal does not jump.
func (g *Gimbal) SetOffset(az, el float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	dAz, dEl := az-g.offsetAz, el-g.offsetEl
	g.offsetAz, g.offsetEl = az, el
	if g.cfg.Simulate {
		g.az, g.el = g.limitAzimuth(g.az-dAz), g.limitElevation(g.el-dEl)
	} else if g.haveRaw {
		g.az, g.el = g.measure(rotator.Orientation{Azimuth: g.rawAz, Elevation: g.rawEl})
	}
	g.targetAz, g.targetEl = g.limitAzimuth(g.targetAz-dAz), g.limitElevation(g.targetEl-dEl)
}

// Calibrate makes the current physical orientation read as azimuth 0,
// elevation 0 and holds it there.
func (g *Gimbal) Calibrate() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cfg.Simulate {
		g.offsetAz, g.offsetEl = g.offsetAz+g.az, g.offsetEl+g.el
	} else {
		if !g.haveRaw {
			return ErrNoOrientation
		}
		g.offsetAz, g.offsetEl = g.rawAz, g.rawEl
	}
	g.az, g.el = 0, 0
	g.targetAz, g.targetEl = 0, 0
	return nil
}
