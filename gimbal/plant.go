package gimbal

import (
	"math"
	"time"

	"github.com/w1xm/rotator_bridge/rotator"
)

// ramp stands in for the motors and sensor in simulation mode: the position
// slews toward the target at SimRate and snaps onto it once within one step.
func (g *Gimbal) ramp(pos, target float64, elapsed time.Duration, azimuth bool) float64 {
	step := g.cfg.SimRate * elapsed.Seconds()
	var move float64
	if azimuth {
		move = rotator.ShortestError(target, pos)
	} else {
		move = target - pos
	}
	if math.Abs(move) <= step {
		return target
	}
	pos += math.Copysign(step, move)
	if azimuth {
		return g.limitAzimuth(pos)
	}
	return g.limitElevation(pos)
}
