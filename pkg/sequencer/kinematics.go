package sequencer

import (
	"math"
	"time"
)

// Rover geometry and servo calibration.  Fixed properties of the build, not
// configuration.
const (
	WheelDiameterM = 0.15
	MaxRPM         = 50.0

	// Empirical time for the hobby servos to reach a commanded position.
	ServoSettleTime = 500 * time.Millisecond

	DefaultSprayDuration = 5 * time.Second
)

// Camera mount positions, in servo degrees.
var cameraAngles = map[string]float64{
	"left":     60,
	"right":    120,
	"straight": 90,
}

// DriveTime estimates how long the motors must run to cover the given
// distance, from the no-load RPM at the given duty cycle.  Open loop: there
// is no encoder to correct the estimate.  Zero or negative speed never
// divides by zero; the answer is simply "no time at all".
func DriveTime(distanceM float64, speedPct int) time.Duration {
	if speedPct <= 0 || distanceM <= 0 {
		return 0
	}
	circumference := math.Pi * WheelDiameterM
	rps := MaxRPM * float64(speedPct) / 100 / 60
	linearSpeed := circumference * rps // meters per second
	return time.Duration(distanceM / linearSpeed * float64(time.Second))
}

// ServoDuty converts a servo angle to a 50Hz PWM duty cycle in percent.
// Standard hobby-servo calibration: 2.5% duty at 0 degrees, 12.5% at 180,
// 18 degrees per percent in between.
func ServoDuty(angleDeg float64) float64 {
	return 2.5 + angleDeg/18
}
