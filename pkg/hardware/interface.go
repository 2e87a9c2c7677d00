package hardware

// Interface is the set of physical output lines on the rover.  Exactly one
// implementation instance exists per process; the sequencer owns it and is the
// only writer.
type Interface interface {
	// Motor direction bits.  forward = both low, backward = both high,
	// left = dir1 high, right = dir2 high.
	SetMotorDirections(dir1High, dir2High bool) error

	// Motor PWM duty cycles in percent (0-100).
	SetMotorDuty(left, right float64) error

	// Servo PWM duty cycles in percent (0-100).  0 releases the servo
	// (no pulses) so it doesn't buzz while idle.
	SetCameraServoDuty(pct float64) error
	SetSprayServoDuty(pct float64) error

	// Spray pump relay.  on = energized = pump powered.
	SetSprayRelay(on bool) error

	// Close returns every line to its quiescent level (duties zero, relay
	// de-energized) and releases the hardware.  Safe to call at any time,
	// including while a command is mid-flight.
	Close() error
}
