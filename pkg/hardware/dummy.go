package hardware

import (
	"sync"
	"time"
)

// Write is one recorded output-line write.
type Write struct {
	Line  string
	Value float64
	At    time.Time
}

// Dummy is an in-memory stand-in for the real output lines.  Used by the
// tests and for running the controller off-robot.
type Dummy struct {
	mu sync.Mutex

	dir1High, dir2High    bool
	dutyLeft, dutyRight   float64
	cameraDuty, sprayDuty float64
	relayOn               bool
	closed                bool

	writes []Write
}

var _ Interface = (*Dummy)(nil)

func NewDummy() *Dummy {
	return &Dummy{}
}

func (d *Dummy) record(line string, value float64) {
	d.writes = append(d.writes, Write{Line: line, Value: value, At: time.Now()})
}

func (d *Dummy) SetMotorDirections(dir1High, dir2High bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dir1High, d.dir2High = dir1High, dir2High
	d.record("dir1", boolVal(dir1High))
	d.record("dir2", boolVal(dir2High))
	return nil
}

func (d *Dummy) SetMotorDuty(left, right float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dutyLeft, d.dutyRight = left, right
	d.record("motor-left", left)
	d.record("motor-right", right)
	return nil
}

func (d *Dummy) SetCameraServoDuty(pct float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cameraDuty = pct
	d.record("camera-servo", pct)
	return nil
}

func (d *Dummy) SetSprayServoDuty(pct float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sprayDuty = pct
	d.record("spray-servo", pct)
	return nil
}

func (d *Dummy) SetSprayRelay(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.relayOn = on
	d.record("spray-relay", boolVal(on))
	return nil
}

func (d *Dummy) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dutyLeft, d.dutyRight = 0, 0
	d.cameraDuty, d.sprayDuty = 0, 0
	d.relayOn = false
	d.closed = true
	return nil
}

func (d *Dummy) MotorDirections() (dir1High, dir2High bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dir1High, d.dir2High
}

func (d *Dummy) MotorDuty() (left, right float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dutyLeft, d.dutyRight
}

func (d *Dummy) CameraServoDuty() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cameraDuty
}

func (d *Dummy) SprayServoDuty() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sprayDuty
}

func (d *Dummy) RelayEnergized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.relayOn
}

func (d *Dummy) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// WriteCount reports how many line writes have happened.
func (d *Dummy) WriteCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.writes)
}

// Writes returns a copy of every recorded write in order.
func (d *Dummy) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Write, len(d.writes))
	copy(out, d.writes)
	return out
}

func boolVal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
