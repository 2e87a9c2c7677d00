package hardware

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/spraybot-team/spraybot/pkg/pca9685"
)

// BCM pin assignments.  These are wired into the rover's loom; they are
// deliberately constants rather than configuration.
const (
	PinMotorPWM1   = "GPIO18" // left motor speed
	PinMotorDir1   = "GPIO23" // left motor direction
	PinMotorPWM2   = "GPIO19" // right motor speed
	PinMotorDir2   = "GPIO24" // right motor direction
	PinCameraServo = "GPIO17"
	PinSprayServo  = "GPIO27"
	PinSprayRelay  = "GPIO26"

	MotorPWMPeriod = time.Millisecond      // 1kHz
	ServoPWMPeriod = 20 * time.Millisecond // servos need 50Hz
)

// The relay board is active-low: driving the line low energizes the coil.
const (
	relayEnergized = gpio.Low
	relayIdle      = gpio.High
)

const (
	ServoDriverGPIO    = "gpio"
	ServoDriverPCA9685 = "pca9685"
)

// Options selects how the PWM lines are driven.  Motors and digital lines are
// always native GPIO; the two servo channels can be moved onto a PCA9685 hat.
type Options struct {
	ServoDriver string
	I2CDevice   string
}

type pwmOut interface {
	setDuty(pct float64) error
}

// RPi drives the rover's output lines through the Pi's GPIO header.  The
// motor and (by default) servo PWM signals are generated by software loops;
// the kernel doesn't expose hardware PWM on these lines through sysfs.
type RPi struct {
	logger *zap.SugaredLogger

	dir1, dir2, relay gpio.PinIO

	motorLeft, motorRight   *softPWM
	cameraServo, sprayServo pwmOut

	pca pca9685.Interface

	cancel  context.CancelFunc
	loopsWG sync.WaitGroup
}

var _ Interface = (*RPi)(nil)

// NewRPi acquires every output line and puts it in its quiescent state.  Any
// failure here is fatal to process launch; there's no safe way to run with a
// partially-acquired loom.
func NewRPi(opts Options, logger *zap.SugaredLogger) (*RPi, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "initialising periph host")
	}

	h := &RPi{logger: logger}

	var err error
	if h.dir1, err = openOut(PinMotorDir1, gpio.Low); err != nil {
		return nil, err
	}
	if h.dir2, err = openOut(PinMotorDir2, gpio.Low); err != nil {
		return nil, err
	}
	if h.relay, err = openOut(PinSprayRelay, relayIdle); err != nil {
		return nil, err
	}

	pwm1, err := openOut(PinMotorPWM1, gpio.Low)
	if err != nil {
		return nil, err
	}
	pwm2, err := openOut(PinMotorPWM2, gpio.Low)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	h.motorLeft = newSoftPWM(pwm1, MotorPWMPeriod, "motor-left", logger)
	h.motorRight = newSoftPWM(pwm2, MotorPWMPeriod, "motor-right", logger)
	h.startLoop(ctx, h.motorLeft)
	h.startLoop(ctx, h.motorRight)

	switch opts.ServoDriver {
	case ServoDriverPCA9685:
		drv, err := pca9685.New(opts.I2CDevice, pca9685.ServoFrequencyHz)
		if err != nil {
			cancel()
			return nil, errors.Wrap(err, "opening PCA9685")
		}
		if err := drv.Configure(); err != nil {
			cancel()
			return nil, errors.Wrap(err, "configuring PCA9685")
		}
		h.pca = drv
		h.cameraServo = pcaChannel{drv: drv, port: 0}
		h.sprayServo = pcaChannel{drv: drv, port: 1}
	case ServoDriverGPIO, "":
		camPin, err := openOut(PinCameraServo, gpio.Low)
		if err != nil {
			cancel()
			return nil, err
		}
		sprayPin, err := openOut(PinSprayServo, gpio.Low)
		if err != nil {
			cancel()
			return nil, err
		}
		cam := newSoftPWM(camPin, ServoPWMPeriod, "camera-servo", logger)
		spray := newSoftPWM(sprayPin, ServoPWMPeriod, "spray-servo", logger)
		h.startLoop(ctx, cam)
		h.startLoop(ctx, spray)
		h.cameraServo = cam
		h.sprayServo = spray
	default:
		cancel()
		return nil, errors.Errorf("unknown servo driver %q", opts.ServoDriver)
	}

	logger.Infow("Hardware initialised", "servo_driver", opts.ServoDriver)
	return h, nil
}

func openOut(name string, level gpio.Level) (gpio.PinIO, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, errors.Errorf("no GPIO line found for %q", name)
	}
	if err := pin.Out(level); err != nil {
		return nil, errors.Wrapf(err, "driving %s to initial level", name)
	}
	return pin, nil
}

func (h *RPi) startLoop(ctx context.Context, p *softPWM) {
	h.loopsWG.Add(1)
	go func() {
		defer h.loopsWG.Done()
		p.loop(ctx)
	}()
}

func (h *RPi) SetMotorDirections(dir1High, dir2High bool) error {
	if err := h.dir1.Out(gpio.Level(dir1High)); err != nil {
		return errors.Wrap(err, "writing DIR1")
	}
	if err := h.dir2.Out(gpio.Level(dir2High)); err != nil {
		return errors.Wrap(err, "writing DIR2")
	}
	return nil
}

func (h *RPi) SetMotorDuty(left, right float64) error {
	return multierr.Combine(
		h.motorLeft.setDuty(left),
		h.motorRight.setDuty(right),
	)
}

func (h *RPi) SetCameraServoDuty(pct float64) error {
	return h.cameraServo.setDuty(pct)
}

func (h *RPi) SetSprayServoDuty(pct float64) error {
	return h.sprayServo.setDuty(pct)
}

func (h *RPi) SetSprayRelay(on bool) error {
	level := relayIdle
	if on {
		level = relayEnergized
	}
	return errors.Wrap(h.relay.Out(level), "writing spray relay")
}

// Close forces every line quiescent and stops the PWM loops.  Runs
// unconditionally; errors are collected rather than aborting early so a
// failure on one line never leaves another energized.
func (h *RPi) Close() error {
	err := multierr.Combine(
		h.SetMotorDuty(0, 0),
		h.SetCameraServoDuty(0),
		h.SetSprayServoDuty(0),
		h.SetSprayRelay(false),
	)

	h.cancel()
	h.loopsWG.Wait()

	err = multierr.Combine(err,
		errors.Wrap(h.dir1.Out(gpio.Low), "parking DIR1"),
		errors.Wrap(h.dir2.Out(gpio.Low), "parking DIR2"),
		errors.Wrap(h.relay.Out(relayIdle), "parking spray relay"),
	)
	if h.pca != nil {
		err = multierr.Combine(err, h.pca.Close())
	}
	h.logger.Info("Hardware released")
	return err
}

// pcaChannel adapts one PCA9685 output to the pwmOut interface.
type pcaChannel struct {
	drv  pca9685.Interface
	port int
}

func (c pcaChannel) setDuty(pct float64) error {
	return c.drv.SetDutyPct(c.port, pct)
}
