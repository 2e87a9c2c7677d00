package pca9685

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/io/i2c"
)

const (
	DefaultAddr = 0x40

	RegMode1 = 0x00
	RegMode2 = 0x01

	// Each PWM output has two 16-bit (low byte first) registers.
	// First register is the on time, second is the off time.
	RegLEDBase = 0x06

	RegPreScale = 0xfe // Pre-scaler for PWM frequency.

	PWMMax = 4095

	// Internal oscillator frequency, per the datasheet.
	oscillatorHz = 25000000

	ServoFrequencyHz = 50
)

type Interface interface {
	Configure() error
	SetDutyPct(port int, pct float64) error
	Close() error
}

type PCA9685 struct {
	dev      *i2c.Device
	prescale byte
}

// New opens the PCA9685 on the given I2C bus and computes the prescaler for
// the requested PWM frequency (24-1526Hz per the datasheet).
func New(deviceFile string, freqHz int) (Interface, error) {
	if freqHz < 24 || freqHz > 1526 {
		return nil, errors.Errorf("PWM frequency out of range: %dHz", freqHz)
	}
	dev, err := i2c.Open(&i2c.Devfs{Dev: deviceFile}, DefaultAddr)
	if err != nil {
		return nil, errors.Wrap(err, "opening PCA9685")
	}
	prescale := byte(math.Round(oscillatorHz/(4096*float64(freqHz))) - 1)
	return &PCA9685{
		dev:      dev,
		prescale: prescale,
	}, nil
}

func (p *PCA9685) Configure() (err error) {
	// Put device to sleep; the prescaler can only be set while asleep.
	err = p.dev.WriteReg(RegMode1, []byte{0x11})
	if err != nil {
		return
	}
	err = p.dev.WriteReg(RegPreScale, []byte{p.prescale})
	if err != nil {
		return
	}
	// Trigger a reset
	err = p.dev.WriteReg(RegMode1, []byte{0x01})
	if err != nil {
		return
	}
	// Required delay after reset.
	time.Sleep(1 * time.Millisecond)
	// Enable with auto-increment.
	err = p.dev.WriteReg(RegMode1, []byte{0x81})
	return
}

// SetDutyPct sets one output's duty cycle in percent; 0 holds the line fully
// off, which releases an attached servo.
func (p *PCA9685) SetDutyPct(port int, pct float64) error {
	if port < 0 || port > 15 {
		return errors.Errorf("PWM port out of range: %d", port)
	}
	if pct < 0 {
		pct = 0
	} else if pct > 100 {
		pct = 100
	}

	pwmValue := uint16(PWMMax * pct / 100)
	addr := RegLEDBase + port*4

	return p.dev.WriteReg(byte(addr), []byte{0, 0, byte(pwmValue & 0xff), byte(pwmValue >> 8)})
}

func (p *PCA9685) Close() error {
	return p.dev.Close()
}

func Dummy() Interface {
	return &dummyDriver{}
}

type dummyDriver struct {
}

func (*dummyDriver) Configure() error {
	return nil
}

func (*dummyDriver) SetDutyPct(port int, pct float64) error {
	return nil
}

func (*dummyDriver) Close() error {
	return nil
}
