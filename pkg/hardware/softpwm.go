package hardware

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
)

// softPWM bit-bangs a PWM signal on a plain GPIO output.  Jitter from the
// scheduler is fine for brushed motor drivers and hobby servos; neither needs
// a precise edge, just a roughly correct mark/space ratio.
type softPWM struct {
	pin        gpio.PinIO
	period     time.Duration
	idlePeriod time.Duration
	name       string
	logger     *zap.SugaredLogger

	mu   sync.Mutex
	duty float64 // percent, 0-100
}

func newSoftPWM(pin gpio.PinIO, period time.Duration, name string, logger *zap.SugaredLogger) *softPWM {
	// No need to re-drive an idle or saturated line at the full PWM rate.
	idle := period
	if idle < 5*time.Millisecond {
		idle = 5 * time.Millisecond
	}
	return &softPWM{
		pin:        pin,
		period:     period,
		idlePeriod: idle,
		name:       name,
		logger:     logger,
	}
}

func (s *softPWM) setDuty(pct float64) error {
	s.mu.Lock()
	s.duty = clampDuty(pct)
	s.mu.Unlock()
	return nil
}

func (s *softPWM) currentDuty() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duty
}

func (s *softPWM) loop(ctx context.Context) {
	for ctx.Err() == nil {
		duty := s.currentDuty()
		switch {
		case duty <= 0:
			s.write(gpio.Low)
			sleepCtx(ctx, s.idlePeriod)
		case duty >= 100:
			s.write(gpio.High)
			sleepCtx(ctx, s.idlePeriod)
		default:
			on := onTime(s.period, duty)
			s.write(gpio.High)
			sleepCtx(ctx, on)
			s.write(gpio.Low)
			sleepCtx(ctx, s.period-on)
		}
	}
	s.write(gpio.Low)
}

func (s *softPWM) write(level gpio.Level) {
	if err := s.pin.Out(level); err != nil {
		s.logger.Errorw("Failed to write PWM pin", "pin", s.name, "error", err)
	}
}

func onTime(period time.Duration, dutyPct float64) time.Duration {
	return time.Duration(float64(period) * dutyPct / 100)
}

func clampDuty(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
