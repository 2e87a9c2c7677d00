// Package sequencer translates logical rover commands into timed sequences of
// output-line writes.  All actuation is serialized through a single worker:
// one command runs to completion (or interruption) before the next starts, so
// two requests can never interleave writes on the same lines.
package sequencer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/spraybot-team/spraybot/pkg/hardware"
)

var (
	ErrInvalidDirection = errors.New("invalid direction")

	// ErrInterrupted is returned by a command whose wait was cut short by
	// Stop() or by shutdown.  The outputs are still left quiescent.
	ErrInterrupted = errors.New("command interrupted")
)

type command struct {
	name   string
	ctx    context.Context
	run    func(ctx context.Context) (string, error)
	result chan commandResult
}

type commandResult struct {
	status string
	err    error
}

// Sequencer owns the hardware handle exclusively.  Commands are submitted to
// an unbuffered queue consumed by a single worker goroutine; callers block
// until their command has fully executed.
type Sequencer struct {
	hw     hardware.Interface
	logger *zap.SugaredLogger
	clock  clock.Clock

	commands chan *command

	mu               sync.Mutex
	interruptCurrent context.CancelFunc
}

func New(hw hardware.Interface, logger *zap.SugaredLogger) *Sequencer {
	return &Sequencer{
		hw:       hw,
		logger:   logger,
		clock:    clock.New(),
		commands: make(chan *command),
	}
}

// Start launches the worker.  Cancelling ctx interrupts any in-flight
// command and stops the worker; the command's own cleanup (zero duties,
// relay off) still runs before it returns.
func (s *Sequencer) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *Sequencer) loop(ctx context.Context) {
	s.logger.Info("Sequencer worker started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sequencer worker stopped")
			return
		case cmd := <-s.commands:
			opCtx, cancel := context.WithCancel(cmd.ctx)
			stopWatch := context.AfterFunc(ctx, cancel)

			s.mu.Lock()
			s.interruptCurrent = cancel
			s.mu.Unlock()

			status, err := cmd.run(opCtx)

			s.mu.Lock()
			s.interruptCurrent = nil
			s.mu.Unlock()
			stopWatch()
			cancel()

			cmd.result <- commandResult{status: status, err: err}
		}
	}
}

// Interrupt cancels the wait of whatever command is currently executing.
// The command still performs its cleanup writes before returning
// ErrInterrupted to its caller.
func (s *Sequencer) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interruptCurrent != nil {
		s.interruptCurrent()
	}
}

func (s *Sequencer) submit(ctx context.Context, name string, run func(ctx context.Context) (string, error)) (string, error) {
	cmd := &command{
		name: name,
		ctx:  ctx,
		run:  run,
		// Buffered so the worker never blocks on a caller that gave up.
		result: make(chan commandResult, 1),
	}
	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return "", errors.Wrapf(ctx.Err(), "waiting to enqueue %s", name)
	}
	select {
	case res := <-cmd.result:
		return res.status, res.err
	case <-ctx.Done():
		return "", errors.Wrapf(ctx.Err(), "waiting for %s to finish", name)
	}
}

// wait blocks for d on the sequencer's clock, bailing out early if the
// operation is interrupted.
func (s *Sequencer) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := s.clock.Timer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ErrInterrupted
	}
}

// Drive moves the rover in the given direction for the given distance.
// Direction is one of forward/backward/left/right (case-insensitive).
// Turning halves the commanded speed; the time estimate uses the halved
// value, exactly as the duty cycle does.
func (s *Sequencer) Drive(ctx context.Context, direction string, distanceM float64, speedPct int) (string, error) {
	dir := strings.ToLower(strings.TrimSpace(direction))

	var dir1High, dir2High bool
	speed := speedPct
	switch dir {
	case "forward":
		// Both direction bits low.
	case "backward":
		dir1High, dir2High = true, true
	case "left":
		dir1High = true
		speed = speed / 2 // Reduce speed for turning.
	case "right":
		dir2High = true
		speed = speed / 2 // Reduce speed for turning.
	default:
		return "", errors.Wrapf(ErrInvalidDirection, "%q", direction)
	}

	return s.submit(ctx, "drive", func(ctx context.Context) (string, error) {
		if err := s.hw.SetMotorDirections(dir1High, dir2High); err != nil {
			return "", errors.Wrap(err, "setting motor directions")
		}
		if err := s.hw.SetMotorDuty(float64(speed), float64(speed)); err != nil {
			return "", errors.Wrap(err, "setting motor duty")
		}
		runFor := DriveTime(distanceM, speed)
		s.logger.Infow("Driving", "direction", dir, "distance_m", distanceM, "speed_pct", speed, "run_for", runFor)

		waitErr := s.wait(ctx, runFor)

		if err := s.hw.SetMotorDuty(0, 0); err != nil {
			return "", errors.Wrap(err, "zeroing motor duty")
		}
		if waitErr != nil {
			return "", waitErr
		}
		return fmt.Sprintf("Moved %s for %v meters at %d%% speed", dir, distanceM, speed), nil
	})
}

// Stop interrupts any in-flight command and zeroes both motor duty cycles.
// Direction bits are left alone.
func (s *Sequencer) Stop(ctx context.Context) (string, error) {
	s.Interrupt()
	return s.submit(ctx, "stop", func(ctx context.Context) (string, error) {
		if err := s.hw.SetMotorDuty(0, 0); err != nil {
			return "", errors.Wrap(err, "zeroing motor duty")
		}
		s.logger.Info("Motors stopped")
		return "Motor stopped", nil
	})
}

// AimCamera points the camera servo left, right or straight
// (case-insensitive).  Unknown directions touch no hardware.
func (s *Sequencer) AimCamera(ctx context.Context, direction string) (string, error) {
	dir := strings.ToLower(strings.TrimSpace(direction))
	angle, ok := cameraAngles[dir]
	if !ok {
		return "", errors.Wrapf(ErrInvalidDirection, "%q: use 'left', 'right' or 'straight'", direction)
	}
	return s.submit(ctx, "aim-camera", func(ctx context.Context) (string, error) {
		if err := s.aimServo(ctx, s.hw.SetCameraServoDuty, angle); err != nil {
			return "", errors.Wrap(err, "camera servo")
		}
		return fmt.Sprintf("Camera rotated %s (%g°)", dir, angle), nil
	})
}

// AimSprayNozzle points the spray nozzle servo at the given angle.  The
// 0-180 range is enforced by the request schema, not here.
func (s *Sequencer) AimSprayNozzle(ctx context.Context, angleDeg float64) (string, error) {
	return s.submit(ctx, "aim-nozzle", func(ctx context.Context) (string, error) {
		if err := s.aimServo(ctx, s.hw.SetSprayServoDuty, angleDeg); err != nil {
			return "", errors.Wrap(err, "spray servo")
		}
		return fmt.Sprintf("Spray nozzle rotated to %g°", angleDeg), nil
	})
}

// aimServo applies the duty for the angle, holds it for the settle time and
// then releases the line so the servo doesn't buzz while idle.
func (s *Sequencer) aimServo(ctx context.Context, setDuty func(float64) error, angleDeg float64) error {
	if err := setDuty(ServoDuty(angleDeg)); err != nil {
		return err
	}
	waitErr := s.wait(ctx, ServoSettleTime)
	if err := setDuty(0); err != nil {
		return err
	}
	return waitErr
}

// FireSpray energizes the spray pump relay for the given duration.  The
// relay is always returned to its de-energized level, even when the wait is
// interrupted.
func (s *Sequencer) FireSpray(ctx context.Context, d time.Duration) (string, error) {
	if d <= 0 {
		d = DefaultSprayDuration
	}
	return s.submit(ctx, "fire-spray", func(ctx context.Context) (string, error) {
		if err := s.hw.SetSprayRelay(true); err != nil {
			return "", errors.Wrap(err, "energizing spray relay")
		}
		s.logger.Infow("Spraying", "duration", d)

		waitErr := s.wait(ctx, d)

		if err := s.hw.SetSprayRelay(false); err != nil {
			return "", multierr.Append(waitErr, errors.Wrap(err, "de-energizing spray relay"))
		}
		if waitErr != nil {
			return "", waitErr
		}
		return fmt.Sprintf("Spray activated for %g seconds", d.Seconds()), nil
	})
}
