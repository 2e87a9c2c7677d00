package sequencer

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spraybot-team/spraybot/pkg/hardware"
)

type fixture struct {
	seq  *Sequencer
	hw   *hardware.Dummy
	mock *clock.Mock
}

func newFixture(t *testing.T) (*fixture, context.CancelFunc) {
	t.Helper()
	hw := hardware.NewDummy()
	seq := New(hw, zap.NewNop().Sugar())
	mock := clock.NewMock()
	seq.clock = mock

	ctx, cancel := context.WithCancel(context.Background())
	seq.Start(ctx)
	t.Cleanup(cancel)
	return &fixture{seq: seq, hw: hw, mock: mock}, cancel
}

// eventually polls cond on real time; the mock clock only gates the
// sequencer's own waits.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// settle gives the worker time to reach its timer before the mock clock is
// advanced.
func settle() {
	time.Sleep(50 * time.Millisecond)
}

type asyncResult struct {
	status string
	err    error
}

func goDrive(f *fixture, direction string, distance float64, speed int) chan asyncResult {
	ch := make(chan asyncResult, 1)
	go func() {
		st, err := f.seq.Drive(context.Background(), direction, distance, speed)
		ch <- asyncResult{st, err}
	}()
	return ch
}

func requireNoResult(t *testing.T, ch chan asyncResult) {
	t.Helper()
	select {
	case res := <-ch:
		t.Fatalf("command finished early: %+v", res)
	default:
	}
}

func requireResult(t *testing.T, ch chan asyncResult) asyncResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command result")
		return asyncResult{}
	}
}

func TestDriveForwardTiming(t *testing.T) {
	f, _ := newFixture(t)
	ch := goDrive(f, "forward", 0.5, 50)

	eventually(t, func() bool {
		l, r := f.hw.MotorDuty()
		return l == 50 && r == 50
	}, "motor duty never reached 50")
	dir1, dir2 := f.hw.MotorDirections()
	assert.False(t, dir1)
	assert.False(t, dir2)
	settle()

	// Estimated run time is ~2.546s; at 2.0s the motors must still be on.
	f.mock.Add(2 * time.Second)
	settle()
	requireNoResult(t, ch)
	l, r := f.hw.MotorDuty()
	assert.Equal(t, 50.0, l)
	assert.Equal(t, 50.0, r)

	f.mock.Add(600 * time.Millisecond)
	res := requireResult(t, ch)
	require.NoError(t, res.err)
	assert.Equal(t, "Moved forward for 0.5 meters at 50% speed", res.status)
	l, r = f.hw.MotorDuty()
	assert.Zero(t, l)
	assert.Zero(t, r)
}

func TestDriveBackwardDirections(t *testing.T) {
	f, _ := newFixture(t)
	ch := goDrive(f, "backward", 1.0, 40)

	eventually(t, func() bool {
		l, _ := f.hw.MotorDuty()
		return l == 40
	}, "motor duty never set")
	dir1, dir2 := f.hw.MotorDirections()
	assert.True(t, dir1)
	assert.True(t, dir2)
	settle()

	f.mock.Add(time.Hour)
	res := requireResult(t, ch)
	require.NoError(t, res.err)
}

func TestDriveTurnsHalveSpeed(t *testing.T) {
	for _, tc := range []struct {
		direction  string
		dir1, dir2 bool
	}{
		{"left", true, false},
		{"right", false, true},
	} {
		t.Run(tc.direction, func(t *testing.T) {
			f, _ := newFixture(t)
			ch := goDrive(f, tc.direction, 1.0, 51)

			eventually(t, func() bool {
				l, r := f.hw.MotorDuty()
				return l == 25 && r == 25 // 51/2 with integer halving
			}, "turn duty never reached half speed")
			dir1, dir2 := f.hw.MotorDirections()
			assert.Equal(t, tc.dir1, dir1)
			assert.Equal(t, tc.dir2, dir2)
			settle()

			f.mock.Add(time.Hour)
			res := requireResult(t, ch)
			require.NoError(t, res.err)
			assert.Equal(t, "Moved "+tc.direction+" for 1 meters at 25% speed", res.status)
		})
	}
}

func TestDriveZeroSpeedReturnsImmediately(t *testing.T) {
	f, _ := newFixture(t)
	// No mock-clock advance: a zero-speed drive must not wait at all.
	status, err := f.seq.Drive(context.Background(), "forward", 5.0, 0)
	require.NoError(t, err)
	assert.Equal(t, "Moved forward for 5 meters at 0% speed", status)
	l, r := f.hw.MotorDuty()
	assert.Zero(t, l)
	assert.Zero(t, r)
}

func TestDriveInvalidDirection(t *testing.T) {
	f, _ := newFixture(t)
	_, err := f.seq.Drive(context.Background(), "up", 1.0, 50)
	require.ErrorIs(t, err, ErrInvalidDirection)
	assert.Zero(t, f.hw.WriteCount())
}

func TestStopZeroesMotors(t *testing.T) {
	f, _ := newFixture(t)
	ch := goDrive(f, "forward", 100, 80)

	eventually(t, func() bool {
		l, _ := f.hw.MotorDuty()
		return l == 80
	}, "motor duty never set")
	settle()

	status, err := f.seq.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Motor stopped", status)

	res := requireResult(t, ch)
	require.ErrorIs(t, res.err, ErrInterrupted)
	l, r := f.hw.MotorDuty()
	assert.Zero(t, l)
	assert.Zero(t, r)
}

func TestStopWhenIdle(t *testing.T) {
	f, _ := newFixture(t)
	status, err := f.seq.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Motor stopped", status)
}

func TestAimCameraCaseInsensitive(t *testing.T) {
	for _, direction := range []string{"left", "LEFT"} {
		t.Run(direction, func(t *testing.T) {
			f, _ := newFixture(t)
			ch := make(chan asyncResult, 1)
			go func() {
				st, err := f.seq.AimCamera(context.Background(), direction)
				ch <- asyncResult{st, err}
			}()

			eventually(t, func() bool {
				return f.hw.CameraServoDuty() > 0
			}, "camera servo duty never set")
			assert.InDelta(t, ServoDuty(60), f.hw.CameraServoDuty(), 1e-9)
			settle()

			f.mock.Add(ServoSettleTime + 100*time.Millisecond)
			res := requireResult(t, ch)
			require.NoError(t, res.err)
			assert.Equal(t, "Camera rotated left (60°)", res.status)
			assert.Zero(t, f.hw.CameraServoDuty())
		})
	}
}

func TestAimCameraInvalidDirection(t *testing.T) {
	f, _ := newFixture(t)
	_, err := f.seq.AimCamera(context.Background(), "up")
	require.ErrorIs(t, err, ErrInvalidDirection)
	assert.Zero(t, f.hw.WriteCount())
}

func TestAimSprayNozzle(t *testing.T) {
	f, _ := newFixture(t)
	ch := make(chan asyncResult, 1)
	go func() {
		st, err := f.seq.AimSprayNozzle(context.Background(), 45)
		ch <- asyncResult{st, err}
	}()

	eventually(t, func() bool {
		return f.hw.SprayServoDuty() > 0
	}, "spray servo duty never set")
	assert.InDelta(t, ServoDuty(45), f.hw.SprayServoDuty(), 1e-9)
	settle()

	f.mock.Add(ServoSettleTime + 100*time.Millisecond)
	res := requireResult(t, ch)
	require.NoError(t, res.err)
	assert.Equal(t, "Spray nozzle rotated to 45°", res.status)
	assert.Zero(t, f.hw.SprayServoDuty())
}

func TestFireSprayTiming(t *testing.T) {
	f, _ := newFixture(t)
	ch := make(chan asyncResult, 1)
	go func() {
		st, err := f.seq.FireSpray(context.Background(), 2*time.Second)
		ch <- asyncResult{st, err}
	}()

	eventually(t, f.hw.RelayEnergized, "relay never energized")
	settle()

	// Must hold for the full two seconds.
	f.mock.Add(1900 * time.Millisecond)
	settle()
	requireNoResult(t, ch)
	assert.True(t, f.hw.RelayEnergized())

	f.mock.Add(200 * time.Millisecond)
	res := requireResult(t, ch)
	require.NoError(t, res.err)
	assert.Equal(t, "Spray activated for 2 seconds", res.status)
	assert.False(t, f.hw.RelayEnergized())
}

func TestFireSprayDefaultDuration(t *testing.T) {
	f, _ := newFixture(t)
	ch := make(chan asyncResult, 1)
	go func() {
		st, err := f.seq.FireSpray(context.Background(), 0)
		ch <- asyncResult{st, err}
	}()

	eventually(t, f.hw.RelayEnergized, "relay never energized")
	settle()

	f.mock.Add(DefaultSprayDuration + 100*time.Millisecond)
	res := requireResult(t, ch)
	require.NoError(t, res.err)
	assert.Equal(t, "Spray activated for 5 seconds", res.status)
	assert.False(t, f.hw.RelayEnergized())
}

func TestShutdownMidSprayReleasesRelay(t *testing.T) {
	f, cancel := newFixture(t)
	ch := make(chan asyncResult, 1)
	go func() {
		st, err := f.seq.FireSpray(context.Background(), 30*time.Second)
		ch <- asyncResult{st, err}
	}()

	eventually(t, f.hw.RelayEnergized, "relay never energized")
	settle()

	// Shut the worker down mid-command.
	cancel()
	res := requireResult(t, ch)
	require.ErrorIs(t, res.err, ErrInterrupted)
	assert.False(t, f.hw.RelayEnergized())

	require.NoError(t, f.hw.Close())
	assert.False(t, f.hw.RelayEnergized())
}

func TestCommandsSerialize(t *testing.T) {
	f, _ := newFixture(t)
	first := goDrive(f, "forward", 0.5, 50)
	eventually(t, func() bool {
		l, _ := f.hw.MotorDuty()
		return l == 50
	}, "first drive never started")
	settle()

	// A second command must queue behind the first, not touch the lines.
	second := make(chan asyncResult, 1)
	go func() {
		st, err := f.seq.FireSpray(context.Background(), time.Second)
		second <- asyncResult{st, err}
	}()
	settle()
	requireNoResult(t, second)
	assert.False(t, f.hw.RelayEnergized())

	f.mock.Add(3 * time.Second)
	requireResult(t, first)

	eventually(t, f.hw.RelayEnergized, "queued spray never started")
	settle()
	f.mock.Add(1100 * time.Millisecond)
	res := requireResult(t, second)
	require.NoError(t, res.err)
}
