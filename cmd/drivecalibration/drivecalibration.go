package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/spraybot-team/spraybot/pkg/hardware"
	"github.com/spraybot-team/spraybot/pkg/sequencer"
)

// Runs one open-loop drive and compares the kinematic estimate against a
// tape-measure reading, to sanity check the wheel-diameter/RPM constants.

var (
	direction = flag.String("direction", "forward", "forward/backward/left/right")
	distance  = flag.Float64("distance", 1.0, "commanded distance in meters")
	speed     = flag.Int("speed", 50, "speed percent 0-100")
	dummy     = flag.Bool("dummy", false, "use dummy hardware")
)

func main() {
	flag.Parse()
	fmt.Println("---- Drive Calibration ----")

	logger := zap.Must(zap.NewDevelopment()).Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hw hardware.Interface
	if *dummy {
		hw = hardware.NewDummy()
	} else {
		rpi, err := hardware.NewRPi(hardware.Options{
			ServoDriver: hardware.ServoDriverGPIO,
			I2CDevice:   "/dev/i2c-1",
		}, logger)
		if err != nil {
			fmt.Println("Failed to open hardware", err)
			return
		}
		hw = rpi
	}
	defer func() {
		fmt.Println("Zeroing outputs for shut down")
		_ = hw.Close()
		time.Sleep(100 * time.Millisecond)
	}()

	seq := sequencer.New(hw, logger)
	seq.Start(ctx)

	estimate := sequencer.DriveTime(*distance, *speed)
	fmt.Printf("Estimated run time: %v\n", estimate)

	start := time.Now()
	status, err := seq.Drive(ctx, *direction, *distance, *speed)
	if err != nil {
		fmt.Println("Drive failed: ", err)
		return
	}
	fmt.Printf("%s (took %v)\n", status, time.Since(start))

	measured := readMeasurement()
	if measured > 0 {
		errPct := (measured - *distance) / *distance * 100
		fmt.Printf("Commanded %vm, measured %vm: error %.1f%%\n", *distance, measured, errPct)
	}
}

func readMeasurement() float64 {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Println("Enter measured distance (m), or blank to skip:")
		if !scanner.Scan() {
			return 0
		}
		text := scanner.Text()
		if text == "" {
			return 0
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			fmt.Printf("error: %v, please try again:\n", err)
			continue
		}
		return v
	}
}
