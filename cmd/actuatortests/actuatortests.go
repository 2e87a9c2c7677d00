package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spraybot-team/spraybot/pkg/hardware"
)

// Bench tool: poke individual output lines through the hardware layer.

func main() {
	logger := zap.Must(zap.NewDevelopment()).Sugar()

	hw, err := hardware.NewRPi(hardware.Options{
		ServoDriver: hardware.ServoDriverGPIO,
		I2CDevice:   "/dev/i2c-1",
	}, logger)
	if err != nil {
		fmt.Println("Failed to open hardware", err)
		return
	}
	defer hw.Close()

	fmt.Println(
		`Commands:
    m <left> <right>  # Motor duty cycles
    d <1|2> <0|1>     # Motor direction bit
    c <duty>          # Camera servo duty cycle
    s <duty>          # Spray servo duty cycle
    r <0|1>           # Spray relay (1 = energized)
    q                 # Zero everything and quit

<duty>  Duty cycle in percent 0-100; 0=fully off\n`)

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("\nFailed to read stdin: ", err)
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		switch parts[0] {
		case "m":
			if len(parts) < 3 {
				fmt.Println("Not enough parameters")
				continue
			}
			l, err1 := parseDuty(parts[1])
			r, err2 := parseDuty(parts[2])
			if err1 != nil || err2 != nil {
				continue
			}
			report(hw.SetMotorDuty(l, r))
		case "d":
			if len(parts) < 3 {
				fmt.Println("Not enough parameters")
				continue
			}
			dir1, dir2 := parts[1] == "1", parts[2] == "1"
			report(hw.SetMotorDirections(dir1, dir2))
		case "c":
			if len(parts) < 2 {
				fmt.Println("Not enough parameters")
				continue
			}
			duty, err := parseDuty(parts[1])
			if err != nil {
				continue
			}
			report(hw.SetCameraServoDuty(duty))
		case "s":
			if len(parts) < 2 {
				fmt.Println("Not enough parameters")
				continue
			}
			duty, err := parseDuty(parts[1])
			if err != nil {
				continue
			}
			report(hw.SetSprayServoDuty(duty))
		case "r":
			if len(parts) < 2 {
				fmt.Println("Not enough parameters")
				continue
			}
			report(hw.SetSprayRelay(parts[1] == "1"))
		case "q":
			return
		default:
			fmt.Println("Unknown command ", parts[0])
		}
	}
}

func parseDuty(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		fmt.Println("Expected number, not ", s)
		return 0, err
	}
	if v < 0 || v > 100 {
		fmt.Println("Expected 0 <= duty <= 100")
		return 0, fmt.Errorf("duty out of range: %v", v)
	}
	return v, nil
}

func report(err error) {
	if err != nil {
		fmt.Println("Write failed: ", err)
	}
}
