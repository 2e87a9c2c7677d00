package config

import (
	"os"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/spraybot-team/spraybot/pkg/hardware"
)

const DefaultPath = "/etc/spraybot.yaml"

// Config is the runtime-tunable part of the controller.  Pin assignments,
// PWM frequencies and rover geometry are compiled in; only wiring to the
// outside world lives here.
type Config struct {
	ListenAddr    string `yaml:"listen_addr"`
	LogLevel      string `yaml:"log_level"`
	ServoDriver   string `yaml:"servo_driver"` // "gpio" or "pca9685"
	I2CDevice     string `yaml:"i2c_device"`
	DummyHardware bool   `yaml:"dummy_hardware"`
}

func Default() Config {
	return Config{
		ListenAddr:  ":8000",
		LogLevel:    "info",
		ServoDriver: hardware.ServoDriverGPIO,
		I2CDevice:   "/dev/i2c-1",
	}
}

// Load overlays the yaml file at path (SPRAYBOT_CONFIG, or /etc/spraybot.yaml
// when unset) on top of the defaults.  A missing file just means defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("SPRAYBOT_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "validating config %s", path)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.ServoDriver {
	case hardware.ServoDriverGPIO, hardware.ServoDriverPCA9685:
	default:
		return errors.Errorf("unknown servo driver %q", c.ServoDriver)
	}
	if c.ListenAddr == "" {
		return errors.New("listen_addr must not be empty")
	}
	return nil
}
