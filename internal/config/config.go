package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/dex-sp/instruments"
)

// EnvPrefix prefixes every environment override, e.g. CEYEAR_ADDRESS.
const EnvPrefix = "CEYEAR"

const (
	DriverVISA     = "visa"
	DriverPrologix = "prologix"
)

type Config struct {
	Instrument InstrumentConfig `yaml:"instrument"`
	Transport  TransportConfig  `yaml:"transport"`
	Log        LogConfig        `yaml:"log"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Redis      RedisConfig      `yaml:"redis"`
}

type InstrumentConfig struct {
	Address      string        `yaml:"address"`
	SettleDelay  time.Duration `yaml:"settle_delay"`
	StrictErrors bool          `yaml:"strict_errors"`
}

type TransportConfig struct {
	Driver     string `yaml:"driver"`
	SerialPort string `yaml:"serial_port"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitorConfig struct {
	Enabled     bool `yaml:"enabled"`
	MetricsPort int  `yaml:"metrics_port"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// envOverrides lists the settings that can be overridden from the environment.
type envOverrides struct {
	Address     string `envconfig:"ADDRESS"`
	Driver      string `envconfig:"DRIVER"`
	SerialPort  string `envconfig:"SERIAL_PORT"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	MetricsPort int    `envconfig:"METRICS_PORT"`
	RedisAddr   string `envconfig:"REDIS_ADDR"`
	Strict      *bool  `envconfig:"STRICT_ERRORS"`
}

// LoadConfig reads a YAML config file. Keys missing from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return config, nil
}

func GetDefaultConfig() *Config {
	return &Config{
		Instrument: InstrumentConfig{
			Address:     "GPIB0::18::INSTR",
			SettleDelay: 500 * time.Millisecond,
		},
		Transport: TransportConfig{
			Driver: DriverVISA,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Monitor: MonitorConfig{
			Enabled:     false,
			MetricsPort: 9090,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			Channel: "ceyear_data",
		},
	}
}

// ApplyEnv overrides cfg with the CEYEAR_* environment variables that are set.
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}

	if env.Address != "" {
		cfg.Instrument.Address = env.Address
	}
	if env.Driver != "" {
		cfg.Transport.Driver = env.Driver
	}
	if env.SerialPort != "" {
		cfg.Transport.SerialPort = env.SerialPort
	}
	if env.LogLevel != "" {
		cfg.Log.Level = env.LogLevel
	}
	if env.MetricsPort != 0 {
		cfg.Monitor.MetricsPort = env.MetricsPort
	}
	if env.RedisAddr != "" {
		cfg.Redis.Addr = env.RedisAddr
	}
	if env.Strict != nil {
		cfg.Instrument.StrictErrors = *env.Strict
	}
	return nil
}

// Validate checks the driver and the instrument address.
func (c *Config) Validate() error {
	switch c.Transport.Driver {
	case DriverVISA:
	case DriverPrologix:
		if c.Transport.SerialPort == "" {
			return fmt.Errorf("driver %s needs transport.serial_port", DriverPrologix)
		}
	default:
		return fmt.Errorf("unknown transport driver \"%s\"", c.Transport.Driver)
	}
	if _, err := instruments.ParseAddress(c.Instrument.Address); err != nil {
		return fmt.Errorf("instrument.address: %w", err)
	}
	return nil
}
