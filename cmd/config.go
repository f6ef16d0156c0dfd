package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"oven_controller/internal/hardware"
	"oven_controller/internal/server"
	"oven_controller/internal/service"
	"oven_controller/internal/telemetry"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "OVEN"

// Backend selection values for hardware.backend.
const (
	backendSimulated = "simulated"
	backendGPIO      = "gpio"
	backendAuto      = "auto"
)

type config struct {
	Port     string          `mapstructure:"port"`
	Log      logConfig       `mapstructure:"log"`
	DB       dbConfig        `mapstructure:"db"`
	HTTP     server.Timeouts `mapstructure:"http"`
	Control  controlConfig   `mapstructure:"control"`
	Sensor   sensorConfig    `mapstructure:"sensor"`
	Hardware hardwareConfig  `mapstructure:"hardware"`
	MQTT     mqttConfig      `mapstructure:"mqtt"`
	Auth     authConfig      `mapstructure:"auth"`
	Metrics  metricsConfig   `mapstructure:"metrics"`
}

type logConfig struct {
	Level string `mapstructure:"level"`
}

type dbConfig struct {
	Path string `mapstructure:"path"`
}

type controlConfig struct {
	Tick                  time.Duration `mapstructure:"tick"`
	service.ControlParams `mapstructure:",squash"`
}

type sensorConfig struct {
	Samples     int           `mapstructure:"samples"`
	SampleDelay time.Duration `mapstructure:"sample_delay"`
}

type hardwareConfig struct {
	Backend    string        `mapstructure:"backend"`
	Chip       string        `mapstructure:"chip"`
	SPIDevice  string        `mapstructure:"spi_device"`
	SPISpeedHz uint32        `mapstructure:"spi_speed_hz"`
	Pins       hardware.Pins `mapstructure:"pins"`
}

type mqttConfig struct {
	Broker    string `mapstructure:"broker"`
	ClientID  string `mapstructure:"client_id"`
	Topic     string `mapstructure:"topic"`
	QueueSize int    `mapstructure:"queue_size"`
}

type authConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type metricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	p := service.DefaultControlParams()

	v.SetDefault("port", server.DefaultPort)
	v.SetDefault("log.level", "info")
	v.SetDefault("db.path", "oven.db")
	v.SetDefault("http.read_header", 10*time.Second)
	v.SetDefault("http.write", 10*time.Second)
	v.SetDefault("http.idle", 60*time.Second)

	v.SetDefault("control.tick", time.Second)
	v.SetDefault("control.cooling_threshold_c", p.CoolingThresholdC)
	v.SetDefault("control.hysteresis_c", p.HysteresisC)
	v.SetDefault("control.min_heating_c", p.MinHeatingC)

	v.SetDefault("sensor.samples", 5)
	v.SetDefault("sensor.sample_delay", 50*time.Millisecond)

	v.SetDefault("hardware.backend", backendAuto)
	v.SetDefault("hardware.chip", "gpiochip0")
	v.SetDefault("hardware.spi_device", "/dev/spidev0.0")
	v.SetDefault("hardware.spi_speed_hz", 1000000)
	v.SetDefault("hardware.pins.fan", hardware.DefaultPins.Fan)
	v.SetDefault("hardware.pins.cooling", hardware.DefaultPins.Cooling)
	v.SetDefault("hardware.pins.light", hardware.DefaultPins.Light)
	v.SetDefault("hardware.pins.top", hardware.DefaultPins.Top)
	v.SetDefault("hardware.pins.back", hardware.DefaultPins.Back)
	v.SetDefault("hardware.pins.bottom", hardware.DefaultPins.Bottom)
	v.SetDefault("hardware.pins.chip_select", hardware.DefaultPins.ChipSelect)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "oven-controller")
	v.SetDefault("mqtt.topic", "oven")
	v.SetDefault("mqtt.queue_size", telemetry.DefaultQueueSize)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", time.Hour)

	v.SetDefault("metrics.enabled", true)
}

// loadConfig reads configs/config.yml (optional) and OVEN_* environment
// variables, after loading envFiles into the process environment.
func loadConfig(v *viper.Viper, configDir string, envFiles ...string) (config, error) {
	// a missing .env is fine
	_ = godotenv.Load(envFiles...)

	setDefaults(v)
	v.AddConfigPath(configDir)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	switch c.Hardware.Backend {
	case backendSimulated, backendGPIO, backendAuto:
	default:
		return fmt.Errorf("hardware.backend: unknown value %q", c.Hardware.Backend)
	}
	if c.Control.Tick <= 0 {
		return errors.New("control.tick must be positive")
	}
	if c.Control.HysteresisC < 0 {
		return errors.New("control.hysteresis_c must not be negative")
	}
	if c.Sensor.Samples < 1 {
		return errors.New("sensor.samples must be at least 1")
	}
	if c.Auth.Enabled && c.Auth.SigningKey == "" {
		return errors.New("auth.enabled requires auth.signing_key")
	}
	return nil
}

func (c config) controlConfig() service.ControlConfig {
	return service.ControlConfig{
		Params:      c.Control.ControlParams,
		Samples:     c.Sensor.Samples,
		SampleDelay: c.Sensor.SampleDelay,
	}
}

func (c config) gpioConfig() hardware.GPIOConfig {
	return hardware.GPIOConfig{
		Chip:       c.Hardware.Chip,
		SPIDevice:  c.Hardware.SPIDevice,
		SPISpeedHz: c.Hardware.SPISpeedHz,
		Pins:       c.Hardware.Pins,
	}
}
