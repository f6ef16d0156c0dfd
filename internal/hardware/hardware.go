// Package hardware abstracts the oven's temperature sensor and its six relay
// outputs. Two backends exist: GPIOBackend drives a Raspberry Pi through the
// Linux GPIO character device and spidev, SimulatedBackend keeps everything
// in memory and synthesizes temperatures from the trend history.
package hardware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oven_controller/internal/models"
)

// ErrSensorFault is returned when a temperature cannot be read.
var ErrSensorFault = errors.New("sensor fault")

// Backend kinds accepted in configuration.
const (
	KindSimulated = "simulated"
	KindGPIO      = "gpio"
	KindAuto      = "auto"
)

// Sensor reads one temperature sample in °C.
type Sensor interface {
	ReadTemperature(ctx context.Context) (float64, error)
}

// Backend is a sensor plus the actuator outputs.
type Backend interface {
	Sensor
	// Actuators reads back the logical state of every output.
	Actuators() (models.Actuators, error)
	// Apply drives every output to the given logical state.
	Apply(a models.Actuators) error
	Close() error
}

// Observer is implemented by backends that already know the current
// temperature without taking a new sample.
type Observer interface {
	ObservedTemperature() (float64, bool)
}

// CurrentTemperature is the temperature to report on a status read: the
// observed value when the backend has one, otherwise one fresh sample.
func CurrentTemperature(ctx context.Context, s Sensor) (float64, error) {
	if o, ok := s.(Observer); ok {
		if t, ok := o.ObservedTemperature(); ok {
			return t, nil
		}
	}
	return s.ReadTemperature(ctx)
}

// Pins holds BCM line offsets for the outputs and the sensor chip-select.
type Pins struct {
	Fan        int `mapstructure:"fan"`
	Cooling    int `mapstructure:"cooling"`
	Light      int `mapstructure:"light"`
	Top        int `mapstructure:"top"`
	Back       int `mapstructure:"back"`
	Bottom     int `mapstructure:"bottom"`
	ChipSelect int `mapstructure:"chip_select"`
}

// DefaultPins matches the reference oven wiring.
var DefaultPins = Pins{
	Fan:        2,
	Cooling:    3,
	Light:      4,
	Top:        17,
	Back:       27,
	Bottom:     22,
	ChipSelect: 5,
}

// GPIOConfig configures GPIOBackend.
type GPIOConfig struct {
	Chip       string // e.g. "gpiochip0"
	SPIDevice  string // e.g. "/dev/spidev0.0"
	SPISpeedHz uint32
	Pins       Pins
}

// ReadAveraged takes times samples from s, waiting delay between reads, and
// returns their mean. The wait honours ctx. Any failed read fails the whole
// average.
func ReadAveraged(ctx context.Context, s Sensor, times int, delay time.Duration) (float64, error) {
	if times < 1 {
		times = 1
	}
	var sum float64
	for i := 0; i < times; i++ {
		if i > 0 && delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return 0, ctx.Err()
			case <-t.C:
			}
		}
		v, err := s.ReadTemperature(ctx)
		if err != nil {
			return 0, fmt.Errorf("read sample %d/%d: %w", i+1, times, err)
		}
		sum += v
	}
	return sum / float64(times), nil
}
