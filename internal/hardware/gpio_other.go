//go:build !linux

package hardware

import (
	"context"
	"errors"

	"oven_controller/internal/models"
)

var errGPIOUnsupported = errors.New("hardware: gpio backend requires Linux")

// GPIOBackend is not available on non-Linux platforms.
type GPIOBackend struct{}

var _ Backend = (*GPIOBackend)(nil)

// NewGPIOBackend returns an error on non-Linux platforms.
func NewGPIOBackend(cfg GPIOConfig) (*GPIOBackend, error) {
	return nil, errGPIOUnsupported
}

func (b *GPIOBackend) ReadTemperature(ctx context.Context) (float64, error) {
	return 0, errGPIOUnsupported
}

func (b *GPIOBackend) Actuators() (models.Actuators, error) {
	return models.Actuators{}, errGPIOUnsupported
}

func (b *GPIOBackend) Apply(a models.Actuators) error { return errGPIOUnsupported }

func (b *GPIOBackend) Close() error { return nil }
