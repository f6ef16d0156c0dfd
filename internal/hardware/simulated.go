package hardware

import (
	"context"
	"sync"

	"oven_controller/internal/models"
)

// TrendSource is the read side of the temperature history.
type TrendSource interface {
	Last() (models.TrendSample, bool)
	Full() bool
}

// MockModel is a first-order thermal model used when no sensor is present.
// Each step adds the energy of the active elements, subtracts the loss
// through LossResistance towards RoomTempC, and scales the net by
// EnergyToDegrees.
type MockModel struct {
	RoomTempC       float64
	BackPower       float64
	BottomPower     float64
	TopPower        float64
	LossResistance  float64
	EnergyToDegrees float64
}

// DefaultMockModel returns the stock constants.
func DefaultMockModel() MockModel {
	return MockModel{
		RoomTempC:       20,
		BackPower:       1.2,
		BottomPower:     1.0,
		TopPower:        0.8,
		LossResistance:  100,
		EnergyToDegrees: 2,
	}
}

// Next returns the temperature one step after lastC with outputs a.
func (m MockModel) Next(lastC float64, a models.Actuators) float64 {
	var in float64
	if a.Back {
		in += m.BackPower
	}
	if a.Bottom {
		in += m.BottomPower
	}
	if a.Top {
		in += m.TopPower
	}
	var out float64
	if m.LossResistance > 0 {
		out = (lastC - m.RoomTempC) / m.LossResistance
	}
	return lastC + (in-out)*m.EnergyToDegrees
}

// SimulatedBackend keeps the outputs in memory and reads temperatures from
// the mock model. Until the trend history is full it reports room
// temperature.
type SimulatedBackend struct {
	mu    sync.Mutex
	state models.Actuators
	trend TrendSource
	model MockModel
}

var (
	_ Backend  = (*SimulatedBackend)(nil)
	_ Observer = (*SimulatedBackend)(nil)
)

func NewSimulatedBackend(trend TrendSource, model MockModel) *SimulatedBackend {
	return &SimulatedBackend{trend: trend, model: model}
}

func (s *SimulatedBackend) ReadTemperature(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	a := s.state
	s.mu.Unlock()

	if s.trend == nil || !s.trend.Full() {
		return s.model.RoomTempC, nil
	}
	last, ok := s.trend.Last()
	if !ok {
		return s.model.RoomTempC, nil
	}
	return s.model.Next(last.Temp, a), nil
}

// ObservedTemperature is the last temperature the control loop recorded, so
// status reads do not step the model ahead of the loop.
func (s *SimulatedBackend) ObservedTemperature() (float64, bool) {
	if s.trend == nil {
		return s.model.RoomTempC, true
	}
	if last, ok := s.trend.Last(); ok {
		return last.Temp, true
	}
	return s.model.RoomTempC, true
}

func (s *SimulatedBackend) Actuators() (models.Actuators, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *SimulatedBackend) Apply(a models.Actuators) error {
	s.mu.Lock()
	s.state = a
	s.mu.Unlock()
	return nil
}

// Close turns every output off.
func (s *SimulatedBackend) Close() error {
	return s.Apply(models.Actuators{})
}
