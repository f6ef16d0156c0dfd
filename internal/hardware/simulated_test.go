package hardware

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"oven_controller/internal/models"
	"oven_controller/internal/trend"
)

func fillTrend(b *trend.Buffer, tempC float64) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < b.Cap(); i++ {
		b.Add(t0.Add(time.Duration(i)*time.Second), tempC)
	}
}

func TestSimulatedBackend_RoomTempUntilTrendFull(t *testing.T) {
	tr := trend.New(trend.DefaultCapacity)
	sim := NewSimulatedBackend(tr, DefaultMockModel())
	_ = sim.Apply(models.Actuators{Top: true, Bottom: true, Back: true})

	for i := 0; i < trend.DefaultCapacity-1; i++ {
		tr.Add(time.Now(), 150)
		got, err := sim.ReadTemperature(context.Background())
		if err != nil {
			t.Fatalf("ReadTemperature: %v", err)
		}
		if got != 20 {
			t.Fatalf("with %d samples got %.2f, want room temperature", tr.Len(), got)
		}
	}
}

func TestSimulatedBackend_HeatsWhenElementsOn(t *testing.T) {
	tr := trend.New(trend.DefaultCapacity)
	fillTrend(tr, 20)
	sim := NewSimulatedBackend(tr, DefaultMockModel())

	_ = sim.Apply(models.Actuators{Top: true, Bottom: true, Back: true})
	got, err := sim.ReadTemperature(context.Background())
	if err != nil {
		t.Fatalf("ReadTemperature: %v", err)
	}
	// (1.2 + 1.0 + 0.8 - 0) * 2
	if !approx(got, 26) {
		t.Fatalf("got %.2f, want 26", got)
	}
}

func TestSimulatedBackend_CoolsTowardRoom(t *testing.T) {
	tr := trend.New(trend.DefaultCapacity)
	fillTrend(tr, 220)
	sim := NewSimulatedBackend(tr, DefaultMockModel())

	got, _ := sim.ReadTemperature(context.Background())
	// 220 + (0 - 200/100) * 2
	if !approx(got, 216) {
		t.Fatalf("got %.2f, want 216", got)
	}
}

func TestMockModel_ElementCoefficientsDiffer(t *testing.T) {
	m := DefaultMockModel()
	back := m.Next(20, models.Actuators{Back: true})
	bottom := m.Next(20, models.Actuators{Bottom: true})
	top := m.Next(20, models.Actuators{Top: true})
	if !(back > bottom && bottom > top && top > 20) {
		t.Fatalf("unexpected ordering back=%.2f bottom=%.2f top=%.2f", back, bottom, top)
	}
}

func TestSimulatedBackend_ApplyAndCloseReleasesOutputs(t *testing.T) {
	sim := NewSimulatedBackend(nil, DefaultMockModel())
	want := models.Actuators{Fan: true, Light: true, Back: true}
	if err := sim.Apply(want); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, _ := sim.Actuators()
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	_ = sim.Close()
	got, _ = sim.Actuators()
	if got != (models.Actuators{}) {
		t.Fatalf("expected all outputs off after Close, got %+v", got)
	}
}

type scriptedSensor struct {
	values []float64
	errAt  int
	calls  int
}

func (s *scriptedSensor) ReadTemperature(ctx context.Context) (float64, error) {
	s.calls++
	if s.errAt > 0 && s.calls == s.errAt {
		return 0, ErrSensorFault
	}
	return s.values[(s.calls-1)%len(s.values)], nil
}

func TestReadAveraged(t *testing.T) {
	t.Run("averages samples", func(t *testing.T) {
		s := &scriptedSensor{values: []float64{100, 104}}
		got, err := ReadAveraged(context.Background(), s, 2, time.Millisecond)
		if err != nil {
			t.Fatalf("ReadAveraged: %v", err)
		}
		if !approx(got, 102) || s.calls != 2 {
			t.Fatalf("got %.2f after %d calls", got, s.calls)
		}
	})

	t.Run("times below one reads once", func(t *testing.T) {
		s := &scriptedSensor{values: []float64{50}}
		got, _ := ReadAveraged(context.Background(), s, 0, time.Second)
		if got != 50 || s.calls != 1 {
			t.Fatalf("got %.2f after %d calls", got, s.calls)
		}
	})

	t.Run("fault propagates", func(t *testing.T) {
		s := &scriptedSensor{values: []float64{50}, errAt: 2}
		_, err := ReadAveraged(context.Background(), s, 3, 0)
		if !errors.Is(err, ErrSensorFault) {
			t.Fatalf("expected ErrSensorFault, got %v", err)
		}
	})

	t.Run("canceled context stops waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s := &scriptedSensor{values: []float64{50}}
		_, err := ReadAveraged(ctx, s, 2, time.Hour)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSimulatedBackend_ObservedTemperatureIsLastRecorded(t *testing.T) {
	tr := trend.New(trend.DefaultCapacity)
	sim := NewSimulatedBackend(tr, DefaultMockModel())
	_ = sim.Apply(models.Actuators{Top: true, Bottom: true, Back: true})

	if got, ok := sim.ObservedTemperature(); !ok || got != 20 {
		t.Fatalf("empty history: got %.2f ok=%v, want room temperature", got, ok)
	}

	fillTrend(tr, 150)
	for i := 0; i < 3; i++ {
		got, err := CurrentTemperature(context.Background(), sim)
		if err != nil {
			t.Fatalf("CurrentTemperature: %v", err)
		}
		if got != 150 {
			t.Fatalf("status read %d: got %.2f, want the recorded 150", i, got)
		}
	}

	// the loop's own read still advances the model
	next, _ := sim.ReadTemperature(context.Background())
	if next <= 150 {
		t.Fatalf("ReadTemperature should step the model, got %.2f", next)
	}
}

func TestCurrentTemperature_FallsBackToSensor(t *testing.T) {
	s := &scriptedSensor{values: []float64{42}}
	got, err := CurrentTemperature(context.Background(), s)
	if err != nil || got != 42 || s.calls != 1 {
		t.Fatalf("got %.2f err=%v calls=%d", got, err, s.calls)
	}
}
