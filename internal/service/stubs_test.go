package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"oven_controller/internal/models"
	"oven_controller/internal/repository"
)

// ---- Test doubles shared by the service tests ----

// memSetpoints is an in-memory repository.SetpointRepo that counts writes.
type memSetpoints struct {
	mu sync.Mutex
	sp models.Setpoints

	loadErr  error
	writeErr error

	// writes counts WriteKeys calls that changed something.
	writes int

	// beforeWrite, if set, mutates the record once before the next write,
	// standing in for a concurrent writer.
	beforeWrite func(*models.Setpoints)
}

var _ repository.SetpointRepo = (*memSetpoints)(nil)

func (m *memSetpoints) Load(ctx context.Context) (models.Setpoints, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return models.Setpoints{}, m.loadErr
	}
	return m.sp, nil
}

func (m *memSetpoints) WriteKey(ctx context.Context, key string, value any) (bool, error) {
	changed, err := m.WriteKeys(ctx, map[string]any{key: value})
	return len(changed) > 0, err
}

func (m *memSetpoints) WriteKeys(ctx context.Context, kv map[string]any) ([]string, error) {
	return m.WriteKeysIf(ctx, nil, kv)
}

func (m *memSetpoints) WriteKeysIf(ctx context.Context, expect, kv map[string]any) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beforeWrite != nil {
		m.beforeWrite(&m.sp)
		m.beforeWrite = nil
	}
	if m.writeErr != nil {
		return nil, m.writeErr
	}
	current := m.sp
	for k, v := range expect {
		changed, err := applySetpoint(&current, k, v)
		if err != nil {
			return nil, err
		}
		if changed {
			return nil, repository.ErrSetpointConflict
		}
	}
	next := m.sp
	var changed []string
	for k, v := range kv {
		ok, err := applySetpoint(&next, k, v)
		if err != nil {
			return nil, err
		}
		if ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	if len(changed) > 0 {
		m.sp = next
		m.writes++
	}
	return changed, nil
}

func (m *memSetpoints) get() models.Setpoints {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sp
}

func (m *memSetpoints) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func applySetpoint(sp *models.Setpoints, key string, v any) (bool, error) {
	setBool := func(dst *bool) (bool, error) {
		b, ok := v.(bool)
		if !ok {
			return false, repository.ErrInvalidValue
		}
		if *dst == b {
			return false, nil
		}
		*dst = b
		return true, nil
	}
	switch key {
	case repository.KeySetTemp:
		f, ok := v.(float64)
		if !ok {
			return false, repository.ErrInvalidValue
		}
		if sp.SetTemp == f {
			return false, nil
		}
		sp.SetTemp = f
		return true, nil
	case repository.KeySetFan:
		return setBool(&sp.SetFan)
	case repository.KeySetLight:
		return setBool(&sp.SetLight)
	case repository.KeySetTop:
		return setBool(&sp.SetTop)
	case repository.KeySetBottom:
		return setBool(&sp.SetBottom)
	case repository.KeySetBack:
		return setBool(&sp.SetBack)
	case repository.KeyTimer:
		return setBool(&sp.Timer)
	case repository.KeyTimerStart:
		tm, ok := v.(time.Time)
		if !ok {
			return false, repository.ErrInvalidValue
		}
		if sp.TimerStart.Equal(tm) {
			return false, nil
		}
		sp.TimerStart = tm
		return true, nil
	case repository.KeyTimerMinutes:
		n, ok := v.(int)
		if !ok {
			return false, repository.ErrInvalidValue
		}
		if sp.TimerMinutes == n {
			return false, nil
		}
		sp.TimerMinutes = n
		return true, nil
	}
	return false, repository.ErrUnknownKey
}

// recEventRepo records appended events.
type recEventRepo struct {
	mu     sync.Mutex
	events []models.OvenEvent
	err    error
}

func (r *recEventRepo) Append(ctx context.Context, e models.OvenEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recEventRepo) List(ctx context.Context, from, to time.Time, typ string) ([]models.OvenEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.OvenEvent(nil), r.events...), nil
}

func (r *recEventRepo) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recEventRepo) count(typ string) int {
	n := 0
	for _, t := range r.types() {
		if t == typ {
			n++
		}
	}
	return n
}

// stubBackend is a scripted hardware.Backend.
type stubBackend struct {
	mu      sync.Mutex
	state   models.Actuators
	temp    float64
	readErr error

	actErr   error
	applyErr error
	applies  int

	// started, if set, is closed by the first ReadTemperature call that
	// blocks on release.
	started chan struct{}
	release chan struct{}
	reads   int
}

var errStubSensor = errors.New("stub thermocouple open")

func (b *stubBackend) ReadTemperature(ctx context.Context) (float64, error) {
	b.mu.Lock()
	b.reads++
	started, release := b.started, b.release
	b.started = nil
	temp, err := b.temp, b.readErr
	b.mu.Unlock()

	if release != nil {
		if started != nil {
			close(started)
		}
		select {
		case <-release:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return temp, err
}

func (b *stubBackend) Actuators() (models.Actuators, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.actErr != nil {
		return models.Actuators{}, b.actErr
	}
	return b.state, nil
}

func (b *stubBackend) Apply(a models.Actuators) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.applyErr != nil {
		return b.applyErr
	}
	b.state = a
	b.applies++
	return nil
}

func (b *stubBackend) Close() error { return b.Apply(models.Actuators{}) }

func (b *stubBackend) setTemp(t float64) {
	b.mu.Lock()
	b.temp = t
	b.mu.Unlock()
}

func (b *stubBackend) current() models.Actuators {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *stubBackend) applyCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.applies
}
