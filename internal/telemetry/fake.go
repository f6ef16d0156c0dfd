package telemetry

import (
	"sync"

	"oven_controller/internal/models"
)

// FakePublisher records what was published, for tests.
type FakePublisher struct {
	mu sync.Mutex

	States []models.OvenState
	Events []models.OvenEvent

	// PublishError, if set, is returned by every publish.
	PublishError error
	Closed       bool
}

var _ Publisher = (*FakePublisher)(nil)

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (f *FakePublisher) PublishState(st models.OvenState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.States = append(f.States, st)
	return nil
}

func (f *FakePublisher) PublishEvent(e models.OvenEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Events = append(f.Events, e)
	return nil
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Snapshot returns copies of the recorded states and events.
func (f *FakePublisher) Snapshot() ([]models.OvenState, []models.OvenEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OvenState(nil), f.States...), append([]models.OvenEvent(nil), f.Events...)
}
