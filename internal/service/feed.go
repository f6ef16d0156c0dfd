package service

import (
	"sync"

	"oven_controller/internal/models"
)

// StateFeed exposes the state committed by the control loop.
type StateFeed interface {
	// Last returns the most recently committed state, if any.
	Last() (models.OvenState, bool)
	// Subscribe delivers each committed state. A slow subscriber only sees
	// the newest one. The returned func unsubscribes.
	Subscribe() (<-chan models.OvenState, func())
}

type stateFeed struct {
	mu      sync.Mutex
	last    models.OvenState
	hasLast bool
	subs    map[chan models.OvenState]struct{}
}

func newStateFeed() *stateFeed {
	return &stateFeed{subs: make(map[chan models.OvenState]struct{})}
}

func (f *stateFeed) Last() (models.OvenState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.hasLast
}

func (f *stateFeed) Subscribe() (<-chan models.OvenState, func()) {
	ch := make(chan models.OvenState, 1)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			f.mu.Unlock()
		})
	}
}

func (f *stateFeed) publish(st models.OvenState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last, f.hasLast = st, true
	for ch := range f.subs {
		// replace an unread state with the newer one
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}
