// Package trend keeps a bounded, ordered history of temperature samples.
package trend

import (
	"sync"
	"time"

	"oven_controller/internal/models"
)

// DefaultCapacity is the number of samples the controller keeps.
const DefaultCapacity = 10

// Buffer is a fixed-capacity ring of samples. When full, Add evicts the oldest.
// It is safe for concurrent use.
type Buffer struct {
	mu    sync.RWMutex
	buf   []models.TrendSample
	start int // index of the oldest sample
	n     int
}

// New returns an empty buffer. capacity <= 0 falls back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{buf: make([]models.TrendSample, capacity)}
}

// Add appends a sample.
func (b *Buffer) Add(at time.Time, tempC float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := models.TrendSample{Time: at.UTC(), Temp: tempC}
	if b.n < len(b.buf) {
		b.buf[(b.start+b.n)%len(b.buf)] = s
		b.n++
		return
	}
	b.buf[b.start] = s
	b.start = (b.start + 1) % len(b.buf)
}

// Samples returns a copy of the history, oldest first.
func (b *Buffer) Samples() []models.TrendSample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.TrendSample, b.n)
	for i := 0; i < b.n; i++ {
		out[i] = b.buf[(b.start+i)%len(b.buf)]
	}
	return out
}

// Last returns the newest sample, if any.
func (b *Buffer) Last() (models.TrendSample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.n == 0 {
		return models.TrendSample{}, false
	}
	return b.buf[(b.start+b.n-1)%len(b.buf)], true
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.n
}

func (b *Buffer) Cap() int { return len(b.buf) }

// Full reports whether the buffer holds Cap() samples.
func (b *Buffer) Full() bool { return b.Len() == b.Cap() }
