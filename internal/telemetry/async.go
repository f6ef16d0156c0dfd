package telemetry

import (
	"errors"
	"sync"
	"sync/atomic"

	"oven_controller/internal/logger"
	"oven_controller/internal/models"
)

// DefaultQueueSize bounds the number of messages waiting for the broker.
const DefaultQueueSize = 64

// ErrQueueFull is returned when a message is dropped because the broker is
// not keeping up.
var ErrQueueFull = errors.New("telemetry queue full")

// ErrPublisherClosed is returned by publishes after Close.
var ErrPublisherClosed = errors.New("telemetry publisher closed")

type outbound struct {
	state *models.OvenState
	event *models.OvenEvent
}

// AsyncPublisher queues messages and hands them to the wrapped Publisher on
// its own goroutine. Publish calls never block; when the queue is full the
// message is dropped.
type AsyncPublisher struct {
	inner Publisher
	log   *logger.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan outbound
	done   chan struct{}

	dropped atomic.Uint64
	dropLog atomic.Bool
}

var _ Publisher = (*AsyncPublisher)(nil)

func NewAsyncPublisher(inner Publisher, size int, log *logger.Logger) *AsyncPublisher {
	if size < 1 {
		size = DefaultQueueSize
	}
	if log == nil {
		log = logger.Nop()
	}
	p := &AsyncPublisher{
		inner: inner,
		log:   log,
		queue: make(chan outbound, size),
		done:  make(chan struct{}),
	}
	go p.drain()
	return p
}

func (p *AsyncPublisher) PublishState(st models.OvenState) error {
	return p.enqueue(outbound{state: &st})
}

func (p *AsyncPublisher) PublishEvent(e models.OvenEvent) error {
	return p.enqueue(outbound{event: &e})
}

func (p *AsyncPublisher) enqueue(m outbound) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.queue <- m:
		return nil
	default:
		p.dropped.Add(1)
		if p.dropLog.CompareAndSwap(false, true) {
			p.log.Warnw("telemetry_queue_full", "capacity", cap(p.queue))
		}
		return ErrQueueFull
	}
}

func (p *AsyncPublisher) drain() {
	defer close(p.done)
	for m := range p.queue {
		var err error
		if m.state != nil {
			err = p.inner.PublishState(*m.state)
		} else {
			err = p.inner.PublishEvent(*m.event)
		}
		if err != nil {
			p.log.Debugw("telemetry_publish_failed", "error", err)
			continue
		}
		p.dropLog.Store(false)
	}
}

// Dropped is the number of messages discarded because the queue was full.
func (p *AsyncPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Close stops accepting messages, sends what is queued and closes the
// wrapped publisher.
func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.inner.Close()
}
