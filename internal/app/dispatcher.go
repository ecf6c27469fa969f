package app

import (
	"sync"

	"go.uber.org/zap"
)

// Dispatcher runs callbacks one at a time on a single goroutine, in the
// order they were posted. Listener and Messenger calls go through it so a
// UI layer never sees two callbacks at once.
type Dispatcher struct {
	logger *zap.Logger

	mu      sync.Mutex
	queue   []func()
	notify  chan struct{}
	stopped bool
	done    chan struct{}
}

// NewDispatcher creates a dispatcher and starts its worker
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		logger: logger,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go d.loop()
	return d
}

// Post queues fn. It never blocks; callbacks posted after Stop are dropped.
func (d *Dispatcher) Post(fn func()) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Stop drains already queued callbacks and stops the worker
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.stopped = true
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
	<-d.done
}

func (d *Dispatcher) loop() {
	defer close(d.done)

	for range d.notify {
		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				stopped := d.stopped
				d.mu.Unlock()
				if stopped {
					return
				}
				break
			}
			fn := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			d.mu.Unlock()

			d.run(fn)
		}
	}
}

func (d *Dispatcher) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Callback panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}
