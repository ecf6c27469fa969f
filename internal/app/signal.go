package app

import (
	"context"
	"sync"

	"github.com/yourusername/fetch-install-go/internal/domain"
)

// CompletionSignal is a one-shot channel carrying the terminal status of a
// single transfer. It fires at most once.
type CompletionSignal struct {
	handle  domain.TransferHandle
	ch      chan domain.TransferStatus
	once    sync.Once
	onClick func()

	mu         sync.Mutex
	unregister func()
}

// NewCompletionSignal creates a signal for handle
func NewCompletionSignal(handle domain.TransferHandle) *CompletionSignal {
	return &CompletionSignal{
		handle: handle,
		ch:     make(chan domain.TransferStatus, 1),
	}
}

// OnClick sets a callback for notification clicks on this transfer.
// It must be called before Attach.
func (s *CompletionSignal) OnClick(fn func()) {
	s.onClick = fn
}

// Fire delivers status. Only the first call has an effect.
func (s *CompletionSignal) Fire(status domain.TransferStatus) bool {
	fired := false
	s.once.Do(func() {
		s.ch <- status
		fired = true
	})
	return fired
}

// Wait blocks until the signal fires or ctx is done
func (s *CompletionSignal) Wait(ctx context.Context) (domain.TransferStatus, error) {
	select {
	case status := <-s.ch:
		return status, nil
	case <-ctx.Done():
		return domain.TransferStatus{}, ctx.Err()
	}
}

// Attach subscribes the signal to broadcaster, keeping only events for its
// own handle. Close undoes it.
func (s *CompletionSignal) Attach(broadcaster domain.CompletionBroadcaster) {
	if broadcaster == nil {
		return
	}
	unregister := broadcaster.RegisterReceiver(func(event domain.CompletionEvent) {
		if event.Handle != s.handle {
			return
		}
		if event.Clicked {
			if s.onClick != nil {
				s.onClick()
			}
			return
		}
		if event.Status.IsTerminal() {
			s.Fire(event.Status)
		}
	})

	s.mu.Lock()
	s.unregister = unregister
	s.mu.Unlock()
}

// Close unsubscribes from the broadcaster. It is safe to call more than once.
func (s *CompletionSignal) Close() {
	s.mu.Lock()
	unregister := s.unregister
	s.unregister = nil
	s.mu.Unlock()

	if unregister != nil {
		unregister()
	}
}
