package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/fetch-install-go/internal/domain"
)

// TargetSnapshot is the last known state of one download target
type TargetSnapshot struct {
	Target     string                  `json:"target"`
	State      domain.CoordinatorState `json:"state"`
	Handle     domain.TransferHandle   `json:"handle"`
	Request    domain.TransferRequest  `json:"request"`
	TotalBytes int64                   `json:"total_bytes"`
	BytesSoFar int64                   `json:"bytes_so_far"`
	Percent    int                     `json:"percent"`
	URI        string                  `json:"uri,omitempty"`
	MimeType   string                  `json:"mime_type,omitempty"`
	Error      string                  `json:"error,omitempty"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

type target struct {
	coordinator *Coordinator
	snapshot    TargetSnapshot
}

// TransferService runs one Coordinator per download target, keyed by
// version key. Coordinators share the backend, record store and dispatcher.
type TransferService struct {
	deps   CoordinatorDeps
	hub    *EventHub
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	targets map[string]*target
	closed  bool
}

// NewTransferService creates a service. deps.Dispatcher is created when nil
// and is stopped by Shutdown.
func NewTransferService(deps CoordinatorDeps, hub *EventHub) *TransferService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = NewDispatcher(deps.Logger)
	}
	if hub == nil {
		hub = NewEventHub()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TransferService{
		deps:    deps,
		hub:     hub,
		logger:  deps.Logger,
		ctx:     ctx,
		cancel:  cancel,
		targets: make(map[string]*target),
	}
}

// Events returns the hub listener events are published to
func (s *TransferService) Events() *EventHub {
	return s.hub
}

// Start begins a download for the target named by req.VersionKey,
// replacing any attempt already running for that target
func (s *TransferService) Start(req domain.TransferRequest) (*TargetSnapshot, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("transfer service is shut down")
	}
	t, ok := s.targets[req.VersionKey]
	if !ok {
		t = &target{}
		t.coordinator = NewCoordinator(s.deps, &targetListener{service: s, name: req.VersionKey})
		s.targets[req.VersionKey] = t
	}
	t.snapshot = TargetSnapshot{
		Target:    req.VersionKey,
		Request:   req,
		UpdatedAt: time.Now(),
	}
	s.mu.Unlock()

	s.logger.Info("Starting target",
		zap.String("target", req.VersionKey),
		zap.String("url", req.SourceURL))

	t.coordinator.StartDownload(s.ctx, req)
	return s.Get(req.VersionKey)
}

// Cancel stops the download of a target
func (s *TransferService) Cancel(name string) error {
	s.mu.RLock()
	t, ok := s.targets[name]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrTargetNotFound
	}

	t.coordinator.Cancel()
	s.logger.Info("Target cancelled", zap.String("target", name))
	return nil
}

// Get returns the snapshot of a target
func (s *TransferService) Get(name string) (*TargetSnapshot, error) {
	s.mu.RLock()
	t, ok := s.targets[name]
	var snap TargetSnapshot
	if ok {
		snap = t.snapshot
	}
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrTargetNotFound
	}

	snap.State = t.coordinator.State()
	snap.Handle = t.coordinator.Handle()
	return &snap, nil
}

// List returns snapshots of all targets ordered by name
func (s *TransferService) List() []*TargetSnapshot {
	s.mu.RLock()
	names := make([]string, 0, len(s.targets))
	for name := range s.targets {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	snapshots := make([]*TargetSnapshot, 0, len(names))
	for _, name := range names {
		if snap, err := s.Get(name); err == nil {
			snapshots = append(snapshots, snap)
		}
	}
	return snapshots
}

// ActiveCount returns the number of targets with a transfer in progress
func (s *TransferService) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, t := range s.targets {
		if t.coordinator.IsActive() {
			n++
		}
	}
	return n
}

// Records lists persisted download records
func (s *TransferService) Records() ([]*domain.DownloadRecord, error) {
	return s.deps.Store.List()
}

// ForgetRecord deletes the record of a version so the next start downloads again
func (s *TransferService) ForgetRecord(versionKey string) error {
	if err := s.deps.Store.Delete(versionKey); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	s.logger.Info("Record forgotten", zap.String("version", versionKey))
	return nil
}

// Shutdown cancels every target, drains pending callbacks and closes the hub
func (s *TransferService) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	targets := make([]*target, 0, len(s.targets))
	for _, t := range s.targets {
		targets = append(targets, t)
	}
	s.mu.Unlock()

	for _, t := range targets {
		t.coordinator.Cancel()
	}
	s.cancel()
	s.deps.Dispatcher.Stop()
	s.hub.Close()
	s.logger.Info("Transfer service stopped", zap.Int("targets", len(targets)))
}

func (s *TransferService) update(name string, fn func(*TargetSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.targets[name]; ok {
		fn(&t.snapshot)
		t.snapshot.UpdatedAt = time.Now()
	}
}

// targetListener records listener callbacks of one target in its snapshot
// and publishes them to the hub
type targetListener struct {
	service *TransferService
	name    string
}

func (l *targetListener) OnPrepared(req domain.TransferRequest) {
	l.service.update(l.name, func(snap *TargetSnapshot) {
		snap.Request = req
		snap.Error = ""
	})
	l.service.hub.Publish(newTransferEvent(l.name, EventPrepared))
}

func (l *targetListener) OnProgress(totalBytes, bytesSoFar int64, percent int) {
	l.service.update(l.name, func(snap *TargetSnapshot) {
		snap.TotalBytes = totalBytes
		snap.BytesSoFar = bytesSoFar
		snap.Percent = percent
	})
	event := newTransferEvent(l.name, EventProgress)
	event.TotalBytes = totalBytes
	event.BytesSoFar = bytesSoFar
	event.Percent = percent
	l.service.hub.Publish(event)
}

func (l *targetListener) OnSuccess(uri, mimeType string) {
	l.service.update(l.name, func(snap *TargetSnapshot) {
		snap.URI = uri
		snap.MimeType = mimeType
		snap.Percent = 100
	})
	event := newTransferEvent(l.name, EventSuccess)
	event.URI = uri
	event.MimeType = mimeType
	l.service.hub.Publish(event)
}

func (l *targetListener) OnFailed(err error) {
	l.service.update(l.name, func(snap *TargetSnapshot) {
		snap.Error = err.Error()
	})
	event := newTransferEvent(l.name, EventFailed)
	event.Error = err.Error()
	l.service.hub.Publish(event)
}
