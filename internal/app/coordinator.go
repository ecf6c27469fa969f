package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/fetch-install-go/internal/domain"
	"github.com/yourusername/fetch-install-go/pkg/logger"
)

const removeTimeout = 10 * time.Second

const (
	serviceDisabledMessage = "The download service is disabled. Enable it in the system settings to continue."
	inProgressMessage      = "download in progress"
)

// CoordinatorDeps groups the collaborators of a Coordinator. Installer,
// Messenger, Dispatcher and Events are optional.
type CoordinatorDeps struct {
	Backend    domain.TransferBackend
	Gate       domain.PermissionGate
	Store      domain.DownloadRecordStore
	Installer  domain.Installer
	Messenger  domain.Messenger
	Dispatcher *Dispatcher
	Poll       *domain.PollConfig
	Logger     *zap.Logger
	Events     *logger.MultiLogger
}

// Coordinator drives one download target from permission check to
// installer handoff. At most one transfer is active per coordinator.
type Coordinator struct {
	backend    domain.TransferBackend
	gate       domain.PermissionGate
	store      domain.DownloadRecordStore
	installer  domain.Installer
	messenger  domain.Messenger
	listener   domain.Listener
	dispatcher *Dispatcher
	poll       *domain.PollConfig
	logger     *zap.Logger
	events     *logger.MultiLogger

	mu      sync.Mutex
	state   domain.CoordinatorState
	handle  domain.TransferHandle
	current *attempt
}

// attempt is one StartDownload call. Once cancelled it never reaches the
// listener again.
type attempt struct {
	id        string
	req       domain.TransferRequest
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool

	// transfer left behind by the attempt this one replaced
	stale domain.TransferHandle
}

// NewCoordinator creates a coordinator reporting to listener
func NewCoordinator(deps CoordinatorDeps, listener domain.Listener) *Coordinator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = NewDispatcher(deps.Logger)
	}
	return &Coordinator{
		backend:    deps.Backend,
		gate:       deps.Gate,
		store:      deps.Store,
		installer:  deps.Installer,
		messenger:  deps.Messenger,
		listener:   listener,
		dispatcher: deps.Dispatcher,
		poll:       deps.Poll,
		logger:     deps.Logger,
		events:     deps.Events,
		state:      domain.StateIdle,
	}
}

// StartDownload begins an attempt for req and returns immediately. Results
// arrive through the listener. A running attempt is cancelled silently and
// its transfer removed before the new one is enqueued. ctx bounds the whole
// attempt; when it ends the attempt is abandoned as if Cancel was called.
func (c *Coordinator) StartDownload(ctx context.Context, req domain.TransferRequest) {
	actx, cancel := context.WithCancel(ctx)
	a := &attempt{
		id:     uuid.New().String(),
		req:    req,
		ctx:    actx,
		cancel: cancel,
	}

	c.mu.Lock()
	if prev := c.current; prev != nil {
		prev.cancelled.Store(true)
		prev.cancel()
		c.logger.Info("Replacing running attempt",
			zap.String("attempt", prev.id),
			zap.String("state", string(c.state)))
	}
	a.stale = c.handle
	c.handle = domain.HandleNone
	c.current = a
	c.state = domain.StateIdle
	c.transitionLocked(domain.StateAwaitingPermission)
	c.mu.Unlock()

	c.logger.Info("Starting download",
		zap.String("attempt", a.id),
		zap.String("url", req.SourceURL),
		zap.String("version", req.VersionKey))

	go c.run(a)
}

// Cancel stops the current attempt and removes its transfer. Nothing is
// reported to the listener. Calling it again is a no-op.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	a := c.current
	if a == nil {
		c.mu.Unlock()
		return
	}
	c.current = nil
	a.cancelled.Store(true)
	a.cancel()
	handle := c.handle
	c.handle = domain.HandleNone
	c.state = domain.StateIdle
	c.mu.Unlock()

	c.removeTransfer(handle)
	c.events.LogTransferEvent("transfer_cancelled",
		zap.String("attempt", a.id),
		zap.String("target", a.req.VersionKey),
		zap.Int64("handle", int64(handle)))
	c.logger.Info("Download cancelled", zap.String("attempt", a.id))
}

// IsActive reports whether a transfer is in progress
func (c *Coordinator) IsActive() bool {
	return c.State() == domain.StateInProgress
}

// State returns the current coordinator state
func (c *Coordinator) State() domain.CoordinatorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Handle returns the handle of the active transfer, or HandleNone
func (c *Coordinator) Handle() domain.TransferHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

func (c *Coordinator) run(a *attempt) {
	defer c.abandonIfDone(a)

	c.removeTransfer(a.stale)

	req := a.req

	granted, ok := c.awaitPermission(a)
	if !ok {
		return
	}
	if !granted {
		c.fail(a, domain.NewDownloadError(domain.KindPermissionDenied, nil))
		return
	}

	if path, ok := c.cachedPath(req); ok {
		c.logger.Info("Version already downloaded, skipping transfer",
			zap.String("version", req.VersionKey),
			zap.String("path", path))
		c.succeed(a, path, c.resolveMimeType(req, ""))
		return
	}

	if !c.transition(a, domain.StateEnqueuing) {
		return
	}

	if !c.backend.IsServiceEnabled() {
		c.failServiceUnavailable(a, domain.ErrBackendUnavailable)
		return
	}

	if err := req.Validate(); err != nil {
		c.fail(a, domain.NewDownloadError(domain.KindEnqueueFailed, err))
		return
	}

	handle, err := c.backend.Enqueue(a.ctx, req)
	switch {
	case errors.Is(err, domain.ErrBackendUnavailable):
		c.failServiceUnavailable(a, err)
		return
	case a.ctx.Err() != nil:
		if handle.Valid() {
			c.removeTransfer(handle)
		}
		return
	case err != nil || !handle.Valid():
		if err == nil {
			err = fmt.Errorf("backend returned handle %d", handle)
		}
		c.fail(a, domain.NewDownloadError(domain.KindEnqueueFailed, err))
		return
	}

	c.mu.Lock()
	if a.cancelled.Load() {
		c.mu.Unlock()
		c.removeTransfer(handle)
		return
	}
	c.handle = handle
	c.transitionLocked(domain.StateInProgress)
	c.mu.Unlock()

	c.logger.Info("Transfer enqueued",
		zap.String("attempt", a.id),
		zap.Int64("handle", int64(handle)))
	c.events.LogTransferEvent("transfer_prepared",
		zap.String("attempt", a.id),
		zap.String("target", req.VersionKey),
		zap.String("url", req.SourceURL),
		zap.Int64("handle", int64(handle)))
	c.post(a, func() { c.listener.OnPrepared(req) })

	status, err := c.awaitTerminal(a, handle)
	if err != nil {
		return
	}

	if final, err := c.backend.Query(a.ctx, handle); err == nil && final.IsTerminal() {
		status = final
	} else if a.ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	if c.current == a && c.handle == handle {
		c.handle = domain.HandleNone
	}
	c.mu.Unlock()
	c.removeTransfer(handle)

	if status.Kind == domain.StatusFailed {
		c.fail(a, domain.NewTransferError(status.FailureReason, status.Detail))
		return
	}

	if !c.transition(a, domain.StateVerifying) {
		return
	}
	path := domain.ResultPath(status.ResultURI)
	if !fileReady(path) {
		c.fail(a, domain.NewDownloadError(domain.KindVerificationFailed,
			fmt.Errorf("result %q is missing or empty", status.ResultURI)))
		return
	}

	if err := c.store.Put(domain.NewDownloadRecord(req.VersionKey, path)); err != nil {
		c.logger.Error("Failed to save download record",
			zap.String("version", req.VersionKey),
			zap.Error(err))
		c.events.LogAppError("Failed to save download record",
			zap.String("target", req.VersionKey),
			zap.Error(err))
	}

	c.succeed(a, status.ResultURI, c.resolveMimeType(req, status.MimeType))
}

// awaitPermission returns (granted, true), or (false, false) when the
// attempt ended while waiting.
func (c *Coordinator) awaitPermission(a *attempt) (bool, bool) {
	if c.gate == nil || c.gate.IsGranted(domain.PermissionStorage) {
		return true, true
	}

	result := make(chan bool, 1)
	c.gate.Request([]string{domain.PermissionStorage}, func(granted bool) {
		select {
		case result <- granted:
		default:
		}
	})

	select {
	case granted := <-result:
		return granted, true
	case <-a.ctx.Done():
		return false, false
	}
}

func (c *Coordinator) cachedPath(req domain.TransferRequest) (string, bool) {
	record, err := c.store.Get(req.VersionKey)
	if err != nil {
		c.logger.Warn("Failed to read download record",
			zap.String("version", req.VersionKey),
			zap.Error(err))
		return "", false
	}
	if record == nil || !fileReady(record.FilePath) {
		return "", false
	}
	return record.FilePath, true
}

// awaitTerminal races the poller against the completion signal. The first
// terminal status wins and stops the other source.
func (c *Coordinator) awaitTerminal(a *attempt, handle domain.TransferHandle) (domain.TransferStatus, error) {
	signal := NewCompletionSignal(handle)
	signal.OnClick(func() {
		c.post(a, func() {
			if c.messenger != nil {
				c.messenger.ShowMessage(a.req.DisplayTitle, inProgressMessage)
			}
		})
	})
	if broadcaster, ok := c.backend.(domain.CompletionBroadcaster); ok {
		signal.Attach(broadcaster)
	}
	defer signal.Close()

	poller := NewProgressPoller(c.backend, c.poll, c.logger)

	var (
		once    sync.Once
		settled domain.TransferStatus
		done    bool
	)
	g, gctx := errgroup.WithContext(a.ctx)
	watch, stop := context.WithCancel(gctx)
	defer stop()

	settle := func(status domain.TransferStatus, source string) {
		once.Do(func() {
			settled = status
			done = true
			c.logger.Debug("Transfer settled",
				zap.Int64("handle", int64(handle)),
				zap.String("source", source),
				zap.Stringer("status", status))
		})
		stop()
	}

	g.Go(func() error {
		status, err := poller.Run(watch, handle, func(s domain.TransferStatus) {
			c.onStatus(a, handle, s)
		})
		if err != nil {
			return ignoreStopped(err, a.ctx)
		}
		settle(status, "poll")
		return nil
	})
	g.Go(func() error {
		status, err := signal.Wait(watch)
		if err != nil {
			return ignoreStopped(err, a.ctx)
		}
		settle(status, "signal")
		return nil
	})

	err := g.Wait()
	if a.ctx.Err() != nil {
		return domain.TransferStatus{}, a.ctx.Err()
	}
	if err != nil {
		return domain.TransferStatus{}, err
	}
	if !done {
		return domain.TransferStatus{}, context.Canceled
	}
	return settled, nil
}

func ignoreStopped(err error, parent context.Context) error {
	if errors.Is(err, context.Canceled) && parent.Err() == nil {
		return nil
	}
	return err
}

func (c *Coordinator) onStatus(a *attempt, handle domain.TransferHandle, status domain.TransferStatus) {
	switch status.Kind {
	case domain.StatusRunning:
		total, sofar, percent := status.TotalBytes, status.BytesSoFar, status.Percent()
		c.logger.Debug("Transfer progress",
			zap.Int64("handle", int64(handle)),
			zap.String("received", humanize.Bytes(uint64(max(sofar, 0)))),
			zap.String("total", humanize.Bytes(uint64(max(total, 0)))),
			zap.Int("percent", percent))
		c.post(a, func() { c.listener.OnProgress(total, sofar, percent) })
	case domain.StatusPaused:
		c.logger.Info("Transfer paused",
			zap.Int64("handle", int64(handle)),
			zap.String("reason", string(status.PauseReason)))
		c.events.LogTransferEvent("transfer_paused",
			zap.String("attempt", a.id),
			zap.String("target", a.req.VersionKey),
			zap.String("reason", string(status.PauseReason)))
	case domain.StatusPending:
		c.logger.Debug("Transfer pending", zap.Int64("handle", int64(handle)))
	}
}

func (c *Coordinator) succeed(a *attempt, uri, mimeType string) {
	if !c.transition(a, domain.StateSucceeded) {
		return
	}

	c.logger.Info("Download succeeded",
		zap.String("attempt", a.id),
		zap.String("uri", uri),
		zap.String("mime", mimeType))
	c.events.LogTransferEvent("transfer_succeeded",
		zap.String("attempt", a.id),
		zap.String("target", a.req.VersionKey),
		zap.String("uri", uri),
		zap.String("mime", mimeType))
	c.post(a, func() { c.listener.OnSuccess(uri, mimeType) })

	if c.installer == nil || a.cancelled.Load() {
		return
	}
	if c.installer.Install(uri, mimeType) {
		return
	}

	installErr := domain.NewDownloadError(domain.KindInstallFailed, nil)
	c.logger.Warn("Install failed", zap.String("uri", uri), zap.String("mime", mimeType))
	c.events.LogAppError("Install failed",
		zap.String("target", a.req.VersionKey),
		zap.String("uri", uri))
	c.post(a, func() {
		if c.messenger != nil {
			c.messenger.ShowMessage(a.req.DisplayTitle, installErr.Error())
		}
	})
}

func (c *Coordinator) fail(a *attempt, err *domain.DownloadError) {
	if !c.transition(a, domain.StateFailed) {
		return
	}

	c.logger.Warn("Download failed",
		zap.String("attempt", a.id),
		zap.String("kind", string(err.Kind)),
		zap.Error(err))
	c.events.LogAppError("Download failed",
		zap.String("attempt", a.id),
		zap.String("target", a.req.VersionKey),
		zap.String("kind", string(err.Kind)),
		zap.String("reason", string(err.Reason)),
		zap.Error(err.Err))
	c.events.LogTransferEvent("transfer_failed",
		zap.String("attempt", a.id),
		zap.String("target", a.req.VersionKey),
		zap.String("error", err.Error()))
	c.post(a, func() { c.listener.OnFailed(err) })
}

func (c *Coordinator) failServiceUnavailable(a *attempt, cause error) {
	c.fail(a, domain.NewDownloadError(domain.KindServiceUnavailable, cause))
	url := a.req.SourceURL
	c.post(a, func() {
		if c.messenger != nil {
			c.messenger.OfferSettings(serviceDisabledMessage)
			c.messenger.OfferFallback(url)
		}
	})
}

// post queues fn on the dispatcher unless the attempt has been cancelled
// by the time it runs
func (c *Coordinator) post(a *attempt, fn func()) {
	c.dispatcher.Post(func() {
		if a.cancelled.Load() {
			return
		}
		fn()
	})
}

// transition moves the state machine on behalf of a; it fails when a is no
// longer the current attempt.
func (c *Coordinator) transition(a *attempt, to domain.CoordinatorState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != a || a.cancelled.Load() {
		return false
	}
	return c.transitionLocked(to)
}

func (c *Coordinator) transitionLocked(to domain.CoordinatorState) bool {
	if err := domain.ValidateTransition(c.state, to); err != nil {
		c.logger.Error("Rejected state change", zap.Error(err))
		return false
	}
	c.state = to
	return true
}

// abandonIfDone cleans up after an attempt whose context ended without an
// explicit Cancel
func (c *Coordinator) abandonIfDone(a *attempt) {
	if a.ctx.Err() == nil || a.cancelled.Load() {
		a.cancel()
		return
	}

	c.mu.Lock()
	if c.current != a {
		c.mu.Unlock()
		return
	}
	a.cancelled.Store(true)
	c.current = nil
	handle := c.handle
	c.handle = domain.HandleNone
	c.state = domain.StateIdle
	c.mu.Unlock()

	c.removeTransfer(handle)
	c.logger.Info("Download abandoned", zap.String("attempt", a.id))
}

func (c *Coordinator) removeTransfer(handle domain.TransferHandle) {
	if !handle.Valid() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()
	if err := c.backend.Remove(ctx, handle); err != nil {
		c.logger.Warn("Failed to remove transfer",
			zap.Int64("handle", int64(handle)),
			zap.Error(err))
	}
}

func (c *Coordinator) resolveMimeType(req domain.TransferRequest, reported string) string {
	if req.MimeType != "" {
		return req.MimeType
	}
	if reported != "" {
		return reported
	}
	return domain.GuessMimeType(req.DestinationPath)
}

func fileReady(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
