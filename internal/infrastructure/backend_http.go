package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/h2non/filetype"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yourusername/fetch-install-go/internal/domain"
)

const (
	partSuffix = ".part"
	lockSuffix = ".lock"
	bufferSize = 32 * 1024
)

// Status and reason codes kept by the backend. They never leave this file;
// Query translates them into domain statuses.
const (
	codePending = 1 << iota
	codeRunning
	codePaused
	codeSuccessful
	codeFailed
)

const (
	pausedWaitingToRetry    = 1
	pausedWaitingForNetwork = 2
	pausedQueuedForWifi     = 3
	pausedUnknown           = 4

	errorUnknown           = 1000
	errorFileError         = 1001
	errorUnhandledHTTPCode = 1002
	errorHTTPDataError     = 1004
	errorTooManyRedirects  = 1005
	errorInsufficientSpace = 1006
	errorCannotResume      = 1008
	errorFileAlreadyExists = 1009
)

var errTooManyRedirects = errors.New("too many redirects")

// CompletionNotifier announces finished transfers to the user
type CompletionNotifier interface {
	NotifyTransferFinished(title string, status domain.TransferStatus)
}

type transfer struct {
	handle domain.TransferHandle
	req    domain.TransferRequest
	cancel context.CancelFunc
	done   chan struct{}

	bytesSoFar atomic.Int64
	totalBytes atomic.Int64

	// guarded by HTTPBackend.mu
	code   int
	reason int
	uri    string
	mime   string
	detail string
}

// HTTPBackend is a TransferBackend that fetches files over HTTP(S) in
// background goroutines, one per transfer
type HTTPBackend struct {
	client   *http.Client
	limiter  *rate.Limiter
	config   *domain.DownloadConfig
	notifier CompletionNotifier
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	enabled        bool
	network        domain.NetworkType
	networkChanged chan struct{}
	next           int64
	transfers      map[domain.TransferHandle]*transfer
	receivers      map[int]func(domain.CompletionEvent)
	nextReceiver   int
}

// NewHTTPBackend creates a backend. notifier may be nil.
func NewHTTPBackend(config *domain.DownloadConfig, notifier CompletionNotifier, logger *zap.Logger) (*HTTPBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	network, err := domain.ParseNetworkType(config.Network)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &HTTPBackend{
		config:         config,
		notifier:       notifier,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
		enabled:        config.ServiceEnabled,
		network:        network,
		networkChanged: make(chan struct{}),
		transfers:      make(map[domain.TransferHandle]*transfer),
		receivers:      make(map[int]func(domain.CompletionEvent)),
	}
	if config.MaxBytesPerSecond > 0 {
		burst := int(min(config.MaxBytesPerSecond, bufferSize))
		b.limiter = rate.NewLimiter(rate.Limit(config.MaxBytesPerSecond), burst)
	}
	b.client = &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > config.MaxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}
	return b, nil
}

// IsServiceEnabled implements domain.TransferBackend
func (b *HTTPBackend) IsServiceEnabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// SetServiceEnabled turns the service on or off. Running transfers continue.
func (b *HTTPBackend) SetServiceEnabled(enabled bool) {
	b.mu.Lock()
	b.enabled = enabled
	b.mu.Unlock()
	b.logger.Info("Download service toggled", zap.Bool("enabled", enabled))
}

// SetNetwork changes the network the service is on. Transfers waiting for
// an allowed network resume when it becomes available.
func (b *HTTPBackend) SetNetwork(network domain.NetworkType) {
	b.mu.Lock()
	b.network = network
	close(b.networkChanged)
	b.networkChanged = make(chan struct{})
	b.mu.Unlock()
	b.logger.Info("Network changed", zap.Stringer("network", network))
}

// Enqueue implements domain.TransferBackend
func (b *HTTPBackend) Enqueue(ctx context.Context, req domain.TransferRequest) (domain.TransferHandle, error) {
	if !b.IsServiceEnabled() {
		return domain.HandleEnqueueFailed, domain.ErrBackendUnavailable
	}

	u, err := url.Parse(req.SourceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.HandleEnqueueFailed, fmt.Errorf("%w: unsupported url %q", domain.ErrInvalidRequest, req.SourceURL)
	}
	if strings.TrimSpace(req.DestinationPath) == "" {
		return domain.HandleEnqueueFailed, fmt.Errorf("%w: destination path is required", domain.ErrInvalidRequest)
	}
	if err := ctx.Err(); err != nil {
		return domain.HandleEnqueueFailed, err
	}

	tctx, cancel := context.WithCancel(b.ctx)
	b.mu.Lock()
	if b.ctx.Err() != nil {
		b.mu.Unlock()
		cancel()
		return domain.HandleEnqueueFailed, domain.ErrBackendUnavailable
	}
	b.next++
	t := &transfer{
		handle: domain.TransferHandle(b.next),
		req:    req,
		cancel: cancel,
		done:   make(chan struct{}),
		code:   codePending,
	}
	b.transfers[t.handle] = t
	b.wg.Add(1)
	b.mu.Unlock()

	b.logger.Info("Transfer enqueued",
		zap.Int64("handle", int64(t.handle)),
		zap.String("url", req.SourceURL),
		zap.String("dest", req.DestinationPath))

	go b.run(tctx, t)
	return t.handle, nil
}

// Remove cancels a transfer and deletes its partial file. A finished file
// is kept. Unknown handles are ignored.
func (b *HTTPBackend) Remove(ctx context.Context, handle domain.TransferHandle) error {
	b.mu.Lock()
	t, ok := b.transfers[handle]
	if ok {
		delete(b.transfers, handle)
	}
	b.mu.Unlock()
	if !ok {
		return nil
	}

	t.cancel()
	select {
	case <-t.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	os.Remove(t.req.DestinationPath + partSuffix)
	b.logger.Info("Transfer removed", zap.Int64("handle", int64(handle)))
	return nil
}

// Query implements domain.TransferBackend
func (b *HTTPBackend) Query(ctx context.Context, handle domain.TransferHandle) (domain.TransferStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.transfers[handle]
	if !ok {
		return domain.TransferStatus{}, fmt.Errorf("%w: %d", domain.ErrTransferNotFound, handle)
	}
	return translateStatus(t.code, t.reason, t.bytesSoFar.Load(), t.totalBytes.Load(), t.uri, t.mime, t.detail), nil
}

// RegisterReceiver implements domain.CompletionBroadcaster
func (b *HTTPBackend) RegisterReceiver(fn func(domain.CompletionEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextReceiver
	b.nextReceiver++
	b.receivers[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.receivers, id)
	}
}

// ClickNotification reports that the user clicked the notification of a
// transfer
func (b *HTTPBackend) ClickNotification(handle domain.TransferHandle) error {
	status, err := b.Query(b.ctx, handle)
	if err != nil {
		return err
	}
	b.broadcast(domain.CompletionEvent{Handle: handle, Status: status, Clicked: true})
	return nil
}

// Close cancels every transfer and waits for the workers to exit
func (b *HTTPBackend) Close() error {
	b.mu.Lock()
	b.cancel()
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}

func (b *HTTPBackend) run(ctx context.Context, t *transfer) {
	defer b.wg.Done()
	defer close(t.done)

	if !b.waitForNetwork(ctx, t) {
		return
	}

	code, reason, detail := b.fetch(ctx, t)
	if code != codeSuccessful && ctx.Err() != nil {
		return
	}
	b.finish(t, code, reason, detail)
}

// fetch downloads the file while holding the destination lock and returns
// the terminal code, reason and detail
func (b *HTTPBackend) fetch(ctx context.Context, t *transfer) (int, int, string) {
	dest := t.req.DestinationPath
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return codeFailed, errorFileError, err.Error()
	}

	lock := flock.New(dest + lockSuffix)
	locked, err := lock.TryLock()
	if err != nil {
		return codeFailed, errorFileError, err.Error()
	}
	if !locked {
		return codeFailed, errorFileAlreadyExists, "destination is locked by another transfer"
	}
	// the lock file is never unlinked so every holder locks the same inode
	defer lock.Unlock()

	start := time.Now()
	for attempt := 0; ; attempt++ {
		err := b.download(ctx, t)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return codeFailed, errorUnknown, ctx.Err().Error()
		}

		reason, retryable := classifyError(err)
		if !retryable || attempt >= b.config.MaxRetries {
			if retryable && !isHTTPStatus(reason) {
				reason = errorCannotResume
			}
			return codeFailed, reason, err.Error()
		}

		b.logger.Warn("Transfer attempt failed, retrying",
			zap.Int64("handle", int64(t.handle)),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", b.config.MaxRetries),
			zap.Error(err))
		b.setState(t, codePaused, pausedWaitingToRetry)

		select {
		case <-time.After(b.config.RetryDelay):
		case <-ctx.Done():
			return codeFailed, errorUnknown, ctx.Err().Error()
		}
	}

	mimeType := b.detectMimeType(t)
	b.mu.Lock()
	t.uri = (&url.URL{Scheme: "file", Path: dest}).String()
	t.mime = mimeType
	b.mu.Unlock()

	written := t.bytesSoFar.Load()
	elapsed := time.Since(start)
	b.logger.Info("Transfer finished",
		zap.Int64("handle", int64(t.handle)),
		zap.String("dest", dest),
		zap.String("size", humanize.Bytes(uint64(written))),
		zap.Duration("elapsed", elapsed.Round(time.Millisecond)),
		zap.String("speed", humanize.Bytes(uint64(float64(written)/max(elapsed.Seconds(), 0.001)))+"/s"))

	return codeSuccessful, 0, ""
}

// waitForNetwork blocks while the current network is not allowed by the
// request. It returns false when ctx ends first.
func (b *HTTPBackend) waitForNetwork(ctx context.Context, t *transfer) bool {
	for {
		b.mu.Lock()
		network := b.network
		changed := b.networkChanged
		b.mu.Unlock()

		if t.req.AllowedNetworks.Allows(network) {
			return true
		}

		reason := pausedWaitingForNetwork
		if t.req.AllowedNetworks == domain.NetworkWifi {
			reason = pausedQueuedForWifi
		}
		b.setState(t, codePaused, reason)

		select {
		case <-ctx.Done():
			return false
		case <-changed:
		}
	}
}

func (b *HTTPBackend) download(ctx context.Context, t *transfer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.req.SourceURL, nil)
	if err != nil {
		return err
	}
	if b.config.UserAgent != "" {
		req.Header.Set("User-Agent", b.config.UserAgent)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &httpStatusError{code: resp.StatusCode}
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	t.totalBytes.Store(total)
	t.bytesSoFar.Store(0)
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			b.mu.Lock()
			t.mime = mediaType
			b.mu.Unlock()
		}
	}
	b.setState(t, codeRunning, 0)

	partPath := t.req.DestinationPath + partSuffix
	out, err := os.Create(partPath)
	if err != nil {
		return &fileError{err: err}
	}
	success := false
	defer func() {
		out.Close()
		if !success {
			os.Remove(partPath)
		}
	}()

	chunk := bufferSize
	if b.limiter != nil {
		chunk = b.limiter.Burst()
	}
	buf := make([]byte, chunk)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		nr, readErr := resp.Body.Read(buf)
		if nr > 0 && b.limiter != nil {
			if err := b.limiter.WaitN(ctx, nr); err != nil {
				return err
			}
		}
		if nr > 0 {
			nw, writeErr := out.Write(buf[:nr])
			t.bytesSoFar.Add(int64(nw))
			if writeErr != nil {
				return &fileError{err: writeErr}
			}
			if nw != nr {
				return &fileError{err: io.ErrShortWrite}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}

	if total > 0 && t.bytesSoFar.Load() != total {
		return io.ErrUnexpectedEOF
	}
	if err := out.Sync(); err != nil {
		return &fileError{err: err}
	}
	if err := out.Close(); err != nil {
		return &fileError{err: err}
	}
	if err := os.Rename(partPath, t.req.DestinationPath); err != nil {
		return &fileError{err: err}
	}
	success = true
	return nil
}

// detectMimeType prefers the requested type, then the file content, then
// the server's Content-Type
func (b *HTTPBackend) detectMimeType(t *transfer) string {
	if t.req.MimeType != "" {
		return t.req.MimeType
	}
	if kind, err := filetype.MatchFile(t.req.DestinationPath); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}

	b.mu.Lock()
	served := t.mime
	b.mu.Unlock()
	if served != "" && served != "application/octet-stream" {
		return served
	}
	return domain.GuessMimeType(t.req.DestinationPath)
}

func (b *HTTPBackend) setState(t *transfer, code, reason int) {
	b.mu.Lock()
	t.code = code
	t.reason = reason
	b.mu.Unlock()
}

// finish records a terminal status and announces it
func (b *HTTPBackend) finish(t *transfer, code, reason int, detail string) {
	b.mu.Lock()
	t.code = code
	t.reason = reason
	t.detail = detail
	status := translateStatus(t.code, t.reason, t.bytesSoFar.Load(), t.totalBytes.Load(), t.uri, t.mime, t.detail)
	_, tracked := b.transfers[t.handle]
	b.mu.Unlock()

	if !tracked {
		return
	}

	if status.Kind == domain.StatusFailed {
		b.logger.Warn("Transfer failed",
			zap.Int64("handle", int64(t.handle)),
			zap.String("reason", string(status.FailureReason)),
			zap.String("detail", detail))
	}

	b.broadcast(domain.CompletionEvent{Handle: t.handle, Status: status})
	if b.notifier != nil && t.req.NotificationVisibility.NotifiesCompletion() {
		b.notifier.NotifyTransferFinished(t.req.DisplayTitle, status)
	}
}

func (b *HTTPBackend) broadcast(event domain.CompletionEvent) {
	b.mu.Lock()
	receivers := make([]func(domain.CompletionEvent), 0, len(b.receivers))
	for _, fn := range b.receivers {
		receivers = append(receivers, fn)
	}
	b.mu.Unlock()

	for _, fn := range receivers {
		fn(event)
	}
}

// translateStatus maps backend codes onto the domain status taxonomy
func translateStatus(code, reason int, bytesSoFar, totalBytes int64, uri, mimeType, detail string) domain.TransferStatus {
	switch code {
	case codePending:
		return domain.Pending()
	case codeRunning:
		return domain.Running(bytesSoFar, totalBytes)
	case codePaused:
		return domain.Paused(pauseReason(reason))
	case codeSuccessful:
		return domain.Succeeded(uri, mimeType)
	case codeFailed:
		return domain.Failed(failureReason(reason), detail)
	default:
		return domain.Failed(domain.FailureUnknown, detail)
	}
}

func pauseReason(reason int) domain.PauseReason {
	switch reason {
	case pausedWaitingToRetry:
		return domain.PauseWaitingToRetry
	case pausedWaitingForNetwork:
		return domain.PauseWaitingForNetwork
	case pausedQueuedForWifi:
		return domain.PauseQueuedForWifi
	default:
		return domain.PauseUnknown
	}
}

func failureReason(reason int) domain.FailureReason {
	switch {
	case reason == errorFileError:
		return domain.FailureFileError
	case reason == errorUnhandledHTTPCode, reason == errorHTTPDataError, isHTTPStatus(reason):
		return domain.FailureHTTPError
	case reason == errorInsufficientSpace:
		return domain.FailureInsufficientSpace
	case reason == errorTooManyRedirects:
		return domain.FailureTooManyRedirects
	case reason == errorCannotResume:
		return domain.FailureCannotResume
	case reason == errorFileAlreadyExists:
		return domain.FailureAlreadyExists
	default:
		return domain.FailureUnknown
	}
}

func isHTTPStatus(reason int) bool {
	return reason >= 400 && reason < 600
}

type httpStatusError struct {
	code int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.code)
}

type fileError struct {
	err error
}

func (e *fileError) Error() string { return "write error: " + e.err.Error() }
func (e *fileError) Unwrap() error { return e.err }

// classifyError returns the backend reason code for err and whether
// another attempt could succeed
func classifyError(err error) (int, bool) {
	var statusErr *httpStatusError
	var fileErr *fileError
	var netErr net.Error

	switch {
	case errors.Is(err, errTooManyRedirects):
		return errorTooManyRedirects, false
	case errors.As(err, &statusErr):
		return statusErr.code, statusErr.code >= http.StatusInternalServerError
	case errors.Is(err, syscall.ENOSPC):
		return errorInsufficientSpace, false
	case errors.As(err, &fileErr):
		return errorFileError, false
	case errors.Is(err, io.ErrUnexpectedEOF), errors.As(err, &netErr):
		return errorHTTPDataError, true
	default:
		return errorUnknown, false
	}
}
