package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/fetch-install-go/internal/domain"
)

// fakeBackend replays a scripted sequence of statuses. The last status
// repeats once the script is exhausted.
type fakeBackend struct {
	mu         sync.Mutex
	enabled    bool
	nextHandle domain.TransferHandle
	enqueueErr error
	rejected   bool
	script     []domain.TransferStatus
	queries    int
	queryErrs  []error
	calls      []string
	onQuery    func(handle domain.TransferHandle, n int)
	requests   []domain.TransferRequest
}

func newFakeBackend(script ...domain.TransferStatus) *fakeBackend {
	return &fakeBackend{
		enabled:    true,
		nextHandle: 17,
		script:     script,
	}
}

func (b *fakeBackend) IsServiceEnabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

func (b *fakeBackend) Enqueue(ctx context.Context, req domain.TransferRequest) (domain.TransferHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests = append(b.requests, req)
	if b.enqueueErr != nil {
		b.calls = append(b.calls, "enqueue:error")
		return domain.HandleEnqueueFailed, b.enqueueErr
	}
	if b.rejected {
		b.calls = append(b.calls, "enqueue:rejected")
		return domain.HandleEnqueueFailed, nil
	}
	h := b.nextHandle
	b.nextHandle++
	b.queries = 0
	b.calls = append(b.calls, fmt.Sprintf("enqueue:%d", h))
	return h, nil
}

func (b *fakeBackend) Remove(ctx context.Context, handle domain.TransferHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, fmt.Sprintf("remove:%d", handle))
	return nil
}

func (b *fakeBackend) Query(ctx context.Context, handle domain.TransferHandle) (domain.TransferStatus, error) {
	b.mu.Lock()
	n := b.queries
	b.queries++
	var err error
	if n < len(b.queryErrs) {
		err = b.queryErrs[n]
	}
	var status domain.TransferStatus
	if len(b.script) > 0 {
		status = b.script[min(n, len(b.script)-1)]
	}
	hook := b.onQuery
	b.mu.Unlock()

	if hook != nil {
		hook(handle, n)
	}
	if err != nil {
		return domain.TransferStatus{}, err
	}
	return status, nil
}

func (b *fakeBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBackend) count(prefix string) int {
	n := 0
	for _, c := range b.Calls() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// broadcastBackend adds completion broadcasts to fakeBackend
type broadcastBackend struct {
	*fakeBackend

	rmu       sync.Mutex
	receivers map[int]func(domain.CompletionEvent)
	next      int
}

func newBroadcastBackend(script ...domain.TransferStatus) *broadcastBackend {
	return &broadcastBackend{
		fakeBackend: newFakeBackend(script...),
		receivers:   make(map[int]func(domain.CompletionEvent)),
	}
}

func (b *broadcastBackend) RegisterReceiver(fn func(domain.CompletionEvent)) func() {
	b.rmu.Lock()
	defer b.rmu.Unlock()
	id := b.next
	b.next++
	b.receivers[id] = fn
	return func() {
		b.rmu.Lock()
		defer b.rmu.Unlock()
		delete(b.receivers, id)
	}
}

func (b *broadcastBackend) Broadcast(event domain.CompletionEvent) {
	b.rmu.Lock()
	fns := make([]func(domain.CompletionEvent), 0, len(b.receivers))
	for _, fn := range b.receivers {
		fns = append(fns, fn)
	}
	b.rmu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

func (b *broadcastBackend) Receivers() int {
	b.rmu.Lock()
	defer b.rmu.Unlock()
	return len(b.receivers)
}

type fakeGate struct {
	granted   bool
	onRequest bool
	mu        sync.Mutex
	requests  int
}

func (g *fakeGate) IsGranted(permission string) bool {
	return g.granted && permission == domain.PermissionStorage
}

func (g *fakeGate) Request(permissions []string, callback func(bool)) {
	g.mu.Lock()
	g.requests++
	g.mu.Unlock()
	go callback(g.onRequest)
}

func (g *fakeGate) Requests() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests
}

// memoryStore implements domain.DownloadRecordStore for testing
type memoryStore struct {
	mu      sync.Mutex
	records map[string]*domain.DownloadRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]*domain.DownloadRecord)}
}

func (s *memoryStore) Get(versionKey string) (*domain.DownloadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[versionKey]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, nil
}

func (s *memoryStore) Put(record *domain.DownloadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.records[record.VersionKey] = &copied
	return nil
}

func (s *memoryStore) List() ([]*domain.DownloadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.DownloadRecord, 0, len(s.records))
	for _, r := range s.records {
		copied := *r
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionKey < out[j].VersionKey })
	return out, nil
}

func (s *memoryStore) Delete(versionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, versionKey)
	return nil
}

type fakeInstaller struct {
	mu     sync.Mutex
	ok     bool
	called []string
}

func (i *fakeInstaller) Install(uri, mimeType string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.called = append(i.called, uri+"|"+mimeType)
	return i.ok
}

func (i *fakeInstaller) Calls() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.called...)
}

type fakeMessenger struct {
	mu       sync.Mutex
	messages []string
}

func (m *fakeMessenger) record(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, s)
}

func (m *fakeMessenger) ShowMessage(title, message string) { m.record("message:" + message) }
func (m *fakeMessenger) OfferSettings(message string)      { m.record("settings") }
func (m *fakeMessenger) OfferFallback(url string)          { m.record("fallback:" + url) }

func (m *fakeMessenger) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

// recordingListener records callbacks in the order they were delivered
type recordingListener struct {
	mu     sync.Mutex
	events []string
	errs   []error
}

func (l *recordingListener) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, s)
}

func (l *recordingListener) OnPrepared(req domain.TransferRequest) {
	l.add("prepared")
}

func (l *recordingListener) OnProgress(totalBytes, bytesSoFar int64, percent int) {
	l.add(fmt.Sprintf("progress(%d,%d,%d)", totalBytes, bytesSoFar, percent))
}

func (l *recordingListener) OnSuccess(uri, mimeType string) {
	l.add(fmt.Sprintf("success(%s,%s)", uri, mimeType))
}

func (l *recordingListener) OnFailed(err error) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
	l.add(fmt.Sprintf("failed(%s)", err.Error()))
}

func (l *recordingListener) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *recordingListener) Errors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errs...)
}

func (l *recordingListener) hasPrefix(prefix string) bool {
	for _, e := range l.Events() {
		if len(e) >= len(prefix) && e[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func (l *recordingListener) countPrefix(prefix string) int {
	n := 0
	for _, e := range l.Events() {
		if len(e) >= len(prefix) && e[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// writeFile creates a non-empty file named name in a temp dir
func writeFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0644))
	return path
}

var fastPoll = &domain.PollConfig{Interval: 5 * time.Millisecond}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
