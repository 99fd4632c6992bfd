package daemon

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeSyncer records every SyncUnits call.
type fakeSyncer struct {
	mu       sync.Mutex
	calls    [][]string
	failOn   int // 1-based call number that fails, 0 never
	delay    time.Duration
	inflight atomic.Int32
	maxSeen  atomic.Int32
	called   chan []string
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{called: make(chan []string, 100)}
}

var errSyncFailed = errors.New("sync failed")

func (s *fakeSyncer) SyncUnits(ctx context.Context, units []string) error {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		old := s.maxSeen.Load()
		if n <= old || s.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	s.calls = append(s.calls, append([]string(nil), units...))
	callNum := len(s.calls)
	s.mu.Unlock()

	s.called <- append([]string(nil), units...)

	if s.failOn != 0 && callNum == s.failOn {
		return errSyncFailed
	}
	return nil
}

func (s *fakeSyncer) Calls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// waitCall waits for the next SyncUnits call.
func (s *fakeSyncer) waitCall(t *testing.T, timeout time.Duration) []string {
	t.Helper()
	select {
	case units := <-s.called:
		return units
	case <-time.After(timeout):
		t.Fatal("timeout waiting for sync call")
		return nil
	}
}

// expectNoCall fails if a SyncUnits call arrives within d.
func (s *fakeSyncer) expectNoCall(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case units := <-s.called:
		t.Fatalf("unexpected sync call with %v", units)
	case <-time.After(d):
	}
}

// fakeDiscoverer returns a settable unit list and manages *.lua files.
type fakeDiscoverer struct {
	mu    sync.Mutex
	units []string
	err   error
	calls int
}

func (d *fakeDiscoverer) Discover(root string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return append([]string(nil), d.units...), nil
}

func (d *fakeDiscoverer) Managed(rel string) bool {
	return strings.HasSuffix(rel, ".lua")
}

func (d *fakeDiscoverer) set(units ...string) {
	d.mu.Lock()
	d.units = units
	d.mu.Unlock()
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recordingObserver counts notifications.
type recordingObserver struct {
	mu         sync.Mutex
	syncs      []SyncRecord
	discovered []string
	echoes     int
	externals  int
}

func (o *recordingObserver) OnSync(rec SyncRecord) {
	o.mu.Lock()
	o.syncs = append(o.syncs, rec)
	o.mu.Unlock()
}

func (o *recordingObserver) OnUnitDiscovered(unit string) {
	o.mu.Lock()
	o.discovered = append(o.discovered, unit)
	o.mu.Unlock()
}

func (o *recordingObserver) OnEchoSuppressed(time.Time) {
	o.mu.Lock()
	o.echoes++
	o.mu.Unlock()
}

func (o *recordingObserver) OnExternalOverwrite(time.Time) {
	o.mu.Lock()
	o.externals++
	o.mu.Unlock()
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// writeFile writes content to root/rel, creating parent directories.
func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", rel, err)
	}
	return path
}

// waitFor polls cond until it holds or timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}
