package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Syncer regenerates the destination content for a set of units.
//
// Implementations must be deterministic: the same units over the same
// sources produce byte-identical destination content.
type Syncer interface {
	SyncUnits(ctx context.Context, units []string) error
}

// Trigger records why a sync ran.
type Trigger string

const (
	// TriggerStartup is the initial full sync.
	TriggerStartup Trigger = "startup"
	// TriggerSource is a debounced batch of source changes.
	TriggerSource Trigger = "source"
	// TriggerExternal is a full resync after the destination was overwritten.
	TriggerExternal Trigger = "external"
	// TriggerManual is a one-shot sync requested from the command line.
	TriggerManual Trigger = "manual"
)

// SyncRecord describes one completed sync attempt.
type SyncRecord struct {
	Trigger  Trigger
	Units    []string
	Started  time.Time
	Duration time.Duration
	Err      error
}

// WriteCoordinator is the state both watchers share: the known unit set, the
// time of the last self-performed write, and the lock that serializes syncs.
type WriteCoordinator struct {
	syncer   Syncer
	cooldown time.Duration
	now      func() time.Time
	observer Observer

	// syncMu is held for the whole of a sync so destination writes from the
	// two watchers never interleave.
	syncMu sync.Mutex

	mu        sync.Mutex
	units     []string
	known     map[string]struct{}
	lastWrite time.Time
}

// NewWriteCoordinator creates a coordinator that syncs through syncer and
// treats destination changes within cooldown of a self-write as echoes.
func NewWriteCoordinator(syncer Syncer, cooldown time.Duration) *WriteCoordinator {
	return &WriteCoordinator{
		syncer:   syncer,
		cooldown: cooldown,
		now:      time.Now,
		observer: NopObserver{},
		known:    make(map[string]struct{}),
	}
}

// SetObserver installs the observer notified of every sync.
func (c *WriteCoordinator) SetObserver(o Observer) {
	if o == nil {
		o = NopObserver{}
	}
	c.observer = o
}

// MarkWrite records the current time as the last self-write.
func (c *WriteCoordinator) MarkWrite() {
	now := c.now()
	c.mu.Lock()
	c.lastWrite = now
	c.mu.Unlock()
}

// LastWrite returns the time of the last self-write, or the zero time.
func (c *WriteCoordinator) LastWrite() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastWrite
}

// WithinCooldown reports whether now falls inside the cooldown window that
// follows the last self-write.
func (c *WriteCoordinator) WithinCooldown(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastWrite.IsZero() {
		return false
	}
	return now.Sub(c.lastWrite) < c.cooldown
}

// AddUnit adds name to the known set. It returns false if name was already
// known.
func (c *WriteCoordinator) AddUnit(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.known[name]; ok {
		return false
	}
	c.known[name] = struct{}{}
	c.units = append(c.units, name)
	return true
}

// HasUnit reports whether name is known.
func (c *WriteCoordinator) HasUnit(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.known[name]
	return ok
}

// Units returns the known units in the order they were added.
func (c *WriteCoordinator) Units() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.units))
	copy(out, c.units)
	return out
}

// Sync runs the syncer for units and marks the write on success. Concurrent
// calls are serialized. An empty unit list is a no-op.
//
// The observer is notified after the sync lock is released, so a slow
// observer never delays the other watcher.
func (c *WriteCoordinator) Sync(ctx context.Context, units []string, trigger Trigger) error {
	if len(units) == 0 {
		return nil
	}

	c.syncMu.Lock()
	rec := c.syncLocked(ctx, units, trigger)
	c.syncMu.Unlock()

	return c.finish(rec)
}

// SyncIfCold resyncs every known unit unless a self-write happened within
// the cooldown. The cooldown is checked after the sync lock is taken, so a
// sync that was in flight when the caller decided to resync suppresses it.
// before runs under the lock just ahead of the sync. SyncIfCold reports
// whether the sync ran.
func (c *WriteCoordinator) SyncIfCold(ctx context.Context, trigger Trigger, before func()) (bool, error) {
	c.syncMu.Lock()
	if c.WithinCooldown(c.now()) {
		c.syncMu.Unlock()
		return false, nil
	}
	units := c.Units()
	if len(units) == 0 {
		c.syncMu.Unlock()
		return false, nil
	}
	if before != nil {
		before()
	}
	rec := c.syncLocked(ctx, units, trigger)
	c.syncMu.Unlock()

	return true, c.finish(rec)
}

// syncLocked runs the syncer. syncMu must be held.
func (c *WriteCoordinator) syncLocked(ctx context.Context, units []string, trigger Trigger) SyncRecord {
	started := c.now()
	err := c.syncer.SyncUnits(ctx, units)
	if err == nil {
		c.MarkWrite()
	}
	return SyncRecord{
		Trigger:  trigger,
		Units:    append([]string(nil), units...),
		Started:  started,
		Duration: c.now().Sub(started),
		Err:      err,
	}
}

// finish notifies the observer and wraps a sync failure.
func (c *WriteCoordinator) finish(rec SyncRecord) error {
	c.observer.OnSync(rec)
	if rec.Err != nil {
		return fmt.Errorf("%s sync of %v failed: %w", rec.Trigger, rec.Units, rec.Err)
	}
	return nil
}
