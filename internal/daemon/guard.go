package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"
)

// DestinationGuard re-syncs every known unit after the destination file is
// overwritten by another process.
//
// The destination is polled rather than watched: the game replaces the file
// atomically, which notification APIs miss or report against the old inode.
// Changes observed within the cooldown of a self-write are treated as echoes
// of that write and ignored.
type DestinationGuard struct {
	path         string
	pollInterval time.Duration
	debounce     time.Duration
	coord        *WriteCoordinator
	observer     Observer
	logger       *log.Logger
	debugf       func(format string, args ...any)
	now          func() time.Time

	lastSeen time.Time // mtime of the last observation, zero if absent
}

// NewDestinationGuard creates a guard for the file at path.
func NewDestinationGuard(path string, pollInterval, debounce time.Duration, coord *WriteCoordinator, logger *log.Logger) *DestinationGuard {
	return &DestinationGuard{
		path:         path,
		pollInterval: pollInterval,
		debounce:     debounce,
		coord:        coord,
		observer:     NopObserver{},
		logger:       logger,
		debugf:       func(string, ...any) {},
		now:          time.Now,
	}
}

// modTime returns the destination's modification time, or the zero time if
// it cannot be stat'ed.
func (g *DestinationGuard) modTime() time.Time {
	info, err := os.Stat(g.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Baseline records the current modification time without acting on it.
func (g *DestinationGuard) Baseline() {
	g.lastSeen = g.modTime()
}

// Observe records a polled modification time. It reports whether the
// change looks external and the debounce timer should be (re)started.
func (g *DestinationGuard) Observe(modTime time.Time) bool {
	if modTime.Equal(g.lastSeen) {
		return false
	}
	g.lastSeen = modTime

	if g.coord.WithinCooldown(g.now()) {
		g.debugf("Destination changed within cooldown, treating as our own write")
		g.observer.OnEchoSuppressed(modTime)
		return false
	}
	return true
}

// Fire runs when the debounce timer expires. It resyncs every known unit
// unless a self-write landed in the meantime; the cooldown is checked again
// once the sync lock is held, since a source sync may still be in flight.
func (g *DestinationGuard) Fire(ctx context.Context) error {
	if g.coord.WithinCooldown(g.now()) {
		g.debugf("Self-write during destination debounce, skipping resync")
		return nil
	}

	if _, err := os.Stat(g.path); err != nil {
		if os.IsNotExist(err) {
			g.logger.Printf("Destination %s disappeared, waiting for it to return", g.path)
			return nil
		}
		return fmt.Errorf("failed to stat destination: %w", err)
	}

	ran, err := g.coord.SyncIfCold(ctx, TriggerExternal, func() {
		g.logger.Printf("[RELOAD] %s overwritten externally, re-syncing all units", g.path)
		g.observer.OnExternalOverwrite(g.lastSeen)
	})
	if !ran {
		g.debugf("Self-write finished while waiting to resync, skipping")
	}
	return err
}

// Run polls the destination until ctx is cancelled. A resync failure stops
// the loop and is returned.
func (g *DestinationGuard) Run(ctx context.Context) error {
	g.Baseline()

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	timer := time.NewTimer(g.debounce)
	timer.Stop()
	defer timer.Stop()

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			if g.Observe(g.modTime()) {
				timer.Reset(g.debounce)
				fire = timer.C
			}

		case <-fire:
			fire = nil
			if err := g.Fire(ctx); err != nil {
				return err
			}
		}
	}
}
