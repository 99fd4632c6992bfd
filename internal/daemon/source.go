package daemon

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Discoverer lists the units under a source root and decides which files
// the watcher manages.
type Discoverer interface {
	// Discover returns the unit names under root in a stable order.
	Discover(root string) ([]string, error)

	// Managed reports whether a slash-separated path relative to the root
	// is a managed source file.
	Managed(rel string) bool
}

// SourceAggregator batches source changes and syncs the units they affect.
//
// Every qualifying change restarts the debounce timer; when the timer fires
// uninterrupted the whole batch is flushed as a single sync.
type SourceAggregator struct {
	root       string
	debounce   time.Duration
	discoverer Discoverer
	coord      *WriteCoordinator
	observer   Observer
	logger     *log.Logger
	debugf     func(format string, args ...any)

	mu      sync.Mutex
	pending map[string]time.Time // relative path -> last observed
}

// NewSourceAggregator creates an aggregator for the tree at root. A
// relative root is made absolute against the working directory.
func NewSourceAggregator(root string, debounce time.Duration, discoverer Discoverer, coord *WriteCoordinator, logger *log.Logger) *SourceAggregator {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &SourceAggregator{
		root:       root,
		debounce:   debounce,
		discoverer: discoverer,
		coord:      coord,
		observer:   NopObserver{},
		logger:     logger,
		debugf:     func(string, ...any) {},
		pending:    make(map[string]time.Time),
	}
}

// Add records a change if it names a managed file under the root. It
// reports whether the change qualified.
func (a *SourceAggregator) Add(ev ChangeEvent) bool {
	rel, ok := a.relative(ev.Path)
	if !ok || !a.discoverer.Managed(rel) {
		a.debugf("Ignoring %s %s", ev.Op, ev.Path)
		return false
	}

	a.mu.Lock()
	a.pending[rel] = ev.Time
	a.mu.Unlock()
	return true
}

// Pending returns the number of distinct paths waiting to be flushed.
func (a *SourceAggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// relative converts path to a slash-separated path relative to the root.
// Relative paths are resolved against the working directory first, as
// fsnotify reports them. Paths outside the root do not qualify.
func (a *SourceAggregator) relative(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(a.root, abs)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

// Flush syncs the units affected by the pending batch and clears it.
//
// A root-level file affects every unit. Units that appeared since the last
// discovery are added to the known set and always synced.
func (a *SourceAggregator) Flush(ctx context.Context) error {
	a.mu.Lock()
	batch := a.pending
	a.pending = make(map[string]time.Time)
	a.mu.Unlock()

	paths := make([]string, 0, len(batch))
	for p := range batch {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	shared := false
	var affected []string
	seen := make(map[string]bool)
	addAffected := func(unit string) {
		if !seen[unit] {
			seen[unit] = true
			affected = append(affected, unit)
		}
	}

	for _, p := range paths {
		unit, _, nested := strings.Cut(p, "/")
		if !nested {
			shared = true
			a.logger.Printf("Changed: %s (shared)", p)
			continue
		}
		addAffected(unit)
		a.logger.Printf("Changed: %s", p)
	}

	current, err := a.discoverer.Discover(a.root)
	if err != nil {
		return fmt.Errorf("failed to discover units: %w", err)
	}
	for _, unit := range current {
		if a.coord.AddUnit(unit) {
			addAffected(unit)
			a.logger.Printf("[NEW UNIT] Detected %s/, creating its segment", unit)
			a.observer.OnUnitDiscovered(unit)
		}
	}

	target := affected
	if shared {
		target = a.coord.Units()
	}
	if len(target) == 0 {
		return nil
	}
	return a.coord.Sync(ctx, target, TriggerSource)
}

// Run consumes events until ctx is cancelled or events is closed. A sync
// failure stops the loop and is returned.
func (a *SourceAggregator) Run(ctx context.Context, events <-chan ChangeEvent) error {
	timer := time.NewTimer(a.debounce)
	timer.Stop()
	defer timer.Stop()

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if a.Add(ev) {
				timer.Reset(a.debounce)
				fire = timer.C
			}

		case <-fire:
			fire = nil
			if err := a.Flush(ctx); err != nil {
				return err
			}
		}
	}
}
