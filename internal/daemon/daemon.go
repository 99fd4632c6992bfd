package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrNoUnits indicates discovery found no units under the source root.
var ErrNoUnits = errors.New("no unit directories found")

// Config holds configuration for the daemon.
type Config struct {
	// SourceRoot is the directory whose top-level subdirectories are units.
	// New makes it absolute.
	SourceRoot string

	// Destination is the generated file kept in sync.
	Destination string

	// SourceDebounce is the quiet period after the last source change
	// before a batch is synced.
	SourceDebounce time.Duration

	// DestinationDebounce is the quiet period after an external destination
	// change before the full resync.
	DestinationDebounce time.Duration

	// Cooldown is how long after a self-write destination changes are
	// presumed to be echoes. It must exceed PollInterval.
	Cooldown time.Duration

	// PollInterval is how often the destination's mtime is checked.
	PollInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger

	// Verbose enables debug logging of ignored events and suppressed echoes.
	Verbose bool

	// Observer receives sync and detection notifications. May be nil.
	Observer Observer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SourceDebounce:      300 * time.Millisecond,
		DestinationDebounce: 500 * time.Millisecond,
		Cooldown:            2 * time.Second,
		PollInterval:        1 * time.Second,
		Logger:              log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon keeps the destination in sync with the source tree.
type Daemon struct {
	config     *Config
	discoverer Discoverer
	coord      *WriteCoordinator
	source     *SourceAggregator
	guard      *DestinationGuard
}

// New creates a daemon that discovers units with discoverer and writes the
// destination with syncer.
func New(discoverer Discoverer, syncer Syncer, config *Config) (*Daemon, error) {
	if discoverer == nil {
		return nil, fmt.Errorf("discoverer cannot be nil")
	}
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.SourceRoot == "" {
		return nil, fmt.Errorf("source root cannot be empty")
	}
	if config.Destination == "" {
		return nil, fmt.Errorf("destination cannot be empty")
	}
	root, err := filepath.Abs(config.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source root: %w", err)
	}
	config.SourceRoot = root
	if config.Cooldown <= config.PollInterval {
		return nil, fmt.Errorf("cooldown (%s) must exceed poll interval (%s)", config.Cooldown, config.PollInterval)
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	var observer Observer = NopObserver{}
	if config.Observer != nil {
		observer = config.Observer
	}

	debugf := func(string, ...any) {}
	if config.Verbose {
		debugf = func(format string, args ...any) {
			config.Logger.Printf("debug: "+format, args...)
		}
	}

	coord := NewWriteCoordinator(syncer, config.Cooldown)
	coord.SetObserver(observer)

	source := NewSourceAggregator(config.SourceRoot, config.SourceDebounce, discoverer, coord, config.Logger)
	source.observer = observer
	source.debugf = debugf

	guard := NewDestinationGuard(config.Destination, config.PollInterval, config.DestinationDebounce, coord, config.Logger)
	guard.observer = observer
	guard.debugf = debugf

	return &Daemon{
		config:     config,
		discoverer: discoverer,
		coord:      coord,
		source:     source,
		guard:      guard,
	}, nil
}

// Coordinator returns the shared write coordinator.
func (d *Daemon) Coordinator() *WriteCoordinator {
	return d.coord
}

// Init discovers the initial unit set. It fails with ErrNoUnits if the
// source root has no units.
func (d *Daemon) Init() ([]string, error) {
	found, err := d.discoverer.Discover(d.config.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to discover units: %w", err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoUnits, d.config.SourceRoot)
	}
	for _, unit := range found {
		d.coord.AddUnit(unit)
	}
	return d.coord.Units(), nil
}

// SyncAll performs a full sync of every known unit.
func (d *Daemon) SyncAll(ctx context.Context, trigger Trigger) error {
	return d.coord.Sync(ctx, d.coord.Units(), trigger)
}

// Run performs the initial full sync and then watches both the source tree
// and the destination until ctx is cancelled or a sync fails.
//
// Init must have been called. Run returns nil on cancellation and the first
// sync error otherwise.
func (d *Daemon) Run(ctx context.Context) error {
	if len(d.coord.Units()) == 0 {
		return fmt.Errorf("%w: call Init before Run", ErrNoUnits)
	}

	if err := d.SyncAll(ctx, TriggerStartup); err != nil {
		return fmt.Errorf("initial sync failed: %w", err)
	}

	fw, err := NewFileWatcher()
	if err != nil {
		return err
	}
	if err := fw.Start(d.config.SourceRoot); err != nil {
		_ = fw.Stop()
		return err
	}
	defer func() {
		if err := fw.Stop(); err != nil {
			d.config.Logger.Printf("Error stopping watcher: %v", err)
		}
	}()

	d.config.Logger.Printf("Watching %s for changes", d.config.SourceRoot)
	d.config.Logger.Printf("Watching %s for external changes", d.config.Destination)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.source.Run(gctx, fw.Events())
	})
	g.Go(func() error {
		return d.guard.Run(gctx)
	})
	g.Go(func() error {
		d.logWatchErrors(gctx, fw.Errors())
		return nil
	})

	err = g.Wait()
	d.config.Logger.Println("Daemon stopped")
	return err
}

// logWatchErrors logs fsnotify errors; they are not fatal.
func (d *Daemon) logWatchErrors(ctx context.Context, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}
