// Package daemon keeps a generated destination file in sync with a tree of
// source files while another program may overwrite that destination.
//
// # Architecture
//
// The daemon consists of several components:
//
//   - WriteCoordinator: the known unit set, the time of the last self-write,
//     and the lock that serializes every sync
//   - SourceAggregator: debounces source changes, attributes them to units,
//     discovers new units and syncs the affected ones
//   - DestinationGuard: polls the destination's mtime and resyncs every unit
//     after a genuine external overwrite
//   - FileWatcher: recursive fsnotify watching of the source root
//   - Daemon: startup checks, the initial full sync, and running both
//     watchers until one of them fails
//
// # Source changes
//
// Every change to a managed file restarts the source debounce timer. When
// the timer fires, the batch is attributed to units:
//
//	main.lua           -> shared, every known unit is synced
//	Druid/core.lua     -> Druid
//	Druid/feral/x.lua  -> Druid
//
// Discovery then runs again; a unit directory that did not exist before is
// added to the known set and synced for the first time. The known set only
// grows during a session.
//
// # Destination changes
//
// The destination is polled every PollInterval. A change observed less than
// Cooldown after the daemon's own last write is an echo of that write and is
// ignored. Any other change starts the destination debounce; when it fires
// the cooldown is checked again and every known unit is resynced.
//
// # Usage
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	d, err := daemon.New(discoverer, renderer, &daemon.Config{
//	    SourceRoot:          "source/aio",
//	    Destination:         svPath,
//	    SourceDebounce:      300 * time.Millisecond,
//	    DestinationDebounce: 500 * time.Millisecond,
//	    Cooldown:            2 * time.Second,
//	    PollInterval:        time.Second,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := d.Init(); err != nil {
//	    log.Fatal(err)
//	}
//	if err := d.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Known limitation
//
// Telling our writes from external ones is a timing heuristic, not a proof.
// Cooldown must exceed the worst-case delay between a write finishing and
// the poll observing it (at most PollInterval), or our writes are mistaken
// for external ones and resynced once more. Conversely an external write
// that lands inside the cooldown is missed until the next one. Embedding a
// generation marker in the destination would remove the race but is not
// implemented.
//
// # Error Handling
//
// Discovery and sync errors end Run and are returned; there is no retry.
// Non-managed paths and duplicate notifications are dropped silently.
// fsnotify errors are logged and watching continues.
package daemon
