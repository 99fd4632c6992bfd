package daemon

import "time"

// Observer receives notifications about watcher activity. Implementations
// must not block; they are called on the watcher goroutines.
type Observer interface {
	// OnSync is called after every sync attempt, successful or not.
	OnSync(rec SyncRecord)

	// OnUnitDiscovered is called when a unit appears after startup.
	OnUnitDiscovered(unit string)

	// OnEchoSuppressed is called when a destination change is ignored
	// because it falls within the cooldown of a self-write.
	OnEchoSuppressed(modTime time.Time)

	// OnExternalOverwrite is called just before the full resync that
	// follows a genuine external change.
	OnExternalOverwrite(modTime time.Time)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) OnSync(SyncRecord)             {}
func (NopObserver) OnUnitDiscovered(string)       {}
func (NopObserver) OnEchoSuppressed(time.Time)    {}
func (NopObserver) OnExternalOverwrite(time.Time) {}

// Observers fans each notification out to every member.
type Observers []Observer

func (obs Observers) OnSync(rec SyncRecord) {
	for _, o := range obs {
		o.OnSync(rec)
	}
}

func (obs Observers) OnUnitDiscovered(unit string) {
	for _, o := range obs {
		o.OnUnitDiscovered(unit)
	}
}

func (obs Observers) OnEchoSuppressed(modTime time.Time) {
	for _, o := range obs {
		o.OnEchoSuppressed(modTime)
	}
}

func (obs Observers) OnExternalOverwrite(modTime time.Time) {
	for _, o := range obs {
		o.OnExternalOverwrite(modTime)
	}
}
