package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

const testRoot = "/src/aio"

func newTestAggregator(debounce time.Duration, units ...string) (*SourceAggregator, *fakeSyncer, *fakeDiscoverer, *recordingObserver) {
	syncer := newFakeSyncer()
	disc := &fakeDiscoverer{}
	disc.set(units...)
	obs := &recordingObserver{}

	coord := NewWriteCoordinator(syncer, 2*time.Second)
	for _, u := range units {
		coord.AddUnit(u)
	}

	a := NewSourceAggregator(testRoot, debounce, disc, coord, quietLogger())
	a.observer = obs
	return a, syncer, disc, obs
}

func event(rel string) ChangeEvent {
	return ChangeEvent{Path: filepath.Join(testRoot, filepath.FromSlash(rel)), Op: OpModify, Time: time.Now()}
}

func TestSourceAggregator_Add(t *testing.T) {
	a, _, _, _ := newTestAggregator(time.Second, "Druid")

	tests := []struct {
		name string
		ev   ChangeEvent
		want bool
	}{
		{"unit file", event("Druid/core.lua"), true},
		{"nested unit file", event("Druid/feral/cat.lua"), true},
		{"shared file", event("main.lua"), true},
		{"relative to working directory", ChangeEvent{Path: "Mage/core.lua"}, false},
		{"wrong extension", event("Druid/notes.txt"), false},
		{"editor swap file", event("Druid/core.lua.swp"), false},
		{"outside root", ChangeEvent{Path: "/elsewhere/x.lua"}, false},
		{"root itself", ChangeEvent{Path: testRoot}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Add(tt.ev); got != tt.want {
				t.Errorf("Add(%s) = %v, want %v", tt.ev.Path, got, tt.want)
			}
		})
	}

	// Duplicates collapse to one entry per path.
	a.Add(event("Druid/core.lua"))
	if got := a.Pending(); got != 3 {
		t.Errorf("Pending() = %d, want 3", got)
	}
}

func TestSourceAggregator_FlushAttributesUnits(t *testing.T) {
	a, syncer, _, _ := newTestAggregator(time.Second, "A", "B", "C")

	a.Add(event("B/y.lua"))
	a.Add(event("A/x.lua"))
	a.Add(event("A/sub/z.lua"))

	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}

	want := [][]string{{"A", "B"}}
	if got := syncer.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if a.Pending() != 0 {
		t.Error("Flush() must clear the pending batch")
	}
}

// A relative root and relative event paths both resolve against the
// working directory, so attribution uses the first segment below the root.
func TestSourceAggregator_RelativeRoot(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	syncer := newFakeSyncer()
	disc := &fakeDiscoverer{}
	disc.set("Druid", "Mage")
	coord := NewWriteCoordinator(syncer, 2*time.Second)
	coord.AddUnit("Druid")
	coord.AddUnit("Mage")

	a := NewSourceAggregator(filepath.Join("source", "aio"), time.Second, disc, coord, quietLogger())

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join("source", "aio", "Druid", "core.lua"), true},
		{filepath.Join(wd, "source", "aio", "Mage", "frost.lua"), true},
		{filepath.Join("source", "main.lua"), false},
	}
	for _, tt := range tests {
		if got := a.Add(ChangeEvent{Path: tt.path}); got != tt.want {
			t.Errorf("Add(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}

	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	want := [][]string{{"Druid", "Mage"}}
	if got := syncer.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}

	a.Add(ChangeEvent{Path: filepath.Join("source", "aio", "main.lua")})
	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	if got := syncer.Calls()[1]; !reflect.DeepEqual(got, []string{"Druid", "Mage"}) {
		t.Errorf("shared change synced %v, want every unit", got)
	}
}

func TestSourceAggregator_FlushSharedSyncsAll(t *testing.T) {
	a, syncer, _, _ := newTestAggregator(time.Second, "Druid", "Mage", "Warrior")

	a.Add(event("main.lua"))
	a.Add(event("Druid/core.lua"))

	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}

	want := [][]string{{"Druid", "Mage", "Warrior"}}
	if got := syncer.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestSourceAggregator_FlushDiscoversNewUnitOnce(t *testing.T) {
	a, syncer, disc, obs := newTestAggregator(time.Second, "Druid")

	disc.set("Druid", "Paladin")
	a.Add(event("Druid/core.lua"))
	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}

	a.Add(event("Druid/core.lua"))
	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("second Flush() failed: %v", err)
	}

	want := [][]string{{"Druid", "Paladin"}, {"Druid"}}
	if got := syncer.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(obs.discovered, []string{"Paladin"}) {
		t.Errorf("discovered = %v, want [Paladin]", obs.discovered)
	}
	if got := a.coord.Units(); !reflect.DeepEqual(got, []string{"Druid", "Paladin"}) {
		t.Errorf("known units = %v", got)
	}
}

func TestSourceAggregator_FlushNewUnitWithSharedChange(t *testing.T) {
	a, syncer, disc, _ := newTestAggregator(time.Second, "Druid")

	disc.set("Druid", "Shaman")
	a.Add(event("main.lua"))
	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}

	want := [][]string{{"Druid", "Shaman"}}
	if got := syncer.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestSourceAggregator_FlushEmptyTargetSkipsSync(t *testing.T) {
	a, syncer, _, _ := newTestAggregator(time.Second, "Druid")

	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	if len(syncer.Calls()) != 0 {
		t.Error("empty target must not sync")
	}
}

func TestSourceAggregator_FlushDiscoveryError(t *testing.T) {
	a, syncer, disc, _ := newTestAggregator(time.Second, "Druid")
	disc.err = errors.New("permission denied")

	a.Add(event("Druid/core.lua"))
	if err := a.Flush(context.Background()); err == nil {
		t.Fatal("Flush() should propagate discovery errors")
	}
	if len(syncer.Calls()) != 0 {
		t.Error("no sync after failed discovery")
	}
}

// Files under A/ and B/ change 50ms apart with a 300ms debounce: one sync
// with [A B] after 300ms of silence.
func TestSourceAggregator_RunDebouncesBurst(t *testing.T) {
	a, syncer, _, _ := newTestAggregator(300*time.Millisecond, "A", "B", "C")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan ChangeEvent)
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, events) }()

	events <- event("A/x.lua")
	time.Sleep(50 * time.Millisecond)
	events <- event("B/y.lua")
	events <- event("A/x.lua")
	events <- event("README.md")

	syncer.expectNoCall(t, 200*time.Millisecond)

	got := syncer.waitCall(t, 2*time.Second)
	if !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("sync target = %v, want [A B]", got)
	}
	syncer.expectNoCall(t, 400*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil after cancel", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestSourceAggregator_RunIgnoresNoise(t *testing.T) {
	a, syncer, _, _ := newTestAggregator(50*time.Millisecond, "A")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan ChangeEvent)
	go func() { _ = a.Run(ctx, events) }()

	events <- event("A/notes.txt")
	events <- event("A/.core.lua.swx")

	syncer.expectNoCall(t, 300*time.Millisecond)
}

func TestSourceAggregator_RunReturnsSyncError(t *testing.T) {
	a, syncer, _, _ := newTestAggregator(20*time.Millisecond, "A")
	syncer.failOn = 1

	events := make(chan ChangeEvent, 1)
	events <- event("A/x.lua")

	err := a.Run(context.Background(), events)
	if !errors.Is(err, errSyncFailed) {
		t.Fatalf("Run() = %v, want %v", err, errSyncFailed)
	}
}

func TestSourceAggregator_RunStopsOnClosedChannel(t *testing.T) {
	a, _, _, _ := newTestAggregator(time.Second, "A")

	events := make(chan ChangeEvent)
	close(events)

	if err := a.Run(context.Background(), events); err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
}
