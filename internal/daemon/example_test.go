package daemon_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/diddy-rotations/svsync/internal/daemon"
	"github.com/diddy-rotations/svsync/internal/units"
)

// printSyncer prints the units it is asked to sync.
type printSyncer struct{}

func (printSyncer) SyncUnits(ctx context.Context, names []string) error {
	fmt.Println("sync", names)
	return nil
}

// ExampleWriteCoordinator shows how the cooldown separates our own writes
// from external ones.
func ExampleWriteCoordinator() {
	coord := daemon.NewWriteCoordinator(printSyncer{}, 2*time.Second)
	coord.AddUnit("Druid")
	coord.AddUnit("Mage")

	if err := coord.Sync(context.Background(), coord.Units(), daemon.TriggerStartup); err != nil {
		log.Fatal(err)
	}

	written := coord.LastWrite()
	fmt.Println("echo after 1s:", coord.WithinCooldown(written.Add(time.Second)))
	fmt.Println("echo after 10s:", coord.WithinCooldown(written.Add(10*time.Second)))

	// Output:
	// sync [Druid Mage]
	// echo after 1s: true
	// echo after 10s: false
}

// ExampleSourceAggregator shows how a batch of source changes is attributed
// to units.
func ExampleSourceAggregator() {
	root, err := os.MkdirTemp("", "svsync-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(root)

	for _, dir := range []string{"Druid", "Mage", "Warrior"} {
		if err := os.Mkdir(filepath.Join(root, dir), 0755); err != nil {
			log.Fatal(err)
		}
	}

	disc, err := units.NewDiscoverer(".lua", nil)
	if err != nil {
		log.Fatal(err)
	}

	coord := daemon.NewWriteCoordinator(printSyncer{}, 2*time.Second)
	for _, u := range []string{"Druid", "Mage", "Warrior"} {
		coord.AddUnit(u)
	}

	agg := daemon.NewSourceAggregator(root, 300*time.Millisecond, disc, coord, log.New(io.Discard, "", 0))

	// Two unit files and a note: only the managed files count.
	agg.Add(daemon.ChangeEvent{Path: filepath.Join(root, "Mage", "frost.lua")})
	agg.Add(daemon.ChangeEvent{Path: filepath.Join(root, "Druid", "feral", "cat.lua")})
	agg.Add(daemon.ChangeEvent{Path: filepath.Join(root, "Druid", "notes.txt")})
	if err := agg.Flush(context.Background()); err != nil {
		log.Fatal(err)
	}

	// A root-level file is shared by every unit.
	agg.Add(daemon.ChangeEvent{Path: filepath.Join(root, "main.lua")})
	if err := agg.Flush(context.Background()); err != nil {
		log.Fatal(err)
	}

	// Output:
	// sync [Druid Mage]
	// sync [Druid Mage Warrior]
}
