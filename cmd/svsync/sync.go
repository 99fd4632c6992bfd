package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/diddy-rotations/svsync/internal/config"
	"github.com/diddy-rotations/svsync/internal/daemon"
	"github.com/diddy-rotations/svsync/internal/history"
	"github.com/diddy-rotations/svsync/internal/logging"
	"github.com/diddy-rotations/svsync/internal/ui"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:     "sync [unit...]",
	GroupID: "sync",
	Short:   "Sync once and exit",
	Long: `Regenerate unit segments in SavedVariables once, without watching.

With no arguments every unit is synced. Named units must exist under the
source root.

Examples:
  svsync sync               # every unit
  svsync sync Druid Mage    # only these two segments`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSync(cmd.Context(), mustLoadConfig(), args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(ctx context.Context, cfg *config.Config, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := openProject(cfg)
	if err != nil {
		return err
	}
	dest := cfg.Destination()
	if err := checkDestination(dest); err != nil {
		return err
	}

	found, err := p.discoverer.Discover(p.root)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return fmt.Errorf("%w in %s", daemon.ErrNoUnits, p.root)
	}

	target, err := selectUnits(found, args)
	if err != nil {
		return err
	}

	logs := logging.New(cfg.Log)
	defer logs.Close()

	coord := daemon.NewWriteCoordinator(p.renderer(logs.Logger("render")), cfg.Watch.Cooldown)
	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		coord.SetObserver(history.NewRecorder(store, dest, logs.Logger("history")))
	}

	fmt.Printf("%s Syncing %s into %s...\n", ui.RenderAccent("▸"), strings.Join(target, ", "), dest)
	start := time.Now()
	if err := coord.Sync(ctx, target, daemon.TriggerManual); err != nil {
		return err
	}
	fmt.Printf("%s Synced %d unit(s) in %v\n", ui.RenderPass("✓"), len(target), time.Since(start).Round(time.Millisecond))
	return nil
}

// selectUnits returns args validated against the discovered units, or every
// discovered unit when args is empty. Duplicates are dropped.
func selectUnits(found, args []string) ([]string, error) {
	if len(args) == 0 {
		return found, nil
	}

	known := make(map[string]bool, len(found))
	for _, name := range found {
		known[name] = true
	}

	var target []string
	seen := make(map[string]bool, len(args))
	for _, name := range args {
		name = strings.Trim(name, "/")
		if !known[name] {
			return nil, fmt.Errorf("unknown unit %q (known: %s)", name, strings.Join(found, ", "))
		}
		if !seen[name] {
			seen[name] = true
			target = append(target, name)
		}
	}
	return target, nil
}
