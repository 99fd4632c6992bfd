package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/diddy-rotations/svsync/internal/config"
	"github.com/diddy-rotations/svsync/internal/daemon"
	"github.com/diddy-rotations/svsync/internal/dashboard"
	"github.com/diddy-rotations/svsync/internal/history"
	"github.com/diddy-rotations/svsync/internal/logging"
	"github.com/diddy-rotations/svsync/internal/ui"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Watch sources and keep SavedVariables in sync",
	Long: `Run the sync daemon until interrupted.

The daemon:
  1. Discovers units and performs a full sync
  2. Watches the source tree; edits are debounced and synced per unit
  3. Picks up new unit directories as they appear
  4. Polls SavedVariables and re-syncs every unit when the game
     overwrites it (for example on /reload or logout)

Optional extras, configured in dev.ini:
  [log] file        rotating log file in addition to stderr
  [history] path    SQLite record of every sync (see 'svsync history')
  [dashboard] port  WebSocket feed at ws://HOST:PORT/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runWatch(mustLoadConfig()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cfg *config.Config) error {
	p, err := openProject(cfg)
	if err != nil {
		return err
	}
	dest := cfg.Destination()
	if err := checkDestination(dest); err != nil {
		return err
	}

	logs := logging.New(cfg.Log)
	defer logs.Close()

	var observers daemon.Observers

	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		observers = append(observers, history.NewRecorder(store, dest, logs.Logger("history")))
	}

	var board *dashboard.Handler
	if cfg.Dashboard.Port != 0 {
		server := dashboard.NewServer(&dashboard.Config{
			Host:   cfg.Dashboard.Host,
			Port:   cfg.Dashboard.Port,
			Logger: logs.Logger("dashboard"),
		})
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		defer server.Stop()
		board = dashboard.NewHandler(server, logs.Logger("dashboard"))
		observers = append(observers, board)
	}

	d, err := daemon.New(p.discoverer, p.renderer(logs.Logger("render")), &daemon.Config{
		SourceRoot:          p.root,
		Destination:         dest,
		SourceDebounce:      cfg.Watch.SourceDebounce,
		DestinationDebounce: cfg.Watch.DestinationDebounce,
		Cooldown:            cfg.Watch.Cooldown,
		PollInterval:        cfg.Watch.PollInterval,
		Logger:              logs.Logger("daemon"),
		Verbose:             verbose,
		Observer:            observers,
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	found, err := d.Init()
	if err != nil {
		return err
	}
	if board != nil {
		board.SetUnits(found)
	}

	fmt.Printf("%s Found %d unit(s) in %s\n", ui.RenderAccent("▸"), len(found), p.root)
	if err := p.printUnitSummary(os.Stdout, found); err != nil {
		return err
	}
	fmt.Printf("   SavedVariables: %s\n", dest)
	if cfg.History.Path != "" {
		fmt.Printf("   History: %s\n", cfg.History.Path)
	}
	if cfg.Dashboard.Port != 0 {
		fmt.Printf("   Dashboard: http://%s\n", net.JoinHostPort(cfg.Dashboard.Host, strconv.Itoa(cfg.Dashboard.Port)))
	}
	fmt.Printf("\nPress Ctrl+C to stop\n\n")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := d.Run(ctx); err != nil {
		return fmt.Errorf("daemon stopped: %w", err)
	}
	fmt.Printf("%s Stopped\n", ui.RenderPass("✓"))
	return nil
}
