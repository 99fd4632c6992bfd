// Command svsync keeps a game's SavedVariables file in sync with a tree of
// rotation sources while the game is running.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/diddy-rotations/svsync/internal/config"
	"github.com/diddy-rotations/svsync/internal/render"
	"github.com/diddy-rotations/svsync/internal/ui"
	"github.com/diddy-rotations/svsync/internal/units"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "svsync",
	Short: "Sync rotation sources into SavedVariables",
	Long: `svsync regenerates per-unit segments of a SavedVariables file from a
source tree and keeps them there while the game is running.

Every top-level directory of the source root is a unit. Files directly in
the root are shared by every unit. Settings are read from dev.ini.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFileName, "Path to dev.ini")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log ignored events and suppressed echoes")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "info", Title: "Inspection Commands:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// mustLoadConfig loads --config or exits with an error.
func mustLoadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// project bundles what every command derives from the config.
type project struct {
	cfg        *config.Config
	root       string
	discoverer *units.Discoverer
}

// openProject validates that the source root exists and builds its
// discoverer.
func openProject(cfg *config.Config) (*project, error) {
	root := cfg.SourceRoot()
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("source root %s not found", root)
		}
		return nil, fmt.Errorf("failed to stat source root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root %s is not a directory", root)
	}

	disc, err := units.NewDiscoverer(cfg.Watch.Extension, cfg.Watch.Exclude)
	if err != nil {
		return nil, err
	}
	return &project{cfg: cfg, root: root, discoverer: disc}, nil
}

// checkDestination requires the destination's directory to exist. The
// file itself may be missing until the first sync.
func checkDestination(dest string) error {
	dir := filepath.Dir(dest)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("SavedVariables directory %s not found", dir)
		}
		return fmt.Errorf("failed to stat SavedVariables directory: %w", err)
	}
	return nil
}

func (p *project) renderer(logger *log.Logger) *render.Renderer {
	return render.New(p.root, p.cfg.Destination(), p.discoverer, logger)
}

// printUnitSummary prints each unit with its module count, e.g.
// "  Druid: 12 modules".
func (p *project) printUnitSummary(w io.Writer, names []string) error {
	shared, err := p.discoverer.Shared(p.root)
	if err != nil {
		return err
	}
	for _, name := range names {
		modules, err := p.discoverer.Modules(p.root, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s: %d modules\n", ui.RenderBold(name), len(modules))
	}
	if len(shared) > 0 {
		fmt.Fprintf(w, "  %s %d shared file(s)\n", ui.RenderMuted("+"), len(shared))
	}
	return nil
}
