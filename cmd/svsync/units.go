package main

import (
	"fmt"
	"io"
	"os"

	"github.com/diddy-rotations/svsync/internal/config"
	"github.com/diddy-rotations/svsync/internal/render"
	"github.com/diddy-rotations/svsync/internal/ui"
	"github.com/spf13/cobra"
)

var unitsCmd = &cobra.Command{
	Use:     "units",
	GroupID: "info",
	Short:   "List units and their sync state",
	Long: `List every unit under the source root with its module count, and
whether SavedVariables already holds a segment for it.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runUnits(os.Stdout, mustLoadConfig()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(unitsCmd)
}

func runUnits(w io.Writer, cfg *config.Config) error {
	p, err := openProject(cfg)
	if err != nil {
		return err
	}

	found, err := p.discoverer.Discover(p.root)
	if err != nil {
		return err
	}

	synced := make(map[string]bool)
	doc, err := os.ReadFile(cfg.Destination())
	switch {
	case err == nil:
		for _, name := range render.Units(string(doc)) {
			synced[name] = true
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("failed to read SavedVariables: %w", err)
	}

	fmt.Fprintf(w, "\n%s Units in %s\n\n", ui.RenderHeader("▸"), p.root)
	if len(found) == 0 {
		fmt.Fprintf(w, "  %s no unit directories found\n", ui.RenderWarn("⚠"))
		return nil
	}

	for _, name := range found {
		modules, err := p.discoverer.Modules(p.root, name)
		if err != nil {
			return err
		}
		state := ui.RenderPass("synced")
		if !synced[name] {
			state = ui.RenderWarn("not synced")
		}
		fmt.Fprintf(w, "  %-16s %3d modules  %s\n", name, len(modules), state)
	}

	shared, err := p.discoverer.Shared(p.root)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n  %s\n", ui.RenderMuted(fmt.Sprintf("%d shared file(s) prepended to every segment", len(shared))))
	return nil
}
