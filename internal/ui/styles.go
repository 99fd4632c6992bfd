// Package ui provides the terminal styling used by the svsync CLI.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

func init() {
	if !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// ShouldUseColor reports whether stdout should receive ANSI colors.
// NO_COLOR disables color, CLICOLOR_FORCE enables it even when piped.
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("CLICOLOR_FORCE") != "" {
		return true
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Palette
var (
	ColorPass   = lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#86B300"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#B26A00", Dark: "#FFB454"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#F07178"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#1565C0", Dark: "#59C2FF"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#5C6773"}
)

var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	BoldStyle   = lipgloss.NewStyle().Bold(true)
	HeaderStyle = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
)

// RenderPass renders text in the success color.
func RenderPass(s string) string { return PassStyle.Render(s) }

// RenderWarn renders text in the warning color.
func RenderWarn(s string) string { return WarnStyle.Render(s) }

// RenderFail renders text in the failure color.
func RenderFail(s string) string { return FailStyle.Render(s) }

// RenderAccent renders text in the accent color.
func RenderAccent(s string) string { return AccentStyle.Render(s) }

// RenderMuted renders secondary text.
func RenderMuted(s string) string { return MutedStyle.Render(s) }

// RenderBold renders text in bold.
func RenderBold(s string) string { return BoldStyle.Render(s) }

// RenderHeader renders a section header.
func RenderHeader(s string) string { return HeaderStyle.Render(s) }
