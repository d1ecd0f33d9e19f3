// Package styles provides the terminal styling used by sandboxer's CLI output.
package styles

import "github.com/charmbracelet/lipgloss"

// Palette.
var (
	Neutral200 = lipgloss.Color("#e5e5e5")
	Neutral500 = lipgloss.Color("#737373")
	Neutral700 = lipgloss.Color("#404040")
	Neutral800 = lipgloss.Color("#262626")

	NeonGreen  = lipgloss.Color("#00ff88")
	NeonCyan   = lipgloss.Color("#00ccff")
	NeonViolet = lipgloss.Color("#a78bfa")
	NeonRed    = lipgloss.Color("#ff4444")
	NeonYellow = lipgloss.Color("#fbbf24")

	// Semantic colors
	ColorPrimary   = NeonCyan
	ColorSecondary = NeonViolet
	ColorSuccess   = NeonGreen
	ColorWarning   = NeonYellow
	ColorError     = NeonRed
	ColorInfo      = NeonCyan

	// Text colors
	ColorText      = Neutral200
	ColorTextMuted = Neutral500

	// Background colors
	ColorBg      = lipgloss.Color("#000000")
	ColorBgMuted = Neutral800

	// Border colors
	ColorBorder = Neutral700
)
