package styles

import "github.com/charmbracelet/lipgloss"

// Theme contains the composed styles for CLI output.
var Theme = struct {
	// Text styles
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Muted    lipgloss.Style
	Bold     lipgloss.Style

	// Status styles
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	// Badge styles (compact status indicators)
	BadgeSuccess lipgloss.Style
	BadgeError   lipgloss.Style
	BadgeWarning lipgloss.Style
	BadgeInfo    lipgloss.Style
	BadgePending lipgloss.Style

	ListBullet lipgloss.Style
}{
	Title: lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary),

	Subtitle: lipgloss.NewStyle().
		Foreground(ColorTextMuted),

	Muted: lipgloss.NewStyle().
		Foreground(ColorTextMuted),

	Bold: lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorText),

	Success: lipgloss.NewStyle().
		Foreground(ColorSuccess),

	Error: lipgloss.NewStyle().
		Foreground(ColorError),

	Warning: lipgloss.NewStyle().
		Foreground(ColorWarning),

	Info: lipgloss.NewStyle().
		Foreground(ColorInfo),

	BadgeSuccess: lipgloss.NewStyle().
		Foreground(ColorBg).
		Background(ColorSuccess).
		Padding(0, 1),

	BadgeError: lipgloss.NewStyle().
		Foreground(ColorBg).
		Background(ColorError).
		Padding(0, 1),

	BadgeWarning: lipgloss.NewStyle().
		Foreground(ColorBg).
		Background(ColorWarning).
		Padding(0, 1),

	BadgeInfo: lipgloss.NewStyle().
		Foreground(ColorBg).
		Background(ColorInfo).
		Padding(0, 1),

	BadgePending: lipgloss.NewStyle().
		Foreground(ColorBg).
		Background(ColorTextMuted).
		Padding(0, 1),

	ListBullet: lipgloss.NewStyle().
		Foreground(ColorPrimary),
}

// RenderListItem returns a formatted list item with bullet.
func RenderListItem(item string) string {
	return Theme.ListBullet.Render(IconBullet) + " " + Theme.Bold.Render(item)
}

// RenderError returns a styled error message.
func RenderError(msg string) string {
	return Theme.Error.Render(IconError + " " + msg)
}

// RenderSuccess returns a styled success message.
func RenderSuccess(msg string) string {
	return Theme.Success.Render(IconSuccess + " " + msg)
}

// RenderWarning returns a styled warning message.
func RenderWarning(msg string) string {
	return Theme.Warning.Render(IconWarning + " " + msg)
}

// RenderInfo returns a styled info message.
func RenderInfo(msg string) string {
	return Theme.Info.Render(IconInfo + " " + msg)
}
