package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/sandboxer/internal/adapters/in/cli/ui/styles"
)

// Tone is how a sandbox or container state should read.
type Tone int

const (
	ToneInfo Tone = iota
	ToneOK
	ToneWarning
	ToneError
	TonePending
)

type toneStyle struct {
	icon  string
	text  lipgloss.Style
	badge lipgloss.Style
}

var toneStyles = map[Tone]toneStyle{
	ToneInfo:    {icon: styles.IconInfo, text: styles.Theme.Info, badge: styles.Theme.BadgeInfo},
	ToneOK:      {icon: styles.IconSuccess, text: styles.Theme.Success, badge: styles.Theme.BadgeSuccess},
	ToneWarning: {icon: styles.IconWarning, text: styles.Theme.Warning, badge: styles.Theme.BadgeWarning},
	ToneError:   {icon: styles.IconError, text: styles.Theme.Error, badge: styles.Theme.BadgeError},
	TonePending: {icon: styles.IconPending, text: styles.Theme.Muted, badge: styles.Theme.BadgePending},
}

// ToneOf classifies an engine container status or one of the sandbox
// observation labels (absent, foreign, drifted).
func ToneOf(state string) Tone {
	switch strings.ToLower(state) {
	case "running":
		return ToneOK
	case "exited", "dead", "removing", "absent":
		return ToneError
	case "paused", "drifted", "foreign":
		return ToneWarning
	case "created", "restarting":
		return TonePending
	}
	return ToneInfo
}

// StateIndicator renders a state with the icon of its tone.
func StateIndicator(state string) string {
	s := toneStyles[ToneOf(state)]
	return s.text.Render(s.icon + " " + state)
}

// Badge renders label on the background color of tone.
func Badge(tone Tone, label string) string {
	return toneStyles[tone].badge.Render(label)
}

// CheckBadge renders a yes/no answer, green when it equals want.
func CheckBadge(value, want bool) string {
	label := "no"
	if value {
		label = "yes"
	}
	if value == want {
		return Badge(ToneOK, label)
	}
	return Badge(ToneWarning, label)
}
