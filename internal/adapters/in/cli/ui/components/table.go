// Package components holds the lipgloss building blocks of the CLI output.
package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"

	"github.com/bnema/sandboxer/internal/adapters/in/cli/ui/styles"
)

// Column is a table column. A zero Width lets the column grow.
type Column struct {
	Title string
	Width int
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.ColorPrimary).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Foreground(styles.ColorText).Padding(0, 1)
	stripeStyle = lipgloss.NewStyle().Foreground(styles.ColorTextMuted).Padding(0, 1)
)

// Table renders rows under columns with a rounded border. Cells wider than
// their column are cut with an ellipsis; styled cells are kept whole.
// Striped tables dim every other row.
func Table(columns []Column, rows [][]string, striped bool) string {
	if len(columns) == 0 {
		return ""
	}

	headers := make([]string, len(columns))
	for i, col := range columns {
		headers[i] = truncateCell(col.Title, col.Width)
	}

	cells := make([][]string, len(rows))
	for r, row := range rows {
		cells[r] = make([]string, len(row))
		for c, cell := range row {
			width := 0
			if c < len(columns) {
				width = columns[c].Width
			}
			cells[r][c] = truncateCell(cell, width)
		}
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.ColorBorder)).
		Headers(headers...).
		Rows(cells...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := cellStyle
			switch {
			case row == table.HeaderRow:
				style = headerStyle
			case striped && row%2 == 1:
				style = stripeStyle
			}
			if col >= 0 && col < len(columns) && columns[col].Width > 0 {
				style = style.Width(columns[col].Width).MaxWidth(columns[col].Width)
			}
			return style
		}).
		String()
}

func truncateCell(value string, maxWidth int) string {
	if strings.Contains(value, "\x1b[") {
		return value
	}
	if maxWidth <= 0 || runewidth.StringWidth(value) <= maxWidth {
		return value
	}
	if maxWidth <= 3 {
		return strings.Repeat(".", maxWidth)
	}

	target := maxWidth - 3
	var b strings.Builder
	width := 0
	g := uniseg.NewGraphemes(value)
	for g.Next() {
		w := runewidth.StringWidth(g.Str())
		if width+w > target {
			break
		}
		b.WriteString(g.Str())
		width += w
	}
	if b.Len() == 0 {
		return strings.Repeat(".", maxWidth)
	}
	return b.String() + "..."
}

// DetailTable renders label/value pairs for a single sandbox.
func DetailTable(rows [][]string) string {
	return Table([]Column{{Title: "FIELD", Width: 16}, {Title: "VALUE", Width: 60}}, rows, false)
}

// Resource is one volume or network a sandbox depends on.
type Resource struct {
	Kind    string
	Name    string
	Present bool
}

// ResourceTable renders the dependencies of a sandbox, striped, with the
// presence column colored.
func ResourceTable(resources []Resource) string {
	rows := make([][]string, len(resources))
	for i, r := range resources {
		icon := styles.IconVolume
		if r.Kind == "network" {
			icon = styles.IconNetwork
		}
		rows[i] = []string{icon + " " + r.Kind, r.Name, CheckBadge(r.Present, true)}
	}
	return Table([]Column{{Title: "KIND"}, {Title: "NAME", Width: 40}, {Title: "PRESENT"}}, rows, true)
}
