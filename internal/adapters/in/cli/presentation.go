package cli

import (
	"fmt"
	"io"

	"github.com/bnema/sandboxer/internal/adapters/in/cli/ui/styles"
)

var cliWriteLine = func(w io.Writer, msg string) error {
	_, err := fmt.Fprintln(w, msg)
	return err
}

var cliWritef = func(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func cliRenderTitle(msg string) string {
	return styles.Theme.Title.Render(msg)
}

func cliRenderMuted(msg string) string {
	return styles.Theme.Muted.Render(msg)
}

func cliRenderListItem(msg string) string {
	return styles.RenderListItem(msg)
}

func cliRenderMeta(label, value string) string {
	return styles.Theme.Bold.Render(label) + " " + styles.Theme.Muted.Render(value)
}

func cliRenderSuccess(msg string) string {
	return styles.RenderSuccess(msg)
}

func cliRenderWarning(msg string) string {
	return styles.RenderWarning(msg)
}

func cliRenderError(msg string) string {
	return styles.RenderError(msg)
}

func cliRenderInfo(msg string) string {
	return styles.RenderInfo(msg)
}
