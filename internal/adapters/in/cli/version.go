package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/bnema/sandboxer/internal/app"
)

func newVersionCmd(root *rootOptions) *cobra.Command {
	var clientOnly bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			out := cmd.OutOrStdout()
			if err := printClientVersion(out); err != nil {
				return err
			}
			if clientOnly {
				return nil
			}

			sess, _, ctx, err := openSession(cmd.Context(), root.appOptions())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := sess.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()
			return printEngineVersion(ctx, sess, out)
		},
	}

	cmd.Flags().BoolVar(&clientOnly, "client", false, "Only print the sandboxer version")

	return cmd
}

func printClientVersion(out io.Writer) error {
	return cliWritef(out, "sandboxer %s\nCommit: %s\nBuild Date: %s\n", Version, Commit, BuildDate)
}

// printEngineVersion reports the engine version. An unreachable or too old
// engine is shown, not returned, so version always succeeds.
func printEngineVersion(ctx context.Context, sess session, out io.Writer) error {
	version, err := sess.EngineVersion(ctx)
	if err != nil {
		return cliWriteLine(out, cliRenderWarning("Engine: unavailable ("+err.Error()+")"))
	}
	if err := cliWriteLine(out, "Engine: "+version); err != nil {
		return err
	}
	if err := app.CheckEngineVersion(version); err != nil {
		return cliWriteLine(out, cliRenderWarning(err.Error()))
	}
	return nil
}
