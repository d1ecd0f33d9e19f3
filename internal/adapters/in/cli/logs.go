package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bnema/sandboxer/internal/boundaries/in"
	"github.com/bnema/sandboxer/internal/domain"
)

func newLogsCmd(root *rootOptions) *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the sandbox container output",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSandbox(cmd.Context(), root.appOptions(), func(ctx context.Context, svc in.SandboxService, spec *domain.ServiceSpec) error {
				return runLogs(ctx, svc, spec, follow, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "F", false, "Keep streaming new output")

	return cmd
}

func runLogs(ctx context.Context, svc in.SandboxService, spec *domain.ServiceSpec, follow bool, out io.Writer) error {
	stream, err := svc.Logs(ctx, spec, follow)
	if err != nil {
		return err
	}
	defer stream.Close()

	if _, err := io.Copy(out, stream); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to copy logs: %w", err)
	}
	return nil
}
