package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/bnema/sandboxer/internal/boundaries/in"
	"github.com/bnema/sandboxer/internal/domain"
)

func newDownCmd(root *rootOptions) *cobra.Command {
	var opts domain.RemoveOptions

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop and remove the sandbox",
		Long: `Stop and remove the sandbox container. Volumes and networks that
sandboxer created are kept unless asked for; external ones are never removed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSandbox(cmd.Context(), root.appOptions(), func(ctx context.Context, svc in.SandboxService, spec *domain.ServiceSpec) error {
				return runDown(ctx, svc, spec, opts, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().BoolVar(&opts.RemoveVolumes, "volumes", false, "Also remove volumes created by sandboxer")
	cmd.Flags().BoolVar(&opts.RemoveNetworks, "networks", false, "Also remove networks created by sandboxer")

	return cmd
}

func runDown(ctx context.Context, svc in.SandboxService, spec *domain.ServiceSpec, opts domain.RemoveOptions, out io.Writer) error {
	if err := svc.Remove(ctx, spec, opts); err != nil {
		return err
	}
	return cliWriteLine(out, cliRenderSuccess("Sandbox "+spec.ContainerName+" removed"))
}
