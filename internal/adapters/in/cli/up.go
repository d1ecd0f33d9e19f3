package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/bnema/sandboxer/internal/boundaries/in"
	"github.com/bnema/sandboxer/internal/domain"
)

func newUpCmd(root *rootOptions) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Create or update the sandbox",
		Long: `Reconcile the sandbox with the manifest: create missing volumes and
networks, build or pull the image, then reuse, start or replace the
container so it matches.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := root.appOptions()
			if !quiet {
				opts.BuildOutput = cmd.ErrOrStderr()
			}
			return withSandbox(cmd.Context(), opts, func(ctx context.Context, svc in.SandboxService, spec *domain.ServiceSpec) error {
				return runUp(ctx, svc, spec, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print build progress")

	return cmd
}

func runUp(ctx context.Context, svc in.SandboxService, spec *domain.ServiceSpec, out io.Writer) error {
	handle, err := svc.Reconcile(ctx, spec)
	if err != nil {
		return err
	}

	if err := cliWriteLine(out, cliRenderSuccess(fmt.Sprintf("Sandbox %s %s", handle.Name, handle.Action))); err != nil {
		return err
	}

	lines := []string{
		cliRenderMeta("Container:", shortID(handle.ContainerID)),
		cliRenderMeta("Image:", fmt.Sprintf("%s (%s)", handle.Image, shortID(handle.ImageID))),
		cliRenderMeta("Status:", handle.Status),
	}
	if len(handle.Ports) > 0 {
		ports := lo.Map(handle.Ports, func(p domain.PortMapping, _ int) string { return p.String() })
		lines = append(lines, cliRenderMeta("Ports:", strings.Join(ports, ", ")))
	}
	if len(handle.Networks) > 0 {
		lines = append(lines, cliRenderMeta("Networks:", strings.Join(handle.Networks, ", ")))
	}
	if spec.Privileged {
		lines = append(lines, cliRenderWarning("Running privileged"))
	}

	for _, line := range lines {
		if err := cliWriteLine(out, "  "+line); err != nil {
			return err
		}
	}
	return nil
}

// shortID trims engine IDs to the familiar twelve characters.
func shortID(id string) string {
	id = strings.TrimPrefix(id, "sha256:")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
