package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/bnema/sandboxer/internal/adapters/in/cli/ui/components"
	"github.com/bnema/sandboxer/internal/boundaries/in"
	"github.com/bnema/sandboxer/internal/domain"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sandbox state against the manifest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSandbox(cmd.Context(), root.appOptions(), func(ctx context.Context, svc in.SandboxService, spec *domain.ServiceSpec) error {
				return runStatus(ctx, svc, spec, cmd.OutOrStdout())
			})
		},
	}
}

func runStatus(ctx context.Context, svc in.SandboxService, spec *domain.ServiceSpec, out io.Writer) error {
	status, err := svc.Status(ctx, spec)
	if err != nil {
		return err
	}

	if err := cliWriteLine(out, cliRenderTitle("Sandbox "+status.Name)); err != nil {
		return err
	}

	rows := [][]string{{"State", components.StateIndicator(stateLabel(status))}}
	if c := status.Container; c != nil {
		ports := lo.Map(c.Ports, func(p domain.PortMapping, _ int) string { return p.String() })
		rows = append(rows,
			[]string{"Container", shortID(c.ID)},
			[]string{"Image", c.Image},
			[]string{"Ports", strings.Join(ports, ", ")},
			[]string{"Networks", strings.Join(c.Networks, ", ")},
		)
		if c.ExitCode != 0 || c.Error != "" {
			rows = append(rows, []string{"Exit", fmt.Sprintf("%d %s", c.ExitCode, c.Error)})
		}
	}
	rows = append(rows,
		[]string{"In sync", components.CheckBadge(status.InSync, true)},
		[]string{"Privileged", components.CheckBadge(status.Privileged, false)},
		[]string{"Engine socket", components.CheckBadge(status.EngineSock, false)},
	)
	if err := cliWriteLine(out, components.DetailTable(rows)); err != nil {
		return err
	}

	resources := resourceRows("volume", status.Volumes)
	resources = append(resources, resourceRows("network", status.Networks)...)
	if len(resources) == 0 {
		return nil
	}
	return cliWriteLine(out, components.ResourceTable(resources))
}

// stateLabel folds the observation and engine status into one word.
func stateLabel(status *domain.SandboxStatus) string {
	switch status.State {
	case domain.StateNotFound:
		return "absent"
	case domain.StateForeign:
		return "foreign"
	}
	if status.Container == nil {
		return "unknown"
	}
	if status.State == domain.StateDiffersFromSpec && status.Container.Running() {
		return "drifted"
	}
	return status.Container.Status
}

func resourceRows(kind string, present map[string]bool) []components.Resource {
	names := lo.Keys(present)
	sort.Strings(names)
	return lo.Map(names, func(name string, _ int) components.Resource {
		return components.Resource{Kind: kind, Name: name, Present: present[name]}
	})
}
