package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bnema/sandboxer/internal/domain"
)

// specView is the YAML rendering of a resolved service specification.
type specView struct {
	Project       string            `yaml:"project"`
	Service       string            `yaml:"service"`
	ContainerName string            `yaml:"container_name"`
	Image         string            `yaml:"image,omitempty"`
	Build         *buildView        `yaml:"build,omitempty"`
	Privileged    bool              `yaml:"privileged"`
	Environment   map[string]string `yaml:"environment,omitempty"`
	Mounts        []string          `yaml:"mounts,omitempty"`
	Ports         []string          `yaml:"ports,omitempty"`
	Networks      []resourceView    `yaml:"networks,omitempty"`
	Volumes       []resourceView    `yaml:"volumes,omitempty"`
	Restart       string            `yaml:"restart"`
	WorkingDir    string            `yaml:"working_dir,omitempty"`
	Command       []string          `yaml:"command,omitempty"`
	Labels        map[string]string `yaml:"labels,omitempty"`
	ReadinessURL  string            `yaml:"readiness_url,omitempty"`
}

type buildView struct {
	Context    string            `yaml:"context"`
	Dockerfile string            `yaml:"dockerfile,omitempty"`
	Tag        string            `yaml:"tag"`
	Args       map[string]string `yaml:"args,omitempty"`
}

type resourceView struct {
	Name     string `yaml:"name"`
	Driver   string `yaml:"driver,omitempty"`
	External bool   `yaml:"external,omitempty"`
}

func newConfigCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved sandbox definition",
		Long: `Load the manifest and env files and print the sandbox definition sandboxer
would reconcile, without contacting the engine.`,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			sess, _, ctx, err := openSession(cmd.Context(), root.appOptions())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := sess.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()
			return runConfig(ctx, sess, cmd.OutOrStdout())
		},
	}
}

type specLoader interface {
	LoadSpec(ctx context.Context) (*domain.ServiceSpec, error)
}

func runConfig(ctx context.Context, loader specLoader, out io.Writer) error {
	spec, err := loader.LoadSpec(ctx)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(newSpecView(spec))
	if err != nil {
		return fmt.Errorf("failed to encode specification: %w", err)
	}
	return cliWritef(out, "%s", data)
}

func newSpecView(spec *domain.ServiceSpec) specView {
	view := specView{
		Project:       spec.Project,
		Service:       spec.Name,
		ContainerName: spec.ContainerName,
		Image:         spec.Image,
		Privileged:    spec.Privileged,
		Environment:   maskSecrets(spec.Environment),
		Restart:       string(spec.Restart),
		WorkingDir:    spec.WorkingDir,
		Command:       spec.Command,
		Labels:        spec.Labels,
		ReadinessURL:  spec.ReadinessURL,
		Mounts:        lo.Map(spec.Mounts, func(m domain.Mount, _ int) string { return string(m.Type) + " " + m.String() }),
		Ports:         lo.Map(spec.Ports, func(p domain.PortMapping, _ int) string { return p.String() }),
	}
	if b := spec.Build; b != nil {
		view.Build = &buildView{Context: b.Context, Dockerfile: b.Dockerfile, Tag: b.Tag, Args: b.Args}
	}
	for _, name := range spec.Networks {
		n := spec.NetworkSpecFor(name)
		view.Networks = append(view.Networks, resourceView{Name: n.Name, Driver: n.Driver, External: n.External})
	}
	for _, name := range spec.NamedVolumes() {
		v := spec.VolumeSpecFor(name)
		view.Volumes = append(view.Volumes, resourceView{Name: v.Name, Driver: v.Driver, External: v.External})
	}
	return view
}

// maskSecrets hides values whose key looks like a credential.
func maskSecrets(env map[string]string) map[string]string {
	return lo.MapValues(env, func(v, k string) string {
		upper := strings.ToUpper(k)
		for _, marker := range []string{"TOKEN", "SECRET", "PASSWORD", "KEY"} {
			if strings.Contains(upper, marker) && v != "" {
				return "********"
			}
		}
		return v
	})
}
