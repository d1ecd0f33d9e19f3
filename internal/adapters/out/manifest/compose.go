// Package manifest implements the manifest loader adapter for compose files.
package manifest

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bnema/zerowrap"
	"github.com/compose-spec/compose-go/v2/cli"
	composetypes "github.com/compose-spec/compose-go/v2/types"
	"github.com/samber/lo"

	"github.com/bnema/sandboxer/internal/domain"
)

// ComposeLoader reads a compose file and turns one of its services into a
// sandbox specification.
type ComposeLoader struct {
	projectName string
}

// NewComposeLoader creates a compose loader. An empty projectName lets
// compose derive it from the file or its directory.
func NewComposeLoader(projectName string) *ComposeLoader {
	return &ComposeLoader{projectName: projectName}
}

// Load reads the manifest at path and returns the spec for service.
func (l *ComposeLoader) Load(ctx context.Context, path, service string) (*domain.ServiceSpec, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "manifest",
		zerowrap.FieldAction:  "Load",
		zerowrap.FieldPath:    path,
	})
	log := zerowrap.FromCtx(ctx)

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest path %s: %w", domain.ErrSpecValidation, path, err)
	}

	fns := []cli.ProjectOptionsFn{
		cli.WithWorkingDirectory(filepath.Dir(absPath)),
		cli.WithOsEnv,
		cli.WithEnvFiles(),
		cli.WithDotEnv,
		cli.WithResolvedPaths(true),
	}
	if l.projectName != "" {
		fns = append(fns, cli.WithName(l.projectName))
	}

	opts, err := cli.NewProjectOptions([]string{absPath}, fns...)
	if err != nil {
		return nil, fmt.Errorf("%w: project options: %w", domain.ErrSpecValidation, err)
	}

	project, err := cli.ProjectFromOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", domain.ErrSpecValidation, path, err)
	}
	project, err = project.WithServicesEnvironmentResolved(true)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve environment: %w", domain.ErrSpecValidation, err)
	}

	svc, err := selectService(project, service)
	if err != nil {
		return nil, err
	}

	spec, err := toServiceSpec(project, svc)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("project", spec.Project).
		Str("service", spec.Name).
		Str("container_name", spec.ContainerName).
		Msg("manifest loaded")
	return spec, nil
}

func selectService(project *composetypes.Project, name string) (composetypes.ServiceConfig, error) {
	names := project.ServiceNames()
	sort.Strings(names)

	if name != "" {
		svc, err := project.GetService(name)
		if err != nil {
			return composetypes.ServiceConfig{}, fmt.Errorf("%w: service %q not found, available: %s",
				domain.ErrSpecValidation, name, strings.Join(names, ", "))
		}
		return svc, nil
	}

	switch len(names) {
	case 0:
		return composetypes.ServiceConfig{}, fmt.Errorf("%w: manifest declares no service", domain.ErrSpecValidation)
	case 1:
		return project.GetService(names[0])
	}
	return composetypes.ServiceConfig{}, fmt.Errorf("%w: manifest declares several services (%s), select one with --service",
		domain.ErrSpecValidation, strings.Join(names, ", "))
}

// toServiceSpec maps a compose service onto the sandbox model. Resource keys
// are resolved to their engine names through the top-level declarations.
func toServiceSpec(project *composetypes.Project, svc composetypes.ServiceConfig) (*domain.ServiceSpec, error) {
	v := &domain.ValidationError{}

	spec := &domain.ServiceSpec{
		Project:       project.Name,
		Name:          svc.Name,
		ContainerName: svc.ContainerName,
		Privileged:    svc.Privileged,
		Environment:   make(map[string]string, len(svc.Environment)),
		WorkingDir:    svc.WorkingDir,
		Command:       []string(svc.Command),
		Labels:        map[string]string(svc.Labels),
		ReadinessURL:  svc.Labels[domain.LabelReadinessURL],
	}
	if spec.ContainerName == "" {
		spec.ContainerName = project.Name + "-" + svc.Name
	}

	if svc.Build != nil {
		// With build, compose's image key names the built image.
		tag := svc.Image
		if tag == "" {
			tag = strings.ToLower(project.Name+"-"+svc.Name) + ":latest"
		}
		spec.Build = &domain.BuildSpec{
			Context:    svc.Build.Context,
			Dockerfile: svc.Build.Dockerfile,
			Args:       make(map[string]string, len(svc.Build.Args)),
			Tag:        tag,
		}
		for k, val := range svc.Build.Args {
			if val != nil {
				spec.Build.Args[k] = *val
			}
		}
	} else {
		spec.Image = svc.Image
	}

	for k, val := range svc.Environment {
		if val != nil {
			spec.Environment[k] = *val
		}
	}

	restart, err := domain.ParseRestartPolicy(restartName(svc.Restart))
	if err != nil {
		v.Problems = append(v.Problems, err.Error())
	}
	spec.Restart = restart

	for _, vol := range svc.Volumes {
		m, declared, err := toMount(project, vol)
		if err != nil {
			v.Problems = append(v.Problems, err.Error())
			continue
		}
		spec.Mounts = append(spec.Mounts, m)
		if declared != nil && !lo.ContainsBy(spec.Volumes, func(d domain.VolumeSpec) bool { return d.Name == declared.Name }) {
			spec.Volumes = append(spec.Volumes, *declared)
		}
	}

	for _, p := range svc.Ports {
		port, err := toPort(p)
		if err != nil {
			v.Problems = append(v.Problems, err.Error())
			continue
		}
		spec.Ports = append(spec.Ports, port)
	}

	for key := range svc.Networks {
		def := domain.NetworkSpec{Name: key}
		if n, ok := project.Networks[key]; ok {
			def = domain.NetworkSpec{
				Name:     lo.CoalesceOrEmpty(n.Name, key),
				Driver:   n.Driver,
				External: bool(n.External),
			}
		}
		spec.Networks = append(spec.Networks, def.Name)
		spec.NetworkDefs = append(spec.NetworkDefs, def)
	}
	sort.Strings(spec.Networks)
	spec.Networks = lo.Uniq(spec.Networks)
	sort.Slice(spec.NetworkDefs, func(i, j int) bool { return spec.NetworkDefs[i].Name < spec.NetworkDefs[j].Name })

	if len(v.Problems) > 0 {
		return nil, fmt.Errorf("service %s: %w", svc.Name, v)
	}
	return spec, nil
}

func toMount(project *composetypes.Project, vol composetypes.ServiceVolumeConfig) (domain.Mount, *domain.VolumeSpec, error) {
	switch vol.Type {
	case composetypes.VolumeTypeBind:
		return domain.Mount{
			Type:     domain.MountTypeBind,
			Source:   vol.Source,
			Target:   vol.Target,
			ReadOnly: vol.ReadOnly,
		}, nil, nil

	case composetypes.VolumeTypeVolume:
		if vol.Source == "" {
			return domain.Mount{}, nil, fmt.Errorf("anonymous volume at %s is not supported, name it", vol.Target)
		}
		def := &domain.VolumeSpec{Name: vol.Source}
		if declared, ok := project.Volumes[vol.Source]; ok {
			def = &domain.VolumeSpec{
				Name:     lo.CoalesceOrEmpty(declared.Name, vol.Source),
				Driver:   declared.Driver,
				External: bool(declared.External),
			}
		}
		return domain.Mount{
			Type:     domain.MountTypeVolume,
			Source:   def.Name,
			Target:   vol.Target,
			ReadOnly: vol.ReadOnly,
		}, def, nil
	}
	return domain.Mount{}, nil, fmt.Errorf("volume type %q at %s is not supported", vol.Type, vol.Target)
}

func toPort(p composetypes.ServicePortConfig) (domain.PortMapping, error) {
	if p.Published == "" {
		return domain.PortMapping{}, fmt.Errorf("port %d must publish a fixed host port", p.Target)
	}
	hostPort, err := strconv.ParseUint(p.Published, 10, 16)
	if err != nil {
		return domain.PortMapping{}, fmt.Errorf("published port %q must be a single port number", p.Published)
	}
	return domain.PortMapping{
		HostIP:        p.HostIP,
		HostPort:      uint16(hostPort),
		ContainerPort: uint16(p.Target),
		Protocol:      p.Protocol,
	}, nil
}

// restartName drops the retry count of "on-failure:N".
func restartName(s string) string {
	name, _, _ := strings.Cut(s, ":")
	return name
}
