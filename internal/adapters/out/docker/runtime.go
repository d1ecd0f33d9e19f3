// Package docker implements the container engine adapter using the Docker API.
package docker

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/bnema/zerowrap"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/bnema/sandboxer/internal/domain"
)

// Runtime implements the ContainerEngine interface using the Docker API.
type Runtime struct {
	client *client.Client
}

// NewRuntime creates a new Docker runtime. An empty host uses the
// environment (DOCKER_HOST and friends).
func NewRuntime(host string) (*Runtime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	return &Runtime{
		client: cli,
	}, nil
}

// NewRuntimeWithClient creates a new Docker runtime with a custom client (for testing).
func NewRuntimeWithClient(cli *client.Client) *Runtime {
	return &Runtime{
		client: cli,
	}
}

// Close releases the underlying client.
func (r *Runtime) Close() error {
	return r.client.Close()
}

// Ping checks if Docker is responsive.
func (r *Runtime) Ping(ctx context.Context) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "Ping",
	})
	log := zerowrap.FromCtx(ctx)

	if _, err := r.client.Ping(ctx); err != nil {
		log.Debug().Err(err).Msg("Docker ping failed")
		return fmt.Errorf("docker ping: %w", classify(err, domain.ErrNotFound))
	}
	return nil
}

// Version returns the Docker engine version.
func (r *Runtime) Version(ctx context.Context) (string, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "Version",
	})
	log := zerowrap.FromCtx(ctx)

	version, err := r.client.ServerVersion(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("failed to get Docker version")
		return "", fmt.Errorf("docker version: %w", classify(err, domain.ErrNotFound))
	}
	return version.Version, nil
}

// CreateContainer creates a new container. Only the first network is joined
// at creation; the caller connects the others before starting it.
func (r *Runtime) CreateContainer(ctx context.Context, config *domain.ContainerConfig) (*domain.Container, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "CreateContainer",
		"container_name":      config.Name,
		"image":               config.Image,
	})
	log := zerowrap.FromCtx(ctx)

	exposedPorts, portBindings, err := portSpecs(config.Ports)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSpecValidation, err)
	}

	containerConfig := &container.Config{
		Image:        config.Image,
		Env:          config.Env,
		Cmd:          config.Cmd,
		WorkingDir:   config.WorkingDir,
		ExposedPorts: exposedPorts,
		Labels:       config.Labels,
	}

	hostConfig := &container.HostConfig{
		Privileged:    config.Privileged,
		PortBindings:  portBindings,
		Mounts:        mountSpecs(config.Mounts),
		RestartPolicy: restartPolicy(config.Restart),
	}

	var networkConfig *network.NetworkingConfig
	if len(config.Networks) > 0 {
		hostConfig.NetworkMode = container.NetworkMode(config.Networks[0])
		networkConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				config.Networks[0]: {},
			},
		}
	}

	for _, m := range config.Mounts {
		log.Debug().Str("mount", m.String()).Str("type", string(m.Type)).Msg("adding mount")
	}

	resp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, networkConfig, nil, config.Name)
	if err != nil {
		log.Warn().Err(err).Msg("failed to create container")
		return nil, fmt.Errorf("create container %s: %w", config.Name, classify(err, domain.ErrImageNotFound))
	}
	for _, w := range resp.Warnings {
		log.Warn().Str("warning", w).Msg("engine warning on create")
	}

	log.Info().Str(zerowrap.FieldEntityID, resp.ID).Bool("privileged", config.Privileged).Msg("container created")

	return r.InspectContainer(ctx, resp.ID)
}

// StartContainer starts a container.
func (r *Runtime) StartContainer(ctx context.Context, containerID string) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:    "adapter",
		zerowrap.FieldAdapter:  "docker",
		zerowrap.FieldAction:   "StartContainer",
		zerowrap.FieldEntityID: containerID,
	})
	log := zerowrap.FromCtx(ctx)

	if err := r.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		log.Warn().Err(err).Msg("failed to start container")
		return fmt.Errorf("start container: %w", classify(err, domain.ErrContainerNotFound))
	}

	log.Info().Msg("container started")
	return nil
}

// StopContainer stops a container, killing it after timeoutSeconds.
func (r *Runtime) StopContainer(ctx context.Context, containerID string, timeoutSeconds int) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:    "adapter",
		zerowrap.FieldAdapter:  "docker",
		zerowrap.FieldAction:   "StopContainer",
		zerowrap.FieldEntityID: containerID,
	})
	log := zerowrap.FromCtx(ctx)

	timeout := timeoutSeconds
	if err := r.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		log.Debug().Err(err).Msg("failed to stop container")
		return fmt.Errorf("stop container: %w", classify(err, domain.ErrContainerNotFound))
	}

	log.Info().Msg("container stopped")
	return nil
}

// RemoveContainer removes a container.
func (r *Runtime) RemoveContainer(ctx context.Context, containerID string, force bool) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:    "adapter",
		zerowrap.FieldAdapter:  "docker",
		zerowrap.FieldAction:   "RemoveContainer",
		zerowrap.FieldEntityID: containerID,
		"force":                force,
	})
	log := zerowrap.FromCtx(ctx)

	if err := r.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: force}); err != nil {
		log.Debug().Err(err).Msg("failed to remove container")
		return fmt.Errorf("remove container: %w", classify(err, domain.ErrContainerNotFound))
	}

	log.Info().Msg("container removed")
	return nil
}

// FindContainer looks up a container by its exact name, including stopped ones.
func (r *Runtime) FindContainer(ctx context.Context, name string) (*domain.Container, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "FindContainer",
		"container_name":      name,
	})
	log := zerowrap.FromCtx(ctx)

	// The name filter is a substring match, so the result is checked exactly.
	containers, err := r.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		log.Debug().Err(err).Msg("failed to list containers")
		return nil, fmt.Errorf("list containers: %w", classify(err, domain.ErrContainerNotFound))
	}

	for _, c := range containers {
		for _, n := range c.Names {
			if strings.TrimPrefix(n, "/") == name {
				return r.InspectContainer(ctx, c.ID)
			}
		}
	}
	return nil, domain.ErrContainerNotFound
}

// InspectContainer inspects a container.
func (r *Runtime) InspectContainer(ctx context.Context, containerID string) (*domain.Container, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:    "adapter",
		zerowrap.FieldAdapter:  "docker",
		zerowrap.FieldAction:   "InspectContainer",
		zerowrap.FieldEntityID: containerID,
	})
	log := zerowrap.FromCtx(ctx)

	resp, err := r.client.ContainerInspect(ctx, containerID)
	if err != nil {
		log.Debug().Err(err).Msg("failed to inspect container")
		return nil, fmt.Errorf("inspect container: %w", classify(err, domain.ErrContainerNotFound))
	}

	c := &domain.Container{
		ID:      resp.ID,
		Name:    strings.TrimPrefix(resp.Name, "/"),
		ImageID: resp.Image,
		Status:  string(domain.ContainerStatusUnknown),
	}
	if resp.Config != nil {
		c.Image = resp.Config.Image
		c.Labels = resp.Config.Labels
	}
	if resp.State != nil {
		c.Status = string(resp.State.Status)
		c.ExitCode = resp.State.ExitCode
		c.Error = resp.State.Error
	}
	if resp.HostConfig != nil {
		c.Ports = publishedPorts(resp.HostConfig.PortBindings)
	}
	if resp.NetworkSettings != nil {
		for name := range resp.NetworkSettings.Networks {
			c.Networks = append(c.Networks, name)
		}
		sort.Strings(c.Networks)
	}
	for _, m := range resp.Mounts {
		dm := domain.Mount{Target: m.Destination, ReadOnly: !m.RW}
		if m.Type == mount.TypeVolume {
			dm.Type, dm.Source = domain.MountTypeVolume, m.Name
		} else {
			dm.Type, dm.Source = domain.MountTypeBind, m.Source
		}
		c.Mounts = append(c.Mounts, dm)
	}

	return c, nil
}

// ContainerLogs streams the container's stdout and stderr, demultiplexed
// into a single stream.
func (r *Runtime) ContainerLogs(ctx context.Context, containerID string, follow bool) (io.ReadCloser, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:    "adapter",
		zerowrap.FieldAdapter:  "docker",
		zerowrap.FieldAction:   "ContainerLogs",
		zerowrap.FieldEntityID: containerID,
	})
	log := zerowrap.FromCtx(ctx)

	logs, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Timestamps: false,
	})
	if err != nil {
		log.Debug().Err(err).Msg("failed to get container logs")
		return nil, fmt.Errorf("container logs: %w", classify(err, domain.ErrContainerNotFound))
	}

	// Docker container logs are multiplexed with 8-byte headers.
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, logs)
		_ = logs.Close()
		pw.CloseWithError(err)
	}()

	return pr, nil
}

// ConnectContainerToNetwork joins a container to an additional network.
func (r *Runtime) ConnectContainerToNetwork(ctx context.Context, containerID, networkName string) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:    "adapter",
		zerowrap.FieldAdapter:  "docker",
		zerowrap.FieldAction:   "ConnectContainerToNetwork",
		zerowrap.FieldEntityID: containerID,
		"network":              networkName,
	})
	log := zerowrap.FromCtx(ctx)

	if err := r.client.NetworkConnect(ctx, networkName, containerID, nil); err != nil {
		log.Warn().Err(err).Msg("failed to connect container to network")
		return fmt.Errorf("connect to network %s: %w", networkName, classify(err, domain.ErrNetworkNotFound))
	}

	log.Info().Msg("container connected to network")
	return nil
}

func portSpecs(ports []domain.PortMapping) (nat.PortSet, nat.PortMap, error) {
	exposed := make(nat.PortSet)
	bindings := make(nat.PortMap)

	for _, p := range ports {
		port, err := nat.NewPort(p.Proto(), strconv.Itoa(int(p.ContainerPort)))
		if err != nil {
			return nil, nil, fmt.Errorf("port %s: %w", p, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = append(bindings[port], nat.PortBinding{
			HostIP:   p.HostIP,
			HostPort: strconv.Itoa(int(p.HostPort)),
		})
	}
	return exposed, bindings, nil
}

func publishedPorts(bindings nat.PortMap) []domain.PortMapping {
	var ports []domain.PortMapping
	for port, binds := range bindings {
		for _, b := range binds {
			hostPort, err := strconv.ParseUint(b.HostPort, 10, 16)
			if err != nil || hostPort == 0 {
				continue
			}
			ports = append(ports, domain.PortMapping{
				HostIP:        b.HostIP,
				HostPort:      uint16(hostPort),
				ContainerPort: uint16(port.Int()),
				Protocol:      port.Proto(),
			})
		}
	}
	sort.Slice(ports, func(i, j int) bool {
		if ports[i].HostPort != ports[j].HostPort {
			return ports[i].HostPort < ports[j].HostPort
		}
		return ports[i].Protocol < ports[j].Protocol
	})
	return ports
}

func mountSpecs(mounts []domain.Mount) []mount.Mount {
	out := make([]mount.Mount, 0, len(mounts))
	for _, m := range mounts {
		t := mount.TypeBind
		if m.Type == domain.MountTypeVolume {
			t = mount.TypeVolume
		}
		out = append(out, mount.Mount{
			Type:     t,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}
	return out
}

func restartPolicy(p domain.RestartPolicy) container.RestartPolicy {
	switch p {
	case domain.RestartOnFailure:
		return container.RestartPolicy{Name: container.RestartPolicyOnFailure}
	case domain.RestartUnlessStopped:
		return container.RestartPolicy{Name: container.RestartPolicyUnlessStopped}
	case domain.RestartAlways:
		return container.RestartPolicy{Name: container.RestartPolicyAlways}
	}
	return container.RestartPolicy{Name: container.RestartPolicyDisabled}
}
