package testutils

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/bnema/sandboxer/internal/domain"
)

// FakeEngine is an in-memory container engine that records every call.
// It implements out.ContainerEngine.
type FakeEngine struct {
	mu sync.Mutex

	Containers map[string]*domain.Container // by ID
	Images     map[string]string            // ref -> image ID
	Volumes    map[string]*domain.VolumeInfo
	Networks   map[string]*domain.NetworkInfo
	Configs    map[string]*domain.ContainerConfig // by container ID

	// Calls lists operations in order, e.g. "CreateVolume data-vol".
	Calls []string

	// Failure injection.
	PingErr          error
	BuildErr         error
	PullErr          error
	CreateErr        error
	StartErr         error
	CreateVolumeErr  error
	CreateNetworkErr error
	// ExitOnStart makes started containers exit immediately with this code.
	ExitOnStart *int
	// BeforeStart runs inside StartContainer before the state changes.
	BeforeStart func(ctx context.Context, containerID string) error

	nextID int
}

// NewFakeEngine creates an empty fake engine.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		Containers: make(map[string]*domain.Container),
		Images:     make(map[string]string),
		Volumes:    make(map[string]*domain.VolumeInfo),
		Networks:   make(map[string]*domain.NetworkInfo),
		Configs:    make(map[string]*domain.ContainerConfig),
	}
}

func (f *FakeEngine) record(format string, args ...any) {
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
}

// CallIndex returns the position of the first call with the given prefix, or -1.
func (f *FakeEngine) CallIndex(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.IndexFunc(f.Calls, func(c string) bool { return strings.HasPrefix(c, prefix) })
}

// CountCalls counts calls with the given prefix.
func (f *FakeEngine) CountCalls(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (f *FakeEngine) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = nil
}

// ContainersNamed returns every container with the given name.
func (f *FakeEngine) ContainersNamed(name string) []*domain.Container {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Container
	for _, c := range f.Containers {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// AddContainer seeds a container, returning it.
func (f *FakeEngine) AddContainer(c *domain.Container) *domain.Container {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == "" {
		f.nextID++
		c.ID = fmt.Sprintf("seed-%d", f.nextID)
	}
	f.Containers[c.ID] = c
	return c
}

func (f *FakeEngine) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Ping")
	return f.PingErr
}

func (f *FakeEngine) Version(_ context.Context) (string, error) {
	return "fake-28.0.1", nil
}

func (f *FakeEngine) CreateContainer(ctx context.Context, config *domain.ContainerConfig) (*domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateContainer %s", config.Name)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	for _, c := range f.Containers {
		if c.Name == config.Name {
			return nil, fmt.Errorf("%w: name %s in use", domain.ErrResourceConflict, config.Name)
		}
	}
	imageID, ok := f.Images[config.Image]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrImageNotFound, config.Image)
	}
	for _, m := range config.Mounts {
		if m.Type == domain.MountTypeVolume {
			if _, ok := f.Volumes[m.Source]; !ok {
				return nil, fmt.Errorf("%w: %s", domain.ErrVolumeNotFound, m.Source)
			}
		}
	}
	for _, n := range config.Networks {
		if _, ok := f.Networks[n]; !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrNetworkNotFound, n)
		}
	}

	f.nextID++
	c := &domain.Container{
		ID:       fmt.Sprintf("ctr-%d", f.nextID),
		Name:     config.Name,
		Image:    config.Image,
		ImageID:  imageID,
		Status:   string(domain.ContainerStatusCreated),
		Ports:    slices.Clone(config.Ports),
		Mounts:   slices.Clone(config.Mounts),
		Labels:   maps.Clone(config.Labels),
		Networks: slices.Clone(config.Networks[:min(1, len(config.Networks))]),
	}
	f.Containers[c.ID] = c
	cfg := *config
	f.Configs[c.ID] = &cfg
	return cloneContainer(c), nil
}

func (f *FakeEngine) StartContainer(ctx context.Context, containerID string) error {
	if f.BeforeStart != nil {
		if err := f.BeforeStart(ctx, containerID); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("StartContainer %s", containerID)

	if f.StartErr != nil {
		return f.StartErr
	}
	c, ok := f.Containers[containerID]
	if !ok {
		return domain.ErrContainerNotFound
	}
	if f.ExitOnStart != nil {
		c.Status = string(domain.ContainerStatusExited)
		c.ExitCode = *f.ExitOnStart
		c.Error = "process exited"
		return nil
	}
	c.Status = string(domain.ContainerStatusRunning)
	return nil
}

func (f *FakeEngine) StopContainer(_ context.Context, containerID string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("StopContainer %s", containerID)

	c, ok := f.Containers[containerID]
	if !ok {
		return domain.ErrContainerNotFound
	}
	c.Status = string(domain.ContainerStatusExited)
	return nil
}

func (f *FakeEngine) RemoveContainer(_ context.Context, containerID string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RemoveContainer %s", containerID)

	if _, ok := f.Containers[containerID]; !ok {
		return domain.ErrContainerNotFound
	}
	delete(f.Containers, containerID)
	delete(f.Configs, containerID)
	return nil
}

func (f *FakeEngine) FindContainer(_ context.Context, name string) (*domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FindContainer %s", name)

	for _, c := range f.Containers {
		if c.Name == name {
			return cloneContainer(c), nil
		}
	}
	return nil, domain.ErrContainerNotFound
}

func (f *FakeEngine) InspectContainer(_ context.Context, containerID string) (*domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("InspectContainer %s", containerID)

	c, ok := f.Containers[containerID]
	if !ok {
		return nil, domain.ErrContainerNotFound
	}
	return cloneContainer(c), nil
}

func (f *FakeEngine) ContainerLogs(_ context.Context, containerID string, _ bool) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Containers[containerID]; !ok {
		return nil, domain.ErrContainerNotFound
	}
	return io.NopCloser(strings.NewReader("dockerd started\n")), nil
}

func (f *FakeEngine) BuildImage(ctx context.Context, req domain.BuildRequest, progress io.Writer) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("BuildImage %s", req.Tag)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.BuildErr != nil {
		return "", f.BuildErr
	}
	if progress != nil {
		_, _ = io.WriteString(progress, "Step 1/1 : FROM docker:dind\n")
	}
	id, ok := f.Images[req.Tag]
	if !ok {
		id = "sha256:built-" + req.Tag
		f.Images[req.Tag] = id
	}
	return id, nil
}

func (f *FakeEngine) ImageID(_ context.Context, imageRef string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ImageID %s", imageRef)

	id, ok := f.Images[imageRef]
	if !ok {
		return "", domain.ErrImageNotFound
	}
	return id, nil
}

func (f *FakeEngine) PullImage(_ context.Context, imageRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("PullImage %s", imageRef)

	if f.PullErr != nil {
		return f.PullErr
	}
	if _, ok := f.Images[imageRef]; !ok {
		f.Images[imageRef] = "sha256:pulled-" + imageRef
	}
	return nil
}

func (f *FakeEngine) InspectVolume(_ context.Context, name string) (*domain.VolumeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("InspectVolume %s", name)

	v, ok := f.Volumes[name]
	if !ok {
		return nil, domain.ErrVolumeNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *FakeEngine) CreateVolume(_ context.Context, name, driver string, labels map[string]string) (*domain.VolumeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateVolume %s", name)

	if f.CreateVolumeErr != nil {
		return nil, f.CreateVolumeErr
	}
	v := &domain.VolumeInfo{Name: name, Driver: driver, Labels: maps.Clone(labels)}
	f.Volumes[name] = v
	cp := *v
	return &cp, nil
}

func (f *FakeEngine) RemoveVolume(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RemoveVolume %s", name)
	delete(f.Volumes, name)
	return nil
}

func (f *FakeEngine) InspectNetwork(_ context.Context, name string) (*domain.NetworkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("InspectNetwork %s", name)

	n, ok := f.Networks[name]
	if !ok {
		return nil, domain.ErrNetworkNotFound
	}
	cp := *n
	cp.Containers = f.attachedTo(name)
	return &cp, nil
}

func (f *FakeEngine) CreateNetwork(_ context.Context, name, driver string, labels map[string]string) (*domain.NetworkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateNetwork %s", name)

	if f.CreateNetworkErr != nil {
		return nil, f.CreateNetworkErr
	}
	n := &domain.NetworkInfo{ID: "net-" + name, Name: name, Driver: driver, Labels: maps.Clone(labels)}
	f.Networks[name] = n
	cp := *n
	return &cp, nil
}

func (f *FakeEngine) RemoveNetwork(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RemoveNetwork %s", name)
	delete(f.Networks, name)
	return nil
}

func (f *FakeEngine) ConnectContainerToNetwork(_ context.Context, containerID, networkName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ConnectContainerToNetwork %s %s", containerID, networkName)

	c, ok := f.Containers[containerID]
	if !ok {
		return domain.ErrContainerNotFound
	}
	if _, ok := f.Networks[networkName]; !ok {
		return domain.ErrNetworkNotFound
	}
	if !slices.Contains(c.Networks, networkName) {
		c.Networks = append(c.Networks, networkName)
	}
	return nil
}

func (f *FakeEngine) attachedTo(network string) []string {
	var ids []string
	for _, c := range f.Containers {
		if slices.Contains(c.Networks, network) {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func cloneContainer(c *domain.Container) *domain.Container {
	cp := *c
	cp.Ports = slices.Clone(c.Ports)
	cp.Networks = slices.Clone(c.Networks)
	cp.Mounts = slices.Clone(c.Mounts)
	cp.Labels = maps.Clone(c.Labels)
	return &cp
}
