// Package domain contains pure business types without external dependencies.
// These types are used throughout the application and have no tags or framework dependencies.
package domain

// Container represents a container as reported by the engine.
type Container struct {
	ID       string
	Name     string
	Image    string
	ImageID  string
	Status   string
	ExitCode int
	Error    string
	Ports    []PortMapping
	Networks []string
	Mounts   []Mount
	Labels   map[string]string
}

// Running reports whether the engine considers the container running.
func (c *Container) Running() bool {
	return c != nil && c.Status == string(ContainerStatusRunning)
}

// Managed reports whether the container carries the sandboxer ownership label.
func (c *Container) Managed() bool {
	return c != nil && c.Labels[LabelManaged] == "true"
}

// VolumeInfo represents an engine-managed volume.
type VolumeInfo struct {
	Name       string
	Driver     string
	Mountpoint string
	Labels     map[string]string
}

// NetworkInfo represents network configuration and state.
type NetworkInfo struct {
	ID         string
	Name       string
	Driver     string
	Containers []string
	Labels     map[string]string
}

// ContainerConfig holds configuration for creating a container.
type ContainerConfig struct {
	Name       string
	Image      string
	Privileged bool
	Env        []string
	Cmd        []string
	WorkingDir string
	Mounts     []Mount
	Ports      []PortMapping
	Networks   []string
	Restart    RestartPolicy
	Labels     map[string]string
}

// ContainerStatus represents the current state of a container.
type ContainerStatus string

const (
	ContainerStatusRunning    ContainerStatus = "running"
	ContainerStatusCreated    ContainerStatus = "created"
	ContainerStatusRestarting ContainerStatus = "restarting"
	ContainerStatusExited     ContainerStatus = "exited"
	ContainerStatusPaused     ContainerStatus = "paused"
	ContainerStatusDead       ContainerStatus = "dead"
	ContainerStatusUnknown    ContainerStatus = "unknown"
)

// BuildRequest describes an image build from a local context directory.
type BuildRequest struct {
	Context    string
	Dockerfile string
	Tag        string
	Args       map[string]string
	Labels     map[string]string
}
