package domain

import (
	"fmt"
	"sort"
	"strings"
)

// ServiceSpec is the desired state of one sandbox container.
// It is read at reconciliation time and never mutated by the running container.
type ServiceSpec struct {
	Project       string
	Name          string
	ContainerName string

	// Image and Build are mutually exclusive.
	Image string
	Build *BuildSpec

	// Privileged grants extended kernel capabilities. It is only ever
	// taken verbatim from the manifest.
	Privileged bool

	Environment map[string]string
	Mounts      []Mount
	Ports       []PortMapping
	Networks    []string
	Restart     RestartPolicy
	WorkingDir  string
	Command     []string
	Labels      map[string]string

	// ReadinessURL is polled after start until it answers 2xx. Empty skips it.
	ReadinessURL string

	// Declared resources referenced by Mounts and Networks.
	Volumes     []VolumeSpec
	NetworkDefs []NetworkSpec
}

// BuildSpec selects build-from-source image resolution.
type BuildSpec struct {
	Context    string
	Dockerfile string
	Args       map[string]string
	// Tag is the reference the built image is tagged with.
	Tag string
}

// MountType distinguishes host bind mounts from engine-managed volumes.
type MountType string

const (
	MountTypeBind   MountType = "bind"
	MountTypeVolume MountType = "volume"
)

// Mount exposes a host path or a named volume inside the container.
type Mount struct {
	Type     MountType
	Source   string
	Target   string
	ReadOnly bool
}

func (m Mount) String() string {
	s := m.Source + ":" + m.Target
	if m.ReadOnly {
		s += ":ro"
	}
	return s
}

// PortMapping forwards a host port to a container port.
type PortMapping struct {
	HostIP        string
	HostPort      uint16
	ContainerPort uint16
	Protocol      string
}

// Proto returns the protocol, defaulting to tcp.
func (p PortMapping) Proto() string {
	if p.Protocol == "" {
		return "tcp"
	}
	return strings.ToLower(p.Protocol)
}

func (p PortMapping) String() string {
	host := fmt.Sprintf("%d", p.HostPort)
	if p.HostIP != "" {
		host = p.HostIP + ":" + host
	}
	return fmt.Sprintf("%s->%d/%s", host, p.ContainerPort, p.Proto())
}

// VolumeSpec declares a named volume.
type VolumeSpec struct {
	Name     string
	Driver   string
	External bool
}

// NetworkSpec declares a named network.
type NetworkSpec struct {
	Name     string
	Driver   string
	External bool
}

// RestartPolicy is the host supervision behavior on container exit.
type RestartPolicy string

const (
	RestartNever         RestartPolicy = "never"
	RestartOnFailure     RestartPolicy = "on-failure"
	RestartUnlessStopped RestartPolicy = "unless-stopped"
	RestartAlways        RestartPolicy = "always"
)

// ParseRestartPolicy accepts both sandboxer and compose spellings.
// An empty string maps to RestartNever.
func ParseRestartPolicy(s string) (RestartPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "no", "never":
		return RestartNever, nil
	case "on-failure":
		return RestartOnFailure, nil
	case "unless-stopped":
		return RestartUnlessStopped, nil
	case "always":
		return RestartAlways, nil
	}
	return "", fmt.Errorf("%w: unknown restart policy %q", ErrSpecValidation, s)
}

// Valid reports whether r is one of the known policies.
func (r RestartPolicy) Valid() bool {
	switch r {
	case RestartNever, RestartOnFailure, RestartUnlessStopped, RestartAlways:
		return true
	}
	return false
}

// ImageRef returns the reference the container is created from.
func (s *ServiceSpec) ImageRef() string {
	if s.Build != nil {
		return s.Build.Tag
	}
	return s.Image
}

// NamedVolumes returns the volume names referenced by the mount list, in mount order.
func (s *ServiceSpec) NamedVolumes() []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range s.Mounts {
		if m.Type != MountTypeVolume || seen[m.Source] {
			continue
		}
		seen[m.Source] = true
		names = append(names, m.Source)
	}
	return names
}

// VolumeSpecFor returns the declared spec for a named volume, or a default one.
func (s *ServiceSpec) VolumeSpecFor(name string) VolumeSpec {
	for _, v := range s.Volumes {
		if v.Name == name {
			return v
		}
	}
	return VolumeSpec{Name: name, Driver: "local"}
}

// NetworkSpecFor returns the declared spec for a network, or a default bridge one.
func (s *ServiceSpec) NetworkSpecFor(name string) NetworkSpec {
	for _, n := range s.NetworkDefs {
		if n.Name == name {
			return n
		}
	}
	return NetworkSpec{Name: name, Driver: "bridge"}
}

// EnvList renders the environment mapping as sorted KEY=VALUE pairs.
func (s *ServiceSpec) EnvList() []string {
	keys := make([]string, 0, len(s.Environment))
	for k := range s.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+s.Environment[k])
	}
	return env
}

// MountsEngineSocket reports whether a bind mount exposes an engine control socket.
func (s *ServiceSpec) MountsEngineSocket() bool {
	for _, m := range s.Mounts {
		if m.Type == MountTypeBind && IsEngineSocketPath(m.Source) {
			return true
		}
	}
	return false
}

// IsEngineSocketPath reports whether path looks like a container engine control socket.
func IsEngineSocketPath(path string) bool {
	switch {
	case strings.HasSuffix(path, "/docker.sock"),
		strings.HasSuffix(path, "/podman.sock"),
		strings.HasSuffix(path, "/containerd.sock"):
		return true
	}
	return false
}

// SandboxAction is what a reconciliation did to converge.
type SandboxAction string

const (
	ActionCreated  SandboxAction = "created"
	ActionReused   SandboxAction = "reused"
	ActionStarted  SandboxAction = "started"
	ActionReplaced SandboxAction = "replaced"
)

// SandboxHandle identifies the running sandbox after reconciliation.
type SandboxHandle struct {
	ContainerID string
	Name        string
	Image       string
	ImageID     string
	Status      string
	Ports       []PortMapping
	Networks    []string
	Fingerprint string
	Action      SandboxAction
}

// SandboxStatus is a read-only view of a sandbox against its spec.
type SandboxStatus struct {
	Name        string
	State       ObservedState
	Container   *Container
	InSync      bool
	Volumes     map[string]bool
	Networks    map[string]bool
	Privileged  bool
	EngineSock  bool
	Fingerprint string
}

// RemoveOptions controls what Remove deletes beyond the container.
type RemoveOptions struct {
	RemoveVolumes  bool
	RemoveNetworks bool
}
