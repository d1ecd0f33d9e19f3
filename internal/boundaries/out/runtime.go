// Package out defines output ports (interfaces) for infrastructure.
// These interfaces define the contract between use cases and driven adapters
// (Docker, filesystem, etc.).
package out

import (
	"context"
	"io"

	"github.com/bnema/sandboxer/internal/domain"
)

// ContainerEngine defines the contract for the container engine control API.
// Lookups return an error matching domain.ErrNotFound when the object is absent.
// Implementations classify engine failures with the domain error kinds
// (ErrResourceConflict, ErrDependencyUnavailable, ErrBuild).
type ContainerEngine interface {
	// Engine information
	Ping(ctx context.Context) error
	Version(ctx context.Context) (string, error)

	// Container lifecycle
	CreateContainer(ctx context.Context, config *domain.ContainerConfig) (*domain.Container, error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string, timeoutSeconds int) error
	RemoveContainer(ctx context.Context, containerID string, force bool) error

	// Container inspection
	FindContainer(ctx context.Context, name string) (*domain.Container, error)
	InspectContainer(ctx context.Context, containerID string) (*domain.Container, error)
	ContainerLogs(ctx context.Context, containerID string, follow bool) (io.ReadCloser, error)

	// Image operations
	BuildImage(ctx context.Context, req domain.BuildRequest, progress io.Writer) (string, error)
	ImageID(ctx context.Context, imageRef string) (string, error)
	PullImage(ctx context.Context, imageRef string) error

	// Volume management
	InspectVolume(ctx context.Context, name string) (*domain.VolumeInfo, error)
	CreateVolume(ctx context.Context, name, driver string, labels map[string]string) (*domain.VolumeInfo, error)
	RemoveVolume(ctx context.Context, name string) error

	// Network management
	InspectNetwork(ctx context.Context, name string) (*domain.NetworkInfo, error)
	CreateNetwork(ctx context.Context, name, driver string, labels map[string]string) (*domain.NetworkInfo, error)
	RemoveNetwork(ctx context.Context, name string) error
	ConnectContainerToNetwork(ctx context.Context, containerID, networkName string) error
}

// PortChecker probes whether host ports can still be bound.
type PortChecker interface {
	// CheckAvailable returns an error matching domain.ErrResourceConflict
	// when the port is already bound by another process.
	CheckAvailable(ctx context.Context, port domain.PortMapping) error
}

// NameLocker serializes reconciliations targeting the same container name.
type NameLocker interface {
	// Lock blocks until the name is held or ctx is done.
	// The returned release function must be called exactly once.
	Lock(ctx context.Context, name string) (release func() error, err error)
}

// ReadinessProber checks whether a started sandbox serves requests.
type ReadinessProber interface {
	// Probe issues a GET to url and returns the status code and the
	// response time in milliseconds.
	Probe(ctx context.Context, url string) (status int, elapsedMs int64, err error)
}
