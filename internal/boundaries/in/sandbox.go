// Package in defines input ports (interfaces) for use cases.
// These interfaces define the contract between driving adapters (HTTP, CLI)
// and the business logic (use cases).
package in

import (
	"context"
	"io"

	"github.com/bnema/sandboxer/internal/domain"
)

// SandboxService defines the contract for sandbox reconciliation.
type SandboxService interface {
	// Reconcile converges the engine to spec and returns the running sandbox.
	Reconcile(ctx context.Context, spec *domain.ServiceSpec) (*domain.SandboxHandle, error)

	// Remove stops and removes the sandbox container.
	Remove(ctx context.Context, spec *domain.ServiceSpec, opts domain.RemoveOptions) error

	// Status reports the sandbox state against spec without mutating anything.
	Status(ctx context.Context, spec *domain.ServiceSpec) (*domain.SandboxStatus, error)

	// Logs streams the sandbox container's output.
	Logs(ctx context.Context, spec *domain.ServiceSpec, follow bool) (io.ReadCloser, error)
}
