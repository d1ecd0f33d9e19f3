package out

import (
	"context"

	"github.com/bnema/sandboxer/internal/domain"
)

// EnvLoader defines the contract for loading extra environment variables
// that are merged over the manifest's environment mapping.
type EnvLoader interface {
	// LoadEnv returns the variables read from the configured env files.
	LoadEnv(ctx context.Context) (map[string]string, error)
}

// ManifestLoader turns a declarative manifest into a service specification.
type ManifestLoader interface {
	// Load reads the manifest at path and returns the spec for service.
	// An empty service selects the only service the manifest declares.
	Load(ctx context.Context, path, service string) (*domain.ServiceSpec, error)
}
