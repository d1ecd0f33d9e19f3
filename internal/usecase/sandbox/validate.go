package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/distribution/reference"

	"github.com/bnema/sandboxer/internal/domain"
)

// validate runs the pure spec checks plus the ones that need the host
// filesystem and the security policy. No engine call is made.
func (s *Service) validate(spec *domain.ServiceSpec) error {
	if spec == nil {
		return &domain.ValidationError{Problems: []string{"specification is required"}}
	}

	v := &domain.ValidationError{}
	if err := spec.Validate(); err != nil {
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		v.Problems = append(v.Problems, ve.Problems...)
	}

	if spec.Image != "" {
		if _, err := reference.ParseNormalizedNamed(spec.Image); err != nil {
			v.Problems = append(v.Problems, fmt.Sprintf("invalid image reference %q: %v", spec.Image, err))
		}
	}
	if spec.Build != nil {
		v.Problems = append(v.Problems, validateBuild(spec.Build)...)
	}

	if spec.Privileged && !s.config.AllowPrivileged {
		v.Problems = append(v.Problems, "privileged sandboxes are disabled by security.allow_privileged")
	}
	if spec.MountsEngineSocket() && !s.config.AllowEngineSocket {
		v.Problems = append(v.Problems, "engine socket mounts are disabled by security.allow_engine_socket")
	}

	if len(v.Problems) > 0 {
		return v
	}
	return nil
}

func validateBuild(b *domain.BuildSpec) []string {
	var problems []string

	if b.Tag != "" {
		if _, err := reference.ParseNormalizedNamed(b.Tag); err != nil {
			problems = append(problems, fmt.Sprintf("invalid build tag %q: %v", b.Tag, err))
		}
	}
	if b.Context == "" {
		return problems
	}

	info, err := os.Stat(b.Context)
	switch {
	case err != nil:
		return append(problems, fmt.Sprintf("build context %q is not readable: %v", b.Context, err))
	case !info.IsDir():
		return append(problems, fmt.Sprintf("build context %q is not a directory", b.Context))
	}

	dockerfile := DockerfilePath(b)
	info, err = os.Stat(dockerfile)
	switch {
	case err != nil:
		problems = append(problems, fmt.Sprintf("dockerfile %q is not readable: %v", dockerfile, err))
	case info.IsDir():
		problems = append(problems, fmt.Sprintf("dockerfile %q is a directory", dockerfile))
	}
	return problems
}

// DockerfilePath returns the dockerfile location on the host.
// Relative dockerfiles resolve against the build context.
func DockerfilePath(b *domain.BuildSpec) string {
	name := b.Dockerfile
	if name == "" {
		name = "Dockerfile"
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(b.Context, name)
}
