package domain

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// containerNameRegex mirrors the engine's accepted container names.
var containerNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]+$`)

// resourceNameRegex is used for volume and network names.
var resourceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

var envKeyRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// ValidationError lists every problem found in a spec.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrSpecValidation }

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Validate checks the spec for internal consistency. It does not touch the
// host or the engine; filesystem checks happen in the use case.
func (s *ServiceSpec) Validate() error {
	v := &ValidationError{}

	if s.Name == "" {
		v.add("service name is required")
	}
	if !containerNameRegex.MatchString(s.ContainerName) {
		v.add("invalid container name %q", s.ContainerName)
	}

	switch {
	case s.Image != "" && s.Build != nil:
		v.add("image and build are mutually exclusive")
	case s.Image == "" && s.Build == nil:
		v.add("one of image or build is required")
	case s.Build != nil:
		if s.Build.Context == "" {
			v.add("build context is required")
		}
		if s.Build.Tag == "" {
			v.add("build tag is required")
		}
	}

	for k := range s.Environment {
		if !envKeyRegex.MatchString(k) {
			v.add("invalid environment variable name %q", k)
		}
	}

	validateMounts(v, s.Mounts)
	validatePorts(v, s.Ports)

	for _, n := range s.Networks {
		if !resourceNameRegex.MatchString(n) {
			v.add("invalid network name %q", n)
		}
	}

	if !s.Restart.Valid() {
		v.add("invalid restart policy %q", s.Restart)
	}
	if s.WorkingDir != "" && !path.IsAbs(s.WorkingDir) {
		v.add("working directory %q must be absolute", s.WorkingDir)
	}

	if len(v.Problems) > 0 {
		return v
	}
	return nil
}

func validateMounts(v *ValidationError, mounts []Mount) {
	targets := make(map[string]bool, len(mounts))
	for _, m := range mounts {
		if m.Target == "" || !path.IsAbs(m.Target) {
			v.add("mount target %q must be an absolute container path", m.Target)
		} else if targets[path.Clean(m.Target)] {
			v.add("duplicate mount target %q", m.Target)
		}
		targets[path.Clean(m.Target)] = true

		switch m.Type {
		case MountTypeBind:
			if !strings.HasPrefix(m.Source, "/") {
				v.add("bind source %q must be an absolute host path", m.Source)
			}
		case MountTypeVolume:
			if !resourceNameRegex.MatchString(m.Source) {
				v.add("invalid volume name %q", m.Source)
			}
		default:
			v.add("unsupported mount type %q for %s", m.Type, m.Target)
		}
	}
}

func validatePorts(v *ValidationError, ports []PortMapping) {
	bound := make(map[string]bool, len(ports))
	for _, p := range ports {
		if p.ContainerPort == 0 {
			v.add("container port is required for mapping %s", p)
		}
		if p.HostPort == 0 {
			v.add("host port is required for mapping %s", p)
		}
		switch p.Proto() {
		case "tcp", "udp", "sctp":
		default:
			v.add("unsupported protocol %q", p.Protocol)
		}

		key := fmt.Sprintf("%s:%d/%s", p.HostIP, p.HostPort, p.Proto())
		if bound[key] {
			v.add("host port %d/%s is mapped twice", p.HostPort, p.Proto())
		}
		bound[key] = true
	}
}
