package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSpec() *ServiceSpec {
	return &ServiceSpec{
		Project:       "devbox",
		Name:          "dind",
		ContainerName: "sandbox-1",
		Build:         &BuildSpec{Context: "/src", Dockerfile: "Dockerfile", Tag: "sandboxer/sandbox-1:latest"},
		Privileged:    true,
		Environment:   map[string]string{"DOCKER_TLS_CERTDIR": ""},
		Mounts: []Mount{
			{Type: MountTypeVolume, Source: "data-vol", Target: "/var/lib/data"},
			{Type: MountTypeBind, Source: "/var/run/docker.sock", Target: "/var/run/docker.sock"},
		},
		Ports:      []PortMapping{{HostPort: 2375, ContainerPort: 2375}},
		Networks:   []string{"net-a"},
		Restart:    RestartUnlessStopped,
		WorkingDir: "/workspace",
	}
}

func TestServiceSpec_Validate_Valid(t *testing.T) {
	assert.NoError(t, validSpec().Validate())
}

func TestServiceSpec_Validate_Problems(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *ServiceSpec)
		problem string
	}{
		{
			name:    "image and build both set",
			mutate:  func(s *ServiceSpec) { s.Image = "docker:dind" },
			problem: "mutually exclusive",
		},
		{
			name:    "neither image nor build",
			mutate:  func(s *ServiceSpec) { s.Build = nil },
			problem: "one of image or build is required",
		},
		{
			name:    "bad container name",
			mutate:  func(s *ServiceSpec) { s.ContainerName = "-bad name" },
			problem: "invalid container name",
		},
		{
			name:    "relative mount target",
			mutate:  func(s *ServiceSpec) { s.Mounts[0].Target = "data" },
			problem: "must be an absolute container path",
		},
		{
			name:    "relative bind source",
			mutate:  func(s *ServiceSpec) { s.Mounts[1].Source = "./docker.sock" },
			problem: "must be an absolute host path",
		},
		{
			name: "duplicate host port",
			mutate: func(s *ServiceSpec) {
				s.Ports = append(s.Ports, PortMapping{HostPort: 2375, ContainerPort: 2376})
			},
			problem: "mapped twice",
		},
		{
			name:    "zero host port",
			mutate:  func(s *ServiceSpec) { s.Ports[0].HostPort = 0 },
			problem: "host port is required",
		},
		{
			name:    "unknown restart policy",
			mutate:  func(s *ServiceSpec) { s.Restart = "sometimes" },
			problem: "invalid restart policy",
		},
		{
			name:    "relative working dir",
			mutate:  func(s *ServiceSpec) { s.WorkingDir = "workspace" },
			problem: "must be absolute",
		},
		{
			name:    "bad env key",
			mutate:  func(s *ServiceSpec) { s.Environment["1BAD"] = "x" },
			problem: "invalid environment variable name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(spec)

			err := spec.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSpecValidation))
			assert.Contains(t, err.Error(), tt.problem)
		})
	}
}

func TestServiceSpec_Validate_CollectsAllProblems(t *testing.T) {
	spec := validSpec()
	spec.Build = nil
	spec.Restart = "bogus"

	err := spec.Validate()

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 2)
}

func TestParseRestartPolicy(t *testing.T) {
	tests := []struct {
		in       string
		expected RestartPolicy
	}{
		{"", RestartNever},
		{"no", RestartNever},
		{"never", RestartNever},
		{"on-failure", RestartOnFailure},
		{"Unless-Stopped", RestartUnlessStopped},
		{"always", RestartAlways},
	}
	for _, tt := range tests {
		got, err := ParseRestartPolicy(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.expected, got)
	}

	_, err := ParseRestartPolicy("on-failure:3x")
	assert.ErrorIs(t, err, ErrSpecValidation)
}

func TestServiceSpec_NamedVolumes(t *testing.T) {
	spec := validSpec()
	spec.Mounts = append(spec.Mounts, Mount{Type: MountTypeVolume, Source: "data-vol", Target: "/again"})

	assert.Equal(t, []string{"data-vol"}, spec.NamedVolumes())
	assert.True(t, spec.MountsEngineSocket())
	assert.Equal(t, "local", spec.VolumeSpecFor("data-vol").Driver)
	assert.Equal(t, "bridge", spec.NetworkSpecFor("net-a").Driver)
}

func TestServiceSpec_EnvList_Sorted(t *testing.T) {
	spec := &ServiceSpec{Environment: map[string]string{"B": "2", "A": "1"}}
	assert.Equal(t, []string{"A=1", "B=2"}, spec.EnvList())
}
