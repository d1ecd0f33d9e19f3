package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bnema/sandboxer/internal/domain"
)

// TestLabelConstantsValues guards against accidental value changes that
// would silently break container discovery.
func TestLabelConstantsValues(t *testing.T) {
	tests := []struct {
		constant string
		expected string
	}{
		{domain.LabelManaged, "sandboxer.managed"},
		{domain.LabelProject, "sandboxer.project"},
		{domain.LabelService, "sandboxer.service"},
		{domain.LabelSpecHash, "sandboxer.spec-hash"},
		{domain.LabelPrivileged, "sandboxer.privileged"},
		{domain.LabelEngineSock, "sandboxer.engine-socket"},
	}
	for _, tt := range tests {
		if tt.constant != tt.expected {
			t.Errorf("constant value changed: got %q, want %q", tt.constant, tt.expected)
		}
	}
}

func TestContainerLabels_SandboxerKeysWin(t *testing.T) {
	spec := &domain.ServiceSpec{
		Project:       "devbox",
		Name:          "dind",
		ContainerName: "devbox-dind",
		Image:         "docker:dind",
		Privileged:    true,
		Mounts: []domain.Mount{
			{Type: domain.MountTypeBind, Source: "/var/run/docker.sock", Target: "/var/run/docker.sock"},
		},
		Labels: map[string]string{
			"team":                 "infra",
			domain.LabelManaged:    "false",
			domain.LabelSpecHash:   "forged",
			domain.LabelPrivileged: "false",
		},
	}

	labels := domain.ContainerLabels(spec, "abc")

	assert.Equal(t, "infra", labels["team"])
	assert.Equal(t, "true", labels[domain.LabelManaged])
	assert.Equal(t, "abc", labels[domain.LabelSpecHash])
	assert.Equal(t, "true", labels[domain.LabelPrivileged])
	assert.Equal(t, "true", labels[domain.LabelEngineSock])
	assert.Equal(t, "image", labels[domain.LabelImageSource])
	assert.Equal(t, "dind", labels[domain.LabelService])
	assert.Equal(t, "false", spec.Labels[domain.LabelManaged], "spec labels must not be mutated")
}

func TestResourceLabels(t *testing.T) {
	spec := &domain.ServiceSpec{Project: "devbox", ContainerName: "devbox-dind"}

	labels := domain.ResourceLabels(spec)

	assert.Equal(t, map[string]string{
		domain.LabelManaged:   "true",
		domain.LabelProject:   "devbox",
		domain.LabelCreatedBy: "devbox-dind",
	}, labels)
}
