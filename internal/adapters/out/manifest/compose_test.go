package manifest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/sandboxer/internal/domain"
	"github.com/bnema/sandboxer/internal/testutils"
)

const sandboxCompose = `services:
  sandbox-1:
    build:
      context: .
      dockerfile: Dockerfile
      args:
        DIND_VERSION: "27"
    image: sandbox-1:latest
    privileged: true
    restart: unless-stopped
    working_dir: /workspace
    environment:
      DOCKER_TLS_CERTDIR: ""
    volumes:
      - data-vol:/var/lib/docker
      - /var/run/docker.sock:/var/run/docker.sock
      - ./workspace:/workspace:ro
    ports:
      - "2375:2375"
    networks:
      - net-a
      - shared

volumes:
  data-vol: {}

networks:
  net-a: {}
  shared:
    external: true
`

func writeCompose(t *testing.T, content string) string {
	dir := t.TempDir()
	testutils.WriteFile(t, dir, "Dockerfile", "FROM docker:27-dind\n")
	return testutils.WriteFile(t, dir, "docker-compose.yml", content)
}

func TestComposeLoader_Load(t *testing.T) {
	path := writeCompose(t, sandboxCompose)
	dir := filepath.Dir(path)

	spec, err := NewComposeLoader("demo").Load(testutils.TestContext(t), path, "sandbox-1")
	require.NoError(t, err)

	assert.Equal(t, "demo", spec.Project)
	assert.Equal(t, "sandbox-1", spec.Name)
	assert.Equal(t, "demo-sandbox-1", spec.ContainerName)
	assert.True(t, spec.Privileged)
	assert.Equal(t, domain.RestartUnlessStopped, spec.Restart)
	assert.Equal(t, "/workspace", spec.WorkingDir)
	assert.Equal(t, "", spec.Environment["DOCKER_TLS_CERTDIR"])
	assert.Contains(t, spec.Environment, "DOCKER_TLS_CERTDIR")

	require.NotNil(t, spec.Build)
	assert.Empty(t, spec.Image)
	assert.Equal(t, dir, spec.Build.Context)
	assert.Equal(t, "sandbox-1:latest", spec.Build.Tag)
	assert.Equal(t, "27", spec.Build.Args["DIND_VERSION"])
	assert.Equal(t, "sandbox-1:latest", spec.ImageRef())

	require.Len(t, spec.Mounts, 3)
	assert.Equal(t, domain.Mount{Type: domain.MountTypeVolume, Source: "demo_data-vol", Target: "/var/lib/docker"}, spec.Mounts[0])
	assert.Equal(t, domain.Mount{Type: domain.MountTypeBind, Source: "/var/run/docker.sock", Target: "/var/run/docker.sock"}, spec.Mounts[1])
	assert.Equal(t, domain.Mount{Type: domain.MountTypeBind, Source: filepath.Join(dir, "workspace"), Target: "/workspace", ReadOnly: true}, spec.Mounts[2])
	assert.True(t, spec.MountsEngineSocket())
	assert.Equal(t, []string{"demo_data-vol"}, spec.NamedVolumes())
	assert.False(t, spec.VolumeSpecFor("demo_data-vol").External)

	require.Len(t, spec.Ports, 1)
	assert.Equal(t, uint16(2375), spec.Ports[0].HostPort)
	assert.Equal(t, uint16(2375), spec.Ports[0].ContainerPort)
	assert.Equal(t, "tcp", spec.Ports[0].Proto())

	assert.Equal(t, []string{"demo_net-a", "shared"}, spec.Networks)
	assert.True(t, spec.NetworkSpecFor("shared").External)
	assert.False(t, spec.NetworkSpecFor("demo_net-a").External)
}

func TestComposeLoader_ImageService(t *testing.T) {
	path := writeCompose(t, `services:
  dind:
    image: docker:27-dind
    container_name: my-dind
    restart: on-failure:3
`)

	spec, err := NewComposeLoader("demo").Load(testutils.TestContext(t), path, "")
	require.NoError(t, err)

	assert.Equal(t, "dind", spec.Name)
	assert.Equal(t, "my-dind", spec.ContainerName)
	assert.Equal(t, "docker:27-dind", spec.Image)
	assert.Nil(t, spec.Build)
	assert.False(t, spec.Privileged, "privilege is never implied")
	assert.Equal(t, domain.RestartOnFailure, spec.Restart)
	assert.Equal(t, []string{"demo_default"}, spec.Networks)
}

func TestComposeLoader_ReadinessLabel(t *testing.T) {
	path := writeCompose(t, `services:
  dind:
    image: docker:27-dind
    labels:
      sandboxer.readiness-url: http://127.0.0.1:2375/_ping
      team: infra
`)

	spec, err := NewComposeLoader("demo").Load(testutils.TestContext(t), path, "")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:2375/_ping", spec.ReadinessURL)
	assert.Equal(t, "infra", spec.Labels["team"])
}

func TestComposeLoader_DefaultBuildTag(t *testing.T) {
	path := writeCompose(t, `services:
  sandbox:
    build: .
`)

	spec, err := NewComposeLoader("demo").Load(testutils.TestContext(t), path, "sandbox")
	require.NoError(t, err)
	require.NotNil(t, spec.Build)
	assert.Equal(t, "demo-sandbox:latest", spec.Build.Tag)
}

func TestComposeLoader_ServiceSelection(t *testing.T) {
	path := writeCompose(t, `services:
  a:
    image: docker:27-dind
  b:
    image: docker:27-dind
`)
	loader := NewComposeLoader("demo")
	ctx := testutils.TestContext(t)

	_, err := loader.Load(ctx, path, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSpecValidation)
	assert.Contains(t, err.Error(), "a, b")

	_, err = loader.Load(ctx, path, "c")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSpecValidation)

	spec, err := loader.Load(ctx, path, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", spec.Name)
}

func TestComposeLoader_UnsupportedDeclarations(t *testing.T) {
	tests := []struct {
		name    string
		service string
		wantMsg string
	}{
		{
			name: "anonymous volume",
			service: `    volumes:
      - /var/lib/docker
`,
			wantMsg: "anonymous volume",
		},
		{
			name: "unpublished port",
			service: `    ports:
      - "2375"
`,
			wantMsg: "fixed host port",
		},
		{
			name: "tmpfs mount",
			service: `    volumes:
      - type: tmpfs
        target: /tmp
`,
			wantMsg: "not supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCompose(t, "services:\n  sandbox:\n    image: docker:27-dind\n"+tt.service)

			_, err := NewComposeLoader("demo").Load(testutils.TestContext(t), path, "sandbox")
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrSpecValidation)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestComposeLoader_MissingFile(t *testing.T) {
	_, err := NewComposeLoader("demo").Load(testutils.TestContext(t), filepath.Join(t.TempDir(), "nope.yml"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSpecValidation)
}
