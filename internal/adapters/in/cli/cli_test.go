package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/sandboxer/internal/app"
	"github.com/bnema/sandboxer/internal/boundaries/in"
	"github.com/bnema/sandboxer/internal/domain"
)

type fakeSandboxService struct {
	handle    *domain.SandboxHandle
	status    *domain.SandboxStatus
	logs      string
	err       error
	removeOpt domain.RemoveOptions
	calls     []string
}

func (f *fakeSandboxService) Reconcile(_ context.Context, spec *domain.ServiceSpec) (*domain.SandboxHandle, error) {
	f.calls = append(f.calls, "Reconcile "+spec.ContainerName)
	return f.handle, f.err
}

func (f *fakeSandboxService) Remove(_ context.Context, spec *domain.ServiceSpec, opts domain.RemoveOptions) error {
	f.calls = append(f.calls, "Remove "+spec.ContainerName)
	f.removeOpt = opts
	return f.err
}

func (f *fakeSandboxService) Status(_ context.Context, spec *domain.ServiceSpec) (*domain.SandboxStatus, error) {
	f.calls = append(f.calls, "Status "+spec.ContainerName)
	return f.status, f.err
}

func (f *fakeSandboxService) Logs(_ context.Context, spec *domain.ServiceSpec, follow bool) (io.ReadCloser, error) {
	f.calls = append(f.calls, fmt.Sprintf("Logs %s %t", spec.ContainerName, follow))
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.logs)), nil
}

type fakeSession struct {
	spec          *domain.ServiceSpec
	specErr       error
	engineVersion string
	engineErr     error
	closed        int
}

func (f *fakeSession) LoadSpec(context.Context) (*domain.ServiceSpec, error) {
	return f.spec, f.specErr
}

func (f *fakeSession) EngineVersion(context.Context) (string, error) {
	return f.engineVersion, f.engineErr
}

func (f *fakeSession) Close() error {
	f.closed++
	return nil
}

func testSpec() *domain.ServiceSpec {
	return &domain.ServiceSpec{
		Project:       "demo",
		Name:          "sandbox-1",
		ContainerName: "demo-sandbox-1",
		Build:         &domain.BuildSpec{Context: "/src", Tag: "sandbox-1:latest"},
		Privileged:    true,
		Environment:   map[string]string{"DOCKER_TLS_CERTDIR": "", "API_TOKEN": "abc"},
		Mounts: []domain.Mount{
			{Type: domain.MountTypeVolume, Source: "demo_data-vol", Target: "/var/lib/docker"},
		},
		Ports:    []domain.PortMapping{{HostPort: 2375, ContainerPort: 2375}},
		Networks: []string{"demo_net-a"},
		Restart:  domain.RestartUnlessStopped,
	}
}

// useFakeSession swaps the application wiring for the duration of the test.
func useFakeSession(t *testing.T, sess *fakeSession, svc in.SandboxService) *app.Options {
	var captured app.Options
	previous := openSession
	openSession = func(ctx context.Context, opts app.Options) (session, in.SandboxService, context.Context, error) {
		captured = opts
		return sess, svc, ctx, nil
	}
	t.Cleanup(func() { openSession = previous })
	return &captured
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stripANSI(out.String()), err
}

func stripANSI(input string) string {
	return regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`).ReplaceAllString(input, "")
}

func TestRunUp_PrintsHandle(t *testing.T) {
	svc := &fakeSandboxService{handle: &domain.SandboxHandle{
		ContainerID: "0123456789abcdef",
		Name:        "demo-sandbox-1",
		Image:       "sandbox-1:latest",
		ImageID:     "sha256:feedfacecafebeef",
		Status:      "running",
		Ports:       []domain.PortMapping{{HostPort: 2375, ContainerPort: 2375}},
		Networks:    []string{"demo_net-a"},
		Action:      domain.ActionCreated,
	}}

	var out bytes.Buffer
	require.NoError(t, runUp(context.Background(), svc, testSpec(), &out))

	text := stripANSI(out.String())
	assert.Contains(t, text, "Sandbox demo-sandbox-1 created")
	assert.Contains(t, text, "0123456789ab")
	assert.NotContains(t, text, "0123456789abcdef")
	assert.Contains(t, text, "feedfacecafe")
	assert.Contains(t, text, "2375->2375/tcp")
	assert.Contains(t, text, "demo_net-a")
	assert.Contains(t, text, "Running privileged")
}

func TestRunUp_ReturnsReconcileError(t *testing.T) {
	want := &domain.ReconcileError{Sandbox: "demo-sandbox-1", Phase: domain.PhasePreflight, Kind: domain.ErrResourceConflict}
	svc := &fakeSandboxService{err: want}

	var out bytes.Buffer
	err := runUp(context.Background(), svc, testSpec(), &out)
	assert.ErrorIs(t, err, domain.ErrResourceConflict)
	assert.Empty(t, out.String())
}

func TestUpCommand_UsesGlobalFlags(t *testing.T) {
	sess := &fakeSession{spec: testSpec()}
	svc := &fakeSandboxService{handle: &domain.SandboxHandle{Name: "demo-sandbox-1", Action: domain.ActionReused}}
	captured := useFakeSession(t, sess, svc)

	text, err := executeCommand(t, "up", "-f", "sandbox.yml", "-s", "sandbox-1", "--env-file", "a.env", "--env-file", "b.env", "--log-level", "debug")
	require.NoError(t, err)

	assert.Contains(t, text, "Sandbox demo-sandbox-1 reused")
	assert.Equal(t, "sandbox.yml", captured.ManifestPath)
	assert.Equal(t, "sandbox-1", captured.Service)
	assert.Equal(t, []string{"a.env", "b.env"}, captured.EnvFiles)
	assert.Equal(t, "debug", captured.LogLevel)
	assert.NotNil(t, captured.BuildOutput)
	assert.Equal(t, []string{"Reconcile demo-sandbox-1"}, svc.calls)
	assert.Equal(t, 1, sess.closed)
}

func TestUpCommand_QuietDropsBuildOutput(t *testing.T) {
	sess := &fakeSession{spec: testSpec()}
	svc := &fakeSandboxService{handle: &domain.SandboxHandle{Name: "demo-sandbox-1", Action: domain.ActionCreated}}
	captured := useFakeSession(t, sess, svc)

	_, err := executeCommand(t, "up", "--quiet")
	require.NoError(t, err)
	assert.Equal(t, "docker-compose.yml", captured.ManifestPath)
	assert.Nil(t, captured.BuildOutput)
}

func TestUpCommand_SpecErrorSkipsService(t *testing.T) {
	sess := &fakeSession{specErr: fmt.Errorf("%w: manifest declares several services", domain.ErrSpecValidation)}
	svc := &fakeSandboxService{}
	useFakeSession(t, sess, svc)

	_, err := executeCommand(t, "up")
	require.Error(t, err)
	assert.Equal(t, ExitValidation, ExitCode(err))
	assert.Empty(t, svc.calls)
	assert.Equal(t, 1, sess.closed)
}

func TestDownCommand_PassesRemoveOptions(t *testing.T) {
	sess := &fakeSession{spec: testSpec()}
	svc := &fakeSandboxService{}
	useFakeSession(t, sess, svc)

	text, err := executeCommand(t, "down", "--volumes")
	require.NoError(t, err)

	assert.Contains(t, text, "Sandbox demo-sandbox-1 removed")
	assert.True(t, svc.removeOpt.RemoveVolumes)
	assert.False(t, svc.removeOpt.RemoveNetworks)
}

func TestRunStatus_RendersTables(t *testing.T) {
	svc := &fakeSandboxService{status: &domain.SandboxStatus{
		Name:  "demo-sandbox-1",
		State: domain.StateMatchesSpec,
		Container: &domain.Container{
			ID:       "0123456789abcdef",
			Image:    "sandbox-1:latest",
			Status:   "running",
			Ports:    []domain.PortMapping{{HostPort: 2375, ContainerPort: 2375}},
			Networks: []string{"demo_net-a"},
		},
		InSync:     true,
		Privileged: true,
		Volumes:    map[string]bool{"demo_data-vol": true},
		Networks:   map[string]bool{"demo_net-a": true, "shared": false},
	}}

	var out bytes.Buffer
	require.NoError(t, runStatus(context.Background(), svc, testSpec(), &out))

	text := stripANSI(out.String())
	assert.Contains(t, text, "Sandbox demo-sandbox-1")
	assert.Contains(t, text, "running")
	assert.Contains(t, text, "2375->2375/tcp")
	assert.Contains(t, text, "demo_data-vol")
	assert.Contains(t, text, "shared")
	assert.Contains(t, text, "In sync")
}

func TestStateLabel(t *testing.T) {
	running := &domain.Container{Status: "running"}
	exited := &domain.Container{Status: "exited"}

	assert.Equal(t, "absent", stateLabel(&domain.SandboxStatus{State: domain.StateNotFound}))
	assert.Equal(t, "foreign", stateLabel(&domain.SandboxStatus{State: domain.StateForeign, Container: running}))
	assert.Equal(t, "drifted", stateLabel(&domain.SandboxStatus{State: domain.StateDiffersFromSpec, Container: running}))
	assert.Equal(t, "exited", stateLabel(&domain.SandboxStatus{State: domain.StateDiffersFromSpec, Container: exited}))
	assert.Equal(t, "running", stateLabel(&domain.SandboxStatus{State: domain.StateMatchesSpec, Container: running}))
}

func TestRunLogs_CopiesStream(t *testing.T) {
	svc := &fakeSandboxService{logs: "dockerd started\nAPI listen on [::]:2375\n"}

	var out bytes.Buffer
	require.NoError(t, runLogs(context.Background(), svc, testSpec(), true, &out))

	assert.Equal(t, "dockerd started\nAPI listen on [::]:2375\n", out.String())
	assert.Equal(t, []string{"Logs demo-sandbox-1 true"}, svc.calls)
}

func TestLogsCommand_FollowFlag(t *testing.T) {
	sess := &fakeSession{spec: testSpec()}
	svc := &fakeSandboxService{logs: "ok\n"}
	useFakeSession(t, sess, svc)

	_, err := executeCommand(t, "logs", "-F")
	require.NoError(t, err)
	assert.Equal(t, []string{"Logs demo-sandbox-1 true"}, svc.calls)
}

func TestRunConfig_PrintsYAML(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runConfig(context.Background(), &fakeSession{spec: testSpec()}, &out))

	text := out.String()
	assert.Contains(t, text, "container_name: demo-sandbox-1")
	assert.Contains(t, text, "privileged: true")
	assert.Contains(t, text, "tag: sandbox-1:latest")
	assert.Contains(t, text, "restart: unless-stopped")
	assert.Contains(t, text, "volume demo_data-vol:/var/lib/docker")
	assert.Contains(t, text, "API_TOKEN: '********'")
	assert.NotContains(t, text, "abc")
}

func TestVersionCommand(t *testing.T) {
	t.Run("client only", func(t *testing.T) {
		text, err := executeCommand(t, "version", "--client")
		require.NoError(t, err)
		assert.Contains(t, text, "sandboxer dev")
		assert.NotContains(t, text, "Engine")
	})

	t.Run("engine reachable", func(t *testing.T) {
		useFakeSession(t, &fakeSession{engineVersion: "28.0.1"}, &fakeSandboxService{})
		text, err := executeCommand(t, "version")
		require.NoError(t, err)
		assert.Contains(t, text, "Engine: 28.0.1")
	})

	t.Run("engine too old", func(t *testing.T) {
		useFakeSession(t, &fakeSession{engineVersion: "19.3.0"}, &fakeSandboxService{})
		text, err := executeCommand(t, "version")
		require.NoError(t, err)
		assert.Contains(t, text, "older than required")
	})

	t.Run("engine unavailable", func(t *testing.T) {
		useFakeSession(t, &fakeSession{engineErr: errors.New("connection refused")}, &fakeSandboxService{})
		text, err := executeCommand(t, "version")
		require.NoError(t, err)
		assert.Contains(t, text, "Engine: unavailable (connection refused)")
	})
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "validation", err: domain.NewReconcileError("s", domain.PhaseValidate, domain.ErrSpecValidation, errors.New("bad")), want: ExitValidation},
		{name: "conflict", err: fmt.Errorf("%w: port", domain.ErrResourceConflict), want: ExitConflict},
		{name: "build", err: domain.NewReconcileError("s", domain.PhaseImage, domain.ErrBuild, errors.New("COPY failed")), want: ExitBuild},
		{name: "start", err: domain.NewReconcileError("s", domain.PhaseStart, domain.ErrStart, errors.New("exited")), want: ExitStart},
		{name: "dependency", err: domain.NewReconcileError("s", domain.PhaseDependencies, domain.ErrDependencyUnavailable, errors.New("no network")), want: ExitDependency},
		{name: "timeout", err: &domain.ReconcileError{Sandbox: "s", Phase: domain.PhaseStart, Kind: domain.ErrTimeout, Err: fmt.Errorf("%w: wait", domain.ErrStart)}, want: ExitTimeout},
		{name: "canceled build", err: &domain.ReconcileError{Sandbox: "s", Phase: domain.PhaseImage, Kind: domain.ErrCanceled, Err: context.Canceled}, want: ExitCanceled},
		{name: "canceled outside reconcile", err: fmt.Errorf("load manifest: %w", context.Canceled), want: ExitCanceled},
		{name: "unclassified", err: errors.New("boom"), want: ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestPrintError_RetryHint(t *testing.T) {
	var out bytes.Buffer
	PrintError(&out, &domain.ReconcileError{Sandbox: "s", Phase: domain.PhaseLock, Kind: domain.ErrTimeout})
	assert.Contains(t, stripANSI(out.String()), "running the command again may succeed")

	out.Reset()
	PrintError(&out, errors.New("boom"))
	assert.NotContains(t, out.String(), "again")
}
