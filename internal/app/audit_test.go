package app

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/bnema/zerowrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/sandboxer/internal/adapters/out/audit"
	"github.com/bnema/sandboxer/internal/adapters/out/eventbus"
	"github.com/bnema/sandboxer/internal/domain"
	"github.com/bnema/sandboxer/internal/testutils"
	"github.com/bnema/sandboxer/internal/usecase/sandbox"
)

func readAuditRecords(t *testing.T, path string) []audit.Record {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []audit.Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r audit.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		records = append(records, r)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestAuditTrail_RecordsReconcileEvents(t *testing.T) {
	dir := t.TempDir()
	auditFile := filepath.Join(dir, "audit.log")

	handler, err := audit.NewHandler(audit.Config{Path: auditFile})
	require.NoError(t, err)
	bus := eventbus.NewInMemory(100, zerowrap.New(zerowrap.Config{Level: "fatal"}))
	require.NoError(t, bus.Subscribe(handler))
	require.NoError(t, bus.Start())

	engine := testutils.NewFakeEngine()
	config := sandbox.DefaultConfig()
	svc := sandbox.NewService(engine, nil, nil, bus, config)

	buildDir := filepath.Join(dir, "ctx")
	testutils.WriteFile(t, buildDir, "Dockerfile", "FROM docker:dind\n")
	spec := &domain.ServiceSpec{
		Project:       "sandbox",
		Name:          "sandbox-1",
		ContainerName: "sandbox-1",
		Build:         &domain.BuildSpec{Context: buildDir, Dockerfile: "Dockerfile", Tag: "sandbox-1:latest"},
		Privileged:    true,
		Mounts: []domain.Mount{
			{Type: domain.MountTypeBind, Source: "/var/run/docker.sock", Target: "/var/run/docker.sock"},
		},
		Restart: domain.RestartUnlessStopped,
	}

	ctx := testutils.TestContext(t)
	handle, err := svc.Reconcile(ctx, spec)
	require.NoError(t, err)
	require.NoError(t, svc.Remove(ctx, spec, domain.RemoveOptions{}))

	require.NoError(t, bus.Stop())
	require.NoError(t, handler.Close())

	records := readAuditRecords(t, auditFile)
	byEvent := make(map[string]audit.Record, len(records))
	for _, r := range records {
		byEvent[r.Event] = r
	}

	privileged, ok := byEvent[string(domain.EventPrivilegedGranted)]
	require.True(t, ok, "privileged grant must be audited")
	assert.Equal(t, "sandbox-1", privileged.Sandbox)
	assert.Equal(t, handle.ContainerID, privileged.ContainerID)
	assert.Equal(t, "privileged mode", privileged.Detail)

	socket, ok := byEvent[string(domain.EventEngineSocketBound)]
	require.True(t, ok, "engine socket mount must be audited")
	assert.Equal(t, "sandbox-1", socket.Sandbox)
	assert.Contains(t, socket.Detail, "/var/run/docker.sock")

	removed, ok := byEvent[string(domain.EventSandboxRemoved)]
	require.True(t, ok, "removal must be audited")
	assert.Equal(t, "sandbox-1", removed.Sandbox)
	assert.Equal(t, handle.ContainerID, removed.ContainerID)
}

func TestAuditTrail_RecordsFailurePhase(t *testing.T) {
	auditFile := filepath.Join(t.TempDir(), "audit.log")

	handler, err := audit.NewHandler(audit.Config{Path: auditFile})
	require.NoError(t, err)
	bus := eventbus.NewInMemory(100, zerowrap.New(zerowrap.Config{Level: "fatal"}))
	require.NoError(t, bus.Subscribe(handler))
	require.NoError(t, bus.Start())

	svc := sandbox.NewService(testutils.NewFakeEngine(), nil, nil, bus, sandbox.DefaultConfig())
	_, err = svc.Reconcile(testutils.TestContext(t), &domain.ServiceSpec{
		Project:       "sandbox",
		Name:          "sandbox-1",
		ContainerName: "sandbox-1",
		Build:         &domain.BuildSpec{Context: filepath.Join(t.TempDir(), "missing"), Tag: "sandbox-1:latest"},
	})
	require.Error(t, err)

	require.NoError(t, bus.Stop())
	require.NoError(t, handler.Close())

	records := readAuditRecords(t, auditFile)
	require.Len(t, records, 1)
	assert.Equal(t, string(domain.EventSandboxFailed), records[0].Event)
	assert.Equal(t, "sandbox-1", records[0].Sandbox)
	assert.Equal(t, string(domain.PhaseValidate), records[0].Phase)
	assert.NotEmpty(t, records[0].Error)
}
