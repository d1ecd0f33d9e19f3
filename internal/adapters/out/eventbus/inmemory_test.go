package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/sandboxer/internal/domain"
	"github.com/bnema/sandboxer/internal/testutils"
)

type recordingHandler struct {
	mu     sync.Mutex
	types  map[domain.EventType]bool
	events []domain.Event
	err    error
}

func newRecordingHandler(types ...domain.EventType) *recordingHandler {
	h := &recordingHandler{types: make(map[domain.EventType]bool)}
	for _, t := range types {
		h.types[t] = true
	}
	return h
}

func (h *recordingHandler) Handle(_ context.Context, event domain.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return h.err
}

func (h *recordingHandler) CanHandle(eventType domain.EventType) bool {
	return len(h.types) == 0 || h.types[eventType]
}

func (h *recordingHandler) received() []domain.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Event(nil), h.events...)
}

func quietLogger() zerowrap.Logger {
	return zerowrap.New(zerowrap.Config{Level: "fatal"})
}

func TestInMemory_DeliversToMatchingHandlers(t *testing.T) {
	bus := NewInMemory(10, quietLogger())
	security := newRecordingHandler(domain.EventPrivilegedGranted)
	all := newRecordingHandler()
	require.NoError(t, bus.Subscribe(security))
	require.NoError(t, bus.Subscribe(all))
	require.NoError(t, bus.Start())

	require.NoError(t, bus.Publish(domain.EventPrivilegedGranted, domain.SecurityEventPayload{
		Sandbox:     "sandbox-1",
		ContainerID: "abc123",
		Detail:      "privileged mode",
	}))
	require.NoError(t, bus.Publish(domain.EventVolumeCreated, domain.ResourceEventPayload{
		Sandbox: "sandbox-1",
		Name:    "data-vol",
	}))

	testutils.AssertEventuallyTrue(t, func() bool { return len(all.received()) == 2 }, time.Second, "both events delivered")
	require.NoError(t, bus.Stop())

	got := security.received()
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventPrivilegedGranted, got[0].Type)
	assert.Equal(t, "sandbox-1", got[0].Sandbox)
	assert.Equal(t, "abc123", got[0].ContainerID)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestInMemory_PointerPayloadsAreStoredByValue(t *testing.T) {
	bus := NewInMemory(10, quietLogger())
	h := newRecordingHandler()
	require.NoError(t, bus.Subscribe(h))

	require.NoError(t, bus.Publish(domain.EventSandboxRemoved, &domain.SandboxEventPayload{
		Sandbox:     "sandbox-1",
		ContainerID: "abc123",
	}))
	require.NoError(t, bus.Publish(domain.EventEngineSocketBound, &domain.SecurityEventPayload{
		Sandbox:     "sandbox-1",
		ContainerID: "abc123",
		Detail:      "/var/run/docker.sock:/var/run/docker.sock",
	}))
	require.NoError(t, bus.Publish(domain.EventNetworkCreated, &domain.ResourceEventPayload{
		Sandbox: "sandbox-1",
		Name:    "net-a",
	}))
	require.NoError(t, bus.Start())
	require.NoError(t, bus.Stop())

	got := h.received()
	require.Len(t, got, 3)
	for _, event := range got {
		assert.Equal(t, "sandbox-1", event.Sandbox, event.Type)
	}
	assert.Equal(t, "abc123", got[0].ContainerID)
	assert.IsType(t, domain.SandboxEventPayload{}, got[0].Data)
	assert.IsType(t, domain.SecurityEventPayload{}, got[1].Data)
	assert.IsType(t, domain.ResourceEventPayload{}, got[2].Data)
}

func TestInMemory_StopDrainsBufferedEvents(t *testing.T) {
	bus := NewInMemory(10, quietLogger())
	h := newRecordingHandler()
	require.NoError(t, bus.Subscribe(h))

	// Published before the loop runs; Stop must still deliver them.
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(domain.EventSandboxReconciled, domain.SandboxEventPayload{Sandbox: "sandbox-1"}))
	}
	require.NoError(t, bus.Start())
	require.NoError(t, bus.Stop())

	assert.Len(t, h.received(), 5)
}

func TestInMemory_PublishAfterStop(t *testing.T) {
	bus := NewInMemory(1, quietLogger())
	require.NoError(t, bus.Start())
	require.NoError(t, bus.Stop())

	err := bus.Publish(domain.EventSandboxFailed, domain.SandboxEventPayload{})
	assert.Error(t, err)
	assert.NoError(t, bus.Stop())
}

func TestInMemory_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := NewInMemory(10, quietLogger())
	failing := newRecordingHandler()
	failing.err = errors.New("disk full")
	require.NoError(t, bus.Subscribe(failing))
	require.NoError(t, bus.Start())

	require.NoError(t, bus.Publish(domain.EventSandboxRemoved, domain.SandboxEventPayload{Sandbox: "a"}))
	require.NoError(t, bus.Publish(domain.EventSandboxRemoved, domain.SandboxEventPayload{Sandbox: "b"}))
	require.NoError(t, bus.Stop())

	assert.Len(t, failing.received(), 2)
}

func TestInMemory_Unsubscribe(t *testing.T) {
	bus := NewInMemory(10, quietLogger())
	h := newRecordingHandler()
	require.NoError(t, bus.Subscribe(h))
	require.NoError(t, bus.Unsubscribe(h))
	assert.Error(t, bus.Unsubscribe(h))

	require.NoError(t, bus.Start())
	require.NoError(t, bus.Publish(domain.EventSandboxReconciled, domain.SandboxEventPayload{}))
	require.NoError(t, bus.Stop())

	assert.Empty(t, h.received())
}

func TestInMemory_StartTwice(t *testing.T) {
	bus := NewInMemory(0, quietLogger())
	require.NoError(t, bus.Start())
	assert.Error(t, bus.Start())
	require.NoError(t, bus.Stop())
}
