package domain

import "time"

// EventType defines the type of event that occurred.
type EventType string

const (
	EventSandboxReconciled EventType = "sandbox.reconciled"
	EventSandboxReplaced   EventType = "sandbox.replaced"
	EventSandboxRemoved    EventType = "sandbox.removed"
	EventSandboxFailed     EventType = "sandbox.failed"
	EventVolumeCreated     EventType = "volume.created"
	EventNetworkCreated    EventType = "network.created"
	EventImageBuilt        EventType = "image.built"

	// Security-sensitive side effects, recorded by the audit handler.
	EventPrivilegedGranted EventType = "security.privileged"
	EventEngineSocketBound EventType = "security.engine_socket"
)

// Event represents a domain event that occurred in the system.
type Event struct {
	ID          string
	Type        EventType
	Timestamp   time.Time
	Sandbox     string
	ContainerID string
	Data        any
}

// SandboxEventPayload contains data for sandbox lifecycle events.
type SandboxEventPayload struct {
	Sandbox     string
	ContainerID string
	Image       string
	Action      SandboxAction
	Phase       Phase
	Error       string
}

// ResourceEventPayload contains data for volume and network events.
type ResourceEventPayload struct {
	Sandbox string
	Name    string
	Driver  string
}

// SecurityEventPayload records a security-sensitive grant.
type SecurityEventPayload struct {
	Sandbox     string
	ContainerID string
	Detail      string
}
