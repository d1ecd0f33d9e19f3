package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_StableAcrossMapOrder(t *testing.T) {
	a := validSpec()
	a.Environment = map[string]string{"A": "1", "B": "2", "C": "3"}
	b := validSpec()
	b.Environment = map[string]string{"C": "3", "A": "1", "B": "2"}

	assert.Equal(t, Fingerprint(a, "sha256:1"), Fingerprint(b, "sha256:1"))
}

func TestFingerprint_ChangesWithReplaceRelevantFields(t *testing.T) {
	base := Fingerprint(validSpec(), "sha256:1")

	tests := []struct {
		name   string
		mutate func(s *ServiceSpec)
	}{
		{"environment", func(s *ServiceSpec) { s.Environment["NEW"] = "1" }},
		{"privileged", func(s *ServiceSpec) { s.Privileged = false }},
		{"ports", func(s *ServiceSpec) { s.Ports[0].HostPort = 2376 }},
		{"restart", func(s *ServiceSpec) { s.Restart = RestartAlways }},
		{"networks", func(s *ServiceSpec) { s.Networks = []string{"net-b"} }},
		{"mount read-only", func(s *ServiceSpec) { s.Mounts[0].ReadOnly = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(spec)
			assert.NotEqual(t, base, Fingerprint(spec, "sha256:1"))
		})
	}

	assert.NotEqual(t, base, Fingerprint(validSpec(), "sha256:2"), "image content change must alter the fingerprint")
}

func TestFingerprint_NilAndEmptyMapsEqual(t *testing.T) {
	a := validSpec()
	a.Environment = nil
	b := validSpec()
	b.Environment = map[string]string{}

	assert.Equal(t, Fingerprint(a, ""), Fingerprint(b, ""))
}

func TestObserve(t *testing.T) {
	managed := &Container{ID: "c1", Labels: map[string]string{LabelManaged: "true", LabelSpecHash: "h1"}}
	foreign := &Container{ID: "c2", Labels: map[string]string{"com.example": "x"}}

	tests := []struct {
		name        string
		existing    *Container
		fingerprint string
		expected    ObservedState
	}{
		{"nothing there", nil, "h1", StateNotFound},
		{"same hash", managed, "h1", StateMatchesSpec},
		{"other hash", managed, "h2", StateDiffersFromSpec},
		{"empty desired hash never matches", managed, "", StateDiffersFromSpec},
		{"unmanaged container", foreign, "h1", StateForeign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := Observe(tt.existing, tt.fingerprint)
			assert.Equal(t, tt.expected, obs.State)
			assert.Equal(t, tt.existing, obs.Container)
		})
	}
}

func TestReconcileError_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("port is already allocated")
	err := NewReconcileError("sandbox-1", PhaseStart, ErrStart, errors.Join(ErrResourceConflict, cause))

	assert.ErrorIs(t, err, ErrResourceConflict)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrStart)
	assert.Equal(t, PhaseStart, err.Phase)
	assert.Contains(t, err.Error(), "sandbox sandbox-1: start")
	assert.False(t, err.Retryable())
}

func TestReconcileError_KeepsInnerReconcileError(t *testing.T) {
	inner := &ReconcileError{Sandbox: "s", Phase: PhaseImage, Kind: ErrBuild}

	err := NewReconcileError("s", PhaseCreate, ErrStart, inner)

	assert.Same(t, inner, err)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&ReconcileError{Kind: ErrTimeout}))
	assert.True(t, IsRetryable(&ReconcileError{Kind: ErrDependencyUnavailable}))
	assert.False(t, IsRetryable(&ReconcileError{Kind: ErrSpecValidation}))
	assert.False(t, IsRetryable(&ReconcileError{Kind: ErrCanceled}))
	assert.False(t, IsRetryable(errors.New("plain")))
}
