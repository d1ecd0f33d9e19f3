package domain

// ObservedState is the outcome of comparing an existing container to the spec.
type ObservedState int

const (
	// StateNotFound means no container with the spec's name exists.
	StateNotFound ObservedState = iota
	// StateMatchesSpec means a managed container exists with the same fingerprint.
	StateMatchesSpec
	// StateDiffersFromSpec means a managed container exists with another fingerprint.
	StateDiffersFromSpec
	// StateForeign means the name is taken by a container sandboxer did not create.
	StateForeign
)

func (s ObservedState) String() string {
	switch s {
	case StateNotFound:
		return "not-found"
	case StateMatchesSpec:
		return "matches-spec"
	case StateDiffersFromSpec:
		return "differs-from-spec"
	case StateForeign:
		return "foreign"
	}
	return "unknown"
}

// Observation pairs the observed state with the container it was derived from.
type Observation struct {
	State     ObservedState
	Container *Container
}

// Observe classifies existing against the desired fingerprint.
// An empty fingerprint never matches, which is what status checks rely on
// when the image cannot be resolved.
func Observe(existing *Container, fingerprint string) Observation {
	switch {
	case existing == nil:
		return Observation{State: StateNotFound}
	case !existing.Managed():
		return Observation{State: StateForeign, Container: existing}
	case fingerprint != "" && existing.Labels[LabelSpecHash] == fingerprint:
		return Observation{State: StateMatchesSpec, Container: existing}
	default:
		return Observation{State: StateDiffersFromSpec, Container: existing}
	}
}
