package app

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/bnema/sandboxer/internal/domain"
)

// minEngineVersion is the oldest engine release whose API covers every call
// the Docker adapter makes.
const minEngineVersion = ">= 20.10.0-0"

// CheckEngineVersion reports whether version satisfies minEngineVersion.
func CheckEngineVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("unrecognized engine version %q: %w", version, err)
	}

	constraint, err := semver.NewConstraint(minEngineVersion)
	if err != nil {
		return err
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%w: engine %s is older than required %s", domain.ErrDependencyUnavailable, version, minEngineVersion)
	}
	return nil
}
