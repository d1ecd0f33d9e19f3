package docker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/client"

	"github.com/bnema/sandboxer/internal/domain"
)

// portInUseMessages are the engine messages reported when a host port
// binding cannot be made at start time.
var portInUseMessages = []string{
	"port is already allocated",
	"address already in use",
}

// classify maps an engine error onto the domain error kinds. notFound is the
// domain error returned when the object does not exist.
func classify(err, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case cerrdefs.IsNotFound(err):
		return fmt.Errorf("%w: %w", notFound, err)
	case isPortInUse(err):
		return fmt.Errorf("%w: %w", domain.ErrResourceConflict, err)
	case cerrdefs.IsConflict(err), cerrdefs.IsAlreadyExists(err):
		return fmt.Errorf("%w: %w", domain.ErrResourceConflict, err)
	case client.IsErrConnectionFailed(err), cerrdefs.IsUnavailable(err):
		return fmt.Errorf("%w: %w", domain.ErrDependencyUnavailable, err)
	}
	return err
}

func isPortInUse(err error) bool {
	msg := err.Error()
	for _, m := range portInUseMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
