package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bnema/zerowrap"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/bnema/sandboxer/internal/domain"
)

// Remove stops and removes the sandbox container. Named volumes and networks
// survive unless opts asks for them; external ones are never touched.
func (s *Service) Remove(ctx context.Context, spec *domain.ServiceSpec, opts domain.RemoveOptions) error {
	name := sandboxName(spec)
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "Remove",
		"sandbox":             name,
	})
	log := zerowrap.FromCtx(ctx)

	if spec == nil || spec.ContainerName == "" {
		return failure(name, domain.PhaseValidate, domain.ErrSpecValidation,
			&domain.ValidationError{Problems: []string{"container name is required"}})
	}

	release, err := s.lock(ctx, name)
	if err != nil {
		return failure(name, domain.PhaseLock, lockKind(err), err)
	}
	defer func() {
		if rerr := release(); rerr != nil {
			log.Warn().Err(rerr).Msg("failed to release sandbox lock")
		}
	}()

	existing, err := s.findExisting(ctx, spec.ContainerName)
	if err != nil {
		return failure(name, domain.PhaseObserve, domain.ErrDependencyUnavailable, err)
	}

	var containerID string
	switch {
	case existing == nil:
		log.Info().Msg("sandbox container not found, nothing to remove")
	case !existing.Managed():
		return failure(name, domain.PhaseObserve, domain.ErrResourceConflict,
			fmt.Errorf("container %s was not created by sandboxer, refusing to remove it", spec.ContainerName))
	default:
		containerID = existing.ID
		if err := s.removeContainer(ctx, existing.ID); err != nil {
			return failure(name, domain.PhaseRemove, domain.ErrResourceConflict, err)
		}
		log.Info().Str(zerowrap.FieldEntityID, existing.ID).Msg("sandbox container removed")
	}

	var errs error
	if opts.RemoveVolumes {
		errs = multierr.Append(errs, s.removeVolumes(ctx, spec))
	}
	if opts.RemoveNetworks {
		errs = multierr.Append(errs, s.removeNetworks(ctx, spec))
	}
	if errs != nil {
		return failure(name, domain.PhaseRemove, domain.ErrResourceConflict, errs)
	}

	s.publish(ctx, domain.EventSandboxRemoved, domain.SandboxEventPayload{
		Sandbox:     name,
		ContainerID: containerID,
		Image:       spec.ImageRef(),
	})
	return nil
}

func (s *Service) removeVolumes(ctx context.Context, spec *domain.ServiceSpec) error {
	log := zerowrap.FromCtx(ctx)
	var errs error
	for _, name := range spec.NamedVolumes() {
		if spec.VolumeSpecFor(name).External {
			continue
		}
		if err := s.engine.RemoveVolume(ctx, name); err != nil && !errors.Is(err, domain.ErrNotFound) {
			errs = multierr.Append(errs, fmt.Errorf("remove volume %s: %w", name, err))
			continue
		}
		log.Info().Str("volume", name).Msg("volume removed")
	}
	return errs
}

// removeNetworks removes the sandboxer-managed networks nothing is attached to.
func (s *Service) removeNetworks(ctx context.Context, spec *domain.ServiceSpec) error {
	log := zerowrap.FromCtx(ctx)
	var errs error
	for _, name := range lo.Uniq(spec.Networks) {
		if spec.NetworkSpecFor(name).External {
			continue
		}
		info, err := s.engine.InspectNetwork(ctx, name)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("inspect network %s: %w", name, err))
			continue
		}
		if info.Labels[domain.LabelManaged] != "true" {
			log.Debug().Str("network", name).Msg("network not managed by sandboxer, keeping it")
			continue
		}
		if len(info.Containers) > 0 {
			log.Info().Str("network", name).Int(zerowrap.FieldCount, len(info.Containers)).Msg("network still in use, keeping it")
			continue
		}
		if err := s.engine.RemoveNetwork(ctx, name); err != nil && !errors.Is(err, domain.ErrNotFound) {
			errs = multierr.Append(errs, fmt.Errorf("remove network %s: %w", name, err))
			continue
		}
		log.Info().Str("network", name).Msg("network removed")
	}
	return errs
}

// Status reports the sandbox state against spec without mutating anything.
func (s *Service) Status(ctx context.Context, spec *domain.ServiceSpec) (*domain.SandboxStatus, error) {
	name := sandboxName(spec)
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "Status",
		"sandbox":             name,
	})
	log := zerowrap.FromCtx(ctx)

	if spec == nil || spec.ContainerName == "" {
		return nil, failure(name, domain.PhaseValidate, domain.ErrSpecValidation,
			&domain.ValidationError{Problems: []string{"container name is required"}})
	}

	existing, err := s.findExisting(ctx, spec.ContainerName)
	if err != nil {
		return nil, failure(name, domain.PhaseStatus, domain.ErrDependencyUnavailable, err)
	}

	// An image that cannot be resolved leaves the fingerprint empty, which
	// never matches.
	var fingerprint string
	if imageID, err := s.engine.ImageID(ctx, spec.ImageRef()); err == nil {
		fingerprint = domain.Fingerprint(spec, imageID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		log.Warn().Err(err).Str("image", spec.ImageRef()).Msg("failed to resolve image")
	}

	obs := domain.Observe(existing, fingerprint)
	status := &domain.SandboxStatus{
		Name:        spec.ContainerName,
		State:       obs.State,
		Container:   obs.Container,
		InSync:      obs.State == domain.StateMatchesSpec && obs.Container.Running(),
		Volumes:     make(map[string]bool),
		Networks:    make(map[string]bool),
		Privileged:  spec.Privileged,
		EngineSock:  spec.MountsEngineSocket(),
		Fingerprint: fingerprint,
	}
	if obs.Container != nil && obs.Container.Managed() {
		status.Privileged = obs.Container.Labels[domain.LabelPrivileged] == "true"
		status.EngineSock = obs.Container.Labels[domain.LabelEngineSock] == "true"
	}

	for _, v := range spec.NamedVolumes() {
		_, err := s.engine.InspectVolume(ctx, v)
		status.Volumes[v] = err == nil
	}
	for _, n := range spec.Networks {
		_, err := s.engine.InspectNetwork(ctx, n)
		status.Networks[n] = err == nil
	}

	return status, nil
}

// Logs streams the sandbox container's output.
func (s *Service) Logs(ctx context.Context, spec *domain.ServiceSpec, follow bool) (io.ReadCloser, error) {
	name := sandboxName(spec)
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "Logs",
		"sandbox":             name,
	})

	if spec == nil || spec.ContainerName == "" {
		return nil, failure(name, domain.PhaseValidate, domain.ErrSpecValidation,
			&domain.ValidationError{Problems: []string{"container name is required"}})
	}

	existing, err := s.findExisting(ctx, spec.ContainerName)
	if err != nil {
		return nil, failure(name, domain.PhaseStatus, domain.ErrDependencyUnavailable, err)
	}
	if existing == nil {
		return nil, failure(name, domain.PhaseStatus, domain.ErrNotFound, domain.ErrContainerNotFound)
	}

	rc, err := s.engine.ContainerLogs(ctx, existing.ID, follow)
	if err != nil {
		return nil, failure(name, domain.PhaseStatus, domain.ErrDependencyUnavailable, err)
	}
	return rc, nil
}
