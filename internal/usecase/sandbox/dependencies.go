package sandbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/zerowrap"
	"github.com/samber/lo"

	"github.com/bnema/sandboxer/internal/domain"
)

const (
	defaultVolumeDriver  = "local"
	defaultNetworkDriver = "bridge"
)

// lock takes the name-scoped reconciliation lock, bounded by the lock timeout.
func (s *Service) lock(ctx context.Context, name string) (func() error, error) {
	if s.locker == nil {
		return func() error { return nil }, nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.config.LockTimeout)
	defer cancel()

	release, err := s.locker.Lock(lockCtx, name)
	if err != nil {
		return nil, err
	}
	log := zerowrap.FromCtx(ctx)
	log.Debug().Msg("sandbox lock acquired")
	return release, nil
}

// findExisting returns the container holding the sandbox name, or nil.
func (s *Service) findExisting(ctx context.Context, containerName string) (*domain.Container, error) {
	existing, err := s.engine.FindContainer(ctx, containerName)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// preflightPorts checks that every host port the spec publishes is free.
// Ports already published by the existing sandbox are skipped; they are
// released when that container is replaced and kept when it is reused.
func (s *Service) preflightPorts(ctx context.Context, spec *domain.ServiceSpec, existing *domain.Container) error {
	if s.ports == nil || !s.config.CheckPorts {
		return nil
	}

	var owned []domain.PortMapping
	if existing != nil {
		owned = existing.Ports
	}

	for _, p := range spec.Ports {
		if lo.ContainsBy(owned, func(o domain.PortMapping) bool {
			return o.HostPort == p.HostPort && o.Proto() == p.Proto()
		}) {
			continue
		}
		if err := s.ports.CheckAvailable(ctx, p); err != nil {
			return fmt.Errorf("host port %s: %w", p, err)
		}
	}
	return nil
}

// ensureDependencies makes every referenced volume and network exist before
// the container is created. Existing resources are left untouched.
func (s *Service) ensureDependencies(ctx context.Context, spec *domain.ServiceSpec) error {
	for _, name := range spec.NamedVolumes() {
		if err := s.ensureVolume(ctx, spec, spec.VolumeSpecFor(name)); err != nil {
			return err
		}
	}
	for _, name := range lo.Uniq(spec.Networks) {
		if err := s.ensureNetwork(ctx, spec, spec.NetworkSpecFor(name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ensureVolume(ctx context.Context, spec *domain.ServiceSpec, vs domain.VolumeSpec) error {
	log := zerowrap.FromCtx(ctx)
	driver := lo.CoalesceOrEmpty(vs.Driver, defaultVolumeDriver)

	info, err := s.engine.InspectVolume(ctx, vs.Name)
	switch {
	case err == nil:
		if info.Driver != "" && info.Driver != driver {
			return fmt.Errorf("%w: volume %s uses driver %s, want %s", domain.ErrResourceConflict, vs.Name, info.Driver, driver)
		}
		log.Debug().Str("volume", vs.Name).Msg("volume exists")
		return nil
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("inspect volume %s: %w", vs.Name, err)
	case vs.External:
		return fmt.Errorf("%w: external volume %s does not exist", domain.ErrDependencyUnavailable, vs.Name)
	}

	if _, err := s.engine.CreateVolume(ctx, vs.Name, driver, domain.ResourceLabels(spec)); err != nil {
		return fmt.Errorf("create volume %s: %w", vs.Name, err)
	}
	log.Info().Str("volume", vs.Name).Str("driver", driver).Msg("volume created")
	s.publish(ctx, domain.EventVolumeCreated, domain.ResourceEventPayload{
		Sandbox: spec.ContainerName,
		Name:    vs.Name,
		Driver:  driver,
	})
	return nil
}

func (s *Service) ensureNetwork(ctx context.Context, spec *domain.ServiceSpec, ns domain.NetworkSpec) error {
	log := zerowrap.FromCtx(ctx)
	driver := lo.CoalesceOrEmpty(ns.Driver, defaultNetworkDriver)

	info, err := s.engine.InspectNetwork(ctx, ns.Name)
	switch {
	case err == nil:
		if info.Driver != "" && info.Driver != driver {
			return fmt.Errorf("%w: network %s uses driver %s, want %s", domain.ErrResourceConflict, ns.Name, info.Driver, driver)
		}
		log.Debug().Str("network", ns.Name).Msg("network exists")
		return nil
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("inspect network %s: %w", ns.Name, err)
	case ns.External:
		return fmt.Errorf("%w: external network %s does not exist", domain.ErrDependencyUnavailable, ns.Name)
	}

	if _, err := s.engine.CreateNetwork(ctx, ns.Name, driver, domain.ResourceLabels(spec)); err != nil {
		return fmt.Errorf("create network %s: %w", ns.Name, err)
	}
	log.Info().Str("network", ns.Name).Str("driver", driver).Msg("network created")
	s.publish(ctx, domain.EventNetworkCreated, domain.ResourceEventPayload{
		Sandbox: spec.ContainerName,
		Name:    ns.Name,
		Driver:  driver,
	})
	return nil
}
