package docker

import (
	"context"
	"fmt"

	"github.com/bnema/zerowrap"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/samber/lo"

	"github.com/bnema/sandboxer/internal/domain"
)

// InspectVolume returns a named volume.
func (r *Runtime) InspectVolume(ctx context.Context, name string) (*domain.VolumeInfo, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "InspectVolume",
		"volume":              name,
	})
	log := zerowrap.FromCtx(ctx)

	v, err := r.client.VolumeInspect(ctx, name)
	if err != nil {
		log.Debug().Err(err).Msg("failed to inspect volume")
		return nil, fmt.Errorf("inspect volume %s: %w", name, classify(err, domain.ErrVolumeNotFound))
	}

	return &domain.VolumeInfo{
		Name:       v.Name,
		Driver:     v.Driver,
		Mountpoint: v.Mountpoint,
		Labels:     v.Labels,
	}, nil
}

// CreateVolume creates a named volume.
func (r *Runtime) CreateVolume(ctx context.Context, name, driver string, labels map[string]string) (*domain.VolumeInfo, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "CreateVolume",
		"volume":              name,
	})
	log := zerowrap.FromCtx(ctx)

	v, err := r.client.VolumeCreate(ctx, volume.CreateOptions{
		Name:   name,
		Driver: driver,
		Labels: labels,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to create volume")
		return nil, fmt.Errorf("create volume %s: %w", name, classify(err, domain.ErrVolumeNotFound))
	}

	log.Info().Str("driver", v.Driver).Msg("volume created")
	return &domain.VolumeInfo{
		Name:       v.Name,
		Driver:     v.Driver,
		Mountpoint: v.Mountpoint,
		Labels:     v.Labels,
	}, nil
}

// RemoveVolume removes a named volume.
func (r *Runtime) RemoveVolume(ctx context.Context, name string) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "RemoveVolume",
		"volume":              name,
	})
	log := zerowrap.FromCtx(ctx)

	if err := r.client.VolumeRemove(ctx, name, false); err != nil {
		log.Debug().Err(err).Msg("failed to remove volume")
		return fmt.Errorf("remove volume %s: %w", name, classify(err, domain.ErrVolumeNotFound))
	}

	log.Info().Msg("volume removed")
	return nil
}

// InspectNetwork returns a network by exact name.
func (r *Runtime) InspectNetwork(ctx context.Context, name string) (*domain.NetworkInfo, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "InspectNetwork",
		"network":             name,
	})
	log := zerowrap.FromCtx(ctx)

	n, err := r.client.NetworkInspect(ctx, name, network.InspectOptions{})
	if err != nil {
		log.Debug().Err(err).Msg("failed to inspect network")
		return nil, fmt.Errorf("inspect network %s: %w", name, classify(err, domain.ErrNetworkNotFound))
	}
	// The engine also resolves ID prefixes; only an exact name counts.
	if n.Name != name {
		return nil, fmt.Errorf("inspect network %s: %w", name, domain.ErrNetworkNotFound)
	}

	return &domain.NetworkInfo{
		ID:         n.ID,
		Name:       n.Name,
		Driver:     n.Driver,
		Containers: lo.Keys(n.Containers),
		Labels:     n.Labels,
	}, nil
}

// CreateNetwork creates a network.
func (r *Runtime) CreateNetwork(ctx context.Context, name, driver string, labels map[string]string) (*domain.NetworkInfo, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "CreateNetwork",
		"network":             name,
	})
	log := zerowrap.FromCtx(ctx)

	resp, err := r.client.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: driver,
		Labels: labels,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to create network")
		return nil, fmt.Errorf("create network %s: %w", name, classify(err, domain.ErrNetworkNotFound))
	}
	if resp.Warning != "" {
		log.Warn().Str("warning", resp.Warning).Msg("engine warning on network create")
	}

	log.Info().Str("driver", driver).Msg("network created")
	return &domain.NetworkInfo{
		ID:     resp.ID,
		Name:   name,
		Driver: driver,
		Labels: labels,
	}, nil
}

// RemoveNetwork removes a network.
func (r *Runtime) RemoveNetwork(ctx context.Context, name string) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "RemoveNetwork",
		"network":             name,
	})
	log := zerowrap.FromCtx(ctx)

	if err := r.client.NetworkRemove(ctx, name); err != nil {
		log.Debug().Err(err).Msg("failed to remove network")
		return fmt.Errorf("remove network %s: %w", name, classify(err, domain.ErrNetworkNotFound))
	}

	log.Info().Msg("network removed")
	return nil
}
