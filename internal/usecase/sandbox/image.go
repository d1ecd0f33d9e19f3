package sandbox

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/bnema/zerowrap"

	"github.com/bnema/sandboxer/internal/domain"
)

// resolveImage builds or locates the sandbox image and returns its ID.
func (s *Service) resolveImage(ctx context.Context, spec *domain.ServiceSpec) (string, error) {
	imageCtx, cancel := context.WithTimeout(ctx, s.config.BuildTimeout)
	defer cancel()

	if spec.Build != nil {
		return s.buildImage(imageCtx, spec)
	}
	return s.ensureImage(imageCtx, spec.Image)
}

func (s *Service) buildImage(ctx context.Context, spec *domain.ServiceSpec) (string, error) {
	log := zerowrap.FromCtx(ctx)
	b := spec.Build

	req := domain.BuildRequest{
		Context:    b.Context,
		Dockerfile: b.Dockerfile,
		Tag:        b.Tag,
		Args:       maps.Clone(b.Args),
		Labels: map[string]string{
			domain.LabelManaged: "true",
			domain.LabelProject: spec.Project,
			domain.LabelService: spec.Name,
		},
	}

	log.Info().Str("context", b.Context).Str("tag", b.Tag).Msg("building sandbox image")
	imageID, err := s.engine.BuildImage(ctx, req, s.config.BuildOutput)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("build %s: %w", b.Tag, ctx.Err())
		}
		return "", fmt.Errorf("build %s: %w", b.Tag, err)
	}

	log.Info().Str("tag", b.Tag).Str("image_id", imageID).Msg("sandbox image built")
	s.publish(ctx, domain.EventImageBuilt, domain.ResourceEventPayload{
		Sandbox: spec.ContainerName,
		Name:    b.Tag,
	})
	return imageID, nil
}

// ensureImage makes imageRef available locally according to the pull policy.
func (s *Service) ensureImage(ctx context.Context, imageRef string) (string, error) {
	log := zerowrap.FromCtx(ctx)

	if s.config.PullPolicy == PullAlways {
		if err := s.pullImage(ctx, imageRef); err != nil {
			return "", err
		}
	}

	imageID, err := s.engine.ImageID(ctx, imageRef)
	if err == nil {
		return imageID, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("inspect image %s: %w", imageRef, err)
	}

	if s.config.PullPolicy != PullMissing {
		return "", fmt.Errorf("%w: image %s is not available locally and pull policy is %s",
			domain.ErrDependencyUnavailable, imageRef, s.config.PullPolicy)
	}

	log.Info().Str("image", imageRef).Msg("image not found locally, pulling")
	if err := s.pullImage(ctx, imageRef); err != nil {
		return "", err
	}
	imageID, err = s.engine.ImageID(ctx, imageRef)
	if err != nil {
		return "", fmt.Errorf("inspect image %s after pull: %w", imageRef, err)
	}
	return imageID, nil
}

func (s *Service) pullImage(ctx context.Context, imageRef string) error {
	if err := s.engine.PullImage(ctx, imageRef); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("pull %s: %w", imageRef, ctx.Err())
		}
		return fmt.Errorf("pull %s: %w", imageRef, err)
	}
	log := zerowrap.FromCtx(ctx)
	log.Info().Str("image", imageRef).Msg("image pulled")
	return nil
}
