package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bnema/zerowrap"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/moby/patternmatcher/ignorefile"

	"github.com/bnema/sandboxer/internal/domain"
)

// BuildImage builds req.Context into req.Tag and returns the image ID.
// Progress is decoded from the engine's JSON stream and written to progress.
func (r *Runtime) BuildImage(ctx context.Context, req domain.BuildRequest, progress io.Writer) (string, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "BuildImage",
		"image":               req.Tag,
		zerowrap.FieldPath:    req.Context,
	})
	log := zerowrap.FromCtx(ctx)

	dockerfile, err := relativeDockerfile(req.Context, req.Dockerfile)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrBuild, err)
	}

	excludes, err := readDockerignore(req.Context)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrBuild, err)
	}
	if len(excludes) > 0 {
		// The dockerfile is always sent, whatever .dockerignore says.
		excludes = append(excludes, "!"+dockerfile)
	}

	buildCtx, err := archive.TarWithOptions(req.Context, &archive.TarOptions{ExcludePatterns: excludes})
	if err != nil {
		return "", fmt.Errorf("%w: archive build context: %w", domain.ErrBuild, err)
	}
	defer buildCtx.Close()

	buildArgs := make(map[string]*string, len(req.Args))
	for k, v := range req.Args {
		buildArgs[k] = &v
	}

	log.Info().Str("dockerfile", dockerfile).Int("excludes", len(excludes)).Msg("building image")

	resp, err := r.client.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{req.Tag},
		Dockerfile:  dockerfile,
		BuildArgs:   buildArgs,
		Labels:      req.Labels,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to start image build")
		c := classify(err, domain.ErrImageNotFound)
		if errors.Is(c, domain.ErrDependencyUnavailable) || ctx.Err() != nil {
			return "", fmt.Errorf("image build: %w", c)
		}
		return "", fmt.Errorf("%w: %w", domain.ErrBuild, c)
	}
	defer resp.Body.Close()

	if progress == nil {
		progress = io.Discard
	}

	var imageID string
	aux := func(msg jsonmessage.JSONMessage) {
		if msg.Aux == nil {
			return
		}
		var result struct {
			ID string `json:"ID"`
		}
		if err := json.Unmarshal(*msg.Aux, &result); err == nil && result.ID != "" {
			imageID = result.ID
		}
	}

	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, progress, 0, false, aux); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Warn().Err(err).Msg("image build failed")
		return "", fmt.Errorf("%w: %w", domain.ErrBuild, err)
	}

	if imageID == "" {
		if imageID, err = r.ImageID(ctx, req.Tag); err != nil {
			return "", fmt.Errorf("%w: built image not found: %w", domain.ErrBuild, err)
		}
	}

	log.Info().Str("image_id", imageID).Msg("image built")
	return imageID, nil
}

// ImageID resolves a local image reference to its ID.
func (r *Runtime) ImageID(ctx context.Context, imageRef string) (string, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "ImageID",
		"image":               imageRef,
	})
	log := zerowrap.FromCtx(ctx)

	resp, err := r.client.ImageInspect(ctx, imageRef)
	if err != nil {
		log.Debug().Err(err).Msg("failed to inspect image")
		return "", fmt.Errorf("inspect image %s: %w", imageRef, classify(err, domain.ErrImageNotFound))
	}
	return resp.ID, nil
}

// PullImage pulls an image.
func (r *Runtime) PullImage(ctx context.Context, imageRef string) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "PullImage",
		"image":               imageRef,
	})
	log := zerowrap.FromCtx(ctx)

	log.Info().Msg("pulling image")

	reader, err := r.client.ImagePull(ctx, imageRef, image.PullOptions{})
	if err != nil {
		log.Warn().Err(err).Msg("failed to pull image")
		return fmt.Errorf("pull image %s: %w", imageRef, classify(err, domain.ErrImageNotFound))
	}
	defer reader.Close()

	// The pull only completes once the stream is read to the end.
	if err := jsonmessage.DisplayJSONMessagesStream(reader, io.Discard, 0, false, nil); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("pull image %s: %w", imageRef, err)
	}

	log.Info().Msg("image pulled successfully")
	return nil
}

// relativeDockerfile returns the dockerfile path relative to the context,
// which is how the engine expects it inside the build archive.
func relativeDockerfile(contextDir, dockerfile string) (string, error) {
	if dockerfile == "" {
		return "Dockerfile", nil
	}
	if !filepath.IsAbs(dockerfile) {
		return filepath.ToSlash(filepath.Clean(dockerfile)), nil
	}

	rel, err := filepath.Rel(contextDir, dockerfile)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("dockerfile %s is outside the build context %s", dockerfile, contextDir)
	}
	return filepath.ToSlash(rel), nil
}

// readDockerignore returns the exclude patterns of the context's .dockerignore.
func readDockerignore(contextDir string) ([]string, error) {
	f, err := os.Open(filepath.Join(contextDir, ".dockerignore"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open .dockerignore: %w", err)
	}
	defer f.Close()

	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read .dockerignore: %w", err)
	}
	return patterns, nil
}
