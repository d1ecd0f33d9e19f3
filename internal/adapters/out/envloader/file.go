// Package envloader implements the environment variable loader adapter.
package envloader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"

	"github.com/bnema/zerowrap"
	"github.com/joho/godotenv"

	"github.com/bnema/sandboxer/internal/domain"
)

// FileLoader implements the EnvLoader interface using dotenv files.
type FileLoader struct {
	files []string
	log   zerowrap.Logger
}

// NewFileLoader creates a loader reading files in order. Later files
// override keys from earlier ones.
func NewFileLoader(files []string, log zerowrap.Logger) *FileLoader {
	log.Debug().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "envloader").
		Strs("env_files", files).
		Msg("env loader initialized")

	return &FileLoader{
		files: files,
		log:   log,
	}
}

// LoadEnv reads every configured env file and merges the variables.
// A configured file that does not exist is a validation error.
func (l *FileLoader) LoadEnv(ctx context.Context) (map[string]string, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "envloader",
		zerowrap.FieldAction:  "LoadEnv",
	})
	log := zerowrap.FromCtx(ctx)

	env := make(map[string]string)
	for _, file := range l.files {
		vars, err := godotenv.Read(file)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: env file %s does not exist", domain.ErrSpecValidation, file)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: env file %s: %w", domain.ErrSpecValidation, file, err)
		}

		log.Debug().Str("env_file", file).Int(zerowrap.FieldCount, len(vars)).Msg("env file loaded")
		maps.Copy(env, vars)
	}

	if len(l.files) > 0 {
		log.Info().Int(zerowrap.FieldCount, len(env)).Msg("loaded environment variables")
	}
	return env, nil
}

// Merge returns base with overrides applied. Neither input is modified.
func Merge(base, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overrides))
	maps.Copy(merged, base)
	maps.Copy(merged, overrides)
	return merged
}
