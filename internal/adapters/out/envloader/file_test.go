package envloader

import (
	"path/filepath"
	"testing"

	"github.com/bnema/zerowrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/sandboxer/internal/domain"
	"github.com/bnema/sandboxer/internal/testutils"
)

func TestFileLoader_LoadEnv(t *testing.T) {
	dir := t.TempDir()
	base := testutils.WriteFile(t, dir, "base.env", `# sandbox defaults
DOCKER_TLS_CERTDIR=
DOCKER_HOST="tcp://0.0.0.0:2375"
LOG_LEVEL=info
`)
	override := testutils.WriteFile(t, dir, "local.env", "LOG_LEVEL=debug\nexport EXTRA='quoted value'\n")

	log := zerowrap.New(zerowrap.Config{Level: "fatal"})
	loader := NewFileLoader([]string{base, override}, log)

	env, err := loader.LoadEnv(testutils.TestContext(t))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"DOCKER_TLS_CERTDIR": "",
		"DOCKER_HOST":        "tcp://0.0.0.0:2375",
		"LOG_LEVEL":          "debug",
		"EXTRA":              "quoted value",
	}, env)
}

func TestFileLoader_NoFiles(t *testing.T) {
	loader := NewFileLoader(nil, zerowrap.New(zerowrap.Config{Level: "fatal"}))

	env, err := loader.LoadEnv(testutils.TestContext(t))
	require.NoError(t, err)
	assert.Empty(t, env)
}

func TestFileLoader_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")
	loader := NewFileLoader([]string{missing}, zerowrap.New(zerowrap.Config{Level: "fatal"}))

	_, err := loader.LoadEnv(testutils.TestContext(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSpecValidation)
	assert.Contains(t, err.Error(), "missing.env")
}

func TestMerge(t *testing.T) {
	base := map[string]string{"A": "1", "B": "2"}
	overrides := map[string]string{"B": "3", "C": "4"}

	merged := Merge(base, overrides)

	assert.Equal(t, map[string]string{"A": "1", "B": "3", "C": "4"}, merged)
	assert.Equal(t, "2", base["B"])
}
