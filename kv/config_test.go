package kv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_LoadConfig_MissingFileYieldsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.jsonc"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func Test_LoadConfig_ParsesCommentsAndTrailingCommas(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bitkv.jsonc")
	contents := `{
		// disable the eager compaction pass for inspection tooling
		"compact_on_open": false,
	}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.CompactOnOpen)
}

func Test_LoadConfig_RejectsMalformedJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bitkv.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{ not json `), 0o644))

	_, err := LoadConfig(path)
	require.ErrorIs(t, err, ErrInvalidInput)
}
