package core_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kervik/signoff/core"
)

func TestLoadSettings(t *testing.T) {

	var path = filepath.Join(t.TempDir(), "signoff.ini")
	require.NoError(t, os.WriteFile(path, []byte("exclude-nodes = 4, 8\n"), 0644))

	settings, err := core.LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 8}, settings.ExcludeNodes)
	assert.Equal(t, map[int]bool{4: true, 8: true}, settings.ExcludedNodeSet())
}

func TestLoadSettingsMissingFile(t *testing.T) {
	settings, err := core.LoadSettings(filepath.Join(t.TempDir(), "does-not-exist.ini"))
	require.NoError(t, err)
	assert.Empty(t, settings.ExcludeNodes)
	assert.Empty(t, settings.ExcludedNodeSet())
}
