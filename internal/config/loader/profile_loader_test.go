package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProfiles = `
profiles:
  Golden-Cross:
    strategy: ma_cross
    interval: 1d
    default: true
    params:
      fast_period: 5
      slow_period: 20
  dip-buyer:
    strategy: mean_reversion
    params:
      window: 20
`

func writeProfiles(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRegistry(t *testing.T) {
	reg, err := LoadRegistry(writeProfiles(t, sampleProfiles))
	require.NoError(t, err)
	defer reg.Close()

	assert.Equal(t, []string{"dip-buyer", "golden-cross"}, reg.Names())

	t.Run("名称大小写归一", func(t *testing.T) {
		p, ok := reg.Lookup("Golden-Cross")
		require.True(t, ok)
		assert.Equal(t, "ma_cross", p.Strategy)
		assert.Equal(t, 5, p.Params["fast_period"])
		assert.Equal(t, "1d", p.Interval)
	})

	t.Run("空名取默认 profile", func(t *testing.T) {
		p, ok := reg.Lookup("")
		require.True(t, ok)
		assert.Equal(t, "golden-cross", p.Name)
	})

	t.Run("未知名 miss", func(t *testing.T) {
		_, ok := reg.Lookup("ghost")
		assert.False(t, ok)
	})
}

func TestLoadRegistryMissingFile(t *testing.T) {
	reg, err := LoadRegistry(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	defer reg.Close()

	assert.Empty(t, reg.Names())
	_, ok := reg.Lookup("")
	assert.False(t, ok)
}

func TestLoadRegistryBadYAML(t *testing.T) {
	_, err := LoadRegistry(writeProfiles(t, "profiles: [not a map"))
	assert.Error(t, err)
}
