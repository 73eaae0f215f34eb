package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/feedsieve/internal/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, types.Blur, cfg.DisplayMode)
	assert.Equal(t, 0.3, cfg.Observer.Threshold)
	assert.Equal(t, 100.0, cfg.Observer.RootMargin)
	assert.Equal(t, 10.0, cfg.Thread.MaxWidth)
	assert.NotEmpty(t, cfg.Criteria.Filter)
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
display_mode = "hide"

[analysis]
provider = "remote"
workers = 2

[thread]
top_tolerance = 30
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, types.Hide, cfg.DisplayMode)
	assert.Equal(t, ProviderRemote, cfg.Analysis.Provider)
	assert.Equal(t, 2, cfg.Analysis.Workers)
	assert.Equal(t, 30.0, cfg.Thread.TopTolerance)
	// untouched keys keep their defaults
	assert.Equal(t, 15.0, cfg.Thread.BottomTolerance)
	assert.Equal(t, 256, cfg.Analysis.QueueSize)
}

func TestLoadFileRejectsBadValues(t *testing.T) {
	for name, body := range map[string]string{
		"mode":      `display_mode = "fade"`,
		"provider":  "[analysis]\nprovider = \"gpt\"",
		"cache":     "[cache]\nbackend = \"memcached\"",
		"threshold": "[observer]\nthreshold = 1.5",
		"syntax":    `enabled = `,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "[analysis]\napi_key = \"from-file\"\n")

	t.Setenv("GROQ_API_KEY", "groq-key")
	t.Setenv("FEEDSIEVE_API_KEY", "")
	t.Setenv("FEEDSIEVE_WORKERS", "7")
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "groq-key", cfg.Analysis.APIKey)
	assert.Equal(t, 7, cfg.Analysis.Workers)

	t.Setenv("FEEDSIEVE_API_KEY", "explicit")
	cfg, err = LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "explicit", cfg.Analysis.APIKey)
}

func TestDotEnvDoesNotClobber(t *testing.T) {
	env := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(env, []byte("FEEDSIEVE_REMOTE_URL=http://dotenv\nFEEDSIEVE_CACHE=none\n"), 0600))

	t.Setenv("FEEDSIEVE_REMOTE_URL", "http://shell")
	t.Setenv("FEEDSIEVE_CACHE", "")
	require.NoError(t, os.Unsetenv("FEEDSIEVE_CACHE"))
	LoadDotEnv(env)

	assert.Equal(t, "http://shell", os.Getenv("FEEDSIEVE_REMOTE_URL"))
	assert.Equal(t, "none", os.Getenv("FEEDSIEVE_CACHE"))
}

func TestSaveFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.DisplayMode = types.Hide
	cfg.Criteria.Filter = "- crypto shilling"
	require.NoError(t, cfg.SaveFile(path))

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, types.Hide, got.DisplayMode)
	assert.Equal(t, "- crypto shilling", got.Criteria.Filter)
}

func TestSettingsSnapshot(t *testing.T) {
	cfg := Default()
	cfg.Criteria = CriteriaConfig{Filter: "- only this"}
	s := NewSettings(cfg)

	assert.True(t, s.Enabled())
	assert.Equal(t, "- only this", s.Criteria().Filter)
	assert.Equal(t, DefaultCriteria().Allow, s.Criteria().Allow)

	assert.True(t, s.SetEnabled(false))
	assert.False(t, s.SetEnabled(false))

	// mutating the source config does not leak into the snapshot
	cfg.DisplayMode = types.Hide
	assert.Equal(t, types.Blur, s.DisplayMode())
	s.Replace(cfg)
	assert.Equal(t, types.Hide, s.DisplayMode())
	assert.True(t, s.Enabled())
}

func TestSettingsConcurrentAccess(t *testing.T) {
	s := NewSettings(Default())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if i%2 == 0 {
					s.SetEnabled(j%2 == 0)
				} else {
					_ = s.Enabled()
					_ = s.DisplayMode()
				}
			}
		}(i)
	}
	wg.Wait()
}
