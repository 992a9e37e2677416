package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/penwyp/go-fade-canvas/internal/core/canvas"
	"github.com/penwyp/go-fade-canvas/internal/core/lifespan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidateFillsDefaults(t *testing.T) {
	cfg := Config{DataDir: "/tmp/canvas"}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, 64, cfg.Height)
	assert.Equal(t, "diff_color_refresh", cfg.RepaintPolicy)
	assert.Equal(t, 60*time.Second, cfg.FadeTick)
	assert.Equal(t, 30*time.Second, cfg.BurstWindow)
	assert.Equal(t, 200, cfg.BurstThreshold)
	assert.Equal(t, 60*time.Second, cfg.AutosnapIdleAfter)
	assert.Equal(t, "auto-burst", cfg.AutosnapLabel)
	assert.Equal(t, 2000, cfg.EventLogCapacity)
	assert.Equal(t, lifespan.DefaultParams(), cfg.Lifespan)
	assert.Equal(t, filepath.Join("/tmp/canvas", "babyState.json"), cfg.CompanionFile)
	assert.Equal(t, filepath.Join("/tmp/canvas", "grid"), cfg.GridDir())
	assert.Equal(t, filepath.Join("/tmp/canvas", "snapshots"), cfg.SnapshotDir())
	assert.Equal(t, filepath.Join("/tmp/canvas", "gallery.db"), cfg.GalleryPath())
}

func TestConfigValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "unknown policy", mutate: func(c *Config) { c.RepaintPolicy = "sometimes" }},
		{name: "negative width", mutate: func(c *Config) { c.Width = -1 }},
		{name: "huge grid", mutate: func(c *Config) { c.Height = 10000 }},
		{name: "negative tick", mutate: func(c *Config) { c.FadeTick = -time.Second }},
		{name: "bad probabilities", mutate: func(c *Config) { c.Lifespan.PLong = 0.9 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfigStoreOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RepaintPolicy = "never"
	cfg.RefreshOnRepaint = false
	require.NoError(t, cfg.Validate())
	assert.Equal(t, canvas.Options{Policy: canvas.RepaintNever}, cfg.StoreOptions())

	assert.Equal(t, canvas.DefaultOptions(), func() canvas.Options {
		c := DefaultConfig()
		require.NoError(t, c.Validate())
		return c.StoreOptions()
	}())
}

func TestConfigApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvDataDir:          "/srv/canvas",
		EnvRepaintPolicy:    "always",
		EnvRefreshOnRepaint: "false",
		EnvFadeTick:         "15s",
		EnvBurstThreshold:   "50",
		EnvPShort:           "0.5",
		EnvPMedium:          "0.4",
		EnvPLong:            "0.1",
		EnvJitter:           "0",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	require.NoError(t, cfg.applyEnv(lookup))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/srv/canvas", cfg.DataDir)
	assert.Equal(t, "always", cfg.RepaintPolicy)
	assert.False(t, cfg.RefreshOnRepaint)
	assert.Equal(t, 15*time.Second, cfg.FadeTick)
	assert.Equal(t, 50, cfg.BurstThreshold)
	assert.Equal(t, 0.5, cfg.Lifespan.PShort)
	assert.Zero(t, cfg.Lifespan.Jitter)

	env[EnvFadeTick] = "soon"
	cfg = DefaultConfig()
	err := cfg.applyEnv(lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvFadeTick)
}
