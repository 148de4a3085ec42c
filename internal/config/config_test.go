package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://geo.api.gouv.fr", cfg.Geo.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Geo.Timeout())
	assert.Equal(t, "https://data.geopf.fr/wfs/ows", cfg.WFS.BaseURL)
	assert.Equal(t, 10000, cfg.WFS.MaxFeatures)
	assert.Equal(t, "api", cfg.Sirene.Strategy)
	assert.Equal(t, 25, cfg.Sirene.PageSize)
	assert.Equal(t, 150*time.Millisecond, cfg.Sirene.PageDelay())
	assert.Equal(t, 10000, cfg.Sirene.HardCap)
	assert.Equal(t, "geojson", cfg.Output.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FONDPLAN_SIRENE_STRATEGY", "bulk")
	t.Setenv("FONDPLAN_WFS_MAX_FEATURES", "500")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "bulk", cfg.Sirene.Strategy)
	assert.Equal(t, 500, cfg.WFS.MaxFeatures)
}

func TestInitLoggerBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "chatty", Format: "console"})
	require.Error(t, err)
}
