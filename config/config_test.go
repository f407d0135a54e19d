package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg := LoadServerConfig("EPAPERPUB")
	assert.Equal(t, 8092, cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.Host)
}

func TestLoadServerConfigHonorsEnvOverride(t *testing.T) {
	t.Setenv("EPAPERPUB_PORT", "9100")
	cfg := LoadServerConfig("EPAPERPUB")
	assert.Equal(t, 9100, cfg.Port)
}

func TestLoadRelayConfigDefaults(t *testing.T) {
	cfg := LoadRelayConfig("EPAPERPUB_RELAY")
	assert.Empty(t, cfg.URLs, "no URLs by default: the per-kind default relay sets apply")
	assert.Equal(t, 5*time.Second, cfg.DetailBudget)
	assert.Equal(t, 2*time.Second, cfg.ProfileBudget)
	assert.Equal(t, 100, cfg.ListLimit)
}

func TestLoadRelayConfigHonorsCommaSeparatedOverride(t *testing.T) {
	t.Setenv("EPAPERPUB_RELAY_URLS", "wss://a.example,wss://b.example")
	cfg := LoadRelayConfig("EPAPERPUB_RELAY")
	assert.Equal(t, []string{"wss://a.example", "wss://b.example"}, cfg.URLs)
}

func TestLoadRendererConfigDefaults(t *testing.T) {
	cfg := LoadRendererConfig("EPAPERPUB_RENDERER")
	assert.Equal(t, "http://localhost:8091", cfg.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
}

func TestValidatorCollectsMultipleErrors(t *testing.T) {
	v := NewValidator()
	v.RequireString("Name", "")
	v.RequirePositiveInt("Port", -1)
	assert.False(t, v.IsValid())
	assert.Len(t, v.Errors(), 2)
}

func TestConfigLoaderLoadAllFailsValidationOnBadEnvironment(t *testing.T) {
	t.Setenv("EPAPERPUBBAD_ENVIRONMENT", "garbage")
	loader := NewConfigLoader("EPAPERPUBBAD")
	_, err := loader.LoadAll()
	assert.Error(t, err, "Service.Environment must be one of the allowed values")
}

func TestConfigLoaderLoadAllSucceedsWithDefaults(t *testing.T) {
	loader := NewConfigLoader("EPAPERPUB")
	cfg, err := loader.LoadAll()
	assert.NoError(t, err)
	assert.Equal(t, "http://localhost:8091", cfg.Renderer.BaseURL)
	assert.Equal(t, "epaperpub", cfg.Service.Name)
}
