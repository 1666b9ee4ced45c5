package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	config, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "microsoft/VibeVoice-Realtime-0.5B", config.Model)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 3000, config.Server.Port)
	assert.Equal(t, "python", config.Server.Python)
	assert.Equal(t, 10*time.Second, config.Server.StopTimeout)
	assert.Equal(t, "auto", config.Device.Preference)
	assert.Empty(t, config.Device.Index)
	assert.Equal(t, "ws://localhost:3000", config.Client.URL)
	assert.Equal(t, "Carter", config.Client.Voice)
	assert.Equal(t, 1.5, config.Client.CFGScale)
	assert.Equal(t, 5, config.Client.Steps)
	assert.Equal(t, 60*time.Second, config.Client.Timeout)
	assert.Equal(t, 24000, config.Client.SampleRate)
	assert.Equal(t, "info", config.Logger.Verbosity)
	assert.Equal(t, "console", config.Logger.Format)
	assert.Empty(t, config.Metrics.PushGateway)
	assert.NoError(t, config.Validate())
}

func TestLoadConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		config, err := LoadConfig("../../fixtures/tests/config/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, config)

		assert.Equal(t, "microsoft/VibeVoice-1.5B", config.Model)
		assert.Equal(t, "127.0.0.1", config.Server.Host)
		assert.Equal(t, 3100, config.Server.Port)
		assert.Equal(t, "/opt/vibevoice/demo", config.Server.AppDir)
		assert.Equal(t, "/usr/bin/python3", config.Server.Python)
		assert.Equal(t, 5*time.Second, config.Server.StopTimeout)
		assert.Equal(t, "directml", config.Device.Preference)
		assert.Equal(t, "1", config.Device.Index)
		assert.Equal(t, "ws://127.0.0.1:3100", config.Client.URL)
		assert.Equal(t, "sp-Spk1_man", config.Client.Voice)
		assert.Equal(t, 1.3, config.Client.CFGScale)
		assert.Equal(t, 2, config.Client.Steps)
		assert.Equal(t, 30*time.Second, config.Client.Timeout)
		assert.Equal(t, "debug", config.Logger.Verbosity)
		assert.Equal(t, "json", config.Logger.Format)
		assert.Equal(t, "http://pushgateway:9091", config.Metrics.PushGateway)
	})

	t.Run("defaults fill omitted keys", func(t *testing.T) {
		config, err := LoadConfig("../../fixtures/tests/config/valid_config.yaml")
		require.NoError(t, err)

		assert.Equal(t, ".", config.Client.OutputDir)
		assert.Empty(t, config.Server.MetricsAddr)
	})

	t.Run("non-existent file", func(t *testing.T) {
		_, err := LoadConfig("non-existent-file.yaml")
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		dir, err := os.Getwd()
		require.NoError(t, err)

		configPath := filepath.Join(dir, "..", "..", "fixtures", "tests", "invalid_config", "config.yaml")
		_, err = LoadConfig(configPath)
		assert.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("VIBEVOICE_PORT", "4000")
		t.Setenv("VIBEVOICE_DEVICE", "cpu")

		config, err := Load("../../fixtures/tests/config/valid_config.yaml", "")
		require.NoError(t, err)

		assert.Equal(t, 4000, config.Server.Port)
		assert.Equal(t, "cpu", config.Device.Preference)
		// untouched keys keep the file value rather than the default
		assert.Equal(t, "microsoft/VibeVoice-1.5B", config.Model)
		assert.Equal(t, "1", config.Device.Index)
	})

	t.Run("environment over defaults", func(t *testing.T) {
		t.Setenv("VIBEVOICE_MODEL", "local/model")
		t.Setenv("DIRECTML_DEVICE", "2")

		config, err := Load("", "")
		require.NoError(t, err)

		assert.Equal(t, "local/model", config.Model)
		assert.Equal(t, "2", config.Device.Index)
		assert.Equal(t, 3000, config.Server.Port)
	})

	t.Run("dotenv file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("VIBEVOICE_VOICE=Emma\n"), 0o600))
		t.Cleanup(func() { os.Unsetenv("VIBEVOICE_VOICE") })

		config, err := Load("", path)
		require.NoError(t, err)
		assert.Equal(t, "Emma", config.Client.Voice)
	})

	t.Run("missing dotenv file is ignored", func(t *testing.T) {
		_, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
		assert.NoError(t, err)
	})

	t.Run("malformed environment value", func(t *testing.T) {
		t.Setenv("VIBEVOICE_PORT", "not-a-port")

		_, err := Load("", "")
		assert.Error(t, err)
	})

	t.Run("invalid port is rejected", func(t *testing.T) {
		t.Setenv("VIBEVOICE_PORT", "70000")

		_, err := Load("", "")
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"empty model", func(c *Config) { c.Model = "" }},
		{"empty python", func(c *Config) { c.Server.Python = "" }},
		{"zero timeout", func(c *Config) { c.Client.Timeout = 0 }},
		{"negative sample rate", func(c *Config) { c.Client.SampleRate = -1 }},
		{"zero steps", func(c *Config) { c.Client.Steps = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := Default()
			require.NoError(t, err)
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestServerEnv(t *testing.T) {
	config, err := Default()
	require.NoError(t, err)

	env := ServerEnv(config.Model, "privateuseone:1")
	assert.Equal(t, map[string]string{
		"MODEL_PATH":   "microsoft/VibeVoice-Realtime-0.5B",
		"MODEL_DEVICE": "privateuseone:1",
	}, env)
}
