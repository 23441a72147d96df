package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/termvisor/internal/infrastructure/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "termvisor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"9100\"\n")

	tests := []struct {
		name     string
		flags    flags
		wantPort string
		wantHost string
		wantDev  bool
	}{
		{"file", flags{configPath: path}, "9100", "127.0.0.1", false},
		{"port flag wins", flags{configPath: path, port: "9200"}, "9200", "127.0.0.1", false},
		{"host and dev", flags{configPath: path, host: "0.0.0.0", dev: true}, "9100", "0.0.0.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(tt.flags)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPort, cfg.Server.Port)
			assert.Equal(t, tt.wantHost, cfg.Server.Host)
			assert.Equal(t, tt.wantDev, cfg.Logging.Development)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(flags{configPath: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestConfigCommand(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"9100\"\n")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "--config", path, "--port", "9300"})
	require.NoError(t, cmd.Execute())

	var got config.Config
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "9300", got.Server.Port)
}
