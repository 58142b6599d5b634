package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0", cfg.Host)
	require.Equal(t, "9012", cfg.Port)
	require.Equal(t, "mdns", cfg.DiscoveryMode)
	require.Equal(t, 30000, cfg.ScanIntervalMs)
	require.Equal(t, 5000, cfg.ConnectRetryBaseMs)
	require.Equal(t, 100, cfg.MaxReconnectAttempts)
	require.Equal(t, cfg.Port, cfg.ExportPort)
	require.Empty(t, cfg.ExportHost)
}

func TestLoadRejectsUnknownDiscoveryMode(t *testing.T) {
	t.Setenv("DISCOVERY_MODE", "carrier-pigeon")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsShortAPISecret(t *testing.T) {
	t.Setenv("API_SECRET", "too-short")
	_, err := Load()
	require.Error(t, err)
}

func TestManualDevices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	payload := "- name: Living Room\n  host: 10.0.0.5\n  port: 8009\n- name: Kitchen\n  host: 10.0.0.6\n"
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	t.Setenv("MANUAL_DEVICES_PATH", path)
	cfg, err := Load()
	require.NoError(t, err)

	devices, err := cfg.ManualDevices()
	require.NoError(t, err)
	require.Len(t, devices, 2)
	require.Equal(t, "Living Room", devices[0].Name)
	require.Equal(t, 8009, devices[0].Port)
	// Missing port falls back to the cast default.
	require.Equal(t, 8009, devices[1].Port)
}

func TestManualDevicesMissingName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- host: 10.0.0.5\n"), 0o644))

	cfg := Config{ManualDevicesPath: path}
	_, err := cfg.ManualDevices()
	require.Error(t, err)
}
