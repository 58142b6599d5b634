package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the base daemon configuration.
type Config struct {
	Host         string
	Port         string
	SQLiteDBPath string

	// Discovery settings
	DiscoveryMode  string // "mdns" or "ssdp"
	ScanIntervalMs int
	SSDPTimeoutMs  int

	// Export endpoint for local-file playback. Empty ExportHost disables it.
	ExportHost string
	ExportPort string

	// Cast session settings
	ConnectRetryBaseMs   int
	MaxReconnectAttempts int
	StatusPollDelayMs    int
	CastTimeoutMs        int

	// APISecret guards mutating API routes when non-empty.
	APISecret         string
	TokenExpirySec    int
	ManualDevicesPath string
}

// ManualDevice is a pre-declared device that bypasses discovery.
type ManualDevice struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	host := envString("HOST", "0.0.0.0")
	port := envString("PORT", "9012")
	sqlitePath := envString("SQLITE_DB_PATH", "./data/cast-hub.db")

	discoveryMode := strings.ToLower(envString("DISCOVERY_MODE", "mdns"))
	if discoveryMode != "mdns" && discoveryMode != "ssdp" {
		return Config{}, fmt.Errorf("DISCOVERY_MODE must be mdns or ssdp, got %q", discoveryMode)
	}

	cfg := Config{
		Host:                 host,
		Port:                 port,
		SQLiteDBPath:         sqlitePath,
		DiscoveryMode:        discoveryMode,
		ScanIntervalMs:       envInt("SCAN_INTERVAL_MS", 30000),
		SSDPTimeoutMs:        envInt("SSDP_TIMEOUT_MS", 5000),
		ExportHost:           envString("EXPORT_HOST", ""),
		ExportPort:           envString("EXPORT_PORT", port),
		ConnectRetryBaseMs:   envInt("CONNECT_RETRY_BASE_MS", 5000),
		MaxReconnectAttempts: envInt("MAX_RECONNECT_ATTEMPTS", 100),
		StatusPollDelayMs:    envInt("STATUS_POLL_DELAY_MS", 30000),
		CastTimeoutMs:        envInt("CAST_TIMEOUT_MS", 5000),
		APISecret:            envString("API_SECRET", ""),
		TokenExpirySec:       envInt("TOKEN_EXPIRY_SECONDS", 2592000),
		ManualDevicesPath:    envString("MANUAL_DEVICES_PATH", ""),
	}

	if cfg.APISecret != "" && len(strings.TrimSpace(cfg.APISecret)) < 32 {
		return Config{}, fmt.Errorf("API_SECRET must be at least 32 characters when set")
	}
	if cfg.MaxReconnectAttempts < 1 {
		return Config{}, fmt.Errorf("MAX_RECONNECT_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

// ManualDevices reads the manual device list if a path is configured.
func (c Config) ManualDevices() ([]ManualDevice, error) {
	if c.ManualDevicesPath == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(c.ManualDevicesPath)
	if err != nil {
		return nil, fmt.Errorf("read manual devices: %w", err)
	}
	var devices []ManualDevice
	if err := yaml.Unmarshal(raw, &devices); err != nil {
		return nil, fmt.Errorf("parse manual devices: %w", err)
	}
	for i, d := range devices {
		if d.Name == "" || d.Host == "" {
			return nil, fmt.Errorf("manual device %d is missing name or host", i)
		}
		if d.Port == 0 {
			devices[i].Port = 8009
		}
	}
	return devices, nil
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}
