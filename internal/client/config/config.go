package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default endpoints of the hosted service. Profile-level overrides win.
const (
	DefaultAdminEndpoint = "https://admin.cloud.materialize.com"
	DefaultCloudEndpoint = "https://api.cloud.materialize.com"
)

// Config holds runtime settings for the mzexplorer CLI.
//
// Fields:
//   - AdminEndpoint / CloudEndpoint: identity and region-directory services.
//   - ProfilesPath: location of the profiles file.
//   - HistoryPath: location of the local query-history database.
//   - ConnectTimeout: SQL connection timeout.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	AdminEndpoint  string
	CloudEndpoint  string
	ProfilesPath   string
	HistoryPath    string
	ConnectTimeout time.Duration
	LogLevel       string
}

// LoadDefaults populates c with sensible defaults. Files are placed under
// the user config directory when available, the working directory otherwise.
func (c *Config) LoadDefaults() {
	c.AdminEndpoint = DefaultAdminEndpoint
	c.CloudEndpoint = DefaultCloudEndpoint
	c.ProfilesPath = defaultPath("profiles.json")
	c.HistoryPath = defaultPath("history.db")
	c.ConnectTimeout = 30 * time.Second
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present), environment, and command-line flags. Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}

func defaultPath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return name
	}
	return filepath.Join(dir, "mzexplorer", name)
}
