package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config with values from the process environment. A .env
// file in the working directory is loaded first, without overriding
// variables the environment already defines.
func parseEnv(cfg *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("MZ_ADMIN_ENDPOINT"); v != "" {
		cfg.AdminEndpoint = v
	}
	if v := os.Getenv("MZ_CLOUD_ENDPOINT"); v != "" {
		cfg.CloudEndpoint = v
	}
	if v := os.Getenv("MZ_PROFILES_PATH"); v != "" {
		cfg.ProfilesPath = v
	}
	if v := os.Getenv("MZ_HISTORY_PATH"); v != "" {
		cfg.HistoryPath = v
	}
	if v := os.Getenv("MZ_CONNECT_TIMEOUT"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			cfg.ConnectTimeout = time.Duration(seconds) * time.Second
		}
	}
	if v := os.Getenv("MZ_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
