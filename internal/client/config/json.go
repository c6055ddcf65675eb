package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/mzexplorer/internal/flagx"
	"github.com/dmitrijs2005/mzexplorer/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify timeouts either as strings like "30s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config. Zero values leave the earlier layer untouched.
type JsonConfig struct {
	AdminEndpoint  string         `json:"admin_endpoint"`
	CloudEndpoint  string         `json:"cloud_endpoint"`
	ProfilesPath   string         `json:"profiles_path"`
	HistoryPath    string         `json:"history_path"`
	ConnectTimeout timex.Duration `json:"connect_timeout"`
	LogLevel       string         `json:"log_level"`
}

// parseJson overlays Config with values loaded from a JSON file. The file
// path comes from the -c/-config flags; when absent, nothing is loaded.
// Panics on read or unmarshal errors (caller should recover if desired).
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.AdminEndpoint != "" {
		cfg.AdminEndpoint = jc.AdminEndpoint
	}
	if jc.CloudEndpoint != "" {
		cfg.CloudEndpoint = jc.CloudEndpoint
	}
	if jc.ProfilesPath != "" {
		cfg.ProfilesPath = jc.ProfilesPath
	}
	if jc.HistoryPath != "" {
		cfg.HistoryPath = jc.HistoryPath
	}
	if jc.ConnectTimeout.Duration != 0 {
		cfg.ConnectTimeout = time.Duration(jc.ConnectTimeout.Duration)
	}
	if jc.LogLevel != "" {
		cfg.LogLevel = jc.LogLevel
	}
}
