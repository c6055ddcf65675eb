// Package config loads runtime configuration for the mzexplorer CLI and
// owns the persisted profile store.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Environment variables, with an optional .env overlay (see parseEnv).
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-admin string     identity service endpoint
//	-cloud string     region directory endpoint
//	-profiles string  path to the profiles file
//	-t int            connect timeout (seconds)
//	-l string         log level (debug, info, warn, error)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for timeouts, so values can be either
// strings like "30s" or integer nanoseconds:
//
//	{
//	  "admin_endpoint": "https://admin.cloud.example.com",
//	  "cloud_endpoint": "https://api.cloud.example.com",
//	  "profiles_path": "/home/dev/.config/mzexplorer/profiles.json",
//	  "connect_timeout": "30s"
//	}
//
// Profiles live in a separate JSON file managed by Store: named credential
// sets plus the currently selected profile name. Runtime session overrides
// (cluster/database/schema changed during a session) are never written back
// to that file.
package config
