package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/mzexplorer/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-admin string     identity service endpoint (default from Config)
//	-cloud string     region directory endpoint (default from Config)
//	-profiles string  path to the profiles file (default from Config)
//	-t int            connect timeout in seconds (default from Config)
//	-l string         log level (default from Config)
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-admin", "-cloud", "-profiles", "-t", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.AdminEndpoint, "admin", cfg.AdminEndpoint, "identity service endpoint")
	fs.StringVar(&cfg.CloudEndpoint, "cloud", cfg.CloudEndpoint, "region directory endpoint")
	fs.StringVar(&cfg.ProfilesPath, "profiles", cfg.ProfilesPath, "path to the profiles file")
	connectTimeout := fs.Int("t", int(cfg.ConnectTimeout.Seconds()), "connect timeout (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.ConnectTimeout = time.Duration(*connectTimeout) * time.Second
}
