package config

import (
	"flag"
	"os"
	"strings"

	"github.com/castmir/vaultmesh/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-t string   comma-separated tracker websocket URLs
//	-d string   path to the local vault database
//	-b string   cloud backend, "drive" or "s3"
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-t", "-d", "-b"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	trackers := fs.String("t", strings.Join(cfg.TrackerURLs, ","), "comma-separated tracker URLs")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path to the local vault database")
	fs.StringVar(&cfg.CloudBackend, "b", cfg.CloudBackend, "cloud backend (drive|s3)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if *trackers != "" {
		cfg.TrackerURLs = strings.Split(*trackers, ",")
	}
}
