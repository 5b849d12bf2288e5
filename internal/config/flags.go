package config

import (
	"flag"
	"os"

	"github.com/famgate/famgate/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   SQLite DSN for local persistence
//	-g int      maximum minutes a single grant may award
//	-b int      accepted voice-code clock skew in 15-minute buckets
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-g", "-b"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "SQLite DSN for local persistence")
	fs.IntVar(&cfg.MaxGrantMinutes, "g", cfg.MaxGrantMinutes, "maximum minutes a single grant may award")
	fs.IntVar(&cfg.BucketTolerance, "b", cfg.BucketTolerance, "accepted clock skew in 15-minute buckets")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
