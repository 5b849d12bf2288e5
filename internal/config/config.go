package config

import (
	"time"

	"github.com/famgate/famgate/internal/common"
)

// Config holds runtime settings for the authorization engine.
//
// Fields:
//   - DatabaseDSN: SQLite DSN for local persistence.
//   - MaxGrantMinutes: upper bound a single grant may award.
//   - MaxValidityHours: upper bound on a grant's issue-to-expiry window.
//   - MaxDeficitMinutes: cap on accumulated overage per child/activity.
//   - BucketTolerance: accepted clock skew for voice codes, in 15-minute buckets.
//   - MaxCacheAge: how long a cached schedule stays trusted after it was applied.
type Config struct {
	DatabaseDSN       string
	MaxGrantMinutes   int
	MaxValidityHours  int
	MaxDeficitMinutes int
	BucketTolerance   int
	MaxCacheAge       time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabaseDSN = "famgate.db"
	c.MaxGrantMinutes = common.DefaultMaxGrantMinutes
	c.MaxValidityHours = common.DefaultMaxValidityHours
	c.MaxDeficitMinutes = common.DefaultMaxDeficitMinutes
	c.BucketTolerance = common.DefaultBucketTolerance
	c.MaxCacheAge = common.DefaultMaxCacheAge
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
