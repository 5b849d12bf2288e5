package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/famgate/famgate/internal/flagx"
	"github.com/famgate/famgate/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify the cache age either as a string like
// "24h" or as integer nanoseconds.
type JsonConfig struct {
	DatabaseDSN       string         `json:"database_dsn"`
	MaxGrantMinutes   int            `json:"max_grant_minutes"`
	MaxValidityHours  int            `json:"max_validity_hours"`
	MaxDeficitMinutes int            `json:"max_deficit_minutes"`
	BucketTolerance   int            `json:"bucket_tolerance"`
	MaxCacheAge       timex.Duration `json:"max_cache_age"`
}

// parseJson overlays Config with values loaded from a JSON file selected
// via the -c/-config flags (flagx.JsonConfigFlags). Fields absent from the
// file keep their defaults; read or unmarshal errors panic, matching the
// fail-fast startup contract.
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

	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.MaxGrantMinutes > 0 {
		cfg.MaxGrantMinutes = jc.MaxGrantMinutes
	}
	if jc.MaxValidityHours > 0 {
		cfg.MaxValidityHours = jc.MaxValidityHours
	}
	if jc.MaxDeficitMinutes > 0 {
		cfg.MaxDeficitMinutes = jc.MaxDeficitMinutes
	}
	if jc.BucketTolerance > 0 {
		cfg.BucketTolerance = jc.BucketTolerance
	}
	if jc.MaxCacheAge.Duration > 0 {
		cfg.MaxCacheAge = time.Duration(jc.MaxCacheAge.Duration)
	}
}
