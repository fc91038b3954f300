// Package config loads pool configuration for the PostgreSQL client from an
// INI file, with environment variable overrides.
package config

import (
	"os"
	"strconv"

	"gopkg.in/ini.v1"

	"github.com/mevdschee/fkpg/pgpool"
)

// Load reads a [postgres] section from an INI file at path and produces a
// pgpool.Config. Any field the file omits falls back to the default given
// below (a local postgres URL, 0 min and 10 max connections, cache capacity
// 100).
func Load(path string) (*pgpool.Config, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}

	sec := cfg.Section("postgres")
	pcfg := &pgpool.Config{
		URL:                    sec.Key("url").MustString("postgresql://postgres@127.0.0.1:5432/postgres"),
		MinConnections:         int32(sec.Key("min_connections").MustInt(0)),
		MaxConnections:         int32(sec.Key("max_connections").MustInt(10)),
		StatementCacheCapacity: sec.Key("statement_cache_capacity").MustInt(100),
	}

	if v := os.Getenv("FKPG_URL"); v != "" {
		pcfg.URL = v
	}
	if v := os.Getenv("FKPG_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			pcfg.MaxConnections = int32(n)
		}
	}

	return pcfg, nil
}
