// Package config loads the ledger's runtime configuration from
// environment variables with a YAML file overlay, generalizing the
// teacher's flat env-var Load() into a layered load order: defaults,
// then an optional YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/worldline-systems/wll/pkg/fabric"
)

// Config holds every tunable the ledger core needs at startup.
type Config struct {
	StoreDir       string `yaml:"store_dir"`
	LedgerPath     string `yaml:"ledger_path"`
	WALPath        string `yaml:"wal_path"`
	WALSyncMode    string `yaml:"wal_sync_mode"`
	GatePermissive bool   `yaml:"gate_permissive"`
	RepackMinPacks int    `yaml:"repack_min_packs"`
	RepackMaxLoose int    `yaml:"repack_max_loose"`
	NodeId         uint64 `yaml:"node_id"`
	LogLevel       string `yaml:"log_level"`
}

// defaults mirrors the conservative, always-available baseline every
// deployment starts from before any file or env override is applied.
func defaults() Config {
	return Config{
		StoreDir:       ".wll",
		LedgerPath:     ".wll/ledger.json",
		WALPath:        ".wll/wal.log",
		WALSyncMode:    "every_write",
		GatePermissive: false,
		RepackMinPacks: 4,
		RepackMaxLoose: 256,
		NodeId:         1,
		LogLevel:       "info",
	}
}

// Load builds a Config from defaults, an optional YAML file at path (if
// non-empty and present), and finally environment variable overrides.
// Environment variables win over the file, which wins over defaults.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WLL_STORE_DIR"); v != "" {
		cfg.StoreDir = v
	}
	if v := os.Getenv("WLL_LEDGER_PATH"); v != "" {
		cfg.LedgerPath = v
	}
	if v := os.Getenv("WLL_WAL_PATH"); v != "" {
		cfg.WALPath = v
	}
	if v := os.Getenv("WLL_WAL_SYNC_MODE"); v != "" {
		cfg.WALSyncMode = v
	}
	if v := os.Getenv("WLL_GATE_PERMISSIVE"); v != "" {
		cfg.GatePermissive = v == "true"
	}
	if v := os.Getenv("WLL_REPACK_MIN_PACKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RepackMinPacks = n
		}
	}
	if v := os.Getenv("WLL_REPACK_MAX_LOOSE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RepackMaxLoose = n
		}
	}
	if v := os.Getenv("WLL_NODE_ID"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.NodeId = n
		}
	}
	if v := os.Getenv("WLL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// SyncMode translates the configured string into a fabric.SyncMode,
// defaulting to EveryWrite on an unrecognized value.
func (c Config) SyncMode() fabric.SyncMode {
	switch c.WALSyncMode {
	case "periodic":
		return fabric.Periodic
	case "os_default":
		return fabric.OsDefault
	default:
		return fabric.EveryWrite
	}
}
