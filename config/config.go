// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package config defines framesrv's configuration surface: an optional
// YAML file supplies defaults, command-line flags layered on top of
// it have the final say, the same two-layer shape as the teacher's
// daemon entrypoint (flag.Parse over a struct of defaults).
package config

import (
	"flag"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/framesrv/framesrv/frerr"
)

// StoreMode selects the Handle Provider backend.
type StoreMode string

const (
	StoreModeMemory   StoreMode = "memory"
	StoreModeExternal StoreMode = "external"
)

// Config is the full recognized configuration surface (spec.md §6).
type Config struct {
	HandleStoreMode    StoreMode `json:"handle_store_mode"`
	StateDir           string    `json:"state_dir"`
	HandleTTLSeconds   int       `json:"handle_ttl_seconds"`
	CacheSizeGB        float64   `json:"cache_size_gb"`
	ParquetBase        string    `json:"parquet_base"`
	ChunkMinRows       int       `json:"chunk_min_rows"`
	ChunkMaxRows       int       `json:"chunk_max_rows"`
	TargetMemoryRatio  float64   `json:"target_memory_ratio"`
	MaxConcurrentFiles int       `json:"max_concurrent_files"`
	BufferSize         int       `json:"buffer_size"`
}

// Default returns the configuration used when neither a config file
// nor command-line flags override a setting.
func Default() Config {
	return Config{
		HandleStoreMode:    StoreModeMemory,
		StateDir:           os.TempDir() + "/framesrv-state",
		HandleTTLSeconds:   300,
		CacheSizeGB:        1.0,
		ParquetBase:        os.TempDir() + "/framesrv-parquet",
		ChunkMinRows:       1_000,
		ChunkMaxRows:       1_000_000,
		TargetMemoryRatio:  0.7,
		MaxConcurrentFiles: 0, // 0 means "default to GOMAXPROCS"
		BufferSize:         0, // 0 means "default to 2*MaxConcurrentFiles"
	}
}

// MergeYAMLFile reads the YAML document at path and merges it onto
// cfg, field by field (a key absent from the file leaves cfg's current
// value untouched). Unrecognized keys are rejected.
func MergeYAMLFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return frerr.Wrap("config.MergeYAMLFile", frerr.Io, err)
	}
	if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
		return frerr.Wrap("config.MergeYAMLFile", frerr.InvalidConfig, err)
	}
	return nil
}

// Validate rejects configurations that would make the rest of
// framesrv misbehave: an unrecognized store mode, an inverted or
// non-positive chunk row range, or a ratio outside (0, 1].
func Validate(cfg Config) error {
	if cfg.HandleStoreMode != StoreModeMemory && cfg.HandleStoreMode != StoreModeExternal {
		return frerr.New("config.Validate", frerr.InvalidConfig, "handle_store_mode must be \"memory\" or \"external\"")
	}
	if cfg.ChunkMinRows <= 0 || cfg.ChunkMaxRows < cfg.ChunkMinRows {
		return frerr.New("config.Validate", frerr.InvalidConfig, "chunk_min_rows/chunk_max_rows out of range")
	}
	if cfg.TargetMemoryRatio <= 0 || cfg.TargetMemoryRatio > 1 {
		return frerr.New("config.Validate", frerr.InvalidConfig, "target_memory_ratio must be in (0, 1]")
	}
	return nil
}

// RegisterFlags binds every Config field to a flag on fs, seeded with
// def's values as defaults, and returns a function that must be called
// after fs.Parse to read the final values back into a Config. Callers
// that also support a YAML config file should build def by merging the
// file onto Default() first, so that flags left unset on the command
// line fall back to the file's values rather than the hardcoded
// defaults (see cmd/framesrvd).
func RegisterFlags(fs *flag.FlagSet, def Config) func() Config {
	mode := fs.String("handle-store-mode", string(def.HandleStoreMode), "memory or external")
	stateDir := fs.String("state-dir", def.StateDir, "base directory for the external handle store")
	ttl := fs.Int("handle-ttl-seconds", def.HandleTTLSeconds, "registry TTL for in-memory handles, in seconds")
	cacheGB := fs.Float64("cache-size-gb", def.CacheSizeGB, "hot-tier cache capacity in GB")
	parquetBase := fs.String("parquet-base", def.ParquetBase, "cold-tier Parquet base directory")
	chunkMin := fs.Int("chunk-min-rows", def.ChunkMinRows, "minimum adaptive chunk size in rows")
	chunkMax := fs.Int("chunk-max-rows", def.ChunkMaxRows, "maximum adaptive chunk size in rows")
	targetRatio := fs.Float64("target-memory-ratio", def.TargetMemoryRatio, "target memory utilization ratio")
	maxConcurrent := fs.Int("max-concurrent-files", def.MaxConcurrentFiles, "parallel reader worker count (0 = GOMAXPROCS)")
	bufferSize := fs.Int("buffer-size", def.BufferSize, "parallel reader channel buffer size (0 = 2x worker count)")

	return func() Config {
		return Config{
			HandleStoreMode:    StoreMode(*mode),
			StateDir:           *stateDir,
			HandleTTLSeconds:   *ttl,
			CacheSizeGB:        *cacheGB,
			ParquetBase:        *parquetBase,
			ChunkMinRows:       *chunkMin,
			ChunkMaxRows:       *chunkMax,
			TargetMemoryRatio:  *targetRatio,
			MaxConcurrentFiles: *maxConcurrent,
			BufferSize:         *bufferSize,
		}
	}
}
