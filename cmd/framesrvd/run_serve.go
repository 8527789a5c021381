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

package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/framesrv/framesrv/chunk"
	"github.com/framesrv/framesrv/config"
	"github.com/framesrv/framesrv/handle"
	"github.com/framesrv/framesrv/memmgr"
	"github.com/framesrv/framesrv/storage"
)

const cleanupInterval = 300 * time.Second

// runServe wires up the handle provider, memory manager, storage
// engine and adaptive chunk strategy, then blocks until it receives
// SIGINT/SIGTERM, mirroring the teacher daemon's signal handling and
// graceful-shutdown shape without any genuine RPC listener: the wire
// framing and HTTP admin surface are external collaborators, so this
// entrypoint only exercises the library end to end.
func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	logger := log.New(os.Stderr, "", log.Lshortfile)

	def := config.Default()
	configPath := extractConfigPath(args)
	if configPath != "" {
		if err := config.MergeYAMLFile(configPath, &def); err != nil {
			logger.Fatalf("loading %s: %s", configPath, err)
		}
	}
	fs.String("config", configPath, "path to an optional YAML config file")
	materialize := config.RegisterFlags(fs, def)
	if fs.Parse(args) != nil {
		os.Exit(1)
	}
	cfg := materialize()
	if err := config.Validate(cfg); err != nil {
		logger.Fatalf("invalid configuration: %s", err)
	}

	mgr := memmgr.New(memmgr.DefaultAvailableBytes)
	strategy := chunk.New(mgr,
		chunk.WithMinRows(cfg.ChunkMinRows),
		chunk.WithMaxRows(cfg.ChunkMaxRows),
		chunk.WithTargetMemoryRatio(cfg.TargetMemoryRatio),
	)
	_ = strategy // sized on demand by callers that ingest data through this process

	var reg *handle.Registry
	var provider *handle.Provider
	switch cfg.HandleStoreMode {
	case config.StoreModeMemory:
		reg = handle.NewRegistry(time.Duration(cfg.HandleTTLSeconds) * time.Second)
		provider = handle.NewInMemoryProvider(reg)
	case config.StoreModeExternal:
		store, err := handle.NewFSStore(cfg.StateDir)
		if err != nil {
			logger.Fatalf("opening external handle store at %s: %s", cfg.StateDir, err)
		}
		provider = handle.NewExternalProvider(store)
	}
	_ = provider // held open for the lifetime of the process; no RPC surface consumes it here

	cold, err := storage.NewParquetBackend(cfg.ParquetBase)
	if err != nil {
		logger.Fatalf("opening parquet backend at %s: %s", cfg.ParquetBase, err)
	}
	cache := storage.NewCacheBackend(cfg.CacheSizeGB)
	tiered := storage.NewHybridStorage(cache, cold, nil)
	_ = tiered

	logger.Printf("framesrv %s serving (handle_store_mode=%s, parquet_base=%s, cache_size_gb=%.2f)",
		version, cfg.HandleStoreMode, cfg.ParquetBase, cfg.CacheSizeGB)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	if reg != nil {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		done := make(chan struct{})
		defer close(done)
		go func() {
			for {
				select {
				case <-ticker.C:
					if n := reg.CleanupExpired(); n > 0 {
						logger.Printf("cleaned up %d expired handles", n)
					}
				case <-done:
					return
				}
			}
		}()
	}

	<-stop
	logger.Println("shutting down: no in-flight RPCs to drain, no dirty state to flush")
}
