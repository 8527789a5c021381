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
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/framesrv/framesrv/chunk"
	"github.com/framesrv/framesrv/config"
	"github.com/framesrv/framesrv/handle"
	"github.com/framesrv/framesrv/memmgr"
	"github.com/framesrv/framesrv/xsv"
)

// runIngest reads a CSV/TSV file against a field-hint document and
// registers the resulting dataframe with the configured handle
// provider, printing the new handle ID on success. It exists to drive
// the core library end to end from the command line; it is not a
// substitute for a real ingestion RPC.
func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
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
	format := fs.String("format", "csv", "input format: csv or tsv")
	hintsPath := fs.String("hints", "", "path to a JSON field-hint file (required)")
	inputPath := fs.String("input", "", "path to the CSV/TSV file to ingest (required)")
	if fs.Parse(args) != nil {
		os.Exit(1)
	}
	cfg := materialize()
	if err := config.Validate(cfg); err != nil {
		logger.Fatalf("invalid configuration: %s", err)
	}
	if *hintsPath == "" || *inputPath == "" {
		fmt.Fprintln(os.Stderr, "both -hints and -input are required")
		os.Exit(1)
	}

	hintBytes, err := os.ReadFile(*hintsPath)
	if err != nil {
		logger.Fatalf("reading hints file: %s", err)
	}
	hint, err := xsv.ParseHint(hintBytes)
	if err != nil {
		logger.Fatalf("parsing hints: %s", err)
	}

	in, err := os.Open(*inputPath)
	if err != nil {
		logger.Fatalf("opening input: %s", err)
	}
	defer in.Close()

	var chopper xsv.RowChopper
	switch *format {
	case "csv":
		chopper = &xsv.CsvChopper{SkipRecords: hint.SkipRecords, Separator: xsv.Delim(hint.Separator)}
	case "tsv":
		chopper = &xsv.TsvChopper{SkipRecords: hint.SkipRecords}
	default:
		logger.Fatalf("unknown -format %q (want csv or tsv)", *format)
	}

	mgr := memmgr.New(memmgr.DefaultAvailableBytes)
	strategy := chunk.New(mgr,
		chunk.WithMinRows(cfg.ChunkMinRows),
		chunk.WithMaxRows(cfg.ChunkMaxRows),
		chunk.WithTargetMemoryRatio(cfg.TargetMemoryRatio),
	)
	chunkRows := strategy.CalculateChunkSize(mgr.AvailableBytes())

	f, err := xsv.Convert(in, chopper, hint, chunkRows)
	if err != nil {
		logger.Fatalf("converting %s: %s", *inputPath, err)
	}
	defer f.Release()

	var provider *handle.Provider
	switch cfg.HandleStoreMode {
	case config.StoreModeMemory:
		provider = handle.NewInMemoryProvider(handle.NewRegistry(time.Duration(cfg.HandleTTLSeconds) * time.Second))
	case config.StoreModeExternal:
		store, err := handle.NewFSStore(cfg.StateDir)
		if err != nil {
			logger.Fatalf("opening external handle store at %s: %s", cfg.StateDir, err)
		}
		provider = handle.NewExternalProvider(store)
	}

	id, err := provider.CreateHandle(context.Background(), f)
	if err != nil {
		logger.Fatalf("creating handle: %s", err)
	}
	fmt.Printf("handle=%s rows=%d cols=%d\n", id, f.Height(), f.Width())
}
