package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/worldline-systems/wll/pkg/config"
	"github.com/worldline-systems/wll/pkg/fabric"
	"github.com/worldline-systems/wll/pkg/objstore"
)

// runInitCmd implements `wll init`: lays out an empty workspace
// (object store directories, an empty WAL segment) and writes a
// wll.yaml seeded with the layout's paths, ready for an embedding
// program to open via config.Load.
func runInitCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("init", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var dir string
	cmd.StringVar(&dir, "dir", ".wll", "Root directory for the new workspace")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, _ := config.Load("")
	cfg.StoreDir = dir
	cfg.LedgerPath = filepath.Join(dir, "ledger.json")
	cfg.WALPath = filepath.Join(dir, "wal.log")

	if _, err := objstore.NewFS(filepath.Join(dir, "objects")); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := os.MkdirAll(filepath.Join(dir, "packs"), 0o755); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	wal, err := fabric.OpenWAL(cfg.WALPath, fabric.WALOptions{Sync: fabric.EveryWrite, Logger: slog.Default()})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := wal.Close(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	cfgPath := filepath.Join(dir, "wll.yaml")
	data, err := yaml.Marshal(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	_, _ = fmt.Fprintf(stdout, "%sinitialized%s wll workspace at %s\n", colorGreen, colorReset, dir)
	_, _ = fmt.Fprintf(stdout, "  config:  %s\n", cfgPath)
	_, _ = fmt.Fprintf(stdout, "  objects: %s\n", filepath.Join(dir, "objects"))
	_, _ = fmt.Fprintf(stdout, "  packs:   %s\n", filepath.Join(dir, "packs"))
	_, _ = fmt.Fprintf(stdout, "  wal:     %s\n", cfg.WALPath)
	return 0
}
