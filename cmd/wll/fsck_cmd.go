package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/worldline-systems/wll/pkg/fabric"
	"github.com/worldline-systems/wll/pkg/objstore"
	"github.com/worldline-systems/wll/pkg/pack"
	"github.com/worldline-systems/wll/pkg/validate"
)

// runFsckCmd implements `wll fsck`: a full consistency sweep over every
// worldline's receipt stream (validate.Stream), every loose object's
// content hash against its own path, every packed object's CRC (forced
// by reading it back through pack.Manager), and a WAL recovery scan.
//
// Exit codes:
//
//	0 = everything checked out
//	1 = at least one defect found
//	2 = usage error
func runFsckCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("fsck", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var cfgPath string
	cmd.StringVar(&cfgPath, "config", "", "Path to wll.yaml (optional)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	ws, err := openWorkspace(ctx, cfgPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer ws.Close()

	clean := true

	for _, worldline := range ws.ledger.Worldlines() {
		report, err := validate.Stream(ws.ledger, worldline)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if !report.Clean() {
			clean = false
			_, _ = fmt.Fprintf(stdout, "worldline %s: %d violation(s)\n", digestHex(worldline), len(report.Violations))
			for _, v := range report.Violations {
				_, _ = fmt.Fprintf(stdout, "  seq %d: %s\n", v.Seq, v.Message)
			}
		}
	}

	err = ws.store.Walk(func(_ objstore.Kind, id objstore.ObjectId) error {
		obj, ok, readErr := ws.store.Read(ctx, id)
		if readErr != nil {
			return readErr
		}
		if !ok {
			return nil
		}
		if obj.ComputeId() != id {
			clean = false
			_, _ = fmt.Fprintf(stdout, "loose object %s: content hash mismatch\n", digestHex(id))
		}
		return nil
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	packsDir := filepath.Join(ws.cfg.StoreDir, "packs")
	if _, statErr := os.Stat(packsDir); statErr == nil {
		mgr, err := pack.OpenManager(packsDir)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		for _, id := range mgr.Ids() {
			if _, _, err := mgr.ReadObject(id); err != nil {
				clean = false
				_, _ = fmt.Fprintf(stdout, "packed object %s: %v\n", digestHex(id), err)
			}
		}
		mgr.Close()
	}

	if ws.cfg.WALPath != "" {
		events, err := fabric.Recover(ws.cfg.WALPath, fabric.WithRecoverLogger(ws.obs.Logger()), fabric.WithRecoverObserver(ws.obs))
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "wal: %d event(s) recovered from %s\n", len(events), ws.cfg.WALPath)
	}

	if !clean {
		_, _ = fmt.Fprintf(stdout, "fsck: %sFAILED%s\n", colorBold, colorReset)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "fsck: %sOK%s\n", colorGreen, colorReset)
	return 0
}
