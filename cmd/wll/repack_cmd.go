package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/worldline-systems/wll/pkg/objstore"
	"github.com/worldline-systems/wll/pkg/pack"
	"github.com/worldline-systems/wll/pkg/wcrypto"
)

// runRepackCmd implements `wll repack`: groups every loose object
// currently in the store into one new pack file via pack.Manager.Repack,
// then prunes the now-packed loose copies, the same loose-to-packed
// transition pack.Manager documents leaving to the caller.
func runRepackCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("repack", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var cfgPath, name string
	cmd.StringVar(&cfgPath, "config", "", "Path to wll.yaml (optional)")
	cmd.StringVar(&name, "name", "", "Name for the new pack file (default: pack-<object count>)")

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

	packsDir := filepath.Join(ws.cfg.StoreDir, "packs")
	if err := os.MkdirAll(packsDir, 0o755); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	mgr, err := pack.OpenManager(packsDir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer mgr.Close()

	var ids []wcrypto.Digest
	err = ws.store.Walk(func(_ objstore.Kind, id objstore.ObjectId) error {
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if len(ids) == 0 {
		_, _ = fmt.Fprintln(stdout, "nothing to repack")
		return 0
	}

	if name == "" {
		name = fmt.Sprintf("pack-%d", len(ids))
	}

	entries, err := mgr.Repack(ctx, ws.store, ids, name)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	for _, id := range ids {
		if _, err := ws.store.Delete(ctx, id); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error pruning %s: %v\n", digestHex(id), err)
			return 1
		}
	}

	_, _ = fmt.Fprintf(stdout, "%spacked%s %d object(s) into %s.pack\n", colorGreen, colorReset, len(entries), name)
	return 0
}
