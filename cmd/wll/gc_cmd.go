package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/worldline-systems/wll/pkg/ledger"
	"github.com/worldline-systems/wll/pkg/objstore"
	"github.com/worldline-systems/wll/pkg/wcrypto"
)

// runGcCmd implements `wll gc`: marks every object reachable from a
// commitment receipt's proposal_hash (walking through any tree objects
// it roots) and reports loose objects that are not. With --dry-run it
// only reports; otherwise it deletes them. (pack.Manager.GC itself only
// reports and never deletes.)
func runGcCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("gc", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var cfgPath string
	var dryRun bool
	cmd.StringVar(&cfgPath, "config", "", "Path to wll.yaml (optional)")
	cmd.BoolVar(&dryRun, "dry-run", false, "Report unreachable objects without deleting them")

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

	reachable, err := computeReachable(ctx, ws.store, ws.ledger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	var unreachable []objstore.ObjectId
	err = ws.store.Walk(func(_ objstore.Kind, id objstore.ObjectId) error {
		if !reachable[id] {
			unreachable = append(unreachable, id)
		}
		return nil
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	for _, id := range unreachable {
		if dryRun {
			_, _ = fmt.Fprintf(stdout, "unreachable %s\n", digestHex(id))
			continue
		}
		if _, err := ws.store.Delete(ctx, id); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error deleting %s: %v\n", digestHex(id), err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "pruned %s\n", digestHex(id))
	}

	_, _ = fmt.Fprintf(stdout, "%d unreachable object(s)\n", len(unreachable))
	return 0
}

// computeReachable walks every worldline's commitment receipts, treating
// each proposal_hash as a reachability root, and follows tree entries
// recursively to mark every blob and subtree they contain.
func computeReachable(ctx context.Context, store objstore.Store, reader ledger.Reader) (map[wcrypto.Digest]bool, error) {
	reachable := make(map[wcrypto.Digest]bool)
	for _, worldline := range reader.Worldlines() {
		receipts, err := reader.ReadAll(worldline)
		if err != nil {
			return nil, fmt.Errorf("gc: read worldline: %w", err)
		}
		for _, rec := range receipts {
			commitment, ok := rec.(ledger.CommitmentReceipt)
			if !ok {
				continue
			}
			if err := markReachable(ctx, store, commitment.ProposalHash, reachable); err != nil {
				return nil, err
			}
		}
	}
	return reachable, nil
}

func markReachable(ctx context.Context, store objstore.Store, id wcrypto.Digest, reachable map[wcrypto.Digest]bool) error {
	if id.IsZero() || reachable[id] {
		return nil
	}
	obj, ok, err := store.Read(ctx, id)
	if err != nil {
		return fmt.Errorf("gc: read %s: %w", digestHex(id), err)
	}
	if !ok {
		// Already packed, or never materialized loose; nothing to walk.
		return nil
	}
	reachable[id] = true
	if obj.Kind != objstore.KindTree {
		return nil
	}

	tree, err := objstore.UnmarshalTree(obj.Bytes)
	if err != nil {
		return fmt.Errorf("gc: decode tree %s: %w", digestHex(id), err)
	}
	for _, entry := range tree.Entries {
		if err := markReachable(ctx, store, entry.Id, reachable); err != nil {
			return err
		}
	}
	return nil
}
