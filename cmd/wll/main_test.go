package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/worldline-systems/wll/pkg/fabric"
	"github.com/worldline-systems/wll/pkg/ledger"
	"github.com/worldline-systems/wll/pkg/objstore"
	"github.com/worldline-systems/wll/pkg/replay"
	"github.com/worldline-systems/wll/pkg/wcrypto"
)

// run is a small helper around Run that captures stdout/stderr.
func run(args ...string) (code int, stdout, stderr string) {
	var outBuf, errBuf bytes.Buffer
	code = Run(append([]string{"wll"}, args...), &outBuf, &errBuf)
	return code, outBuf.String(), errBuf.String()
}

func TestEndToEndWorkspaceLifecycle(t *testing.T) {
	root := t.TempDir()
	wsDir := filepath.Join(root, "ws")

	code, out, _ := run("init", "--dir", wsDir)
	require.Equal(t, 0, code)
	require.Contains(t, out, "initialized")

	cfgPath := filepath.Join(wsDir, "wll.yaml")

	ctx := context.Background()
	store, err := objstore.NewFS(filepath.Join(wsDir, "objects"))
	require.NoError(t, err)

	blobObj := objstore.StoredObject{Kind: objstore.KindBlob, Bytes: []byte("hello world")}
	blobId, err := store.Write(ctx, blobObj)
	require.NoError(t, err)

	tree := objstore.Tree{Entries: []objstore.TreeEntry{{Mode: objstore.ModeRegular, Name: "a.txt", Id: blobId}}}
	tree.SortEntries()
	treeBytes, err := objstore.MarshalTree(tree)
	require.NoError(t, err)
	treeId, err := store.Write(ctx, objstore.StoredObject{Kind: objstore.KindTree, Bytes: treeBytes})
	require.NoError(t, err)

	garbageId, err := store.Write(ctx, objstore.StoredObject{Kind: objstore.KindBlob, Bytes: []byte("orphaned")})
	require.NoError(t, err)

	clock := fabric.NewClock(1)
	led, err := ledger.OpenFile(filepath.Join(wsDir, "ledger.json"), clock)
	require.NoError(t, err)

	worldline := wcrypto.DeriveWorldlineFromGenesis(wcrypto.Hash(wcrypto.DomainWorldline, []byte("cli-test-worldline")))
	commitmentId := ledger.NewCommitmentId()
	evidence, err := ledger.NewEvidenceBundle([]string{"ref-1"})
	require.NoError(t, err)
	decision := ledger.Decision{Outcome: ledger.OutcomeAccepted}
	policyHash := wcrypto.Hash(wcrypto.DomainPolicySet, []byte("policy-v1"))

	commit, err := led.AppendCommitment(worldline, commitmentId, ledger.ClassContentUpdate, "update a.txt",
		[]string{"write"}, evidence, decision, policyHash, treeId)
	require.NoError(t, err)

	outcome, err := led.AppendOutcome(worldline, commit.ReceiptHash, []string{"wrote a.txt"}, []string{"proof-1"},
		map[string]interface{}{"a.txt": "hello world"}, nil)
	require.NoError(t, err)

	_, err = led.AppendSnapshot(worldline, outcome.ReceiptHash, map[string]interface{}{"a.txt": "hello world"})
	require.NoError(t, err)

	worldlineHex := digestHex(worldline)

	t.Run("log", func(t *testing.T) {
		code, out, _ := run("log", "--config", cfgPath, "--worldline", worldlineHex, "--json")
		require.Equal(t, 0, code)
		var rows []replay.AuditRow
		require.NoError(t, json.Unmarshal([]byte(out), &rows))
		require.Len(t, rows, 3)
		require.Equal(t, ledger.KindCommitment, rows[0].Kind)
		require.Equal(t, ledger.KindOutcome, rows[1].Kind)
		require.Equal(t, ledger.KindSnapshot, rows[2].Kind)
	})

	t.Run("verify clean", func(t *testing.T) {
		code, out, _ := run("verify", "--config", cfgPath, "--worldline", worldlineHex)
		require.Equal(t, 0, code)
		require.Contains(t, out, "OK")
	})

	t.Run("replay", func(t *testing.T) {
		code, out, _ := run("replay", "--config", cfgPath, "--worldline", worldlineHex, "--json")
		require.Equal(t, 0, code)
		var projection replay.Projection
		require.NoError(t, json.Unmarshal([]byte(out), &projection))
		require.True(t, projection.HasCommitment)
		require.Equal(t, "hello world", projection.State["a.txt"])
	})

	t.Run("gc dry-run then prune", func(t *testing.T) {
		code, out, _ := run("gc", "--config", cfgPath, "--dry-run")
		require.Equal(t, 0, code)
		require.Contains(t, out, digestHex(garbageId))
		require.Contains(t, out, "1 unreachable")

		exists, err := store.Exists(ctx, garbageId)
		require.NoError(t, err)
		require.True(t, exists, "dry-run must not delete")

		code, out, _ = run("gc", "--config", cfgPath)
		require.Equal(t, 0, code)
		require.Contains(t, out, "pruned")

		exists, err = store.Exists(ctx, garbageId)
		require.NoError(t, err)
		require.False(t, exists)

		exists, err = store.Exists(ctx, treeId)
		require.NoError(t, err)
		require.True(t, exists, "reachable tree must survive gc")
	})

	t.Run("repack then fsck", func(t *testing.T) {
		code, out, _ := run("repack", "--config", cfgPath)
		require.Equal(t, 0, code)
		require.Contains(t, out, "packed 2 object(s)")

		exists, err := store.Exists(ctx, blobId)
		require.NoError(t, err)
		require.False(t, exists, "repack prunes the loose copy once packed")

		entries, err := os.ReadDir(filepath.Join(wsDir, "packs"))
		require.NoError(t, err)
		require.NotEmpty(t, entries)

		code, out, _ = run("fsck", "--config", cfgPath)
		require.Equal(t, 0, code)
		require.Contains(t, out, "OK")
	})
}

func TestUnknownCommandReturnsUsageError(t *testing.T) {
	code, _, errOut := run("bogus")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "Unknown command")
}

func TestNoArgsPrintsUsage(t *testing.T) {
	code, out, _ := run()
	require.Equal(t, 2, code)
	require.Contains(t, out, "USAGE")
}

func TestHelpPrintsUsageAndSucceeds(t *testing.T) {
	code, out, _ := run("help")
	require.Equal(t, 0, code)
	require.Contains(t, out, "wll")
}

func TestVerifyMissingWorldlineIsUsageError(t *testing.T) {
	code, _, errOut := run("verify", "--worldline", "")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "worldline")
}
