package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/worldline-systems/wll/pkg/fabric"
	"github.com/worldline-systems/wll/pkg/wcrypto"
)

func TestAppendCommitmentThenOutcomeChainsHashes(t *testing.T) {
	clock := fabric.NewClock(1)
	l := NewMemory(clock)
	var worldline wcrypto.Digest
	worldline[0] = 1

	evidence, err := NewEvidenceBundle([]string{"https://example.test/evidence"})
	require.NoError(t, err)

	c1, err := l.AppendCommitment(worldline, wcrypto.Digest{1}, ClassContentUpdate, "update readme", nil, evidence, Decision{Outcome: OutcomeAccepted}, wcrypto.Digest{2}, wcrypto.Digest{3})
	require.NoError(t, err)
	require.Equal(t, uint64(1), c1.Seq)
	require.Nil(t, c1.PrevHash)

	o1, err := l.AppendOutcome(worldline, c1.ReceiptHash, []string{"wrote blob"}, nil, map[string]interface{}{"path": "readme.md"}, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(2), o1.Seq)
	require.NotNil(t, o1.PrevHash)
	require.Equal(t, c1.ReceiptHash, *o1.PrevHash)
	require.Equal(t, c1.ReceiptHash, o1.CommitmentReceiptHash)
}

func TestAppendOutcomeRequiresExistingCommitment(t *testing.T) {
	l := NewMemory(fabric.NewClock(1))
	var worldline wcrypto.Digest
	_, err := l.AppendOutcome(worldline, wcrypto.Digest{9}, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestAppendOutcomeAcceptedMustFollowAcceptedCommitment(t *testing.T) {
	l := NewMemory(fabric.NewClock(1))
	var worldline wcrypto.Digest
	evidence, _ := NewEvidenceBundle(nil)

	rejected, err := l.AppendCommitment(worldline, wcrypto.Digest{1}, ClassContentUpdate, "x", nil, evidence, Decision{Outcome: OutcomeRejected, Reason: "no evidence"}, wcrypto.Digest{}, wcrypto.Digest{})
	require.NoError(t, err)

	_, err = l.AppendOutcome(worldline, rejected.ReceiptHash, nil, nil, nil, nil)
	require.Error(t, err)

	_, err = l.AppendRejectionOutcome(worldline, rejected.ReceiptHash, "no evidence")
	require.NoError(t, err)
}

func TestAppendRejectionOutcomeRejectsDeferredCommitment(t *testing.T) {
	l := NewMemory(fabric.NewClock(1))
	var worldline wcrypto.Digest
	evidence, _ := NewEvidenceBundle(nil)

	deferred, err := l.AppendCommitment(worldline, wcrypto.Digest{1}, ClassIdentityOperation, "rotate signer", nil, evidence, Decision{Outcome: OutcomeDeferred, Reason: "needs review"}, wcrypto.Digest{}, wcrypto.Digest{})
	require.NoError(t, err)

	_, err = l.AppendRejectionOutcome(worldline, deferred.ReceiptHash, "no evidence")
	require.Error(t, err, "a rejection outcome must not be attributable to a still-Deferred commitment")

	_, err = l.AppendOutcome(worldline, deferred.ReceiptHash, nil, nil, nil, nil)
	require.Error(t, err, "an accepted outcome must not be attributable to a still-Deferred commitment")
}

func TestAppendSnapshotRequiresAnchor(t *testing.T) {
	l := NewMemory(fabric.NewClock(1))
	var worldline wcrypto.Digest
	_, err := l.AppendSnapshot(worldline, wcrypto.Digest{9}, map[string]interface{}{"a": 1})
	require.Error(t, err)

	evidence, _ := NewEvidenceBundle(nil)
	c, err := l.AppendCommitment(worldline, wcrypto.Digest{1}, ClassReadOnly, "noop", nil, evidence, Decision{Outcome: OutcomeAccepted}, wcrypto.Digest{}, wcrypto.Digest{})
	require.NoError(t, err)

	snap, err := l.AppendSnapshot(worldline, c.ReceiptHash, map[string]interface{}{"a": 1})
	require.NoError(t, err)
	require.Equal(t, c.ReceiptHash, snap.AnchoredReceiptHash)
}

func TestReadRangeValidation(t *testing.T) {
	l := NewMemory(fabric.NewClock(1))
	var worldline wcrypto.Digest
	_, err := l.ReadRange(worldline, 0, 1)
	require.Error(t, err)
	_, err = l.ReadRange(worldline, 3, 1)
	require.Error(t, err)
}

func TestFileLedgerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	var worldline wcrypto.Digest
	worldline[0] = 5

	f, err := OpenFile(path, fabric.NewClock(1))
	require.NoError(t, err)
	evidence, _ := NewEvidenceBundle(nil)
	c, err := f.AppendCommitment(worldline, wcrypto.Digest{1}, ClassReadOnly, "noop", nil, evidence, Decision{Outcome: OutcomeAccepted}, wcrypto.Digest{}, wcrypto.Digest{})
	require.NoError(t, err)

	reopened, err := OpenFile(path, fabric.NewClock(1))
	require.NoError(t, err)
	require.Equal(t, 1, reopened.ReceiptCount())

	got, ok := reopened.GetByHash(c.ReceiptHash)
	require.True(t, ok)
	require.Equal(t, KindCommitment, got.ReceiptKind())
}
