package replay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/worldline-systems/wll/pkg/fabric"
	"github.com/worldline-systems/wll/pkg/ledger"
	"github.com/worldline-systems/wll/pkg/wcrypto"
)

func newMemory() *ledger.Memory {
	clock := fabric.NewClockWithWallFunc(1, func() time.Time { return time.Unix(1000, 0) })
	return ledger.NewMemory(clock)
}

func acceptedDecision() ledger.Decision {
	return ledger.Decision{Outcome: ledger.OutcomeAccepted}
}

func TestReplayFromGenesisAppliesAcceptedOutcomes(t *testing.T) {
	mem := newMemory()
	worldline := wcrypto.Hash("test-worldline", []byte("w1"))

	commit, err := mem.AppendCommitment(worldline, ledger.NewCommitmentId(), ledger.ClassContentUpdate, "update readme", nil, ledger.EvidenceBundle{}, acceptedDecision(), wcrypto.Digest{}, wcrypto.Digest{})
	require.NoError(t, err)

	_, err = mem.AppendOutcome(worldline, commit.ReceiptHash, []string{"wrote readme"}, nil, map[string]interface{}{"readme": "v1"}, nil)
	require.NoError(t, err)

	result, err := ReplayFromGenesis(mem, worldline)
	require.NoError(t, err)
	require.Equal(t, 1, result.AppliedOutcomes)
	require.Equal(t, 2, result.EvaluatedReceipts)
	require.Equal(t, "v1", result.State["readme"])
}

func TestReplayFromGenesisIgnoresRejectedOutcomes(t *testing.T) {
	mem := newMemory()
	worldline := wcrypto.Hash("test-worldline", []byte("w1"))

	commit, err := mem.AppendCommitment(worldline, ledger.NewCommitmentId(), ledger.ClassContentUpdate, "update readme", nil, ledger.EvidenceBundle{}, ledger.Decision{Outcome: ledger.OutcomeRejected}, wcrypto.Digest{}, wcrypto.Digest{})
	require.NoError(t, err)

	_, err = mem.AppendRejectionOutcome(worldline, commit.ReceiptHash, "policy denied")
	require.NoError(t, err)

	result, err := ReplayFromGenesis(mem, worldline)
	require.NoError(t, err)
	require.Equal(t, 0, result.AppliedOutcomes)
	require.Empty(t, result.State)
}

func TestReplayFromSnapshotMatchesGenesisConvergence(t *testing.T) {
	mem := newMemory()
	worldline := wcrypto.Hash("test-worldline", []byte("w1"))

	commit1, err := mem.AppendCommitment(worldline, ledger.NewCommitmentId(), ledger.ClassContentUpdate, "first", nil, ledger.EvidenceBundle{}, acceptedDecision(), wcrypto.Digest{}, wcrypto.Digest{})
	require.NoError(t, err)
	outcome1, err := mem.AppendOutcome(worldline, commit1.ReceiptHash, nil, nil, map[string]interface{}{"a": 1.0}, nil)
	require.NoError(t, err)

	snapshot, err := mem.AppendSnapshot(worldline, outcome1.ReceiptHash, map[string]interface{}{"a": 1.0})
	require.NoError(t, err)

	commit2, err := mem.AppendCommitment(worldline, ledger.NewCommitmentId(), ledger.ClassContentUpdate, "second", nil, ledger.EvidenceBundle{}, acceptedDecision(), wcrypto.Digest{}, wcrypto.Digest{})
	require.NoError(t, err)
	_, err = mem.AppendOutcome(worldline, commit2.ReceiptHash, nil, nil, map[string]interface{}{"b": 2.0}, nil)
	require.NoError(t, err)

	fromSnapshot, err := ReplayFromSnapshot(mem, worldline, snapshot.ReceiptHash)
	require.NoError(t, err)
	require.Equal(t, 1.0, fromSnapshot.State["a"])
	require.Equal(t, 2.0, fromSnapshot.State["b"])

	converged, err := VerifySnapshotConvergence(mem, worldline, snapshot.ReceiptHash)
	require.NoError(t, err)
	require.True(t, converged)
}

func TestLatestStateProjection(t *testing.T) {
	mem := newMemory()
	worldline := wcrypto.Hash("test-worldline", []byte("w1"))

	commitId := ledger.NewCommitmentId()
	commit, err := mem.AppendCommitment(worldline, commitId, ledger.ClassContentUpdate, "update", nil, ledger.EvidenceBundle{}, acceptedDecision(), wcrypto.Digest{}, wcrypto.Digest{})
	require.NoError(t, err)
	_, err = mem.AppendOutcome(worldline, commit.ReceiptHash, nil, nil, map[string]interface{}{"k": "v"}, nil)
	require.NoError(t, err)

	projection, err := LatestStateProjection(mem, worldline)
	require.NoError(t, err)
	require.Equal(t, uint64(2), projection.TrajectoryLength)
	require.True(t, projection.HasCommitment)
	require.Equal(t, commitId, projection.LatestCommitmentId)
	require.Equal(t, "v", projection.State["k"])
}

func TestAuditIndexProjectionSummarizesEachReceipt(t *testing.T) {
	mem := newMemory()
	worldline := wcrypto.Hash("test-worldline", []byte("w1"))

	commit, err := mem.AppendCommitment(worldline, ledger.NewCommitmentId(), ledger.ClassContentUpdate, "update", nil, ledger.EvidenceBundle{}, acceptedDecision(), wcrypto.Digest{}, wcrypto.Digest{})
	require.NoError(t, err)
	_, err = mem.AppendOutcome(worldline, commit.ReceiptHash, []string{"effect"}, nil, nil, nil)
	require.NoError(t, err)

	rows, err := AuditIndexProjection(mem, worldline)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, ledger.KindCommitment, rows[0].Kind)
	require.NotNil(t, rows[0].CommitmentId)
	require.Equal(t, ledger.KindOutcome, rows[1].Kind)
	require.NotNil(t, rows[1].Accepted)
	require.True(t, *rows[1].Accepted)
}
