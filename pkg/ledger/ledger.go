package ledger

import "github.com/worldline-systems/wll/pkg/wcrypto"

// Writer is the append-side contract every ledger backend satisfies.
type Writer interface {
	AppendCommitment(worldline wcrypto.Digest, commitmentId wcrypto.Digest, class CommitmentClass, intent string, requestedCaps []string, evidence EvidenceBundle, decision Decision, policyHash, proposalHash wcrypto.Digest) (CommitmentReceipt, error)
	AppendOutcome(worldline wcrypto.Digest, commitmentReceiptHash wcrypto.Digest, effects, proofs []string, stateUpdates, metadata map[string]interface{}) (OutcomeReceipt, error)
	AppendRejectionOutcome(worldline wcrypto.Digest, commitmentReceiptHash wcrypto.Digest, reason string) (OutcomeReceipt, error)
	AppendSnapshot(worldline wcrypto.Digest, anchoredReceiptHash wcrypto.Digest, state map[string]interface{}) (SnapshotReceipt, error)
}

// Reader is the read-side contract (§4.4 "Reader contract").
type Reader interface {
	Head(worldline wcrypto.Digest) (Receipt, bool)
	ReadRange(worldline wcrypto.Digest, from, to uint64) ([]Receipt, error)
	ReadAll(worldline wcrypto.Digest) ([]Receipt, error)
	GetByHash(hash wcrypto.Digest) (Receipt, bool)
	Worldlines() []wcrypto.Digest
	ReceiptCount() int
}

// Ledger is the full read/write contract. Both *Memory and *File satisfy
// it.
type Ledger interface {
	Writer
	Reader
}

var (
	_ Ledger = (*Memory)(nil)
	_ Ledger = (*File)(nil)
)
