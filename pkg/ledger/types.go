// Package ledger implements the append-only, hash-chained per-worldline
// receipt stream: commitments, outcomes, and snapshots, linked by
// receipt_hash/prev_hash and timestamped by the event fabric's HLC
// (§4.4).
package ledger

import (
	"github.com/google/uuid"

	"github.com/worldline-systems/wll/pkg/fabric"
	"github.com/worldline-systems/wll/pkg/wcrypto"
)

// ReceiptKind tags which variant of the Receipt sum type a record is.
type ReceiptKind string

const (
	KindCommitment ReceiptKind = "commitment"
	KindOutcome    ReceiptKind = "outcome"
	KindSnapshot   ReceiptKind = "snapshot"
)

// CommitmentClass is an advisory risk level attached to a proposal.
type CommitmentClass struct {
	Name string `json:"name"`
	Tier int    `json:"tier"`
}

var (
	ClassReadOnly         = CommitmentClass{Name: "ReadOnly", Tier: 0}
	ClassContentUpdate    = CommitmentClass{Name: "ContentUpdate", Tier: 1}
	ClassStructuralChange = CommitmentClass{Name: "StructuralChange", Tier: 2}
	ClassPolicyChange     = CommitmentClass{Name: "PolicyChange", Tier: 3}
	ClassIdentityOperation = CommitmentClass{Name: "IdentityOperation", Tier: 4}
)

// CustomClass returns a Custom(name) commitment class, advisory tier 2.
func CustomClass(name string) CommitmentClass {
	return CommitmentClass{Name: "Custom:" + name, Tier: 2}
}

// NewCommitmentId mints a fresh commitment identifier, domain-hashing a
// random UUID so it lives in the same digest space as every other
// content-addressed id in the ledger.
func NewCommitmentId() wcrypto.Digest {
	return wcrypto.Hash(wcrypto.DomainCommit, []byte(uuid.New().String()))
}

// EvidenceBundle carries supporting references for a proposal; Digest is
// BLAKE3 over the canonical encoding of References and must match on
// Verify.
type EvidenceBundle struct {
	References []string       `json:"references"`
	Digest     wcrypto.Digest `json:"digest"`
}

// NewEvidenceBundle computes Digest over references and returns the
// bundle.
func NewEvidenceBundle(references []string) (EvidenceBundle, error) {
	digest, err := wcrypto.HashCanonical(wcrypto.DomainCommit, references)
	if err != nil {
		return EvidenceBundle{}, err
	}
	return EvidenceBundle{References: references, Digest: digest}, nil
}

// Verify reports whether Digest matches the recomputed hash of References.
func (b EvidenceBundle) Verify() bool {
	got, err := wcrypto.HashCanonical(wcrypto.DomainCommit, b.References)
	return err == nil && got == b.Digest
}

// DecisionOutcome enumerates the three shapes a gate verdict can take.
type DecisionOutcome string

const (
	OutcomeAccepted DecisionOutcome = "accepted"
	OutcomeRejected DecisionOutcome = "rejected"
	OutcomeDeferred DecisionOutcome = "deferred"
)

// Decision is the gate's verdict as recorded on the commitment receipt.
// It mirrors gate.Decision but is kept independent here so the ledger
// package has no import-cycle dependency on the gate package.
type Decision struct {
	Outcome    DecisionOutcome `json:"outcome"`
	Reason     string          `json:"reason,omitempty"`
	RetryAfter int64           `json:"retry_after_ms,omitempty"`
}

// Header holds the fields every receipt kind carries in common.
type Header struct {
	Worldline   wcrypto.Digest        `json:"worldline"`
	Seq         uint64                `json:"seq"`
	ReceiptHash wcrypto.Digest        `json:"receipt_hash"`
	PrevHash    *wcrypto.Digest       `json:"prev_hash,omitempty"`
	Timestamp   fabric.TemporalAnchor `json:"timestamp"`
}

// CommitmentReceipt records a decided proposal.
type CommitmentReceipt struct {
	Header
	CommitmentId    wcrypto.Digest    `json:"commitment_id"`
	Class           CommitmentClass   `json:"class"`
	Intent          string            `json:"intent"`
	RequestedCaps   []string          `json:"requested_caps"`
	Evidence        EvidenceBundle    `json:"evidence"`
	Decision        Decision          `json:"decision"`
	PolicyHash      wcrypto.Digest    `json:"policy_hash"`
	ProposalHash    wcrypto.Digest    `json:"proposal_hash"`
}

// OutcomeReceipt records the effect of a decided commitment.
type OutcomeReceipt struct {
	Header
	CommitmentReceiptHash wcrypto.Digest         `json:"commitment_receipt_hash"`
	Accepted              bool                   `json:"accepted"`
	Effects               []string               `json:"effects"`
	Proofs                []string               `json:"proofs"`
	StateUpdates          map[string]interface{} `json:"state_updates,omitempty"`
	Metadata              map[string]interface{} `json:"metadata,omitempty"`
}

// SnapshotReceipt checkpoints full worldline state.
type SnapshotReceipt struct {
	Header
	AnchoredReceiptHash wcrypto.Digest         `json:"anchored_receipt_hash"`
	StateHash           wcrypto.Digest         `json:"state_hash"`
	State               map[string]interface{} `json:"state"`
}

// Receipt is the sum type every stream entry satisfies.
type Receipt interface {
	ReceiptKind() ReceiptKind
	ReceiptHeader() Header
}

func (r CommitmentReceipt) ReceiptKind() ReceiptKind  { return KindCommitment }
func (r CommitmentReceipt) ReceiptHeader() Header     { return r.Header }
func (r OutcomeReceipt) ReceiptKind() ReceiptKind     { return KindOutcome }
func (r OutcomeReceipt) ReceiptHeader() Header        { return r.Header }
func (r SnapshotReceipt) ReceiptKind() ReceiptKind    { return KindSnapshot }
func (r SnapshotReceipt) ReceiptHeader() Header       { return r.Header }

// commitmentView, outcomeView and snapshotView each mirror a receipt
// without its ReceiptHash, the
// exact form hashed under wll-receipt-v1 per §3 invariant 3. Each
// concrete receipt kind has its own view so json field ordering does not
// leak kind-specific zero values into unrelated kinds.
type commitmentView struct {
	Worldline     wcrypto.Digest        `json:"worldline"`
	Seq           uint64                `json:"seq"`
	PrevHash      *wcrypto.Digest       `json:"prev_hash,omitempty"`
	Timestamp     fabric.TemporalAnchor `json:"timestamp"`
	CommitmentId  wcrypto.Digest        `json:"commitment_id"`
	Class         CommitmentClass       `json:"class"`
	Intent        string                `json:"intent"`
	RequestedCaps []string              `json:"requested_caps"`
	Evidence      EvidenceBundle        `json:"evidence"`
	Decision      Decision              `json:"decision"`
	PolicyHash    wcrypto.Digest        `json:"policy_hash"`
	ProposalHash  wcrypto.Digest        `json:"proposal_hash"`
}

type outcomeView struct {
	Worldline             wcrypto.Digest         `json:"worldline"`
	Seq                   uint64                 `json:"seq"`
	PrevHash              *wcrypto.Digest        `json:"prev_hash,omitempty"`
	Timestamp             fabric.TemporalAnchor  `json:"timestamp"`
	CommitmentReceiptHash wcrypto.Digest         `json:"commitment_receipt_hash"`
	Accepted              bool                   `json:"accepted"`
	Effects               []string               `json:"effects"`
	Proofs                []string               `json:"proofs"`
	StateUpdates          map[string]interface{} `json:"state_updates,omitempty"`
	Metadata              map[string]interface{} `json:"metadata,omitempty"`
}

type snapshotView struct {
	Worldline           wcrypto.Digest         `json:"worldline"`
	Seq                 uint64                 `json:"seq"`
	PrevHash            *wcrypto.Digest        `json:"prev_hash,omitempty"`
	Timestamp           fabric.TemporalAnchor  `json:"timestamp"`
	AnchoredReceiptHash wcrypto.Digest         `json:"anchored_receipt_hash"`
	StateHash           wcrypto.Digest         `json:"state_hash"`
	State               map[string]interface{} `json:"state"`
}

// ComputeReceiptHash hashes the canonical, hash-zeroed view of a
// receipt under the wll-receipt-v1 domain (§3 invariant 3). Exported so
// pkg/validate can independently re-derive and compare against the
// stored hash.
func ComputeReceiptHash(r Receipt) (wcrypto.Digest, error) {
	return computeReceiptHash(r)
}

func computeReceiptHash(r Receipt) (wcrypto.Digest, error) {
	switch v := r.(type) {
	case CommitmentReceipt:
		view := commitmentView{
			Worldline: v.Worldline, Seq: v.Seq, PrevHash: v.PrevHash, Timestamp: v.Timestamp,
			CommitmentId: v.CommitmentId, Class: v.Class, Intent: v.Intent,
			RequestedCaps: v.RequestedCaps, Evidence: v.Evidence, Decision: v.Decision,
			PolicyHash: v.PolicyHash, ProposalHash: v.ProposalHash,
		}
		return wcrypto.HashCanonical(wcrypto.DomainReceipt, view)
	case OutcomeReceipt:
		view := outcomeView{
			Worldline: v.Worldline, Seq: v.Seq, PrevHash: v.PrevHash, Timestamp: v.Timestamp,
			CommitmentReceiptHash: v.CommitmentReceiptHash, Accepted: v.Accepted,
			Effects: v.Effects, Proofs: v.Proofs, StateUpdates: v.StateUpdates, Metadata: v.Metadata,
		}
		return wcrypto.HashCanonical(wcrypto.DomainReceipt, view)
	case SnapshotReceipt:
		view := snapshotView{
			Worldline: v.Worldline, Seq: v.Seq, PrevHash: v.PrevHash, Timestamp: v.Timestamp,
			AnchoredReceiptHash: v.AnchoredReceiptHash, StateHash: v.StateHash, State: v.State,
		}
		return wcrypto.HashCanonical(wcrypto.DomainReceipt, view)
	default:
		panic("ledger: unknown receipt kind")
	}
}
