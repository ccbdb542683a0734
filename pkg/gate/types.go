// Package gate implements the commitment gate: a fail-fast pipeline of
// pure stages that decides whether a proposal may be appended to a
// worldline (§4.5). The gate is the only path to a commitment — nothing
// else may accept a proposal.
package gate

import (
	"time"

	"github.com/worldline-systems/wll/pkg/ledger"
	"github.com/worldline-systems/wll/pkg/wcrypto"
)

// Proposal is the caller's request to append a commitment.
type Proposal struct {
	Worldline           wcrypto.Digest
	Intent              string
	Targets             []string
	ClaimedCapabilities []string
	Class               ledger.CommitmentClass
	Evidence            ledger.EvidenceBundle
	// Signature is the Ed25519 signature over SigningBytes(), produced by
	// the proposer's registered signing key. Empty means unsigned.
	Signature []byte
}

// signingProposal is the canonical subset of a Proposal a signature
// commits to: enough to bind it to a specific worldline, intent, target
// set, class and evidence without including evaluation-time-only
// fields (held capabilities, permissive mode).
type signingProposal struct {
	Worldline wcrypto.Digest `json:"worldline"`
	Intent    string         `json:"intent"`
	Targets   []string       `json:"targets"`
	Class     string         `json:"class"`
	Evidence  []string       `json:"evidence"`
}

// SigningBytes returns the canonical JCS bytes a proposer's signature
// must cover (§4.5 RequireSignature).
func (p Proposal) SigningBytes() ([]byte, error) {
	return wcrypto.CanonicalBytes(signingProposal{
		Worldline: p.Worldline,
		Intent:    p.Intent,
		Targets:   p.Targets,
		Class:     p.Class.Name,
		Evidence:  p.Evidence.References,
	})
}

// HeldCapability is one capability the proposer currently holds.
type HeldCapability struct {
	Name      string
	ExpiresAt time.Time // zero means never expires
}

// Context is per-evaluation environment: what the proposer holds,
// whether permissive mode is active, and the key provider RequireSignature
// consults to resolve the proposer's registered public key.
type Context struct {
	Proposer   string
	Held       []HeldCapability
	Permissive bool
	Now        func() time.Time
	Keys       KeyProvider
}

func (c Context) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// HasCapability reports whether name is held, unexpired, at evaluation
// time.
func (c Context) HasCapability(name string) bool {
	now := c.now()
	for _, h := range c.Held {
		if h.Name == name && (h.ExpiresAt.IsZero() || h.ExpiresAt.After(now)) {
			return true
		}
	}
	return false
}

// Verdict is the three-way result a single stage or rule produces.
type Verdict string

const (
	Pass    Verdict = "pass"
	Fail    Verdict = "fail"
	Defer   Verdict = "defer"
)

// StageResult is one stage's outcome, recorded in the pipeline's audit
// trail regardless of whether it short-circuited the run.
type StageResult struct {
	Stage    string
	Verdict  Verdict
	Reason   string
	Elapsed  time.Duration
}

// DecisionKind is the outer shape of a gate's final verdict.
type DecisionKind string

const (
	Accepted DecisionKind = "accepted"
	Rejected DecisionKind = "rejected"
	Deferred DecisionKind = "deferred"
)

// Decision is the gate pipeline's final verdict (§4.5 "Decision =
// Accepted | Rejected(reason) | Deferred(...)").
type Decision struct {
	Kind       DecisionKind
	Reason     string
	RetryAfter time.Duration
}

// ToLedgerDecision converts to the flattened form the receipt ledger
// stores.
func (d Decision) ToLedgerDecision() ledger.Decision {
	var outcome ledger.DecisionOutcome
	switch d.Kind {
	case Accepted:
		outcome = ledger.OutcomeAccepted
	case Rejected:
		outcome = ledger.OutcomeRejected
	case Deferred:
		outcome = ledger.OutcomeDeferred
	}
	return ledger.Decision{Outcome: outcome, Reason: d.Reason, RetryAfter: d.RetryAfter.Milliseconds()}
}

// Result is the full pipeline outcome (§4.5 "Pipeline outcome").
type Result struct {
	Decision     Decision
	PolicyHash   wcrypto.Digest
	StageResults []StageResult
	Elapsed      time.Duration
}

// Stage is a pure evaluation step: (proposal, context) -> verdict.
type Stage interface {
	Name() string
	Evaluate(p Proposal, ctx Context) (Verdict, string)
}
