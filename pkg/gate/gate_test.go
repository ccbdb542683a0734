package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/worldline-systems/wll/pkg/ledger"
	"github.com/worldline-systems/wll/pkg/wcrypto"
)

func TestValidationStageRejectsBlankIntent(t *testing.T) {
	p := Proposal{Intent: "  ", Targets: []string{"a"}}
	pl := NewDefaultPipeline(PolicySet{}, nil)
	res, err := pl.Evaluate(context.Background(), p, Context{})
	require.NoError(t, err)
	require.Equal(t, Rejected, res.Decision.Kind)
}

func TestCapabilityStageRejectsUnheldCapability(t *testing.T) {
	p := Proposal{Intent: "do thing", Targets: []string{"a"}, ClaimedCapabilities: []string{"write"}}
	pl := NewDefaultPipeline(PolicySet{}, nil)
	res, err := pl.Evaluate(context.Background(), p, Context{})
	require.NoError(t, err)
	require.Equal(t, Rejected, res.Decision.Kind)
}

func TestPolicyStageRequireEvidenceRejectsEmptyBundle(t *testing.T) {
	policies := PolicySet{Policies: []Policy{
		{Name: "needs-evidence", Scope: Scope{Kind: ScopeAll}, Rules: []Rule{{Kind: RuleRequireEvidence}}},
	}}
	p := Proposal{Intent: "update config", Targets: []string{"config.yaml"}, Class: ledger.ClassContentUpdate}
	pl := NewDefaultPipeline(policies, nil)

	res, err := pl.Evaluate(context.Background(), p, Context{})
	require.NoError(t, err)
	require.Equal(t, Rejected, res.Decision.Kind)
	require.Contains(t, res.Decision.Reason, "evidence")
}

func TestPolicyStageAcceptsWhenEvidencePresent(t *testing.T) {
	policies := PolicySet{Policies: []Policy{
		{Name: "needs-evidence", Scope: Scope{Kind: ScopeAll}, Rules: []Rule{{Kind: RuleRequireEvidence}}},
	}}
	evidence, err := ledger.NewEvidenceBundle([]string{"https://example.test/ref"})
	require.NoError(t, err)
	p := Proposal{Intent: "update config", Targets: []string{"config.yaml"}, Class: ledger.ClassContentUpdate, Evidence: evidence}
	pl := NewDefaultPipeline(policies, nil)

	res, err := pl.Evaluate(context.Background(), p, Context{})
	require.NoError(t, err)
	require.Equal(t, Accepted, res.Decision.Kind)
}

func TestRequireReviewForDefers(t *testing.T) {
	policies := PolicySet{Policies: []Policy{
		{Name: "review-identity-ops", Scope: Scope{Kind: ScopeAll}, Rules: []Rule{
			{Kind: RuleRequireReviewFor, ReviewClass: ledger.ClassIdentityOperation.Name},
		}},
	}}
	p := Proposal{Intent: "rotate signer", Targets: []string{"identity/signer"}, Class: ledger.ClassIdentityOperation}
	pl := NewDefaultPipeline(policies, nil)

	res, err := pl.Evaluate(context.Background(), p, Context{})
	require.NoError(t, err)
	require.Equal(t, Deferred, res.Decision.Kind)
}

func TestPermissiveModeShortCircuits(t *testing.T) {
	policies := PolicySet{Policies: []Policy{
		{Name: "deny-everything", Scope: Scope{Kind: ScopeAll}, Rules: []Rule{{Kind: RuleDenyClasses, Classes: []string{ledger.ClassContentUpdate.Name}}}},
	}}
	p := Proposal{Intent: "x", Targets: []string{"a"}, Class: ledger.ClassContentUpdate}
	pl := NewDefaultPipeline(policies, nil)

	res, err := pl.Evaluate(context.Background(), p, Context{Permissive: true})
	require.NoError(t, err)
	require.Equal(t, Accepted, res.Decision.Kind)
	require.Empty(t, res.StageResults)
}

func TestPolicyHashStableAcrossEqualSets(t *testing.T) {
	policies := PolicySet{Policies: []Policy{
		{Name: "p", Scope: Scope{Kind: ScopeAll}, Rules: []Rule{{Kind: RuleMaxTargets, MaxTargets: 3}}},
	}}
	h1, err := policies.Hash()
	require.NoError(t, err)
	h2, err := policies.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)
	require.False(t, h1.IsZero())
}

func TestPipelineLimiterDefersOverLimit(t *testing.T) {
	p := Proposal{Intent: "x", Targets: []string{"a"}}
	pl := NewDefaultPipeline(PolicySet{}, nil)
	pl.Limiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	res, err := pl.Evaluate(context.Background(), p, Context{})
	require.NoError(t, err)
	require.Equal(t, Accepted, res.Decision.Kind, "first call consumes the single burst token")

	res, err = pl.Evaluate(context.Background(), p, Context{})
	require.NoError(t, err)
	require.Equal(t, Deferred, res.Decision.Kind)
	require.Equal(t, "rate limit exceeded", res.Decision.Reason)
	require.Greater(t, res.Decision.RetryAfter, time.Duration(0))
}

func TestPipelineHonorsDeadline(t *testing.T) {
	p := Proposal{Intent: "x", Targets: []string{"a"}}
	pl := NewDefaultPipeline(PolicySet{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	time.Sleep(time.Millisecond)

	res, err := pl.Evaluate(ctx, p, Context{})
	require.NoError(t, err)
	require.Equal(t, Rejected, res.Decision.Kind)
	require.Equal(t, "timeout", res.Decision.Reason)
}

func TestScopeMatchesPathPrefix(t *testing.T) {
	s := Scope{Kind: ScopePath, PathPrefix: "secrets/"}
	p := Proposal{Targets: []string{"secrets/api-key"}}
	require.True(t, s.Matches(p))

	p2 := Proposal{Targets: []string{"readme.md"}}
	require.False(t, s.Matches(p2))
}

func TestRequireSignatureRejectsUnsignedProposal(t *testing.T) {
	policies := PolicySet{Policies: []Policy{
		{Name: "needs-signature", Scope: Scope{Kind: ScopeAll}, Rules: []Rule{{Kind: RuleRequireSignature}}},
	}}
	p := Proposal{Intent: "update config", Targets: []string{"config.yaml"}, Class: ledger.ClassContentUpdate}
	pl := NewDefaultPipeline(policies, nil)

	res, err := pl.Evaluate(context.Background(), p, Context{Proposer: "alice", Keys: NewMemoryKeyProvider()})
	require.NoError(t, err)
	require.Equal(t, Rejected, res.Decision.Kind)
	require.Contains(t, res.Decision.Reason, "not signed")
}

func TestRequireSignatureRejectsUnknownProposer(t *testing.T) {
	policies := PolicySet{Policies: []Policy{
		{Name: "needs-signature", Scope: Scope{Kind: ScopeAll}, Rules: []Rule{{Kind: RuleRequireSignature}}},
	}}
	signer, err := wcrypto.NewMemorySigner()
	require.NoError(t, err)
	p := Proposal{Intent: "update config", Targets: []string{"config.yaml"}, Class: ledger.ClassContentUpdate}
	p.Signature = signer.Sign(mustSigningBytes(t, p))

	pl := NewDefaultPipeline(policies, nil)
	res, err := pl.Evaluate(context.Background(), p, Context{Proposer: "alice", Keys: NewMemoryKeyProvider()})
	require.NoError(t, err)
	require.Equal(t, Rejected, res.Decision.Kind)
	require.Contains(t, res.Decision.Reason, "no public key registered")
}

func TestRequireSignatureAcceptsValidSignature(t *testing.T) {
	policies := PolicySet{Policies: []Policy{
		{Name: "needs-signature", Scope: Scope{Kind: ScopeAll}, Rules: []Rule{{Kind: RuleRequireSignature}}},
	}}
	signer, err := wcrypto.NewMemorySigner()
	require.NoError(t, err)
	p := Proposal{Intent: "update config", Targets: []string{"config.yaml"}, Class: ledger.ClassContentUpdate}
	p.Signature = signer.Sign(mustSigningBytes(t, p))

	keys := NewMemoryKeyProvider()
	keys.RegisterSigner("alice", signer)

	pl := NewDefaultPipeline(policies, nil)
	res, err := pl.Evaluate(context.Background(), p, Context{Proposer: "alice", Keys: keys})
	require.NoError(t, err)
	require.Equal(t, Accepted, res.Decision.Kind)
}

func TestRequireSignatureRejectsTamperedProposal(t *testing.T) {
	policies := PolicySet{Policies: []Policy{
		{Name: "needs-signature", Scope: Scope{Kind: ScopeAll}, Rules: []Rule{{Kind: RuleRequireSignature}}},
	}}
	signer, err := wcrypto.NewMemorySigner()
	require.NoError(t, err)
	signed := Proposal{Intent: "update config", Targets: []string{"config.yaml"}, Class: ledger.ClassContentUpdate}
	signed.Signature = signer.Sign(mustSigningBytes(t, signed))

	tampered := signed
	tampered.Targets = []string{"secrets.yaml"}

	keys := NewMemoryKeyProvider()
	keys.RegisterSigner("alice", signer)

	pl := NewDefaultPipeline(policies, nil)
	res, err := pl.Evaluate(context.Background(), tampered, Context{Proposer: "alice", Keys: keys})
	require.NoError(t, err)
	require.Equal(t, Rejected, res.Decision.Kind)
	require.Contains(t, res.Decision.Reason, "signature verification failed")
}

func mustSigningBytes(t *testing.T, p Proposal) []byte {
	t.Helper()
	b, err := p.SigningBytes()
	require.NoError(t, err)
	return b
}

func TestToLedgerDecisionMapsDeferredAndRetryAfter(t *testing.T) {
	d := Decision{Kind: Deferred, Reason: "needs review", RetryAfter: 5 * time.Second}
	ld := d.ToLedgerDecision()
	require.Equal(t, ledger.OutcomeDeferred, ld.Outcome)
	require.Equal(t, int64(5000), ld.RetryAfter)
}

