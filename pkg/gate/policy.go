package gate

import (
	"strings"

	"github.com/worldline-systems/wll/pkg/wcrypto"
)

// ScopeKind enumerates the ways a policy can be scoped to a subset of
// proposals (§4.5 Policy "applies_to scope").
type ScopeKind string

const (
	ScopeAll       ScopeKind = "all"
	ScopeWorldline ScopeKind = "worldline"
	ScopeClass     ScopeKind = "class"
	ScopePath      ScopeKind = "path"
)

// Scope narrows which proposals a Policy's rules apply to.
type Scope struct {
	Kind      ScopeKind
	Worldline wcrypto.Digest
	Class     string
	PathPrefix string
}

// Matches reports whether p falls under this scope.
func (s Scope) Matches(p Proposal) bool {
	switch s.Kind {
	case ScopeAll:
		return true
	case ScopeWorldline:
		return s.Worldline == p.Worldline
	case ScopeClass:
		return s.Class == p.Class.Name
	case ScopePath:
		for _, t := range p.Targets {
			if strings.HasPrefix(t, s.PathPrefix) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// RuleKind enumerates the built-in policy rules (§4.5).
type RuleKind string

const (
	RuleRequireCapability RuleKind = "require_capability"
	RuleRequireEvidence   RuleKind = "require_evidence"
	RuleRequireSignature  RuleKind = "require_signature"
	RuleMaxTargets        RuleKind = "max_targets"
	RuleAllowedClasses    RuleKind = "allowed_classes"
	RuleDenyClasses       RuleKind = "deny_classes"
	RuleRequireReviewFor  RuleKind = "require_review_for"
	RuleCustom            RuleKind = "custom"
)

// Rule is one policy check. Only the fields relevant to Kind are
// populated; json tags cover every field so the whole rule set can be
// canonically hashed.
type Rule struct {
	Kind            RuleKind `json:"kind"`
	CapabilityName  string   `json:"capability_name,omitempty"`
	MaxTargets      int      `json:"max_targets,omitempty"`
	Classes         []string `json:"classes,omitempty"`
	ReviewClass     string   `json:"review_class,omitempty"`
	CustomName      string   `json:"custom_name,omitempty"`
	CustomConfig    map[string]interface{} `json:"custom_config,omitempty"`
}

// CustomProvider evaluates a Custom rule externally; if none is
// registered for a rule's name, Custom rules pass unconditionally
// (§4.5 "treated as pass unless overridden by an external provider").
type CustomProvider func(p Proposal, ctx Context, rule Rule) (Verdict, string)

// Evaluate runs one rule against p/ctx. customProviders is consulted
// only for RuleCustom.
func (r Rule) Evaluate(p Proposal, ctx Context, customProviders map[string]CustomProvider) (Verdict, string) {
	switch r.Kind {
	case RuleRequireCapability:
		if ctx.HasCapability(r.CapabilityName) {
			return Pass, ""
		}
		return Fail, "missing required capability: " + r.CapabilityName
	case RuleRequireEvidence:
		if len(p.Evidence.References) > 0 {
			return Pass, ""
		}
		return Fail, "evidence bundle is empty"
	case RuleRequireSignature:
		if len(p.Signature) == 0 {
			return Fail, "proposal is not signed"
		}
		if ctx.Keys == nil {
			return Fail, "no key provider configured for signature verification"
		}
		pub, ok := ctx.Keys.PublicKey(ctx.Proposer)
		if !ok {
			return Fail, "no public key registered for proposer: " + ctx.Proposer
		}
		msg, err := p.SigningBytes()
		if err != nil {
			return Fail, "failed to compute signing bytes: " + err.Error()
		}
		if !wcrypto.VerifySignature(pub, msg, p.Signature) {
			return Fail, "signature verification failed"
		}
		return Pass, ""
	case RuleMaxTargets:
		if len(p.Targets) <= r.MaxTargets {
			return Pass, ""
		}
		return Fail, "too many targets for policy limit"
	case RuleAllowedClasses:
		if containsString(r.Classes, p.Class.Name) {
			return Pass, ""
		}
		return Fail, "commitment class not in allowed set"
	case RuleDenyClasses:
		if containsString(r.Classes, p.Class.Name) {
			return Fail, "commitment class is denied"
		}
		return Pass, ""
	case RuleRequireReviewFor:
		if p.Class.Name == r.ReviewClass {
			return Fail, "class requires human review"
		}
		return Pass, ""
	case RuleCustom:
		if provider, ok := customProviders[r.CustomName]; ok {
			return provider(p, ctx, r)
		}
		return Pass, ""
	default:
		return Fail, "unknown rule kind"
	}
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Policy is one scoped bundle of rules.
type Policy struct {
	Name  string `json:"name"`
	Scope Scope  `json:"scope"`
	Rules []Rule `json:"rules"`
}

// PolicySet is the active collection of policies, whose canonical hash
// is recorded on every gate result and commitment receipt (§4.5 "Policy
// hash").
type PolicySet struct {
	Policies []Policy `json:"policies"`
}

// Hash computes BLAKE3 over the canonical JSON of the policy set.
func (ps PolicySet) Hash() (wcrypto.Digest, error) {
	return wcrypto.HashCanonical(wcrypto.DomainPolicySet, ps)
}
