package gate

import "strings"

// ValidationStage enforces §4.5 stage 1: intent non-blank, targets
// non-empty and each non-blank.
type ValidationStage struct{}

func (ValidationStage) Name() string { return "validation" }

func (ValidationStage) Evaluate(p Proposal, _ Context) (Verdict, string) {
	if strings.TrimSpace(p.Intent) == "" {
		return Fail, "intent must be non-blank"
	}
	if len(p.Targets) == 0 {
		return Fail, "targets must be non-empty"
	}
	for _, t := range p.Targets {
		if strings.TrimSpace(t) == "" {
			return Fail, "target must be non-blank"
		}
	}
	return Pass, ""
}

// CapabilityStage enforces §4.5 stage 2: every claimed capability must
// be held, unexpired, by the proposer. HeldCapability carries no scope,
// so no scope check is made.
type CapabilityStage struct{}

func (CapabilityStage) Name() string { return "capability" }

func (CapabilityStage) Evaluate(p Proposal, ctx Context) (Verdict, string) {
	for _, cap := range p.ClaimedCapabilities {
		if !ctx.HasCapability(cap) {
			return Fail, "claimed capability not held: " + cap
		}
	}
	return Pass, ""
}

// PolicyStage enforces §4.5 stage 3: every policy whose scope matches
// the proposal must have every rule pass.
type PolicyStage struct {
	Policies        PolicySet
	CustomProviders map[string]CustomProvider
}

func (PolicyStage) Name() string { return "policy" }

func (s PolicyStage) Evaluate(p Proposal, ctx Context) (Verdict, string) {
	for _, policy := range s.Policies.Policies {
		if !policy.Scope.Matches(p) {
			continue
		}
		for _, rule := range policy.Rules {
			verdict, reason := rule.Evaluate(p, ctx, s.CustomProviders)
			if verdict == Fail {
				if rule.Kind == RuleRequireReviewFor {
					return Defer, reason
				}
				return Fail, policy.Name + ": " + reason
			}
		}
	}
	return Pass, ""
}
