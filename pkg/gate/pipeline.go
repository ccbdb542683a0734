package gate

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/worldline-systems/wll/pkg/observability"
)

// DefaultTimeout is the per-pipeline-run budget when the caller does not
// set one on ctx (§5 "Gate pipelines carry a configured timeout, default
// 30 s").
const DefaultTimeout = 30 * time.Second

// Pipeline is an ordered, fail-fast sequence of stages. The gate is the
// only path to a commitment — nothing else accepts a proposal.
type Pipeline struct {
	Stages   []Stage
	Policies PolicySet
	// Observer, when set, tracks each Evaluate call as a RED-instrumented
	// "gate.evaluate" operation (rate, errors, duration).
	Observer *observability.Provider
	// Limiter, when set, caps the pipeline's overall evaluation
	// throughput. A proposal that would exceed it is Deferred with
	// RetryAfter set to the token bucket's reservation delay, rather
	// than evaluated or made to block.
	Limiter *rate.Limiter
}

// NewDefaultPipeline wires the three built-in stages in the order §4.5
// specifies: Validation, Capability, Policy.
func NewDefaultPipeline(policies PolicySet, customProviders map[string]CustomProvider) *Pipeline {
	return &Pipeline{
		Stages: []Stage{
			ValidationStage{},
			CapabilityStage{},
			PolicyStage{Policies: policies, CustomProviders: customProviders},
		},
		Policies: policies,
	}
}

// Evaluate runs every stage in order against p/ctx, stopping at the
// first non-Pass verdict (fail-fast). Permissive mode short-circuits the
// whole pipeline to Accepted before any stage runs. If ctx carries no
// deadline, DefaultTimeout is applied.
func (pl *Pipeline) Evaluate(parent context.Context, p Proposal, ctx Context) (result Result, err error) {
	if pl.Observer != nil {
		var done func(error)
		parent, done = pl.Observer.TrackOperation(parent, "gate.evaluate", attribute.String("class", p.Class.Name))
		defer func() { done(err) }()
	}

	runCtx := parent
	if _, hasDeadline := parent.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(parent, DefaultTimeout)
		defer cancel()
	}

	policyHash, err := pl.Policies.Hash()
	if err != nil {
		return Result{}, fmt.Errorf("gate: hash policy set: %w", err)
	}

	start := time.Now()

	if pl.Limiter != nil {
		reservation := pl.Limiter.Reserve()
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			return Result{
				Decision:   Decision{Kind: Deferred, Reason: "rate limit exceeded", RetryAfter: delay},
				PolicyHash: policyHash,
				Elapsed:    time.Since(start),
			}, nil
		}
	}

	if ctx.Permissive {
		return Result{
			Decision:     Decision{Kind: Accepted},
			PolicyHash:   policyHash,
			StageResults: nil,
			Elapsed:      time.Since(start),
		}, nil
	}

	var stageResults []StageResult
	for _, stage := range pl.Stages {
		select {
		case <-runCtx.Done():
			stageResults = append(stageResults, StageResult{Stage: stage.Name(), Verdict: Fail, Reason: "timeout"})
			return Result{
				Decision:     Decision{Kind: Rejected, Reason: "timeout"},
				PolicyHash:   policyHash,
				StageResults: stageResults,
				Elapsed:      time.Since(start),
			}, nil
		default:
		}

		stageStart := time.Now()
		verdict, reason := stage.Evaluate(p, ctx)
		elapsed := time.Since(stageStart)
		stageResults = append(stageResults, StageResult{Stage: stage.Name(), Verdict: verdict, Reason: reason, Elapsed: elapsed})

		switch verdict {
		case Fail:
			return Result{
				Decision:     Decision{Kind: Rejected, Reason: reason},
				PolicyHash:   policyHash,
				StageResults: stageResults,
				Elapsed:      time.Since(start),
			}, nil
		case Defer:
			return Result{
				Decision:     Decision{Kind: Deferred, Reason: reason},
				PolicyHash:   policyHash,
				StageResults: stageResults,
				Elapsed:      time.Since(start),
			}, nil
		}
	}

	return Result{
		Decision:     Decision{Kind: Accepted},
		PolicyHash:   policyHash,
		StageResults: stageResults,
		Elapsed:      time.Since(start),
	}, nil
}

