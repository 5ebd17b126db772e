// Package overseer runs the registered external verifiers against a
// produced artifact in cost-ordered phases, folding their updates into one
// OverseerSignals and short-circuiting on a blocking cheap-phase failure.
package overseer

import (
	"context"
	"time"

	"github.com/anthropics/convergence-engine/contracts"
	"github.com/anthropics/convergence-engine/internal/audit"
)

// Cluster groups registered overseers by cost class and runs them in
// cheap -> moderate -> expensive order, grounded in the teacher's
// context_builder.go fold-over-dependencies shape generalized to
// fold-over-phases here.
type Cluster struct {
	cheap     []contracts.Overseer
	moderate  []contracts.Overseer
	expensive []contracts.Overseer

	// PerOverseerTimeout bounds each individual overseer's Measure call.
	PerOverseerTimeout time.Duration
}

// NewCluster groups overseers by their declared cost class.
func NewCluster(overseers []contracts.Overseer) *Cluster {
	c := &Cluster{PerOverseerTimeout: 60 * time.Second}
	for _, o := range overseers {
		switch o.Cost() {
		case contracts.CostCheap:
			c.cheap = append(c.cheap, o)
		case contracts.CostModerate:
			c.moderate = append(c.moderate, o)
		case contracts.CostExpensive:
			c.expensive = append(c.expensive, o)
		}
	}
	return c
}

// Run executes the registered overseers against artifact, short-circuiting
// after the cheap phase on a blocking failure and after the moderate phase
// if policy.SkipExpensiveOverseers is set.
func (c *Cluster) Run(ctx context.Context, artifact contracts.ArtifactRef, policy contracts.ConvergencePolicy) contracts.OverseerSignals {
	signals := contracts.OverseerSignals{}

	c.runPhase(ctx, artifact, c.cheap, &signals)
	if signals.BlockingFailure() {
		audit.Log("event=overseer_phase_shortcircuit phase=cheap reason=blocking_failure path=%s", artifact.Path)
		return signals
	}

	c.runPhase(ctx, artifact, c.moderate, &signals)
	if policy.SkipExpensiveOverseers {
		audit.Log("event=overseer_phase_skipped phase=expensive reason=policy")
		return signals
	}

	c.runPhase(ctx, artifact, c.expensive, &signals)
	return signals
}

// runPhase runs every overseer in a cost phase, folding each result into
// signals. A crashing or erroring overseer is logged and omitted; its
// absence never fails the cluster.
func (c *Cluster) runPhase(ctx context.Context, artifact contracts.ArtifactRef, phase []contracts.Overseer, signals *contracts.OverseerSignals) {
	for _, o := range phase {
		result := c.measureOne(ctx, o, artifact)
		if result == nil {
			continue
		}
		fold(signals, result.Signal)
	}
}

// measureOne runs a single overseer with panic recovery and a per-overseer
// timeout, matching the "crashing overseer is logged and omitted" error
// policy.
func (c *Cluster) measureOne(ctx context.Context, o contracts.Overseer, artifact contracts.ArtifactRef) (result *contracts.OverseerResult) {
	defer func() {
		if r := recover(); r != nil {
			audit.Log("event=overseer_panic name=%s recover=%v", o.Name(), r)
			result = nil
		}
	}()

	octx, cancel := context.WithTimeout(ctx, c.PerOverseerTimeout)
	defer cancel()

	start := time.Now()
	res, err := o.Measure(octx, artifact)
	if err != nil {
		audit.Log("event=overseer_failed name=%s duration_ms=%d error=%s",
			o.Name(), time.Since(start).Milliseconds(), err.Error())
		return nil
	}
	audit.Log("event=overseer_completed name=%s cost=%s pass=%t duration_ms=%d",
		o.Name(), o.Cost(), res.Pass, time.Since(start).Milliseconds())
	return res
}

// fold applies an OverseerSignalUpdate into signals per the first-non-nil-
// wins rule: a field already populated (by an earlier, cheaper phase) is
// never overwritten. CustomChecks is the one field that accumulates
// instead of winner-takes-all.
func fold(signals *contracts.OverseerSignals, update contracts.OverseerSignalUpdate) {
	switch update.Kind {
	case contracts.UpdateTestResults:
		if signals.TestResults == nil {
			signals.TestResults = update.TestResults
		}
	case contracts.UpdateTypeCheck:
		if signals.TypeCheck == nil {
			signals.TypeCheck = update.TypeCheck
		}
	case contracts.UpdateLintResults:
		if signals.LintResults == nil {
			signals.LintResults = update.LintResults
		}
	case contracts.UpdateBuildResult:
		if signals.BuildResult == nil {
			signals.BuildResult = update.BuildResult
		}
	case contracts.UpdateSecurityScan:
		if signals.SecurityScan == nil {
			signals.SecurityScan = update.SecurityScan
		}
	case contracts.UpdateCustomCheck:
		if update.CustomCheck != nil {
			signals.CustomChecks = append(signals.CustomChecks, *update.CustomCheck)
		}
	}
}
