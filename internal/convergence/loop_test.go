package convergence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthropics/convergence-engine/contracts"
	"github.com/anthropics/convergence-engine/internal/repository"
)

func newTestLoop(trajectories contracts.TrajectoryRepository) *Loop {
	return NewLoop(Deps{Trajectories: trajectories})
}

func TestCheckTermination_ConvergedWhenAllPassingAboveTarget(t *testing.T) {
	l := newTestLoop(repository.NewTrajectoryRepository())
	trajectory := &contracts.Trajectory{
		Policy: contracts.ConvergencePolicy{TargetConfidence: 0.9},
		Observations: []contracts.Observation{
			{Signals: contracts.OverseerSignals{
				TestResults: &contracts.TestResults{Passed: 10, Failed: 0},
				BuildResult: &contracts.BuildResult{Success: true},
			}},
		},
	}
	assert.Equal(t, contracts.PhaseConverged, l.checkTermination(trajectory))
}

func TestCheckTermination_TrappedBeatsExhausted(t *testing.T) {
	l := newTestLoop(repository.NewTrajectoryRepository())
	trajectory := &contracts.Trajectory{
		Attractor: contracts.AttractorState{Type: contracts.AttractorLimitCycle, Confidence: 0.9},
		Budget:    contracts.ConvergenceBudget{MaxTokens: 100, TokensUsed: 100},
	}
	assert.Equal(t, contracts.PhaseTrapped, l.checkTermination(trajectory))
}

func TestCheckTermination_DivergingWhenConfident(t *testing.T) {
	l := newTestLoop(repository.NewTrajectoryRepository())
	trajectory := &contracts.Trajectory{
		Attractor: contracts.AttractorState{Type: contracts.AttractorDivergent, Confidence: 0.85},
	}
	assert.Equal(t, contracts.PhaseDiverging, l.checkTermination(trajectory))
}

func TestCheckTermination_ExhaustedWhenBudgetSpent(t *testing.T) {
	l := newTestLoop(repository.NewTrajectoryRepository())
	trajectory := &contracts.Trajectory{
		Budget: contracts.ConvergenceBudget{MaxTokens: 100, TokensUsed: 100},
	}
	assert.Equal(t, contracts.PhaseExhausted, l.checkTermination(trajectory))
}

func TestCheckTermination_IteratingOtherwise(t *testing.T) {
	l := newTestLoop(repository.NewTrajectoryRepository())
	trajectory := &contracts.Trajectory{
		Budget: contracts.ConvergenceBudget{MaxTokens: 100, TokensUsed: 1, MaxIterations: 10},
	}
	assert.Equal(t, contracts.PhaseIterating, l.checkTermination(trajectory))
}

func TestFreshStartExclusion_LiftsAfterConfiguredIterations(t *testing.T) {
	l := newTestLoop(repository.NewTrajectoryRepository())
	trajectory := &contracts.Trajectory{
		Policy: contracts.ConvergencePolicy{MaxFreshStarts: 1, FreshStartExcludeIterations: 2},
		Observations: []contracts.Observation{
			{ChosenStrategy: contracts.StrategyDecompose},
		},
	}
	ApplyFreshStart(trajectory, "diverging")

	// The first two iterations after the reset still forbid the strategy.
	assert.True(t, l.activeFreshStartExclusion(trajectory)[contracts.StrategyDecompose])
	assert.True(t, l.activeFreshStartExclusion(trajectory)[contracts.StrategyDecompose])

	// The window is spent: nothing is excluded and the hints are cleared.
	assert.Nil(t, l.activeFreshStartExclusion(trajectory))
	assert.NotContains(t, trajectory.Hints, "fresh_start_excluded_strategy")
	assert.NotContains(t, trajectory.Hints, "fresh_start_exclude_remaining")
}

func TestRun_ZeroIterationBudgetExhaustsImmediately(t *testing.T) {
	repo := repository.NewTrajectoryRepository()
	l := newTestLoop(repo)
	trajectory := &contracts.Trajectory{
		ID:     "tr-zero",
		Policy: contracts.DefaultConvergencePolicy(),
		Budget: contracts.ConvergenceBudget{MaxTokens: 50_000, MaxIterations: 0},
		Phase:  contracts.PhaseIterating,
	}
	require.NoError(t, repo.Save(context.Background(), trajectory))

	report, err := l.Run(context.Background(), trajectory)
	require.NoError(t, err)
	assert.Equal(t, contracts.PhaseExhausted, report.Phase)
	assert.Empty(t, trajectory.Observations, "no iteration may run with a zero iteration budget")
	assert.Equal(t, contracts.PhaseExhausted, trajectory.Phase)
}

func TestFinalize_TrappedWithFreshStartsLeftResumesIteration(t *testing.T) {
	repo := repository.NewTrajectoryRepository()
	l := newTestLoop(repo)
	trajectory := &contracts.Trajectory{
		ID:        "tr1",
		Policy:    contracts.ConvergencePolicy{MaxFreshStarts: 2},
		Attractor: contracts.AttractorState{Type: contracts.AttractorLimitCycle, Confidence: 0.9},
	}

	_, freshStarted, err := l.finalize(context.Background(), trajectory, contracts.PhaseTrapped)
	require.NoError(t, err)
	assert.True(t, freshStarted)
	assert.Equal(t, contracts.AttractorIndeterminate, trajectory.Attractor.Type)
	assert.Equal(t, 1, trajectory.TotalFreshStarts)
}

func TestFinalize_TrappedWithNoFreshStartsLeftTerminates(t *testing.T) {
	repo := repository.NewTrajectoryRepository()
	l := newTestLoop(repo)
	trajectory := &contracts.Trajectory{
		ID:        "tr1",
		Policy:    contracts.ConvergencePolicy{MaxFreshStarts: 0},
		Attractor: contracts.AttractorState{Type: contracts.AttractorLimitCycle, Confidence: 0.9},
	}

	report, freshStarted, err := l.finalize(context.Background(), trajectory, contracts.PhaseTrapped)
	require.NoError(t, err)
	assert.False(t, freshStarted)
	assert.Equal(t, contracts.PhaseTrapped, report.Phase)
	assert.Equal(t, contracts.PhaseTrapped, trajectory.Phase)
}

func TestFinalize_ConvergedNeverFreshStarts(t *testing.T) {
	repo := repository.NewTrajectoryRepository()
	l := newTestLoop(repo)
	trajectory := &contracts.Trajectory{ID: "tr1", Policy: contracts.ConvergencePolicy{MaxFreshStarts: 5}}

	report, freshStarted, err := l.finalize(context.Background(), trajectory, contracts.PhaseConverged)
	require.NoError(t, err)
	assert.False(t, freshStarted)
	assert.Equal(t, contracts.PhaseConverged, report.Phase)
}

func TestStatus_ReflectsTrajectoryState(t *testing.T) {
	l := newTestLoop(repository.NewTrajectoryRepository())
	trajectory := &contracts.Trajectory{
		ID:     "tr1",
		GoalID: "g1",
		Phase:  contracts.PhaseIterating,
		Observations: []contracts.Observation{
			{Artifact: contracts.ArtifactRef{Path: "out.go", ContentHash: "h1"}},
		},
	}

	snap := l.Status(trajectory)
	assert.Equal(t, 1, snap.ObservationCount)
	require.NotNil(t, snap.LastArtifact)
	assert.Equal(t, "h1", snap.LastArtifact.ContentHash)
}

func TestForceStrategy_SetsForcedStrategyField(t *testing.T) {
	trajectory := &contracts.Trajectory{}
	ForceStrategy(trajectory, contracts.StrategyDecompose)
	require.NotNil(t, trajectory.ForcedStrategy)
	assert.Equal(t, contracts.StrategyDecompose, *trajectory.ForcedStrategy)
}
