package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthropics/convergence-engine/contracts"
	"github.com/anthropics/convergence-engine/internal/repository"
)

// fixedRand always reports float and Intn deterministically, so tests can
// force the exploration or exploitation arm.
type fixedRand struct {
	float float64
	n     int
}

func (f fixedRand) Float64() float64 { return f.float }
func (f fixedRand) Intn(n int) int   { return f.n % n }

func TestSelect_HonorsForcedStrategy(t *testing.T) {
	sel := &Selector{Trajectories: repository.NewTrajectoryRepository(), Rand: fixedRand{float: 0.99}}
	forced := contracts.StrategyRollback
	trajectory := &contracts.Trajectory{ForcedStrategy: &forced}

	got, err := sel.Select(context.Background(), trajectory, nil)
	require.NoError(t, err)
	assert.Equal(t, contracts.StrategyRollback, got)
}

func TestSelect_ExploresWhenBelowEpsilon(t *testing.T) {
	sel := &Selector{Trajectories: repository.NewTrajectoryRepository(), Rand: fixedRand{float: 0.0, n: 2}}
	trajectory := &contracts.Trajectory{}

	got, err := sel.Select(context.Background(), trajectory, nil)
	require.NoError(t, err)
	assert.Equal(t, contracts.AllStrategyKinds[2], got)
}

func TestSelect_ExplorationExcludesForbiddenStrategies(t *testing.T) {
	sel := &Selector{Trajectories: repository.NewTrajectoryRepository(), Rand: fixedRand{float: 0.0, n: 0}}
	trajectory := &contracts.Trajectory{}
	excluded := map[contracts.StrategyKind]bool{contracts.AllStrategyKinds[0]: true}

	got, err := sel.Select(context.Background(), trajectory, excluded)
	require.NoError(t, err)
	assert.NotEqual(t, contracts.AllStrategyKinds[0], got)
}

// exploitingSelector is past the epsilon decay span with a Float64 that
// never clears the exploration gate, so Select always exploits.
func exploitingSelector(repo contracts.TrajectoryRepository) (*Selector, *contracts.Trajectory) {
	sel := &Selector{Trajectories: repo, Rand: fixedRand{float: 0.999}}
	trajectory := &contracts.Trajectory{Observations: make([]contracts.Observation, EpsilonDecaySpan)}
	return sel, trajectory
}

func entry(strategy contracts.StrategyKind, key contracts.StrategyContextKey, delta float64) contracts.StrategyEntry {
	d := delta
	return contracts.StrategyEntry{Strategy: strategy, Context: key, ConvergenceDeltaAchieved: &d}
}

func TestSelect_ExploitsHighestAverageDelta(t *testing.T) {
	repo := repository.NewTrajectoryRepository()
	ctx := context.Background()
	key := contracts.StrategyContextKey{AttractorName: contracts.AttractorPlateau, LastDeltaSign: 1}
	require.NoError(t, repo.Save(ctx, &contracts.Trajectory{
		ID: "a",
		StrategyLog: []contracts.StrategyEntry{
			entry(contracts.StrategyFocusedRepair, key, 0.8),
		},
	}))
	require.NoError(t, repo.Save(ctx, &contracts.Trajectory{
		ID: "b",
		StrategyLog: []contracts.StrategyEntry{
			entry(contracts.StrategyDecompose, key, -0.5),
		},
	}))

	sel, trajectory := exploitingSelector(repo)
	trajectory.Attractor = contracts.AttractorState{
		Type:     contracts.AttractorPlateau,
		Evidence: contracts.AttractorEvidence{RecentDeltas: []float64{0.1}},
	}

	got, err := sel.Select(ctx, trajectory, nil)
	require.NoError(t, err)
	assert.Equal(t, contracts.StrategyFocusedRepair, got)
}

func TestSelect_ExploitationIsContextScoped(t *testing.T) {
	repo := repository.NewTrajectoryRepository()
	ctx := context.Background()
	here := contracts.StrategyContextKey{AttractorName: contracts.AttractorPlateau, LastDeltaSign: -1}
	elsewhere := contracts.StrategyContextKey{AttractorName: contracts.AttractorFixedPoint, LastDeltaSign: 1}

	// Decompose dominates globally, but under the current context its
	// record is negative and FocusedRepair's is the best.
	require.NoError(t, repo.Save(ctx, &contracts.Trajectory{
		ID: "history",
		StrategyLog: []contracts.StrategyEntry{
			entry(contracts.StrategyDecompose, elsewhere, 0.9),
			entry(contracts.StrategyDecompose, elsewhere, 0.8),
			entry(contracts.StrategyDecompose, here, -0.6),
			entry(contracts.StrategyFocusedRepair, here, 0.2),
		},
	}))

	sel, trajectory := exploitingSelector(repo)
	trajectory.Attractor = contracts.AttractorState{
		Type:     contracts.AttractorPlateau,
		Evidence: contracts.AttractorEvidence{RecentDeltas: []float64{-0.1}},
	}

	got, err := sel.Select(ctx, trajectory, nil)
	require.NoError(t, err)
	assert.Equal(t, contracts.StrategyFocusedRepair, got,
		"exploitation must rank within the bandit context, not globally")
}

func TestSelect_UnexploredContextFallsBackToAttractorHistory(t *testing.T) {
	repo := repository.NewTrajectoryRepository()
	ctx := context.Background()

	// No entry matches (plateau, -1) exactly, but Broaden succeeded under
	// plateau with the opposite delta sign.
	require.NoError(t, repo.Save(ctx, &contracts.Trajectory{
		ID: "history",
		StrategyLog: []contracts.StrategyEntry{
			entry(contracts.StrategyBroaden,
				contracts.StrategyContextKey{AttractorName: contracts.AttractorPlateau, LastDeltaSign: 1}, 0.4),
			entry(contracts.StrategyRollback,
				contracts.StrategyContextKey{AttractorName: contracts.AttractorDivergent, LastDeltaSign: -1}, 0.9),
		},
	}))

	sel, trajectory := exploitingSelector(repo)
	trajectory.Attractor = contracts.AttractorState{
		Type:     contracts.AttractorPlateau,
		Evidence: contracts.AttractorEvidence{RecentDeltas: []float64{-0.1}},
	}

	got, err := sel.Select(ctx, trajectory, nil)
	require.NoError(t, err)
	assert.Equal(t, contracts.StrategyBroaden, got,
		"an unexplored context widens to same-attractor successes, not to another attractor's")
}

func TestSelect_NoHistoryAnywhereFallsBackToDefault(t *testing.T) {
	sel, trajectory := exploitingSelector(repository.NewTrajectoryRepository())

	got, err := sel.Select(context.Background(), trajectory, nil)
	require.NoError(t, err)
	assert.Equal(t, contracts.StrategyRetryWithFeedback, got)
}

func TestEpsilon_DecaysLinearlyThenFloors(t *testing.T) {
	assert.InDelta(t, EpsilonStart, epsilon(0), 1e-9)
	assert.InDelta(t, EpsilonFloor, epsilon(EpsilonDecaySpan), 1e-9)
	assert.InDelta(t, EpsilonFloor, epsilon(EpsilonDecaySpan+50), 1e-9)
	assert.Less(t, epsilon(10), EpsilonStart)
	assert.Greater(t, epsilon(10), EpsilonFloor)
}
