package convergence

import "github.com/anthropics/convergence-engine/contracts"

// minObservationsForClassification is the data floor below which the
// classifier refuses to commit to anything but Indeterminate.
const minObservationsForClassification = 3

// limitCycleLookback bounds how many recent artifact signatures the
// limit-cycle check inspects.
const limitCycleLookback = 8

// Classify reclassifies a trajectory's attractor from its observation
// history per spec.md §4.1. window is the rolling window W used by the
// FixedPoint/Plateau/Divergent checks (policy.PlateauWindow).
func Classify(observations []contracts.Observation, policy contracts.ConvergencePolicy) contracts.AttractorState {
	if len(observations) < minObservationsForClassification {
		return contracts.AttractorState{
			Type:       contracts.AttractorIndeterminate,
			Confidence: 0,
			Evidence:   evidenceFrom(observations),
		}
	}

	window := policy.PlateauWindow
	if window < 1 {
		window = 1
	}

	if state, ok := classifyLimitCycle(observations); ok {
		return state
	}
	if state, ok := classifyDivergent(observations, window); ok {
		return state
	}
	if state, ok := classifyFlat(observations, policy, window); ok {
		return state
	}

	return contracts.AttractorState{
		Type:       contracts.AttractorIndeterminate,
		Confidence: 0.3,
		Evidence:   evidenceFrom(observations),
	}
}

func evidenceFrom(observations []contracts.Observation) contracts.AttractorEvidence {
	n := len(observations)
	lookback := limitCycleLookback
	if lookback > n {
		lookback = n
	}
	recent := observations[n-lookback:]

	deltas := make([]float64, 0, len(recent))
	sigs := make([]string, 0, len(recent))
	for _, o := range recent {
		sigs = append(sigs, o.Artifact.ContentHash)
	}
	// deltas are only meaningful once two consecutive signals exist; the
	// caller (the loop) is the source of truth for per-step deltas, but we
	// recompute here from signals so the classifier is self-contained.
	for i := 1; i < len(recent); i++ {
		prev, curr := recent[i-1].Signals, recent[i].Signals
		deltas = append(deltas, Delta(&prev, &curr))
	}
	return contracts.AttractorEvidence{RecentDeltas: deltas, RecentSignatures: sigs}
}

func rollingDeltas(observations []contracts.Observation, window int) []float64 {
	n := len(observations)
	if window > n-1 {
		window = n - 1
	}
	if window < 1 {
		return nil
	}
	deltas := make([]float64, 0, window)
	for i := n - window; i < n; i++ {
		prev, curr := observations[i-1].Signals, observations[i].Signals
		deltas = append(deltas, Delta(&prev, &curr))
	}
	return deltas
}

func classifyFlat(observations []contracts.Observation, policy contracts.ConvergencePolicy, window int) (contracts.AttractorState, bool) {
	deltas := rollingDeltas(observations, window)
	if len(deltas) < window {
		return contracts.AttractorState{}, false
	}

	for _, d := range deltas {
		if absf(d) >= policy.DeltaEpsilon {
			return contracts.AttractorState{}, false
		}
	}

	level := Level(&observations[len(observations)-1].Signals)
	nonDecreasing := isNonDecreasingLevel(observations, window)

	confidence := 0.5 + 0.1*float64(window-policy.PlateauWindow)
	if confidence > 0.95 {
		confidence = 0.95
	}

	if level < policy.TargetConfidence {
		return contracts.AttractorState{
			Type:          contracts.AttractorPlateau,
			Confidence:    confidence,
			StallDuration: window,
			PlateauLevel:  level,
			Evidence:      evidenceFrom(observations),
		}, true
	}
	if nonDecreasing {
		return contracts.AttractorState{
			Type:                   contracts.AttractorFixedPoint,
			Confidence:             confidence,
			EstRemainingIterations: 0,
			Evidence:               evidenceFrom(observations),
		}, true
	}
	return contracts.AttractorState{}, false
}

func isNonDecreasingLevel(observations []contracts.Observation, window int) bool {
	n := len(observations)
	start := n - window
	if start < 0 {
		start = 0
	}
	prevLevel := Level(&observations[start].Signals)
	for i := start + 1; i < n; i++ {
		level := Level(&observations[i].Signals)
		if level < prevLevel {
			return false
		}
		prevLevel = level
	}
	return true
}

func classifyDivergent(observations []contracts.Observation, window int) (contracts.AttractorState, bool) {
	deltas := rollingDeltas(observations, window)
	if len(deltas) < window {
		return contracts.AttractorState{}, false
	}

	var sum float64
	for _, d := range deltas {
		sum += d
	}
	meanDelta := sum / float64(len(deltas))

	errorsIncreasing := true
	n := len(observations)
	start := n - window
	if start < 0 {
		start = 0
	}
	prevErrors := errorCount(&observations[start].Signals)
	for i := start + 1; i < n; i++ {
		curErrors := errorCount(&observations[i].Signals)
		if curErrors <= prevErrors {
			errorsIncreasing = false
			break
		}
		prevErrors = curErrors
	}

	if meanDelta < 0 || errorsIncreasing {
		confidence := 0.6
		if meanDelta < -0.2 {
			confidence = 0.85
		}
		return contracts.AttractorState{
			Type:       contracts.AttractorDivergent,
			Confidence: confidence,
			GrowthRate: -meanDelta,
			Evidence:   evidenceFrom(observations),
		}, true
	}
	return contracts.AttractorState{}, false
}

// classifyLimitCycle looks for a repeated artifact-signature pattern of
// period >= 2 covering at least two full periods within the lookback
// window.
func classifyLimitCycle(observations []contracts.Observation) (contracts.AttractorState, bool) {
	n := len(observations)
	lookback := limitCycleLookback
	if lookback > n {
		lookback = n
	}
	sigs := make([]string, lookback)
	for i := 0; i < lookback; i++ {
		sigs[i] = observations[n-lookback+i].Artifact.ContentHash
	}

	for period := 2; period <= lookback/2; period++ {
		if coversTwoFullPeriods(sigs, period) && !constantWindow(sigs, period*2) {
			recentDeltas := rollingDeltas(observations, period*2)
			return contracts.AttractorState{
				Type:       contracts.AttractorLimitCycle,
				Confidence: 0.8,
				Period:     period,
				Deltas:     recentDeltas,
				Evidence:   evidenceFrom(observations),
			}, true
		}
	}
	return contracts.AttractorState{}, false
}

// constantWindow reports whether the last n signatures are all identical.
// A constant run trivially satisfies every period's repetition check, but
// it is evidence of a FixedPoint, not a cycle, so classifyLimitCycle
// excludes it.
func constantWindow(sigs []string, n int) bool {
	if len(sigs) < n || n == 0 {
		return false
	}
	tail := sigs[len(sigs)-n:]
	for _, s := range tail {
		if s != tail[0] {
			return false
		}
	}
	return true
}

func coversTwoFullPeriods(sigs []string, period int) bool {
	need := period * 2
	if len(sigs) < need {
		return false
	}
	tail := sigs[len(sigs)-need:]
	for i := 0; i < period; i++ {
		if tail[i] != tail[i+period] {
			return false
		}
	}
	return true
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
