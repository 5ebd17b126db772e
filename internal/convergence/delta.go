// Package convergence drives one goal's iterate-measure-decide loop:
// allocate budget, pick a strategy, dispatch the DAG executor, run
// overseers, score the result, reclassify the attractor, and decide
// whether to continue.
package convergence

import "github.com/anthropics/convergence-engine/contracts"

const regressionWeight = 2.0

// errorCount sums the build/type/lint error counts present in signals.
func errorCount(s *contracts.OverseerSignals) int {
	n := 0
	if s.BuildResult != nil {
		n += s.BuildResult.ErrorCount
	}
	if s.TypeCheck != nil {
		n += s.TypeCheck.ErrorCount
	}
	if s.LintResults != nil {
		n += s.LintResults.ErrorCount
	}
	return n
}

func failingTestCount(s *contracts.OverseerSignals) int {
	if s.TestResults == nil {
		return 0
	}
	return s.TestResults.Failed
}

func vulnerabilityCount(s *contracts.OverseerSignals) int {
	if s.SecurityScan == nil {
		return 0
	}
	return s.SecurityScan.VulnerabilityCount()
}

// normalizedReduction maps a before/after count pair to a value in
// [-1, 1]: positive when after < before (improvement), negative when it
// regressed, scaled by the larger of the two counts so a single-error
// codebase and a thousand-error codebase both saturate at +/-1.
func normalizedReduction(before, after int) float64 {
	if before == 0 && after == 0 {
		return 0
	}
	denom := before
	if after > denom {
		denom = after
	}
	return float64(before-after) / float64(denom)
}

// Delta computes the convergence delta between two consecutive
// OverseerSignals per spec.md §4.1: a weighted combination of normalized
// error-count reduction and normalized failing-test reduction (regressions
// penalized 2x), capped at 0 if critical+high vulnerabilities strictly
// increased.
func Delta(prev, curr *contracts.OverseerSignals) float64 {
	errDelta := normalizedReduction(errorCount(prev), errorCount(curr))

	testBefore, testAfter := failingTestCount(prev), failingTestCount(curr)
	testDelta := normalizedReduction(testBefore, testAfter)
	if testAfter > testBefore {
		testDelta *= regressionWeight
	}

	delta := (errDelta + testDelta) / 2
	if delta > 1 {
		delta = 1
	}
	if delta < -1 {
		delta = -1
	}

	if vulnerabilityCount(curr) > vulnerabilityCount(prev) {
		if delta > 0 {
			delta = 0
		}
	}
	return delta
}

// Level computes the convergence level of signals per spec.md §4.1: a
// weighted average of per-source sub-levels, 0 when no signal is present,
// capped at 0.3 when the build failed.
func Level(s *contracts.OverseerSignals) float64 {
	if !s.HasAnySignal() {
		return 0
	}

	var sum float64
	var n int

	if s.TestResults != nil {
		total := s.TestResults.Passed + s.TestResults.Failed
		if total == 0 {
			sum += 1
		} else {
			sum += float64(s.TestResults.Passed) / float64(total)
		}
		n++
	}
	if s.TypeCheck != nil {
		if s.TypeCheck.Clean {
			sum += 1
		}
		n++
	}
	if s.BuildResult != nil {
		if s.BuildResult.Success {
			sum += 1
		}
		n++
	}
	for _, c := range s.CustomChecks {
		if c.Pass {
			sum += 1
		}
		n++
	}

	if n == 0 {
		return 0
	}
	level := sum / float64(n)

	if s.BuildResult != nil && !s.BuildResult.Success && level > 0.3 {
		level = 0.3
	}
	return level
}
