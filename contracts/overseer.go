package contracts

import "context"

// CostClass orders overseers into the cheap/moderate/expensive phases the
// overseer cluster runs in sequence, short-circuiting on a blocking failure
// after the cheap phase.
type CostClass int

const (
	CostCheap CostClass = iota
	CostModerate
	CostExpensive
)

func (c CostClass) String() string {
	switch c {
	case CostCheap:
		return "cheap"
	case CostModerate:
		return "moderate"
	case CostExpensive:
		return "expensive"
	default:
		return "unknown"
	}
}

// TestResults carries the outcome of a test-suite overseer.
type TestResults struct {
	Passed          int
	Failed          int
	Skipped         int
	RegressionCount int
	FailingNames    []string
}

// AllPassing reports whether no test failed and no regression was
// recorded; skipped tests do not count against it.
func (t *TestResults) AllPassing() bool {
	return t.Failed == 0 && t.RegressionCount == 0
}

// TypeCheckResult carries the outcome of a type-checking overseer.
type TypeCheckResult struct {
	Clean      bool
	ErrorCount int
	Messages   []string
}

// LintResult carries the outcome of a lint overseer.
type LintResult struct {
	ErrorCount   int
	WarningCount int
}

// BuildResult carries the outcome of a build overseer.
type BuildResult struct {
	Success    bool
	ErrorCount int
	Messages   []string
}

// SecurityScanResult carries the outcome of a security-scanning overseer.
type SecurityScanResult struct {
	Critical int
	High     int
	Medium   int
}

// VulnerabilityCount is the critical+high count the convergence delta's
// security veto watches for strict increases in.
func (s *SecurityScanResult) VulnerabilityCount() int {
	return s.Critical + s.High
}

// CustomCheckResult is a named pass/fail check outside the built-in set.
type CustomCheckResult struct {
	Name    string
	Pass    bool
	Details string
}

// OverseerSignals is the aggregate result of one overseer phase sequence.
// Every field besides CustomChecks is optional (nil means "no overseer of
// this kind ran"); the fold rule is first-non-nil-wins across phases, cheap
// beating moderate beating expensive.
type OverseerSignals struct {
	TestResults  *TestResults
	TypeCheck    *TypeCheckResult
	LintResults  *LintResult
	BuildResult  *BuildResult
	SecurityScan *SecurityScanResult
	CustomChecks []CustomCheckResult
}

// HasAnySignal reports whether any overseer contributed a result.
func (s *OverseerSignals) HasAnySignal() bool {
	if s == nil {
		return false
	}
	return s.TestResults != nil || s.TypeCheck != nil || s.LintResults != nil ||
		s.BuildResult != nil || s.SecurityScan != nil || len(s.CustomChecks) > 0
}

// AllPassing reports whether every signal present represents a pass. An
// empty OverseerSignals is vacuously all-passing (spec invariant), but
// HasAnySignal is false in that case so convergence level still reads 0.
func (s *OverseerSignals) AllPassing() bool {
	if s == nil {
		return true
	}
	if s.TestResults != nil && !s.TestResults.AllPassing() {
		return false
	}
	if s.TypeCheck != nil && !s.TypeCheck.Clean {
		return false
	}
	if s.BuildResult != nil && !s.BuildResult.Success {
		return false
	}
	for _, c := range s.CustomChecks {
		if !c.Pass {
			return false
		}
	}
	return true
}

// BlockingFailure reports whether the cheap-phase signals warrant
// short-circuiting the remaining overseer phases: a build failure or a
// dirty type-check.
func (s *OverseerSignals) BlockingFailure() bool {
	if s == nil {
		return false
	}
	if s.BuildResult != nil && !s.BuildResult.Success {
		return true
	}
	if s.TypeCheck != nil && !s.TypeCheck.Clean {
		return true
	}
	return false
}

// OverseerSignalUpdateKind tags which single field of OverseerSignals an
// OverseerResult is reporting.
type OverseerSignalUpdateKind string

const (
	UpdateTestResults  OverseerSignalUpdateKind = "test_results"
	UpdateTypeCheck    OverseerSignalUpdateKind = "type_check"
	UpdateLintResults  OverseerSignalUpdateKind = "lint_results"
	UpdateBuildResult  OverseerSignalUpdateKind = "build_result"
	UpdateSecurityScan OverseerSignalUpdateKind = "security_scan"
	UpdateCustomCheck  OverseerSignalUpdateKind = "custom_check"
)

// OverseerSignalUpdate names exactly one field of OverseerSignals an
// overseer is contributing. Exactly one of the typed fields is populated,
// selected by Kind.
type OverseerSignalUpdate struct {
	Kind         OverseerSignalUpdateKind
	TestResults  *TestResults
	TypeCheck    *TypeCheckResult
	LintResults  *LintResult
	BuildResult  *BuildResult
	SecurityScan *SecurityScanResult
	CustomCheck  *CustomCheckResult
}

// OverseerResult is what an Overseer's Measure returns: a pass/fail verdict
// plus the signal it contributes.
type OverseerResult struct {
	Pass   bool
	Signal OverseerSignalUpdate
}

// Overseer is an external, deterministic verifier with a declared cost
// class. Concrete overseers (test runners, linters, scanners) are outside
// this module's scope; only the contract is specified here.
type Overseer interface {
	Name() string
	Cost() CostClass
	Measure(ctx context.Context, artifact ArtifactRef) (*OverseerResult, error)
}
