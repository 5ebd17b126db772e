package cost

import (
	"sync"

	"github.com/anthropics/convergence-engine/contracts"
)

// usageTracker implements contracts.UsageTracker: cumulative token and
// cost spend per trajectory, across every iteration the convergence loop
// runs for it. Unlike the budget enforcer it never rejects anything; it
// is pure accounting for status views and terminal reports.
type usageTracker struct {
	mu           sync.Mutex
	byTrajectory map[contracts.TrajectoryID]contracts.Usage
}

// NewUsageTracker returns an empty UsageTracker.
func NewUsageTracker() contracts.UsageTracker {
	return &usageTracker{byTrajectory: make(map[contracts.TrajectoryID]contracts.Usage)}
}

func (t *usageTracker) Add(id contracts.TrajectoryID, usage contracts.Usage) {
	if id == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	total := t.byTrajectory[id]
	total.Tokens += usage.Tokens
	total.Cost.Amount += usage.Cost.Amount
	if total.Cost.Currency == "" {
		total.Cost.Currency = usage.Cost.Currency
	}
	t.byTrajectory[id] = total
}

func (t *usageTracker) Snapshot(id contracts.TrajectoryID) contracts.Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byTrajectory[id]
}
