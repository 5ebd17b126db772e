package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/anthropics/convergence-engine/contracts"
)

// combinedOutputHash hashes run's completed task outputs in TaskID order,
// so two iterations that produced byte-identical output (the textbook
// FixedPoint signal) hash identically regardless of map iteration order.
// Task IDs only fix the order and are not hashed, since they carry the
// iteration index.
func combinedOutputHash(run *contracts.Run) string {
	ids := make([]contracts.TaskID, 0, len(run.Tasks))
	for id := range run.Tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	h := sha256.New()
	for _, id := range ids {
		task := run.Tasks[id]
		if task.Outputs != nil {
			h.Write([]byte(task.Outputs.Output))
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
