package context

import (
	"sync"

	"github.com/anthropics/convergence-engine/contracts"
)

// runMemory implements contracts.MemoryManager: the shared key/value
// scratchpad one iteration's tasks read through their context bundles.
// The convergence loop seeds it with trajectory facts before dispatch;
// it dies with the run, unlike the cross-trajectory MemoryRepository.
type runMemory struct {
	mu sync.RWMutex
}

// NewMemoryManager returns the default MemoryManager.
func NewMemoryManager() contracts.MemoryManager {
	return &runMemory{}
}

func (m *runMemory) Get(run *contracts.Run, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if run == nil || run.Memory == nil {
		return "", false
	}
	v, ok := run.Memory[key]
	return v, ok
}

func (m *runMemory) Put(run *contracts.Run, key, value string) {
	if run == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if run.Memory == nil {
		run.Memory = make(map[string]string)
	}
	run.Memory[key] = value
}
