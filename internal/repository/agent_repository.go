package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/anthropics/convergence-engine/contracts"
)

// AgentRepository is an in-memory contracts.AgentRepository, seeded at
// construction with a fixed catalog (agent templates are configuration,
// not runtime-mutated state).
type AgentRepository struct {
	mu        sync.RWMutex
	templates map[string]contracts.AgentTemplate
}

// NewAgentRepository creates a repository seeded with templates.
func NewAgentRepository(templates map[string]contracts.AgentTemplate) *AgentRepository {
	cp := make(map[string]contracts.AgentTemplate, len(templates))
	for k, v := range templates {
		cp[k] = v
	}
	return &AgentRepository{templates: cp}
}

// Get resolves agentType to its template.
func (r *AgentRepository) Get(ctx context.Context, agentType string) (*contracts.AgentTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tpl, ok := r.templates[agentType]
	if !ok {
		return nil, fmt.Errorf("agent type %q: %w", agentType, contracts.ErrInvalidInput)
	}
	return &tpl, nil
}
