package cost

import (
	"fmt"
	"sync"

	"github.com/anthropics/convergence-engine/contracts"
)

// builtinModels is the pricing table the engine ships with. Role mapping
// decides which model prices a task dispatched without an explicit model:
// flagship for critical work, balanced as the workhorse, fast for
// auxiliary tasks. Deployments override both through
// NewModelCatalogWithModels or config.
func builtinModels() []contracts.ModelInfo {
	return []contracts.ModelInfo{
		{ID: "claude-opus-4-5-20251101", Provider: "anthropic", MaxContext: 200000,
			InputCostPer1M: 15.0, OutputCostPer1M: 75.0, DefaultRole: contracts.RoleFlagship, SupportsTools: true},
		{ID: "claude-opus-4-20250514", Provider: "anthropic", MaxContext: 200000,
			InputCostPer1M: 15.0, OutputCostPer1M: 75.0, DefaultRole: contracts.RoleFlagship, SupportsTools: true},
		{ID: "claude-sonnet-4-5-20250929", Provider: "anthropic", MaxContext: 200000,
			InputCostPer1M: 3.0, OutputCostPer1M: 15.0, DefaultRole: contracts.RoleBalanced, SupportsTools: true},
		{ID: "claude-sonnet-4-20250514", Provider: "anthropic", MaxContext: 200000,
			InputCostPer1M: 3.0, OutputCostPer1M: 15.0, DefaultRole: contracts.RoleBalanced, SupportsTools: true},
		{ID: "claude-3-5-sonnet-20240620", Provider: "anthropic", MaxContext: 200000,
			InputCostPer1M: 3.0, OutputCostPer1M: 15.0, DefaultRole: contracts.RoleBalanced, SupportsTools: true},
		{ID: "claude-3-haiku-20240307", Provider: "anthropic", MaxContext: 200000,
			InputCostPer1M: 0.25, OutputCostPer1M: 1.25, DefaultRole: contracts.RoleFast, SupportsTools: true},
	}
}

func builtinRoleMappings() map[contracts.ModelRole]contracts.ModelID {
	return map[contracts.ModelRole]contracts.ModelID{
		contracts.RoleFlagship: "claude-opus-4-5-20251101",
		contracts.RoleBalanced: "claude-sonnet-4-5-20250929",
		contracts.RoleFast:     "claude-3-haiku-20240307",
	}
}

// modelCatalog implements contracts.ModelCatalog. Role mappings are
// mutable at runtime (SetRoleMapping), model entries are not.
type modelCatalog struct {
	mu    sync.RWMutex
	byID  map[contracts.ModelID]contracts.ModelInfo
	roles map[contracts.ModelRole]contracts.ModelID
}

// NewModelCatalog returns a catalog seeded with the builtin pricing table.
func NewModelCatalog() contracts.ModelCatalog {
	return NewModelCatalogWithModels(builtinModels(), builtinRoleMappings())
}

// NewModelCatalogWithModels returns a catalog over caller-supplied models
// and role mappings, e.g. loaded from an engine config file.
func NewModelCatalogWithModels(models []contracts.ModelInfo, roles map[contracts.ModelRole]contracts.ModelID) contracts.ModelCatalog {
	c := &modelCatalog{
		byID:  make(map[contracts.ModelID]contracts.ModelInfo, len(models)),
		roles: make(map[contracts.ModelRole]contracts.ModelID, len(roles)),
	}
	for _, m := range models {
		c.byID[m.ID] = m
	}
	for role, id := range roles {
		c.roles[role] = id
	}
	return c
}

func (c *modelCatalog) Get(id contracts.ModelID) (contracts.ModelInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.byID[id]
	return info, ok
}

func (c *modelCatalog) GetByRole(role contracts.ModelRole) (contracts.ModelInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.roles[role]
	if !ok {
		return contracts.ModelInfo{}, false
	}
	info, ok := c.byID[id]
	return info, ok
}

func (c *modelCatalog) List() []contracts.ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]contracts.ModelInfo, 0, len(c.byID))
	for _, m := range c.byID {
		out = append(out, m)
	}
	return out
}

// SetRoleMapping repoints a role at a model already present in the
// catalog.
func (c *modelCatalog) SetRoleMapping(role contracts.ModelRole, modelID contracts.ModelID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[modelID]; !ok {
		return fmt.Errorf("model %s not in catalog: %w", modelID, contracts.ErrModelUnknown)
	}
	c.roles[role] = modelID
	return nil
}
