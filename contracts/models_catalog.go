package contracts

// ModelRole names a slot in the engine's model policy rather than a
// concrete model: tasks are dispatched against a role, and the catalog
// decides which model currently fills it.
type ModelRole string

const (
	// RoleFlagship is the maximum-quality slot for critical tasks.
	RoleFlagship ModelRole = "flagship"
	// RoleBalanced is the workhorse slot, the default for dispatches
	// without an explicit model.
	RoleBalanced ModelRole = "balanced"
	// RoleFast is the cheap slot for auxiliary work.
	RoleFast ModelRole = "fast"
)

// ModelInfo is one pricing-table row.
type ModelInfo struct {
	ID              ModelID   `json:"id"`
	Provider        string    `json:"provider"`
	MaxContext      int       `json:"max_context"`
	InputCostPer1M  float64   `json:"input_cost_per_1m"`
	OutputCostPer1M float64   `json:"output_cost_per_1m"`
	DefaultRole     ModelRole `json:"default_role"`
	SupportsTools   bool      `json:"supports_tools"`
}

// AverageCostPer1M averages the input and output rates; estimation
// happens before the input/output split is known.
func (m ModelInfo) AverageCostPer1M() float64 {
	return (m.InputCostPer1M + m.OutputCostPer1M) / 2
}

// ModelCatalog resolves models by ID or by role for cost estimation.
type ModelCatalog interface {
	Get(id ModelID) (ModelInfo, bool)
	GetByRole(role ModelRole) (ModelInfo, bool)
	List() []ModelInfo

	// SetRoleMapping repoints a role at a model already in the catalog.
	SetRoleMapping(role ModelRole, modelID ModelID) error
}
