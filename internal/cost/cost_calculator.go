package cost

import (
	"github.com/anthropics/convergence-engine/contracts"
)

const defaultCurrency = contracts.Currency("USD")

// catalogCalculator implements contracts.CostCalculator against an
// injected model catalog. Pricing uses the model's averaged per-million
// rate: at estimation time the input/output split is unknown, and the
// estimate is for accounting, not billing.
type catalogCalculator struct {
	catalog  contracts.ModelCatalog
	currency contracts.Currency
}

// NewCostCalculator returns a calculator over the default model catalog,
// priced in USD.
func NewCostCalculator() contracts.CostCalculator {
	return NewCostCalculatorWithCatalog(nil, "")
}

// NewCostCalculatorWithCatalog returns a calculator over a caller-supplied
// catalog and currency; nil/empty fall back to the defaults.
func NewCostCalculatorWithCatalog(catalog contracts.ModelCatalog, currency contracts.Currency) contracts.CostCalculator {
	if catalog == nil {
		catalog = NewModelCatalog()
	}
	if currency == "" {
		currency = defaultCurrency
	}
	return &catalogCalculator{catalog: catalog, currency: currency}
}

func (c *catalogCalculator) Estimate(tokens contracts.TokenCount, model contracts.ModelID) (contracts.Cost, error) {
	info, ok := c.catalog.Get(model)
	if !ok {
		return contracts.Cost{}, contracts.ErrModelUnknown
	}
	return c.price(tokens, info), nil
}

// EstimateByRole prices against whichever model currently fills the role,
// for tasks dispatched without an explicit model.
func (c *catalogCalculator) EstimateByRole(tokens contracts.TokenCount, role contracts.ModelRole) (contracts.Cost, error) {
	info, ok := c.catalog.GetByRole(role)
	if !ok {
		return contracts.Cost{}, contracts.ErrModelUnknown
	}
	return c.price(tokens, info), nil
}

func (c *catalogCalculator) price(tokens contracts.TokenCount, info contracts.ModelInfo) contracts.Cost {
	return contracts.Cost{
		Amount:   float64(tokens) * info.AverageCostPer1M() / 1_000_000,
		Currency: c.currency,
	}
}
