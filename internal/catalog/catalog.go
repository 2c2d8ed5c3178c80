// Package catalog holds the staking and investment plan configuration read
// by the position-opening flows. Plans are configuration entities: the
// ledger core reads them for validation but never mutates them.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// PlanStatus marks whether a plan accepts new positions.
const (
	PlanActive   = "active"
	PlanInactive = "inactive"
)

// StakingPlan configures a staking product.
type StakingPlan struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	APY          decimal.Decimal `json:"apy"` // percent
	MinAmount    decimal.Decimal `json:"min_amount"`
	MaxAmount    decimal.Decimal `json:"max_amount"`
	DurationDays int             `json:"duration_days"`
	Status       string          `json:"status"`
}

// InvestmentPlan configures an investment product.
type InvestmentPlan struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	ROI          decimal.Decimal `json:"roi"` // percent over the duration
	MinAmount    decimal.Decimal `json:"min_amount"`
	MaxAmount    decimal.Decimal `json:"max_amount"`
	DurationDays int             `json:"duration_days"`
	Status       string          `json:"status"`
}

// Catalog is a read-mostly plan registry. A single RWMutex is enough: plans
// change rarely (admin configuration), opening flows only read.
type Catalog struct {
	mu          sync.RWMutex
	staking     map[string]StakingPlan
	investments map[string]InvestmentPlan
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		staking:     make(map[string]StakingPlan),
		investments: make(map[string]InvestmentPlan),
	}
}

// PutStakingPlan inserts or replaces a staking plan.
func (c *Catalog) PutStakingPlan(p StakingPlan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staking[p.ID] = p
}

// PutInvestmentPlan inserts or replaces an investment plan.
func (c *Catalog) PutInvestmentPlan(p InvestmentPlan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.investments[p.ID] = p
}

// StakingPlan returns an active staking plan by ID.
func (c *Catalog) StakingPlan(_ context.Context, id string) (StakingPlan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.staking[id]
	if !ok {
		return StakingPlan{}, fmt.Errorf("staking plan %s not found", id)
	}
	if p.Status != PlanActive {
		return StakingPlan{}, fmt.Errorf("staking plan %s is not active", id)
	}
	return p, nil
}

// InvestmentPlan returns an active investment plan by ID.
func (c *Catalog) InvestmentPlan(_ context.Context, id string) (InvestmentPlan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.investments[id]
	if !ok {
		return InvestmentPlan{}, fmt.Errorf("investment plan %s not found", id)
	}
	if p.Status != PlanActive {
		return InvestmentPlan{}, fmt.Errorf("investment plan %s is not active", id)
	}
	return p, nil
}

// ValidateAmount checks a requested principal against plan bounds.
// MaxAmount of zero means unbounded.
func ValidateAmount(amount, min, max decimal.Decimal) error {
	if amount.LessThan(min) {
		return fmt.Errorf("amount %s is below plan minimum %s", amount, min)
	}
	if max.IsPositive() && amount.GreaterThan(max) {
		return fmt.Errorf("amount %s exceeds plan maximum %s", amount, max)
	}
	return nil
}
