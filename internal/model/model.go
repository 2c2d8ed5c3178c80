// Package model defines the core domain types shared across the ledger engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionKind tags the five position collections on a ledger record.
type PositionKind string

const (
	KindDeposit    PositionKind = "deposit"
	KindWithdrawal PositionKind = "withdrawal"
	KindStaking    PositionKind = "staking"
	KindInvestment PositionKind = "investment"
	KindTrade      PositionKind = "trade"
)

// Position statuses. Each kind uses the subset documented on its struct;
// a terminal status never re-enters a non-terminal one.
const (
	StatusPending    = "pending"
	StatusActive     = "active"
	StatusOpen       = "open"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
	StatusTerminated = "terminated"
	StatusClosed     = "closed"
)

// Trade outcomes recorded when an open trade is closed.
const (
	OutcomeWin  = "win"
	OutcomeLoss = "loss"
)

// Deposit is a user deposit awaiting admin review.
// States: pending → completed | failed.
type Deposit struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Asset     string          `json:"asset"`
	Status    string          `json:"status"`
	Reason    string          `json:"reason,omitempty"` // set on rejection
	CreatedAt time.Time       `json:"created_at"`
}

// Withdrawal is a user withdrawal request.
// States: pending → completed | failed | cancelled.
// The wallet balance is debited at approval; while pending, the amount
// counts as a hold against the user's available balance.
type Withdrawal struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Asset     string          `json:"asset"`
	Fee       decimal.Decimal `json:"fee"`
	Status    string          `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// StakingPosition is principal locked into a staking plan.
// States: active → completed | terminated. Principal is debited from the
// wallet when the position opens.
type StakingPosition struct {
	ID             string          `json:"id"`
	PlanID         string          `json:"plan_id"`
	Amount         decimal.Decimal `json:"amount"`
	APY            decimal.Decimal `json:"apy"` // percent, e.g. 12.5
	Status         string          `json:"status"`
	RewardsAccrued decimal.Decimal `json:"rewards_accrued"`
	StartedAt      time.Time       `json:"started_at"`
}

// InvestmentPosition is principal allocated to an investment plan.
// States: active → completed. Final value = amount × (1 + roi/100).
type InvestmentPosition struct {
	ID        string          `json:"id"`
	PlanID    string          `json:"plan_id"`
	Amount    decimal.Decimal `json:"amount"`
	ROI       decimal.Decimal `json:"roi"` // percent
	Status    string          `json:"status"`
	StartedAt time.Time       `json:"started_at"`
}

// Trade is an open or closed trade on a pair.
// States: open → closed. Outcome and realized P/L are set at close.
type Trade struct {
	ID         string          `json:"id"`
	Pair       string          `json:"pair"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	Size       decimal.Decimal `json:"size"`
	Status     string          `json:"status"`
	Outcome    string          `json:"outcome,omitempty"`
	ProfitLoss decimal.Decimal `json:"profit_loss"` // signed
	OpenedAt   time.Time       `json:"opened_at"`
}

// LedgerRecord is the per-user aggregate: wallet balance plus all position
// collections. Owned exclusively by the store and mutated only through
// conditional writes. Collections keep insertion order for audit display;
// entries are never physically deleted.
type LedgerRecord struct {
	UserID        string               `json:"user_id"`
	WalletBalance decimal.Decimal      `json:"wallet_balance"`
	Deposits      []Deposit            `json:"deposits"`
	Withdrawals   []Withdrawal         `json:"withdrawals"`
	Stakings      []StakingPosition    `json:"stakings"`
	Investments   []InvestmentPosition `json:"investments"`
	Trades        []Trade              `json:"trades"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate freely without touching
// the store's copy.
func (r *LedgerRecord) Clone() *LedgerRecord {
	c := *r
	c.Deposits = append([]Deposit(nil), r.Deposits...)
	c.Withdrawals = append([]Withdrawal(nil), r.Withdrawals...)
	c.Stakings = append([]StakingPosition(nil), r.Stakings...)
	c.Investments = append([]InvestmentPosition(nil), r.Investments...)
	c.Trades = append([]Trade(nil), r.Trades...)
	return &c
}

// Deposit returns a pointer into the deposit collection, or nil.
func (r *LedgerRecord) Deposit(id string) *Deposit {
	for i := range r.Deposits {
		if r.Deposits[i].ID == id {
			return &r.Deposits[i]
		}
	}
	return nil
}

// Withdrawal returns a pointer into the withdrawal collection, or nil.
func (r *LedgerRecord) Withdrawal(id string) *Withdrawal {
	for i := range r.Withdrawals {
		if r.Withdrawals[i].ID == id {
			return &r.Withdrawals[i]
		}
	}
	return nil
}

// Staking returns a pointer into the staking collection, or nil.
func (r *LedgerRecord) Staking(id string) *StakingPosition {
	for i := range r.Stakings {
		if r.Stakings[i].ID == id {
			return &r.Stakings[i]
		}
	}
	return nil
}

// Investment returns a pointer into the investment collection, or nil.
func (r *LedgerRecord) Investment(id string) *InvestmentPosition {
	for i := range r.Investments {
		if r.Investments[i].ID == id {
			return &r.Investments[i]
		}
	}
	return nil
}

// Trade returns a pointer into the trade collection, or nil.
func (r *LedgerRecord) Trade(id string) *Trade {
	for i := range r.Trades {
		if r.Trades[i].ID == id {
			return &r.Trades[i]
		}
	}
	return nil
}

// PendingWithdrawalHold sums pending withdrawal amounts. Pending withdrawals
// reserve against available balance even though the wallet balance itself
// only moves at approval.
func (r *LedgerRecord) PendingWithdrawalHold() decimal.Decimal {
	hold := decimal.Zero
	for _, w := range r.Withdrawals {
		if w.Status == StatusPending {
			hold = hold.Add(w.Amount)
		}
	}
	return hold
}

// AvailableBalance is the wallet balance minus pending withdrawal holds.
func (r *LedgerRecord) AvailableBalance() decimal.Decimal {
	return r.WalletBalance.Sub(r.PendingWithdrawalHold())
}
