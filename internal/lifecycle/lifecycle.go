// Package lifecycle is the pure state machine for position transitions.
// Each transition maps (kind, current status, action) to a new status plus
// the wallet balance delta that must commit atomically with it. No I/O.
//
// Any combination outside the table fails with ErrInvalidTransition and
// performs no mutation — requesting a transition on an already-terminal
// entry is an error, not a silent no-op, which makes duplicate admin
// actions detectable.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/samie105/broker-engine/internal/model"
)

// ErrInvalidTransition is returned when the requested action is not legal
// from the entry's current status.
var ErrInvalidTransition = errors.New("invalid transition")

// ValidationError reports a malformed action input (missing reason,
// unknown outcome) as opposed to an illegal state.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Msg)
}

// Result is the outcome of a legal transition: the status to store and the
// signed wallet delta to apply in the same write.
type Result struct {
	NewStatus    string
	BalanceDelta decimal.Decimal
}

func invalid(kind model.PositionKind, status, action string) error {
	return fmt.Errorf("%w: cannot %s %s in status %q", ErrInvalidTransition, action, kind, status)
}

// ApproveDeposit credits the deposit amount. pending → completed.
func ApproveDeposit(d model.Deposit) (Result, error) {
	if d.Status != model.StatusPending {
		return Result{}, invalid(model.KindDeposit, d.Status, "approve")
	}
	return Result{NewStatus: model.StatusCompleted, BalanceDelta: d.Amount}, nil
}

// RejectDeposit marks the deposit failed with a mandatory reason.
// pending → failed, no balance change.
func RejectDeposit(d model.Deposit, reason string) (Result, error) {
	if reason == "" {
		return Result{}, &ValidationError{Field: "reason", Msg: "rejection reason is required"}
	}
	if d.Status != model.StatusPending {
		return Result{}, invalid(model.KindDeposit, d.Status, "reject")
	}
	return Result{NewStatus: model.StatusFailed, BalanceDelta: decimal.Zero}, nil
}

// ApproveWithdrawal debits the withdrawal amount. pending → completed.
// The pending entry held the amount against available balance; the wallet
// balance itself moves here.
func ApproveWithdrawal(w model.Withdrawal) (Result, error) {
	if w.Status != model.StatusPending {
		return Result{}, invalid(model.KindWithdrawal, w.Status, "approve")
	}
	return Result{NewStatus: model.StatusCompleted, BalanceDelta: w.Amount.Neg()}, nil
}

// RejectWithdrawal releases the hold. pending → failed, no balance change.
func RejectWithdrawal(w model.Withdrawal, reason string) (Result, error) {
	if reason == "" {
		return Result{}, &ValidationError{Field: "reason", Msg: "rejection reason is required"}
	}
	if w.Status != model.StatusPending {
		return Result{}, invalid(model.KindWithdrawal, w.Status, "reject")
	}
	return Result{NewStatus: model.StatusFailed, BalanceDelta: decimal.Zero}, nil
}

// CancelWithdrawal is the user-initiated counterpart of RejectWithdrawal.
// pending → cancelled, no balance change.
func CancelWithdrawal(w model.Withdrawal) (Result, error) {
	if w.Status != model.StatusPending {
		return Result{}, invalid(model.KindWithdrawal, w.Status, "cancel")
	}
	return Result{NewStatus: model.StatusCancelled, BalanceDelta: decimal.Zero}, nil
}

// TerminateStaking ends a staking position early. active → terminated.
// Accrued rewards are credited only when payProfit is set; the principal
// return policy is explicit per call, never implicit.
func TerminateStaking(p model.StakingPosition, payProfit bool) (Result, error) {
	if p.Status != model.StatusActive {
		return Result{}, invalid(model.KindStaking, p.Status, "terminate")
	}
	delta := decimal.Zero
	if payProfit {
		delta = p.RewardsAccrued
	}
	return Result{NewStatus: model.StatusTerminated, BalanceDelta: delta}, nil
}

// CompleteStaking pays out a matured staking position: principal plus
// accrued rewards. active → completed.
func CompleteStaking(p model.StakingPosition) (Result, error) {
	if p.Status != model.StatusActive {
		return Result{}, invalid(model.KindStaking, p.Status, "complete")
	}
	return Result{NewStatus: model.StatusCompleted, BalanceDelta: p.Amount.Add(p.RewardsAccrued)}, nil
}

// CompleteInvestment pays out principal × (1 + roi/100). active → completed.
func CompleteInvestment(p model.InvestmentPosition) (Result, error) {
	if p.Status != model.StatusActive {
		return Result{}, invalid(model.KindInvestment, p.Status, "complete")
	}
	hundred := decimal.NewFromInt(100)
	final := p.Amount.Mul(decimal.NewFromInt(1).Add(p.ROI.Div(hundred)))
	return Result{NewStatus: model.StatusCompleted, BalanceDelta: final}, nil
}

// SetTradeOutcome closes an open trade with the realized P/L, which may be
// negative. open → closed.
func SetTradeOutcome(tr model.Trade, outcome string, profitLoss decimal.Decimal) (Result, error) {
	if outcome != model.OutcomeWin && outcome != model.OutcomeLoss {
		return Result{}, &ValidationError{Field: "outcome", Msg: "must be win or loss"}
	}
	if tr.Status != model.StatusOpen {
		return Result{}, invalid(model.KindTrade, tr.Status, "close")
	}
	return Result{NewStatus: model.StatusClosed, BalanceDelta: profitLoss}, nil
}
