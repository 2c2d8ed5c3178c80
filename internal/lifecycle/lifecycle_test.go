package lifecycle_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samie105/broker-engine/internal/lifecycle"
	"github.com/samie105/broker-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestApproveDeposit(t *testing.T) {
	dep := model.Deposit{ID: "d1", Amount: d(50), Status: model.StatusPending}

	res, err := lifecycle.ApproveDeposit(dep)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.NewStatus)
	assert.True(t, res.BalanceDelta.Equal(d(50)))
}

func TestApproveDeposit_Terminal(t *testing.T) {
	for _, status := range []string{model.StatusCompleted, model.StatusFailed} {
		dep := model.Deposit{ID: "d1", Amount: d(50), Status: status}
		_, err := lifecycle.ApproveDeposit(dep)
		assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition, "status %s", status)
	}
}

func TestRejectDeposit(t *testing.T) {
	dep := model.Deposit{ID: "d1", Amount: d(50), Status: model.StatusPending}

	res, err := lifecycle.RejectDeposit(dep, "document mismatch")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, res.NewStatus)
	assert.True(t, res.BalanceDelta.IsZero())
}

func TestRejectDeposit_RequiresReason(t *testing.T) {
	dep := model.Deposit{ID: "d1", Amount: d(50), Status: model.StatusPending}

	_, err := lifecycle.RejectDeposit(dep, "")
	var vErr *lifecycle.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "reason", vErr.Field)
}

func TestWithdrawalTransitions(t *testing.T) {
	w := model.Withdrawal{ID: "w1", Amount: d(30), Fee: d(1), Status: model.StatusPending}

	res, err := lifecycle.ApproveWithdrawal(w)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.NewStatus)
	assert.True(t, res.BalanceDelta.Equal(d(-30)), "approval debits the amount")

	res, err = lifecycle.RejectWithdrawal(w, "suspicious destination")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, res.NewStatus)
	assert.True(t, res.BalanceDelta.IsZero(), "rejection releases the hold without a debit")

	res, err = lifecycle.CancelWithdrawal(w)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, res.NewStatus)
	assert.True(t, res.BalanceDelta.IsZero())
}

func TestWithdrawal_TerminalStates(t *testing.T) {
	for _, status := range []string{model.StatusCompleted, model.StatusFailed, model.StatusCancelled} {
		w := model.Withdrawal{ID: "w1", Amount: d(30), Status: status}

		_, err := lifecycle.ApproveWithdrawal(w)
		assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition, "approve from %s", status)

		_, err = lifecycle.RejectWithdrawal(w, "reason")
		assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition, "reject from %s", status)

		_, err = lifecycle.CancelWithdrawal(w)
		assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition, "cancel from %s", status)
	}
}

func TestTerminateStaking_PayProfit(t *testing.T) {
	p := model.StakingPosition{ID: "s1", Amount: d(1000), RewardsAccrued: d(42.5), Status: model.StatusActive}

	res, err := lifecycle.TerminateStaking(p, true)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTerminated, res.NewStatus)
	assert.True(t, res.BalanceDelta.Equal(d(42.5)), "only accrued rewards are credited")
}

func TestTerminateStaking_NoProfit(t *testing.T) {
	p := model.StakingPosition{ID: "s1", Amount: d(1000), RewardsAccrued: d(42.5), Status: model.StatusActive}

	res, err := lifecycle.TerminateStaking(p, false)
	require.NoError(t, err)
	assert.True(t, res.BalanceDelta.IsZero())
}

func TestCompleteStaking_PaysPrincipalPlusRewards(t *testing.T) {
	p := model.StakingPosition{ID: "s1", Amount: d(1000), RewardsAccrued: d(42.5), Status: model.StatusActive}

	res, err := lifecycle.CompleteStaking(p)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.NewStatus)
	assert.True(t, res.BalanceDelta.Equal(d(1042.5)))
}

func TestStaking_TerminalStates(t *testing.T) {
	for _, status := range []string{model.StatusCompleted, model.StatusTerminated} {
		p := model.StakingPosition{ID: "s1", Amount: d(1000), Status: status}
		_, err := lifecycle.TerminateStaking(p, true)
		assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition, "terminate from %s", status)
	}
}

func TestCompleteInvestment(t *testing.T) {
	p := model.InvestmentPosition{ID: "i1", Amount: d(500), ROI: d(12), Status: model.StatusActive}

	res, err := lifecycle.CompleteInvestment(p)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.NewStatus)
	assert.True(t, res.BalanceDelta.Equal(d(560)), "500 × 1.12, got %s", res.BalanceDelta)
}

func TestCompleteInvestment_Terminal(t *testing.T) {
	p := model.InvestmentPosition{ID: "i1", Amount: d(500), ROI: d(12), Status: model.StatusCompleted}
	_, err := lifecycle.CompleteInvestment(p)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
}

func TestSetTradeOutcome(t *testing.T) {
	tr := model.Trade{ID: "t1", Pair: "BTC/USDT", Status: model.StatusOpen}

	res, err := lifecycle.SetTradeOutcome(tr, model.OutcomeWin, d(120))
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, res.NewStatus)
	assert.True(t, res.BalanceDelta.Equal(d(120)))

	res, err = lifecycle.SetTradeOutcome(tr, model.OutcomeLoss, d(-80))
	require.NoError(t, err)
	assert.True(t, res.BalanceDelta.Equal(d(-80)), "losses carry a negative delta")
}

func TestSetTradeOutcome_InvalidOutcome(t *testing.T) {
	tr := model.Trade{ID: "t1", Status: model.StatusOpen}

	_, err := lifecycle.SetTradeOutcome(tr, "draw", d(0))
	var vErr *lifecycle.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "outcome", vErr.Field)
}

func TestSetTradeOutcome_AlreadyClosed(t *testing.T) {
	tr := model.Trade{ID: "t1", Status: model.StatusClosed}
	_, err := lifecycle.SetTradeOutcome(tr, model.OutcomeWin, d(10))
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
}
