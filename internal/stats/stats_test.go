package stats_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samie105/broker-engine/internal/model"
	"github.com/samie105/broker-engine/internal/stats"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestAggregate_Empty(t *testing.T) {
	s := stats.Aggregate(nil)

	assert.Equal(t, 0, s.Users)
	assert.Equal(t, 0, s.ActiveStakings)
	assert.True(t, s.AverageAPY.IsZero(), "no division error on zero positions")
	assert.True(t, s.AverageROI.IsZero())
	assert.True(t, s.WinRatePct.IsZero())
	assert.True(t, s.TotalStaked.IsZero())
}

func TestAggregate_AverageAPY(t *testing.T) {
	records := []model.LedgerRecord{{
		UserID: "u1",
		Stakings: []model.StakingPosition{
			{ID: "s1", Amount: d(100), APY: d(5), Status: model.StatusActive},
			{ID: "s2", Amount: d(100), APY: d(10), Status: model.StatusActive},
			{ID: "s3", Amount: d(100), APY: d(15), Status: model.StatusActive},
		},
	}}

	s := stats.Aggregate(records)

	assert.Equal(t, 3, s.ActiveStakings)
	assert.True(t, s.AverageAPY.Equal(d(10)), "expected 10.0, got %s", s.AverageAPY)
	assert.True(t, s.TotalStaked.Equal(d(300)))
}

func TestAggregate_WeightedAPY(t *testing.T) {
	records := []model.LedgerRecord{{
		UserID: "u1",
		Stakings: []model.StakingPosition{
			{ID: "s1", Amount: d(300), APY: d(4), Status: model.StatusActive},
			{ID: "s2", Amount: d(100), APY: d(8), Status: model.StatusActive},
		},
	}}

	s := stats.Aggregate(records)

	// (4×300 + 8×100) / 400 = 5
	assert.True(t, s.AverageAPY.Equal(d(5)), "got %s", s.AverageAPY)
}

func TestAggregate_TerminalPositionsExcluded(t *testing.T) {
	records := []model.LedgerRecord{{
		UserID: "u1",
		Stakings: []model.StakingPosition{
			{ID: "s1", Amount: d(100), APY: d(5), Status: model.StatusActive},
			{ID: "s2", Amount: d(900), APY: d(99), Status: model.StatusTerminated},
		},
		Investments: []model.InvestmentPosition{
			{ID: "i1", Amount: d(500), ROI: d(12), Status: model.StatusCompleted},
		},
	}}

	s := stats.Aggregate(records)

	assert.Equal(t, 1, s.ActiveStakings)
	assert.Equal(t, 0, s.ActiveInvestments)
	assert.True(t, s.TotalStaked.Equal(d(100)))
	assert.True(t, s.AverageAPY.Equal(d(5)))
	assert.True(t, s.TotalInvested.IsZero())
}

func TestAggregate_TradesAndWinRate(t *testing.T) {
	records := []model.LedgerRecord{{
		UserID: "u1",
		Trades: []model.Trade{
			{ID: "t1", EntryPrice: d(100), Size: d(2), Status: model.StatusClosed, Outcome: model.OutcomeWin, ProfitLoss: d(40)},
			{ID: "t2", EntryPrice: d(50), Size: d(1), Status: model.StatusClosed, Outcome: model.OutcomeLoss, ProfitLoss: d(-10)},
			{ID: "t3", EntryPrice: d(200), Size: d(1), Status: model.StatusOpen},
		},
	}}

	s := stats.Aggregate(records)

	assert.Equal(t, 1, s.OpenTrades)
	assert.Equal(t, 2, s.ClosedTrades)
	assert.Equal(t, 1, s.WonTrades)
	assert.True(t, s.WinRatePct.Equal(d(50)), "got %s", s.WinRatePct)
	assert.True(t, s.RealizedPnL.Equal(d(30)))
	assert.True(t, s.TotalVolume.Equal(d(450)), "Σ size × entry, got %s", s.TotalVolume)
}

func TestAggregate_DepositsAndWithdrawals(t *testing.T) {
	records := []model.LedgerRecord{
		{
			UserID:        "u1",
			WalletBalance: d(150),
			Deposits: []model.Deposit{
				{ID: "d1", Amount: d(50), Status: model.StatusCompleted},
				{ID: "d2", Amount: d(25), Status: model.StatusPending},
				{ID: "d3", Amount: d(10), Status: model.StatusFailed},
			},
		},
		{
			UserID:        "u2",
			WalletBalance: d(70),
			Withdrawals: []model.Withdrawal{
				{ID: "w1", Amount: d(30), Status: model.StatusCompleted},
				{ID: "w2", Amount: d(5), Status: model.StatusPending},
			},
		},
	}

	s := stats.Aggregate(records)

	assert.Equal(t, 2, s.Users)
	assert.Equal(t, 1, s.PendingDeposits)
	assert.Equal(t, 1, s.CompletedDeposits)
	assert.True(t, s.TotalDeposited.Equal(d(50)))
	assert.Equal(t, 1, s.PendingWithdrawals)
	assert.True(t, s.TotalWithdrawn.Equal(d(30)))
	assert.True(t, s.TotalWalletBalance.Equal(d(220)))
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	records := []model.LedgerRecord{{
		UserID:        "u1",
		WalletBalance: d(100),
		Stakings: []model.StakingPosition{
			{ID: "s1", Amount: d(100), APY: d(5), Status: model.StatusActive},
		},
	}}

	before := records[0].Clone()
	_ = stats.Aggregate(records)

	require.True(t, records[0].WalletBalance.Equal(before.WalletBalance))
	require.Equal(t, before.Stakings, records[0].Stakings)
}
