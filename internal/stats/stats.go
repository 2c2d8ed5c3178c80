// Package stats derives dashboard and admin statistics from ledger record
// snapshots. Pure and deterministic: no mutation of the input, no I/O, and
// every average is guarded against a zero count.
package stats

import (
	"github.com/shopspring/decimal"

	"github.com/samie105/broker-engine/internal/model"
)

// Stats is the aggregate view over a set of ledger snapshots.
type Stats struct {
	Users int `json:"users"`

	TotalWalletBalance decimal.Decimal `json:"total_wallet_balance"`

	PendingDeposits    int             `json:"pending_deposits"`
	CompletedDeposits  int             `json:"completed_deposits"`
	TotalDeposited     decimal.Decimal `json:"total_deposited"` // completed only
	PendingWithdrawals int             `json:"pending_withdrawals"`
	TotalWithdrawn     decimal.Decimal `json:"total_withdrawn"` // completed only

	ActiveStakings int             `json:"active_stakings"`
	TotalStaked    decimal.Decimal `json:"total_staked"` // active principal
	AverageAPY     decimal.Decimal `json:"average_apy"`  // weighted by principal

	ActiveInvestments int             `json:"active_investments"`
	TotalInvested     decimal.Decimal `json:"total_invested"` // active principal
	AverageROI        decimal.Decimal `json:"average_roi"`    // weighted by principal

	OpenTrades    int             `json:"open_trades"`
	ClosedTrades  int             `json:"closed_trades"`
	WonTrades     int             `json:"won_trades"`
	TotalVolume   decimal.Decimal `json:"total_volume"` // Σ size × entry price
	RealizedPnL   decimal.Decimal `json:"realized_pnl"` // closed trades only
	WinRatePct    decimal.Decimal `json:"win_rate_pct"`
}

const avgScale = 4

// Aggregate computes platform statistics from record snapshots. An empty
// input yields all-zero stats.
func Aggregate(records []model.LedgerRecord) Stats {
	s := Stats{
		Users:              len(records),
		TotalWalletBalance: decimal.Zero,
		TotalDeposited:     decimal.Zero,
		TotalWithdrawn:     decimal.Zero,
		TotalStaked:        decimal.Zero,
		AverageAPY:         decimal.Zero,
		TotalInvested:      decimal.Zero,
		AverageROI:         decimal.Zero,
		TotalVolume:        decimal.Zero,
		RealizedPnL:        decimal.Zero,
		WinRatePct:         decimal.Zero,
	}

	// Weighted-average accumulators: Σ(rate × principal).
	apyWeighted := decimal.Zero
	roiWeighted := decimal.Zero

	for i := range records {
		r := &records[i]
		s.TotalWalletBalance = s.TotalWalletBalance.Add(r.WalletBalance)

		for _, d := range r.Deposits {
			switch d.Status {
			case model.StatusPending:
				s.PendingDeposits++
			case model.StatusCompleted:
				s.CompletedDeposits++
				s.TotalDeposited = s.TotalDeposited.Add(d.Amount)
			}
		}

		for _, w := range r.Withdrawals {
			switch w.Status {
			case model.StatusPending:
				s.PendingWithdrawals++
			case model.StatusCompleted:
				s.TotalWithdrawn = s.TotalWithdrawn.Add(w.Amount)
			}
		}

		for _, p := range r.Stakings {
			if p.Status != model.StatusActive {
				continue
			}
			s.ActiveStakings++
			s.TotalStaked = s.TotalStaked.Add(p.Amount)
			apyWeighted = apyWeighted.Add(p.APY.Mul(p.Amount))
		}

		for _, p := range r.Investments {
			if p.Status != model.StatusActive {
				continue
			}
			s.ActiveInvestments++
			s.TotalInvested = s.TotalInvested.Add(p.Amount)
			roiWeighted = roiWeighted.Add(p.ROI.Mul(p.Amount))
		}

		for _, t := range r.Trades {
			s.TotalVolume = s.TotalVolume.Add(t.Size.Mul(t.EntryPrice))
			switch t.Status {
			case model.StatusOpen:
				s.OpenTrades++
			case model.StatusClosed:
				s.ClosedTrades++
				s.RealizedPnL = s.RealizedPnL.Add(t.ProfitLoss)
				if t.Outcome == model.OutcomeWin {
					s.WonTrades++
				}
			}
		}
	}

	if s.TotalStaked.IsPositive() {
		s.AverageAPY = apyWeighted.Div(s.TotalStaked).Round(avgScale)
	}
	if s.TotalInvested.IsPositive() {
		s.AverageROI = roiWeighted.Div(s.TotalInvested).Round(avgScale)
	}
	if s.ClosedTrades > 0 {
		s.WinRatePct = decimal.NewFromInt(int64(s.WonTrades)).
			Div(decimal.NewFromInt(int64(s.ClosedTrades))).
			Mul(decimal.NewFromInt(100)).
			Round(avgScale)
	}

	return s
}
