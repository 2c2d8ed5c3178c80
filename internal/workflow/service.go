// Package workflow implements the admin approval operations and the
// user-facing position creation flows over the versioned ledger store.
//
// Every mutation follows the same shape: read the record and its version,
// derive the transition from the freshly-read state, and commit through a
// single conditional write. Status change and balance delta land in one
// write, so there is no window where one applies without the other. On a
// version conflict the operation re-reads and retries up to a fixed bound;
// the loser of a race on the same entry finds it already terminal on
// re-read and fails with an invalid-transition error instead of
// double-applying the delta.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/samie105/broker-engine/internal/catalog"
	"github.com/samie105/broker-engine/internal/lifecycle"
	"github.com/samie105/broker-engine/internal/metrics"
	"github.com/samie105/broker-engine/internal/model"
	"github.com/samie105/broker-engine/internal/store"
)

// DefaultMaxAttempts bounds the conflict retry loop.
const DefaultMaxAttempts = 3

// Authorizer is the external collaborator that decides whether a caller
// holds the admin capability. The workflow trusts the passed-in identity
// and performs no credential checks itself.
type Authorizer interface {
	Authorize(ctx context.Context, callerID string) error
}

// AllowList authorizes a fixed set of admin identities.
type AllowList map[string]struct{}

// NewAllowList builds an AllowList from admin IDs.
func NewAllowList(ids ...string) AllowList {
	al := make(AllowList, len(ids))
	for _, id := range ids {
		al[id] = struct{}{}
	}
	return al
}

func (a AllowList) Authorize(_ context.Context, callerID string) error {
	if _, ok := a[callerID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnauthorized, callerID)
	}
	return nil
}

// Publisher receives committed ledger mutations for downstream consumers
// (notifications, email). Delivery failures never roll back a commit.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Event describes one committed ledger mutation.
type Event struct {
	UserID     string    `json:"user_id"`
	Kind       string    `json:"kind"`
	Action     string    `json:"action"`
	EntryID    string    `json:"entry_id"`
	NewBalance string    `json:"new_balance"`
	Timestamp  time.Time `json:"timestamp"`
}

// Result describes the updated entry and balance returned to callers.
type Result struct {
	UserID     string          `json:"user_id"`
	Kind       string          `json:"kind"`
	Action     string          `json:"action"`
	EntryID    string          `json:"entry_id"`
	NewBalance decimal.Decimal `json:"new_balance"`
	Version    int64           `json:"version"`
}

// Service orchestrates ledger mutations. The hub and publisher are
// optional; pass nil to disable broadcasting/publishing.
type Service struct {
	store       store.Store
	auth        Authorizer
	catalog     *catalog.Catalog
	maxAttempts int
	hub         *Hub
	publisher   Publisher
}

// NewService creates a workflow service.
func NewService(st store.Store, auth Authorizer, cat *catalog.Catalog, hub *Hub, pub Publisher) *Service {
	return &Service{
		store:       st,
		auth:        auth,
		catalog:     cat,
		maxAttempts: DefaultMaxAttempts,
		hub:         hub,
		publisher:   pub,
	}
}

// update runs the read → mutate → conditional-write loop. mutate is invoked
// on a fresh copy of the record each attempt, so transitions are always
// derived from current state, never replayed blindly.
func (s *Service) update(ctx context.Context, userID string, mutate store.MutateFn) (*model.LedgerRecord, int64, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		_, version, err := s.store.Read(ctx, userID)
		if err != nil {
			return nil, 0, err
		}

		newVersion, err := s.store.WriteIfVersion(ctx, userID, version, mutate)
		if errors.Is(err, store.ErrConflict) {
			metrics.VersionConflicts.Inc()
			slog.Debug("version conflict, retrying", "user", userID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, 0, err
		}

		rec, _, err := s.store.Read(ctx, userID)
		if err != nil {
			return nil, 0, err
		}
		return rec, newVersion, nil
	}

	metrics.RetriesExhausted.Inc()
	return nil, 0, ErrBusy
}

// applyDelta adjusts the wallet balance, rejecting any delta that would
// drive it negative.
func applyDelta(rec *model.LedgerRecord, delta decimal.Decimal) error {
	next := rec.WalletBalance.Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("%w: balance %s, delta %s", ErrInsufficientBalance, rec.WalletBalance, delta)
	}
	rec.WalletBalance = next
	return nil
}

// commit finishes a successful mutation: metrics, live feed, event publish.
func (s *Service) commit(ctx context.Context, res Result) {
	metrics.TransitionsTotal.WithLabelValues(res.Kind, res.Action).Inc()

	slog.Info("ledger transition committed",
		"user", res.UserID,
		"kind", res.Kind,
		"action", res.Action,
		"entry", res.EntryID,
		"balance", res.NewBalance.String(),
		"version", res.Version,
	)

	if s.hub != nil {
		s.hub.Broadcast(FeedMessage{
			Type:       "ledger_updated",
			UserID:     res.UserID,
			Kind:       res.Kind,
			Action:     res.Action,
			EntryID:    res.EntryID,
			NewBalance: res.NewBalance.String(),
		})
	}

	if s.publisher != nil {
		evt := Event{
			UserID:     res.UserID,
			Kind:       res.Kind,
			Action:     res.Action,
			EntryID:    res.EntryID,
			NewBalance: res.NewBalance.String(),
			Timestamp:  time.Now().UTC(),
		}
		if err := s.publisher.Publish(ctx, evt); err != nil {
			slog.Warn("event publish failed", "user", res.UserID, "entry", res.EntryID, "err", err)
		}
	}
}

// --- Admin operations ---

// ApproveDeposit credits a pending deposit.
func (s *Service) ApproveDeposit(ctx context.Context, callerID, userID, depositID string) (Result, error) {
	if err := s.auth.Authorize(ctx, callerID); err != nil {
		return Result{}, err
	}

	rec, version, err := s.update(ctx, userID, func(r *model.LedgerRecord) error {
		d := r.Deposit(depositID)
		if d == nil {
			return fmt.Errorf("deposit %s: %w", depositID, store.ErrNotFound)
		}
		tr, err := lifecycle.ApproveDeposit(*d)
		if err != nil {
			return err
		}
		d.Status = tr.NewStatus
		return applyDelta(r, tr.BalanceDelta)
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{UserID: userID, Kind: string(model.KindDeposit), Action: "approve", EntryID: depositID, NewBalance: rec.WalletBalance, Version: version}
	s.commit(ctx, res)
	return res, nil
}

// RejectDeposit fails a pending deposit with a reason.
func (s *Service) RejectDeposit(ctx context.Context, callerID, userID, depositID, reason string) (Result, error) {
	if err := s.auth.Authorize(ctx, callerID); err != nil {
		return Result{}, err
	}

	rec, version, err := s.update(ctx, userID, func(r *model.LedgerRecord) error {
		d := r.Deposit(depositID)
		if d == nil {
			return fmt.Errorf("deposit %s: %w", depositID, store.ErrNotFound)
		}
		tr, err := lifecycle.RejectDeposit(*d, reason)
		if err != nil {
			return err
		}
		d.Status = tr.NewStatus
		d.Reason = reason
		return applyDelta(r, tr.BalanceDelta)
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{UserID: userID, Kind: string(model.KindDeposit), Action: "reject", EntryID: depositID, NewBalance: rec.WalletBalance, Version: version}
	s.commit(ctx, res)
	return res, nil
}

// ApproveWithdrawal debits and completes a pending withdrawal.
func (s *Service) ApproveWithdrawal(ctx context.Context, callerID, userID, withdrawalID string) (Result, error) {
	if err := s.auth.Authorize(ctx, callerID); err != nil {
		return Result{}, err
	}

	rec, version, err := s.update(ctx, userID, func(r *model.LedgerRecord) error {
		w := r.Withdrawal(withdrawalID)
		if w == nil {
			return fmt.Errorf("withdrawal %s: %w", withdrawalID, store.ErrNotFound)
		}
		tr, err := lifecycle.ApproveWithdrawal(*w)
		if err != nil {
			return err
		}
		w.Status = tr.NewStatus
		return applyDelta(r, tr.BalanceDelta)
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{UserID: userID, Kind: string(model.KindWithdrawal), Action: "approve", EntryID: withdrawalID, NewBalance: rec.WalletBalance, Version: version}
	s.commit(ctx, res)
	return res, nil
}

// RejectWithdrawal fails a pending withdrawal and releases its hold.
func (s *Service) RejectWithdrawal(ctx context.Context, callerID, userID, withdrawalID, reason string) (Result, error) {
	if err := s.auth.Authorize(ctx, callerID); err != nil {
		return Result{}, err
	}

	rec, version, err := s.update(ctx, userID, func(r *model.LedgerRecord) error {
		w := r.Withdrawal(withdrawalID)
		if w == nil {
			return fmt.Errorf("withdrawal %s: %w", withdrawalID, store.ErrNotFound)
		}
		tr, err := lifecycle.RejectWithdrawal(*w, reason)
		if err != nil {
			return err
		}
		w.Status = tr.NewStatus
		w.Reason = reason
		return applyDelta(r, tr.BalanceDelta)
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{UserID: userID, Kind: string(model.KindWithdrawal), Action: "reject", EntryID: withdrawalID, NewBalance: rec.WalletBalance, Version: version}
	s.commit(ctx, res)
	return res, nil
}

// TerminateStaking ends a staking position early, optionally crediting
// accrued rewards.
func (s *Service) TerminateStaking(ctx context.Context, callerID, userID, positionID string, payProfit bool) (Result, error) {
	if err := s.auth.Authorize(ctx, callerID); err != nil {
		return Result{}, err
	}

	rec, version, err := s.update(ctx, userID, func(r *model.LedgerRecord) error {
		p := r.Staking(positionID)
		if p == nil {
			return fmt.Errorf("staking position %s: %w", positionID, store.ErrNotFound)
		}
		tr, err := lifecycle.TerminateStaking(*p, payProfit)
		if err != nil {
			return err
		}
		p.Status = tr.NewStatus
		return applyDelta(r, tr.BalanceDelta)
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{UserID: userID, Kind: string(model.KindStaking), Action: "terminate", EntryID: positionID, NewBalance: rec.WalletBalance, Version: version}
	s.commit(ctx, res)
	return res, nil
}

// CompleteStaking pays out a matured staking position.
func (s *Service) CompleteStaking(ctx context.Context, callerID, userID, positionID string) (Result, error) {
	if err := s.auth.Authorize(ctx, callerID); err != nil {
		return Result{}, err
	}

	rec, version, err := s.update(ctx, userID, func(r *model.LedgerRecord) error {
		p := r.Staking(positionID)
		if p == nil {
			return fmt.Errorf("staking position %s: %w", positionID, store.ErrNotFound)
		}
		tr, err := lifecycle.CompleteStaking(*p)
		if err != nil {
			return err
		}
		p.Status = tr.NewStatus
		return applyDelta(r, tr.BalanceDelta)
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{UserID: userID, Kind: string(model.KindStaking), Action: "complete", EntryID: positionID, NewBalance: rec.WalletBalance, Version: version}
	s.commit(ctx, res)
	return res, nil
}

// CompleteInvestment pays out an investment position at principal × (1+roi).
func (s *Service) CompleteInvestment(ctx context.Context, callerID, userID, positionID string) (Result, error) {
	if err := s.auth.Authorize(ctx, callerID); err != nil {
		return Result{}, err
	}

	rec, version, err := s.update(ctx, userID, func(r *model.LedgerRecord) error {
		p := r.Investment(positionID)
		if p == nil {
			return fmt.Errorf("investment position %s: %w", positionID, store.ErrNotFound)
		}
		tr, err := lifecycle.CompleteInvestment(*p)
		if err != nil {
			return err
		}
		p.Status = tr.NewStatus
		return applyDelta(r, tr.BalanceDelta)
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{UserID: userID, Kind: string(model.KindInvestment), Action: "complete", EntryID: positionID, NewBalance: rec.WalletBalance, Version: version}
	s.commit(ctx, res)
	return res, nil
}

// SetTradeOutcome closes an open trade with its realized P/L.
func (s *Service) SetTradeOutcome(ctx context.Context, callerID, userID, tradeID, outcome string, exitPrice, profitLoss decimal.Decimal) (Result, error) {
	if err := s.auth.Authorize(ctx, callerID); err != nil {
		return Result{}, err
	}

	rec, version, err := s.update(ctx, userID, func(r *model.LedgerRecord) error {
		t := r.Trade(tradeID)
		if t == nil {
			return fmt.Errorf("trade %s: %w", tradeID, store.ErrNotFound)
		}
		tr, err := lifecycle.SetTradeOutcome(*t, outcome, profitLoss)
		if err != nil {
			return err
		}
		t.Status = tr.NewStatus
		t.Outcome = outcome
		t.ExitPrice = exitPrice
		t.ProfitLoss = profitLoss
		return applyDelta(r, tr.BalanceDelta)
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{UserID: userID, Kind: string(model.KindTrade), Action: "set_outcome", EntryID: tradeID, NewBalance: rec.WalletBalance, Version: version}
	s.commit(ctx, res)
	return res, nil
}

// --- User-facing creation flows ---
// Creation paths append through the same conditional write so a concurrent
// admin action on the same user cannot be lost.

// EnsureRecord creates an empty ledger record for the user if absent.
func (s *Service) EnsureRecord(ctx context.Context, userID string) error {
	err := s.store.Create(ctx, &model.LedgerRecord{
		UserID:        userID,
		WalletBalance: decimal.Zero,
	})
	if errors.Is(err, store.ErrExists) {
		return nil
	}
	return err
}

// SubmitDeposit records a pending deposit awaiting admin review.
func (s *Service) SubmitDeposit(ctx context.Context, userID string, amount decimal.Decimal, asset string) (model.Deposit, error) {
	if !amount.IsPositive() {
		return model.Deposit{}, &lifecycle.ValidationError{Field: "amount", Msg: "must be positive"}
	}
	if err := s.EnsureRecord(ctx, userID); err != nil {
		return model.Deposit{}, err
	}

	dep := model.Deposit{
		ID:        uuid.New().String(),
		Amount:    amount,
		Asset:     asset,
		Status:    model.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	_, _, err := s.update(ctx, userID, func(r *model.LedgerRecord) error {
		r.Deposits = append(r.Deposits, dep)
		return nil
	})
	if err != nil {
		return model.Deposit{}, err
	}

	slog.Info("deposit submitted", "user", userID, "deposit", dep.ID, "amount", amount.String())
	return dep, nil
}

// RequestWithdrawal records a pending withdrawal. The amount plus fee must
// fit within the available balance (wallet minus existing holds).
func (s *Service) RequestWithdrawal(ctx context.Context, userID string, amount, fee decimal.Decimal, asset string) (model.Withdrawal, error) {
	if !amount.IsPositive() {
		return model.Withdrawal{}, &lifecycle.ValidationError{Field: "amount", Msg: "must be positive"}
	}
	if fee.IsNegative() {
		return model.Withdrawal{}, &lifecycle.ValidationError{Field: "fee", Msg: "must not be negative"}
	}

	wd := model.Withdrawal{
		ID:        uuid.New().String(),
		Amount:    amount,
		Asset:     asset,
		Fee:       fee,
		Status:    model.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	_, _, err := s.update(ctx, userID, func(r *model.LedgerRecord) error {
		if r.AvailableBalance().LessThan(amount) {
			return fmt.Errorf("%w: available %s, requested %s", ErrInsufficientBalance, r.AvailableBalance(), amount)
		}
		r.Withdrawals = append(r.Withdrawals, wd)
		return nil
	})
	if err != nil {
		return model.Withdrawal{}, err
	}

	slog.Info("withdrawal requested", "user", userID, "withdrawal", wd.ID, "amount", amount.String())
	return wd, nil
}

// CancelWithdrawal is the user-initiated cancellation of a pending
// withdrawal, releasing its hold.
func (s *Service) CancelWithdrawal(ctx context.Context, userID, withdrawalID string) (Result, error) {
	rec, version, err := s.update(ctx, userID, func(r *model.LedgerRecord) error {
		w := r.Withdrawal(withdrawalID)
		if w == nil {
			return fmt.Errorf("withdrawal %s: %w", withdrawalID, store.ErrNotFound)
		}
		tr, err := lifecycle.CancelWithdrawal(*w)
		if err != nil {
			return err
		}
		w.Status = tr.NewStatus
		return applyDelta(r, tr.BalanceDelta)
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{UserID: userID, Kind: string(model.KindWithdrawal), Action: "cancel", EntryID: withdrawalID, NewBalance: rec.WalletBalance, Version: version}
	s.commit(ctx, res)
	return res, nil
}

// OpenStaking locks principal into a staking plan, debiting the wallet in
// the same write that appends the position.
func (s *Service) OpenStaking(ctx context.Context, userID, planID string, amount decimal.Decimal) (model.StakingPosition, error) {
	plan, err := s.catalog.StakingPlan(ctx, planID)
	if err != nil {
		return model.StakingPosition{}, &lifecycle.ValidationError{Field: "plan_id", Msg: err.Error()}
	}
	if err := catalog.ValidateAmount(amount, plan.MinAmount, plan.MaxAmount); err != nil {
		return model.StakingPosition{}, &lifecycle.ValidationError{Field: "amount", Msg: err.Error()}
	}

	pos := model.StakingPosition{
		ID:             uuid.New().String(),
		PlanID:         planID,
		Amount:         amount,
		APY:            plan.APY,
		Status:         model.StatusActive,
		RewardsAccrued: decimal.Zero,
		StartedAt:      time.Now().UTC(),
	}

	_, _, err = s.update(ctx, userID, func(r *model.LedgerRecord) error {
		if err := applyDelta(r, amount.Neg()); err != nil {
			return err
		}
		r.Stakings = append(r.Stakings, pos)
		return nil
	})
	if err != nil {
		return model.StakingPosition{}, err
	}

	slog.Info("staking opened", "user", userID, "position", pos.ID, "plan", planID, "amount", amount.String())
	return pos, nil
}

// OpenInvestment allocates principal to an investment plan.
func (s *Service) OpenInvestment(ctx context.Context, userID, planID string, amount decimal.Decimal) (model.InvestmentPosition, error) {
	plan, err := s.catalog.InvestmentPlan(ctx, planID)
	if err != nil {
		return model.InvestmentPosition{}, &lifecycle.ValidationError{Field: "plan_id", Msg: err.Error()}
	}
	if err := catalog.ValidateAmount(amount, plan.MinAmount, plan.MaxAmount); err != nil {
		return model.InvestmentPosition{}, &lifecycle.ValidationError{Field: "amount", Msg: err.Error()}
	}

	pos := model.InvestmentPosition{
		ID:        uuid.New().String(),
		PlanID:    planID,
		Amount:    amount,
		ROI:       plan.ROI,
		Status:    model.StatusActive,
		StartedAt: time.Now().UTC(),
	}

	_, _, err = s.update(ctx, userID, func(r *model.LedgerRecord) error {
		if err := applyDelta(r, amount.Neg()); err != nil {
			return err
		}
		r.Investments = append(r.Investments, pos)
		return nil
	})
	if err != nil {
		return model.InvestmentPosition{}, err
	}

	slog.Info("investment opened", "user", userID, "position", pos.ID, "plan", planID, "amount", amount.String())
	return pos, nil
}

// OpenTrade records an open trade. P/L settles when an admin sets the
// outcome, so no balance moves here.
func (s *Service) OpenTrade(ctx context.Context, userID, pair string, entryPrice, size decimal.Decimal) (model.Trade, error) {
	if pair == "" {
		return model.Trade{}, &lifecycle.ValidationError{Field: "pair", Msg: "is required"}
	}
	if !entryPrice.IsPositive() || !size.IsPositive() {
		return model.Trade{}, &lifecycle.ValidationError{Field: "entry_price/size", Msg: "must be positive"}
	}

	t := model.Trade{
		ID:         uuid.New().String(),
		Pair:       pair,
		EntryPrice: entryPrice,
		Size:       size,
		Status:     model.StatusOpen,
		ProfitLoss: decimal.Zero,
		OpenedAt:   time.Now().UTC(),
	}

	_, _, err := s.update(ctx, userID, func(r *model.LedgerRecord) error {
		r.Trades = append(r.Trades, t)
		return nil
	})
	if err != nil {
		return model.Trade{}, err
	}

	slog.Info("trade opened", "user", userID, "trade", t.ID, "pair", pair)
	return t, nil
}

// --- Read surface ---

// Record returns the user's ledger snapshot.
func (s *Service) Record(ctx context.Context, userID string) (*model.LedgerRecord, error) {
	return s.store.Snapshot(ctx, userID)
}

// AllRecords returns snapshots of every ledger record, for aggregation.
func (s *Service) AllRecords(ctx context.Context) ([]model.LedgerRecord, error) {
	return s.store.ListSnapshots(ctx)
}
