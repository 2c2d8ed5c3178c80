package workflow

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/samie105/broker-engine/internal/lifecycle"
	"github.com/samie105/broker-engine/internal/stats"
	"github.com/samie105/broker-engine/internal/store"
)

// ApiResponse is the uniform envelope returned to UI callers.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BalanceData carries the new balance back after a mutating operation.
type BalanceData struct {
	NewBalance decimal.Decimal `json:"new_balance"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data})
}

// writeError maps the error taxonomy onto HTTP statuses. Busy (503) is
// distinguished from InvalidTransition (409) so a UI can offer "try again"
// only for the former.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var vErr *lifecycle.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.As(err, &vErr):
		status = http.StatusBadRequest
	case errors.Is(err, ErrInsufficientBalance):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ErrBusy):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusForbidden
	}

	writeJSON(w, status, ApiResponse{Success: false, Error: err.Error()})
}

// callerID extracts the externally-validated admin identity. The gateway in
// front of this service verifies the session; we only carry the identity.
func callerID(r *http.Request) string {
	return r.Header.Get("X-Admin-ID")
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ApiResponse{Success: false, Error: "invalid request body"})
		return false
	}
	return true
}

// Routes mounts all ledger endpoints on the router.
func (s *Service) Routes(r chi.Router) {
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/ledger", s.handleGetLedger)
		r.Post("/deposits", s.handleSubmitDeposit)
		r.Post("/withdrawals", s.handleRequestWithdrawal)
		r.Post("/withdrawals/{withdrawalID}/cancel", s.handleCancelWithdrawal)
		r.Post("/stakings", s.handleOpenStaking)
		r.Post("/investments", s.handleOpenInvestment)
		r.Post("/trades", s.handleOpenTrade)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/ledger", s.handleGetLedger)
			r.Post("/deposits/{depositID}/approve", s.handleApproveDeposit)
			r.Post("/deposits/{depositID}/reject", s.handleRejectDeposit)
			r.Post("/withdrawals/{withdrawalID}/approve", s.handleApproveWithdrawal)
			r.Post("/withdrawals/{withdrawalID}/reject", s.handleRejectWithdrawal)
			r.Post("/stakings/{positionID}/terminate", s.handleTerminateStaking)
			r.Post("/stakings/{positionID}/complete", s.handleCompleteStaking)
			r.Post("/investments/{positionID}/complete", s.handleCompleteInvestment)
			r.Post("/trades/{tradeID}/outcome", s.handleSetTradeOutcome)
		})
	})
}

// --- Admin handlers ---

func (s *Service) handleApproveDeposit(w http.ResponseWriter, r *http.Request) {
	res, err := s.ApproveDeposit(r.Context(), callerID(r),
		chi.URLParam(r, "userID"), chi.URLParam(r, "depositID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, BalanceData{NewBalance: res.NewBalance})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Service) handleRejectDeposit(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !decode(w, r, &req) {
		return
	}
	_, err := s.RejectDeposit(r.Context(), callerID(r),
		chi.URLParam(r, "userID"), chi.URLParam(r, "depositID"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "deposit rejected"})
}

func (s *Service) handleApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	res, err := s.ApproveWithdrawal(r.Context(), callerID(r),
		chi.URLParam(r, "userID"), chi.URLParam(r, "withdrawalID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, BalanceData{NewBalance: res.NewBalance})
}

func (s *Service) handleRejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !decode(w, r, &req) {
		return
	}
	_, err := s.RejectWithdrawal(r.Context(), callerID(r),
		chi.URLParam(r, "userID"), chi.URLParam(r, "withdrawalID"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "withdrawal rejected"})
}

type terminateRequest struct {
	PayProfit bool `json:"pay_profit"`
}

func (s *Service) handleTerminateStaking(w http.ResponseWriter, r *http.Request) {
	var req terminateRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.TerminateStaking(r.Context(), callerID(r),
		chi.URLParam(r, "userID"), chi.URLParam(r, "positionID"), req.PayProfit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, BalanceData{NewBalance: res.NewBalance})
}

func (s *Service) handleCompleteStaking(w http.ResponseWriter, r *http.Request) {
	res, err := s.CompleteStaking(r.Context(), callerID(r),
		chi.URLParam(r, "userID"), chi.URLParam(r, "positionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, BalanceData{NewBalance: res.NewBalance})
}

func (s *Service) handleCompleteInvestment(w http.ResponseWriter, r *http.Request) {
	res, err := s.CompleteInvestment(r.Context(), callerID(r),
		chi.URLParam(r, "userID"), chi.URLParam(r, "positionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, BalanceData{NewBalance: res.NewBalance})
}

type outcomeRequest struct {
	Outcome    string          `json:"outcome"` // "win" or "loss"
	ExitPrice  decimal.Decimal `json:"exit_price"`
	ProfitLoss decimal.Decimal `json:"profit_loss"` // signed
}

func (s *Service) handleSetTradeOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.SetTradeOutcome(r.Context(), callerID(r),
		chi.URLParam(r, "userID"), chi.URLParam(r, "tradeID"),
		req.Outcome, req.ExitPrice, req.ProfitLoss)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, BalanceData{NewBalance: res.NewBalance})
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	records, err := s.AllRecords(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, stats.Aggregate(records))
}

// --- User handlers ---

func (s *Service) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Record(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, rec)
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Asset  string          `json:"asset"`
}

func (s *Service) handleSubmitDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !decode(w, r, &req) {
		return
	}
	dep, err := s.SubmitDeposit(r.Context(), chi.URLParam(r, "userID"), req.Amount, req.Asset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, dep)
}

type withdrawalRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Fee    decimal.Decimal `json:"fee"`
	Asset  string          `json:"asset"`
}

func (s *Service) handleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if !decode(w, r, &req) {
		return
	}
	wd, err := s.RequestWithdrawal(r.Context(), chi.URLParam(r, "userID"), req.Amount, req.Fee, req.Asset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, wd)
}

func (s *Service) handleCancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	res, err := s.CancelWithdrawal(r.Context(),
		chi.URLParam(r, "userID"), chi.URLParam(r, "withdrawalID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, BalanceData{NewBalance: res.NewBalance})
}

type openPositionRequest struct {
	PlanID string          `json:"plan_id"`
	Amount decimal.Decimal `json:"amount"`
}

func (s *Service) handleOpenStaking(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if !decode(w, r, &req) {
		return
	}
	pos, err := s.OpenStaking(r.Context(), chi.URLParam(r, "userID"), req.PlanID, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, pos)
}

func (s *Service) handleOpenInvestment(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if !decode(w, r, &req) {
		return
	}
	pos, err := s.OpenInvestment(r.Context(), chi.URLParam(r, "userID"), req.PlanID, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, pos)
}

type openTradeRequest struct {
	Pair       string          `json:"pair"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Size       decimal.Decimal `json:"size"`
}

func (s *Service) handleOpenTrade(w http.ResponseWriter, r *http.Request) {
	var req openTradeRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := s.OpenTrade(r.Context(), chi.URLParam(r, "userID"), req.Pair, req.EntryPrice, req.Size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, t)
}
