package workflow_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/samie105/broker-engine/internal/model"
	"github.com/samie105/broker-engine/internal/store"
	"github.com/samie105/broker-engine/internal/workflow"
)

// newTestRouter mounts the workflow routes on a chi router backed by an
// in-memory store.
func newTestRouter(t *testing.T) (chi.Router, *store.MemoryStore) {
	t.Helper()
	svc, ms := newTestService(t)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		svc.Routes(r)
	})
	return r, ms
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any, admin string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if admin != "" {
		req.Header.Set("X-Admin-ID", admin)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) apiEnvelope {
	t.Helper()
	var env apiEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid envelope: %v: %s", err, w.Body.String())
	}
	return env
}

func TestHandleApproveDeposit_Scenario(t *testing.T) {
	router, ms := newTestRouter(t)
	seedRecord(t, ms, &model.LedgerRecord{
		UserID:        "user1",
		WalletBalance: d(100),
		Deposits:      []model.Deposit{{ID: "d1", Amount: d(50), Status: model.StatusPending}},
	})

	w := doJSON(t, router, "POST", "/api/v1/admin/users/user1/deposits/d1/approve", nil, "admin")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	env := decodeEnvelope(t, w)
	if !env.Success {
		t.Fatalf("expected success envelope, got %s", w.Body.String())
	}

	var data workflow.BalanceData
	json.Unmarshal(env.Data, &data)
	if !data.NewBalance.Equal(d(150)) {
		t.Errorf("expected new_balance 150, got %s", data.NewBalance)
	}

	rec, _, _ := ms.Read(context.Background(), "user1")
	if rec.Deposits[0].Status != model.StatusCompleted {
		t.Errorf("expected completed, got %s", rec.Deposits[0].Status)
	}
	if !rec.WalletBalance.Equal(d(150)) {
		t.Errorf("expected balance 150, got %s", rec.WalletBalance)
	}
}

func TestHandleApproveDeposit_DuplicateIsConflict(t *testing.T) {
	router, ms := newTestRouter(t)
	seedRecord(t, ms, &model.LedgerRecord{
		UserID:   "user1",
		Deposits: []model.Deposit{{ID: "d1", Amount: d(50), Status: model.StatusPending}},
	})

	doJSON(t, router, "POST", "/api/v1/admin/users/user1/deposits/d1/approve", nil, "admin")
	w := doJSON(t, router, "POST", "/api/v1/admin/users/user1/deposits/d1/approve", nil, "admin")

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate approval, got %d: %s", w.Code, w.Body.String())
	}
	env := decodeEnvelope(t, w)
	if env.Success || env.Error == "" {
		t.Errorf("expected failure envelope with error, got %s", w.Body.String())
	}
}

func TestHandleRejectDeposit_MissingReason(t *testing.T) {
	router, ms := newTestRouter(t)
	seedRecord(t, ms, &model.LedgerRecord{
		UserID:   "user1",
		Deposits: []model.Deposit{{ID: "d1", Amount: d(50), Status: model.StatusPending}},
	})

	w := doJSON(t, router, "POST", "/api/v1/admin/users/user1/deposits/d1/reject",
		map[string]string{"reason": ""}, "admin")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty reason, got %d", w.Code)
	}
}

func TestHandleApprove_Unauthorized(t *testing.T) {
	router, ms := newTestRouter(t)
	seedRecord(t, ms, &model.LedgerRecord{
		UserID:   "user1",
		Deposits: []model.Deposit{{ID: "d1", Amount: d(50), Status: model.StatusPending}},
	})

	w := doJSON(t, router, "POST", "/api/v1/admin/users/user1/deposits/d1/approve", nil, "intruder")

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleApprove_UserNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/admin/users/nobody/deposits/d1/approve", nil, "admin")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHandleSetTradeOutcome(t *testing.T) {
	router, ms := newTestRouter(t)
	seedRecord(t, ms, &model.LedgerRecord{
		UserID:        "user1",
		WalletBalance: d(500),
		Trades: []model.Trade{
			{ID: "t1", Pair: "BTC/USDT", EntryPrice: d(64000), Size: d(0.01), Status: model.StatusOpen},
		},
	})

	w := doJSON(t, router, "POST", "/api/v1/admin/users/user1/trades/t1/outcome",
		map[string]any{"outcome": "win", "exit_price": "65000", "profit_loss": "10"}, "admin")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	env := decodeEnvelope(t, w)
	var data workflow.BalanceData
	json.Unmarshal(env.Data, &data)
	if !data.NewBalance.Equal(d(510)) {
		t.Errorf("expected 510, got %s", data.NewBalance)
	}
}

func TestHandleSetTradeOutcome_InvalidOutcome(t *testing.T) {
	router, ms := newTestRouter(t)
	seedRecord(t, ms, &model.LedgerRecord{
		UserID: "user1",
		Trades: []model.Trade{{ID: "t1", Status: model.StatusOpen}},
	})

	w := doJSON(t, router, "POST", "/api/v1/admin/users/user1/trades/t1/outcome",
		map[string]any{"outcome": "draw"}, "admin")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid outcome, got %d", w.Code)
	}
}

func TestHandleSubmitDepositAndGetLedger(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/users/user1/deposits",
		map[string]any{"amount": "250", "asset": "USDT"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/v1/users/user1/ledger", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	env := decodeEnvelope(t, w)
	var rec model.LedgerRecord
	json.Unmarshal(env.Data, &rec)
	if len(rec.Deposits) != 1 || rec.Deposits[0].Status != model.StatusPending {
		t.Errorf("unexpected ledger: %s", env.Data)
	}
}

func TestHandleStats(t *testing.T) {
	router, ms := newTestRouter(t)
	seedRecord(t, ms, &model.LedgerRecord{
		UserID: "user1",
		Stakings: []model.StakingPosition{
			{ID: "s1", Amount: d(100), APY: d(5), Status: model.StatusActive},
			{ID: "s2", Amount: d(100), APY: d(15), Status: model.StatusActive},
		},
	})

	w := doJSON(t, router, "GET", "/api/v1/admin/stats", nil, "admin")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	env := decodeEnvelope(t, w)
	var got struct {
		ActiveStakings int    `json:"active_stakings"`
		AverageAPY     string `json:"average_apy"`
	}
	json.Unmarshal(env.Data, &got)
	if got.ActiveStakings != 2 {
		t.Errorf("expected 2 active stakings, got %d", got.ActiveStakings)
	}
}
