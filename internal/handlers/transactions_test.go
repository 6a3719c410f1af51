package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"blaffapay/internal/auth"
	"blaffapay/internal/lifecycle"
	"blaffapay/internal/models"
	"blaffapay/internal/services"
	"blaffapay/internal/store"

	"github.com/lib/pq"
)

func doAdminRequest(t *testing.T, handler *Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.GenerateToken("secret", "admin-1", time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}

func TestSettleCreated(t *testing.T) {
	handler := newTestHandler(handlerDeps{
		settlements: stubSettlementService{
			settleFn: func(_ context.Context, req services.SettleRequest) (models.Transaction, error) {
				if req.AmountMinor != 10000 {
					t.Fatalf("expected amount 10000, got %d", req.AmountMinor)
				}
				if req.RequestedBy != "admin-1" {
					t.Fatalf("expected requested_by admin-1, got %s", req.RequestedBy)
				}
				return models.Transaction{ID: "tx-1", Status: "pending"}, nil
			},
		},
	})
	body := []byte(`{"partner_id":"p1","platform_id":"pl1","type":"deposit","amount":"100.00"}`)
	rr := doAdminRequest(t, handler, http.MethodPost, "/admin/transactions/settle", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSettleDenied(t *testing.T) {
	handler := newTestHandler(handlerDeps{
		settlements: stubSettlementService{
			settleFn: func(context.Context, services.SettleRequest) (models.Transaction, error) {
				return models.Transaction{}, &services.DenialError{Reason: services.DenialNoPermission}
			},
		},
	})
	body := []byte(`{"partner_id":"p1","platform_id":"pl1","type":"deposit","amount":"100.00"}`)
	rr := doAdminRequest(t, handler, http.MethodPost, "/admin/transactions/settle", body)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["reason"] != string(services.DenialNoPermission) {
		t.Fatalf("expected reason %q, got %v", services.DenialNoPermission, resp["reason"])
	}
}

func TestSettleInvalidAmount(t *testing.T) {
	handler := newTestHandler(handlerDeps{})
	body := []byte(`{"partner_id":"p1","platform_id":"pl1","type":"deposit","amount":"-5"}`)
	rr := doAdminRequest(t, handler, http.MethodPost, "/admin/transactions/settle", body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSettleDuplicateReference(t *testing.T) {
	handler := newTestHandler(handlerDeps{
		settlements: stubSettlementService{
			settleFn: func(context.Context, services.SettleRequest) (models.Transaction, error) {
				return models.Transaction{}, &pq.Error{Code: "23505"}
			},
		},
	})
	body := []byte(`{"partner_id":"p1","platform_id":"pl1","type":"deposit","amount":"100.00","reference":"TXN-1"}`)
	rr := doAdminRequest(t, handler, http.MethodPost, "/admin/transactions/settle", body)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestRetryLimitExceeded(t *testing.T) {
	handler := newTestHandler(handlerDeps{
		settlements: stubSettlementService{
			retryFn: func(context.Context, string, string, string) (models.Transaction, error) {
				return models.Transaction{}, services.ErrRetryLimitExceeded
			},
		},
	})
	body := []byte(`{"reason":"network glitch"}`)
	rr := doAdminRequest(t, handler, http.MethodPost, "/admin/transactions/tx-1/retry", body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestMarkSuccessInvalidTransition(t *testing.T) {
	handler := newTestHandler(handlerDeps{
		settlements: stubSettlementService{
			markSuccessFn: func(context.Context, string, string, string, *string) (models.Transaction, error) {
				return models.Transaction{}, &lifecycle.TransitionError{From: lifecycle.StatusCancelled, Action: lifecycle.ActionSucceed}
			},
		},
	})
	body := []byte(`{"reason":"manual confirmation"}`)
	rr := doAdminRequest(t, handler, http.MethodPost, "/admin/transactions/tx-1/mark-success", body)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %q", resp["error"])
	}
}

func TestMarkFailedReasonRequired(t *testing.T) {
	handler := newTestHandler(handlerDeps{
		settlements: stubSettlementService{
			markFailedFn: func(context.Context, string, string, string) (models.Transaction, error) {
				return models.Transaction{}, services.ErrReasonRequired
			},
		},
	})
	rr := doAdminRequest(t, handler, http.MethodPost, "/admin/transactions/tx-1/mark-failed", []byte(`{}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestListTransactionsRejectsUnknownStatus(t *testing.T) {
	var listed bool
	handler := newTestHandler(handlerDeps{
		settlements: stubSettlementService{
			listFn: func(context.Context, store.TransactionFilter, int, int) ([]models.Transaction, error) {
				listed = true
				return nil, nil
			},
		},
	})
	rr := doAdminRequest(t, handler, http.MethodGet, "/admin/transactions?status=refunded", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	if listed {
		t.Fatal("an unknown status filter must not reach the store")
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	handler := newTestHandler(handlerDeps{
		settlements: stubSettlementService{
			getFn: func(context.Context, string) (models.Transaction, error) {
				return models.Transaction{}, services.ErrTransactionNotFound
			},
		},
	})
	rr := doAdminRequest(t, handler, http.MethodGet, "/admin/transactions/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestProcessCancellationApproved(t *testing.T) {
	handler := newTestHandler(handlerDeps{
		settlements: stubSettlementService{
			processCancellationFn: func(_ context.Context, transactionID string, approve bool, notes, actorID string) (models.Transaction, error) {
				if !approve {
					t.Fatal("expected approve to be true")
				}
				if notes != "customer dispute upheld" {
					t.Fatalf("unexpected notes: %q", notes)
				}
				return models.Transaction{ID: transactionID, Status: "cancelled"}, nil
			},
		},
	})
	body := []byte(`{"approve":true,"notes":"customer dispute upheld"}`)
	rr := doAdminRequest(t, handler, http.MethodPost, "/admin/transactions/tx-1/process-cancellation", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestAdminRoutesRequireRole(t *testing.T) {
	handler := newTestHandler(handlerDeps{
		admin: stubAdminStore{
			isAdminFn: func(context.Context, string) (bool, bool, error) { return true, false, nil },
			hasRoleFn: func(context.Context, string, string) (bool, error) { return false, nil },
		},
	})
	body := []byte(`{"partner_id":"p1","platform_id":"pl1","type":"deposit","amount":"100.00"}`)
	rr := doAdminRequest(t, handler, http.MethodPost, "/admin/transactions/settle", body)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}
