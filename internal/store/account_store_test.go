package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
)

func TestInsertEntryIsIdempotentPerReference(t *testing.T) {
	var gotQuery string
	s := NewAccountStore(stubDB{})
	tx := stubExecer{
		execFn: func(_ context.Context, query string, _ ...any) (sql.Result, error) {
			gotQuery = query
			return stubResult{rows: 0}, nil
		},
	}
	rows, err := s.InsertEntry(context.Background(), tx, AccountEntryInput{
		ID: "e-1", PartnerID: "p-1", Amount: 500, Reference: "refund:tx-1", Reason: "cancellation refund",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows != 0 {
		t.Fatalf("replayed entry should insert nothing, got %d rows", rows)
	}
	if !strings.Contains(gotQuery, "ON CONFLICT (partner_id, reference) DO NOTHING") {
		t.Fatalf("insert must be conflict-tolerant, got query: %s", gotQuery)
	}
}

func TestAdjustBalanceUsesDelta(t *testing.T) {
	var gotArgs []any
	s := NewPartnerStore(stubDB{})
	tx := stubExecer{
		execFn: func(_ context.Context, _ string, args ...any) (sql.Result, error) {
			gotArgs = args
			return stubResult{rows: 1}, nil
		},
	}
	rows, err := s.AdjustBalance(context.Background(), tx, "p-1", -300)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected 1 row, got %d", rows)
	}
	if len(gotArgs) != 2 || gotArgs[0] != int64(-300) || gotArgs[1] != "p-1" {
		t.Fatalf("unexpected args: %#v", gotArgs)
	}
}
