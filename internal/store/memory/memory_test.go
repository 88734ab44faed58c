package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"tandem/internal/core"
	"tandem/internal/store"
)

func seedUser(t *testing.T, s *Store, name, email string) core.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), core.User{Name: name, Email: email, Avatar: "👤"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := New()
	seedUser(t, s, "A", "a@example.com")
	_, err := s.CreateUser(context.Background(), core.User{Name: "B", Email: "a@example.com"})
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestApplyBalanceDelta(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := seedUser(t, s, "A", "a@example.com")

	if err := s.ApplyBalanceDelta(ctx, u.ID, 500); err != nil {
		t.Fatalf("delta: %v", err)
	}
	if err := s.ApplyBalanceDelta(ctx, u.ID, -200); err != nil {
		t.Fatalf("delta: %v", err)
	}
	got, _ := s.GetUser(ctx, u.ID)
	if got.TotalBalance != 300 {
		t.Fatalf("balance = %d, want 300", got.TotalBalance)
	}

	if err := s.ApplyBalanceDelta(ctx, 999, 1); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteCategoryGuard(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := seedUser(t, s, "A", "a@example.com")
	cat, err := s.CreateCategory(ctx, core.Category{Name: "Coffee", Type: core.Expense})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	_, err = s.CreateTransaction(ctx, core.Transaction{
		UserID: u.ID, CategoryID: cat.ID, Amount: core.Money{Units: 100}, Type: core.Expense,
	})
	if err != nil {
		t.Fatalf("create tx: %v", err)
	}

	if err := s.DeleteCategory(ctx, cat.ID); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict deleting referenced category, got %v", err)
	}
	if _, err := s.GetCategory(ctx, cat.ID); err != nil {
		t.Fatalf("category must survive a failed delete: %v", err)
	}
}

func TestMarkDebtResolvedOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := seedUser(t, s, "A", "a@example.com")
	d, err := s.CreateDebt(ctx, core.Debt{UserID: u.ID, DebtorName: "Alice", Amount: core.Money{Units: 200}})
	if err != nil {
		t.Fatalf("create debt: %v", err)
	}

	now := time.Now()
	if err := s.MarkDebtResolved(ctx, d.ID, now); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if err := s.MarkDebtResolved(ctx, d.ID, now); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second resolve must fail, got %v", err)
	}

	got, _ := s.GetDebt(ctx, d.ID)
	if got.Status != core.DebtResolved || got.ResolvedAt == nil {
		t.Fatalf("debt not marked resolved: %+v", got)
	}
}

func TestListTransactionsFilter(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := seedUser(t, s, "A", "a@example.com")
	b := seedUser(t, s, "B", "b@example.com")
	cat, _ := s.CreateCategory(ctx, core.Category{Name: "Misc", Type: core.Expense})

	old := time.Now().AddDate(0, -2, 0)
	for _, in := range []core.Transaction{
		{UserID: a.ID, CategoryID: cat.ID, Amount: core.Money{Units: 100}, Type: core.Expense, CreatedAt: old},
		{UserID: a.ID, CategoryID: cat.ID, Amount: core.Money{Units: 200}, Type: core.Income},
		{UserID: b.ID, CategoryID: cat.ID, Amount: core.Money{Units: 300}, Type: core.Expense},
	} {
		if _, err := s.CreateTransaction(ctx, in); err != nil {
			t.Fatalf("create tx: %v", err)
		}
	}

	income := core.Income
	got, err := s.ListTransactions(ctx, store.TransactionFilter{UserID: &a.ID, Type: &income})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Amount.Units != 200 {
		t.Fatalf("filtered list wrong: %+v", got)
	}

	from := time.Now().AddDate(0, -1, 0)
	got, _ = s.ListTransactions(ctx, store.TransactionFilter{From: &from})
	if len(got) != 2 {
		t.Fatalf("window filter = %d tx, want 2", len(got))
	}

	recent, _ := s.RecentTransactions(ctx, 1)
	if len(recent) != 1 {
		t.Fatalf("recent limit ignored")
	}
}

func TestSumSignedAmounts(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := seedUser(t, s, "A", "a@example.com")
	cat, _ := s.CreateCategory(ctx, core.Category{Name: "Misc", Type: core.Expense})

	s.CreateTransaction(ctx, core.Transaction{UserID: u.ID, CategoryID: cat.ID, Amount: core.Money{Units: 1000}, Type: core.Income})
	s.CreateTransaction(ctx, core.Transaction{UserID: u.ID, CategoryID: cat.ID, Amount: core.Money{Units: 400}, Type: core.Expense})

	sum, err := s.SumSignedAmounts(ctx, u.ID)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if sum != 600 {
		t.Fatalf("sum = %d, want 600", sum)
	}
}

func TestUpsertLimitOverrideIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := seedUser(t, s, "A", "a@example.com")
	cat, _ := s.CreateCategory(ctx, core.Category{Name: "Food", Type: core.Expense})

	for _, limit := range []int64{5000, 7000} {
		if err := s.UpsertLimitOverride(ctx, core.LimitOverride{UserID: u.ID, CategoryID: cat.ID, Limit: limit}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	got, _ := s.ListLimitOverrides(ctx)
	if len(got) != 1 || got[0].Limit != 7000 {
		t.Fatalf("override not upserted: %+v", got)
	}
}
