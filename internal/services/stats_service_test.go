package services

import (
	"context"
	"testing"
	"time"

	"tandem/internal/core"
	"tandem/internal/store/memory"
)

func TestStatsServiceDashboard(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	stats := NewStatsService(st, testLogger())
	now := time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC)
	stats.now = func() time.Time { return now }

	anna, _ := st.CreateUser(ctx, core.User{AuthID: "a1", Email: "anna@example.com", Name: "Anna"})
	ben, _ := st.CreateUser(ctx, core.User{AuthID: "b1", Email: "ben@example.com", Name: "Ben"})
	groceries, _ := st.CreateCategory(ctx, core.Category{Name: "Groceries", Icon: "🛒", Type: core.Expense, MonthlyLimit: 50000})
	salary, _ := st.CreateCategory(ctx, core.Category{Name: "Salary", Icon: "💼", Type: core.Income})

	seed := func(userID, catID, amount int64, tt core.TransactionType, at time.Time) {
		t.Helper()
		if _, err := st.CreateTransaction(ctx, core.Transaction{
			UserID: userID, CategoryID: catID, Amount: core.Money{Units: amount}, Type: tt, CreatedAt: at,
		}); err != nil {
			t.Fatalf("CreateTransaction() error = %v", err)
		}
	}

	inMonth := time.Date(2026, 9, 5, 12, 0, 0, 0, time.UTC)
	lastMonth := time.Date(2026, 8, 5, 12, 0, 0, 0, time.UTC)
	seed(anna.ID, salary.ID, 100000, core.Income, inMonth)
	seed(anna.ID, groceries.ID, 30000, core.Expense, inMonth)
	seed(ben.ID, groceries.ID, 20000, core.Expense, inMonth)
	// Out-of-month rows must not leak into the current-month views.
	seed(ben.ID, groceries.ID, 99999, core.Expense, lastMonth)

	if err := st.UpsertLimitOverride(ctx, core.LimitOverride{UserID: ben.ID, CategoryID: groceries.ID, Limit: 10000}); err != nil {
		t.Fatalf("UpsertLimitOverride() error = %v", err)
	}

	dash, err := stats.Dashboard(ctx)
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}

	if len(dash.Users) != 2 {
		t.Fatalf("len(Users) = %d, want 2", len(dash.Users))
	}
	for _, u := range dash.Users {
		switch u.User.ID {
		case anna.ID:
			if u.TotalIncome != 100000 || u.TotalExpense != 30000 {
				t.Errorf("Anna summary = %+v, want income 100000 expenses 30000", u)
			}
			if u.SavingRate != 70 {
				t.Errorf("Anna SavingRate = %d, want 70", u.SavingRate)
			}
		case ben.ID:
			if u.TotalIncome != 0 || u.TotalExpense != 20000 {
				t.Errorf("Ben summary = %+v, want income 0 expenses 20000", u)
			}
			if u.SavingRate != 0 {
				t.Errorf("Ben SavingRate = %d, want 0 (no income)", u.SavingRate)
			}
		}
	}

	// Budget rows use the override where one exists.
	if len(dash.Budgets) != 1 {
		t.Fatalf("len(Budgets) = %d, want 1 (expense categories only)", len(dash.Budgets))
	}
	budget := dash.Budgets[0]
	if budget.Category.ID != groceries.ID || budget.Spent != 50000 || budget.Percentage != 100 {
		t.Errorf("budget = %+v, want groceries spent 50000 at 100%%", budget)
	}
	foundOverride := false
	for _, ub := range budget.PerUser {
		if ub.UserID != ben.ID {
			continue
		}
		foundOverride = true
		if ub.Limit != 10000 {
			t.Errorf("Ben groceries limit = %d, want override 10000", ub.Limit)
		}
		if ub.Spent != 20000 {
			t.Errorf("Ben groceries spent = %d, want 20000 (current month only)", ub.Spent)
		}
		if ub.Percentage != 200 {
			t.Errorf("Ben groceries percentage = %d, want 200", ub.Percentage)
		}
	}
	if !foundOverride {
		t.Error("no budget row for Ben's groceries override")
	}

	if len(dash.Categories) != 1 {
		t.Fatalf("len(Categories) = %d, want 1", len(dash.Categories))
	}
	if dash.Categories[0].Amount != 50000 {
		t.Errorf("category amount = %d, want 50000 (both users, current month)", dash.Categories[0].Amount)
	}
	if len(dash.Recent) != 4 {
		t.Errorf("len(Recent) = %d, want 4", len(dash.Recent))
	}
	if !dash.Settings.RegistrationEnabled {
		t.Error("settings not loaded into dashboard")
	}
}

func TestStatsServiceComparisonWindow(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	stats := NewStatsService(st, testLogger())
	now := time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC)
	stats.now = func() time.Time { return now }

	anna, _ := st.CreateUser(ctx, core.User{AuthID: "a1", Email: "anna@example.com", Name: "Anna"})
	groceries, _ := st.CreateCategory(ctx, core.Category{Name: "Groceries", Icon: "🛒", Type: core.Expense})

	// One expense inside the window, one seven months back.
	if _, err := st.CreateTransaction(ctx, core.Transaction{
		UserID: anna.ID, CategoryID: groceries.ID, Amount: core.Money{Units: 1000}, Type: core.Expense,
		CreatedAt: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	if _, err := st.CreateTransaction(ctx, core.Transaction{
		UserID: anna.ID, CategoryID: groceries.ID, Amount: core.Money{Units: 77777}, Type: core.Expense,
		CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}

	months, err := stats.Comparison(ctx)
	if err != nil {
		t.Fatalf("Comparison() error = %v", err)
	}
	if len(months) != 6 {
		t.Fatalf("len(months) = %d, want 6", len(months))
	}

	var total int64
	for _, m := range months {
		for _, u := range m.Users {
			total += u.Expense
		}
	}
	if total != 1000 {
		t.Errorf("window total = %d, want 1000 (old expense excluded)", total)
	}
}

func TestStatsServiceHistory(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	stats := NewStatsService(st, testLogger())

	anna, _ := st.CreateUser(ctx, core.User{AuthID: "a1", Email: "anna@example.com", Name: "Anna"})
	salary, _ := st.CreateCategory(ctx, core.Category{Name: "Salary", Icon: "💼", Type: core.Income})

	for _, at := range []time.Time{
		time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	} {
		if _, err := st.CreateTransaction(ctx, core.Transaction{
			UserID: anna.ID, CategoryID: salary.ID, Amount: core.Money{Units: 1000}, Type: core.Income, CreatedAt: at,
		}); err != nil {
			t.Fatalf("CreateTransaction() error = %v", err)
		}
	}

	history, err := stats.History(ctx)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2 (only months with data)", len(history))
	}
	if history[0].Month != "2026-07" || history[1].Month != "2026-09" {
		t.Errorf("months = %s, %s, want ascending 2026-07, 2026-09", history[0].Month, history[1].Month)
	}
}
