package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tandem/internal/amqp"
	"tandem/internal/core"
	applog "tandem/internal/log"
	"tandem/internal/store/memory"
)

func testLogger() *applog.Logger {
	return applog.NewWithHandler("test", slog.NewTextHandler(io.Discard, nil))
}

func seedUser(t *testing.T, st *memory.Store) core.User {
	t.Helper()
	ctx := context.Background()
	user, err := st.CreateUser(ctx, core.User{
		AuthID: "local-1", Email: "anna@example.com", Name: "Anna",
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	cat, err := st.CreateCategory(ctx, core.Category{Name: "Salary", Icon: "💰", Type: core.Income})
	if err != nil {
		t.Fatalf("seed category: %v", err)
	}
	if _, err := st.CreateTransaction(ctx, core.Transaction{
		UserID: user.ID, CategoryID: cat.ID,
		Amount: core.Money{Units: 120000}, Type: core.Income,
	}); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return user
}

func TestHandleBalanceEventCorrectsDrift(t *testing.T) {
	st := memory.New()
	user := seedUser(t, st)
	ctx := context.Background()

	// The causative row exists but the balance write was lost.
	w := NewReconcileWorker(st, nil, testLogger(), time.Minute, 10)
	msg := amqp.NewBalanceEventMessage(user.ID, amqp.CauseTransaction)
	if err := w.HandleBalanceEvent(ctx, msg); err != nil {
		t.Fatalf("HandleBalanceEvent: %v", err)
	}

	got, err := st.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.TotalBalance != 120000 {
		t.Errorf("balance after reconcile = %d, want 120000", got.TotalBalance)
	}
}

func TestHandleBalanceEventUnknownUser(t *testing.T) {
	st := memory.New()
	w := NewReconcileWorker(st, nil, testLogger(), time.Minute, 10)

	msg := amqp.NewBalanceEventMessage(999, amqp.CauseTransaction)
	if err := w.HandleBalanceEvent(context.Background(), msg); err == nil {
		t.Fatal("expected error for unknown user, got nil")
	}
}

func TestBalanceEditEventIsAuditOnly(t *testing.T) {
	st := memory.New()
	user := seedUser(t, st)
	ctx := context.Background()

	// The admin pinned the balance to a value the ledger does not produce.
	if err := st.SetBalance(ctx, user.ID, 555); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}

	w := NewReconcileWorker(st, nil, testLogger(), time.Minute, 10)
	msg := amqp.NewBalanceEventMessage(user.ID, amqp.CauseBalanceEdit)
	if err := w.HandleBalanceEvent(ctx, msg); err != nil {
		t.Fatalf("HandleBalanceEvent: %v", err)
	}

	got, _ := st.GetUser(ctx, user.ID)
	if got.TotalBalance != 555 {
		t.Errorf("edited balance reverted to %d, want 555 preserved", got.TotalBalance)
	}
}

func TestSweepCorrectsAllUsers(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	cat, err := st.CreateCategory(ctx, core.Category{Name: "Salary", Icon: "💰", Type: core.Income})
	if err != nil {
		t.Fatalf("seed category: %v", err)
	}
	var users []core.User
	for _, name := range []string{"Anna", "Ben", "Cara"} {
		u, err := st.CreateUser(ctx, core.User{
			AuthID: "local-" + name, Email: name + "@example.com", Name: name,
		})
		if err != nil {
			t.Fatalf("seed user %s: %v", name, err)
		}
		if _, err := st.CreateTransaction(ctx, core.Transaction{
			UserID: u.ID, CategoryID: cat.ID,
			Amount: core.Money{Units: 1000}, Type: core.Income,
		}); err != nil {
			t.Fatalf("seed transaction: %v", err)
		}
		users = append(users, u)
	}

	// Batch size 2 forces two batches over three users.
	w := NewReconcileWorker(st, nil, testLogger(), time.Minute, 2)
	if err := w.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	for _, u := range users {
		got, _ := st.GetUser(ctx, u.ID)
		if got.TotalBalance != 1000 {
			t.Errorf("user %s balance = %d, want 1000", u.Name, got.TotalBalance)
		}
	}
}

func TestSweepLeavesConsistentBalancesAlone(t *testing.T) {
	st := memory.New()
	user := seedUser(t, st)
	ctx := context.Background()

	if err := st.ApplyBalanceDelta(ctx, user.ID, 120000); err != nil {
		t.Fatalf("ApplyBalanceDelta: %v", err)
	}

	w := NewReconcileWorker(st, nil, testLogger(), time.Minute, 10)
	fixed, err := w.reconcileUserReport(ctx, user.ID)
	if err != nil {
		t.Fatalf("reconcileUserReport: %v", err)
	}
	if fixed {
		t.Error("consistent balance reported as corrected")
	}
}

type captureExporter struct {
	mu     sync.Mutex
	months []core.HistoryMonth
	calls  int
}

func (e *captureExporter) WriteHistory(_ context.Context, months []core.HistoryMonth) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.months = months
	e.calls++
	return nil
}

func TestSweepExportsHistory(t *testing.T) {
	st := memory.New()
	seedUser(t, st)

	exporter := &captureExporter{}
	w := NewReconcileWorker(st, exporter, testLogger(), time.Minute, 10)
	if err := w.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if exporter.calls != 1 {
		t.Fatalf("exporter calls = %d, want 1", exporter.calls)
	}
	if len(exporter.months) != 1 || exporter.months[0].TotalIncome != 120000 {
		t.Errorf("exported months = %+v, want one month with income 120000", exporter.months)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	st := memory.New()
	w := NewReconcileWorker(st, nil, testLogger(), 10*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
