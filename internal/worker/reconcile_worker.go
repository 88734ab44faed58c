// Package worker keeps the materialized balances honest. It consumes balance
// events from the broker and periodically sweeps every user, recomputing the
// balance from the ledger and correcting the stored value on drift.
package worker

import (
	"context"
	"fmt"
	"time"

	"tandem/internal/amqp"
	"tandem/internal/core"
	applog "tandem/internal/log"
	"tandem/internal/store"
)

// HistoryExporter pushes the monthly history to an external destination
// after each sweep. Optional.
type HistoryExporter interface {
	WriteHistory(ctx context.Context, months []core.HistoryMonth) error
}

// ReconcileWorker recomputes balances from the ledger. Event payloads are
// treated as hints only: the wire message says whose balance to check, never
// what the balance should be.
type ReconcileWorker struct {
	store     store.Store
	exporter  HistoryExporter
	logger    *applog.Logger
	interval  time.Duration
	batchSize int
}

func NewReconcileWorker(st store.Store, exporter HistoryExporter, logger *applog.Logger, interval time.Duration, batchSize int) *ReconcileWorker {
	return &ReconcileWorker{
		store:     st,
		exporter:  exporter,
		logger:    logger.WithComponent(applog.ComponentWorker),
		interval:  interval,
		batchSize: batchSize,
	}
}

// HandleBalanceEvent reconciles the single user named by an AMQP message.
// Returning an error makes the consumer requeue the delivery.
func (w *ReconcileWorker) HandleBalanceEvent(ctx context.Context, msg *amqp.BalanceEventMessage) error {
	w.logger.InfoContext(ctx, "Processing balance event",
		applog.FieldUserID, msg.UserID, "cause", msg.Cause)

	// A balance edit is a deliberate override; reconciling now would revert
	// it on the spot. The event is kept for audit only.
	if msg.Cause == amqp.CauseBalanceEdit {
		return nil
	}

	if err := w.reconcileUser(ctx, msg.UserID); err != nil {
		return fmt.Errorf("reconcile user %d: %w", msg.UserID, err)
	}
	return nil
}

// Run sweeps all users on the configured interval until ctx is done. A
// failed sweep is logged and retried on the next tick.
func (w *ReconcileWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Reconcile sweep started",
		"interval", w.interval.String(), "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Reconcile sweep stopped", applog.FieldOperation, applog.OpShutdown)
			return ctx.Err()
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Sweep failed", applog.FieldError, err)
			}
		}
	}
}

// Sweep reconciles every user in batches, then exports the monthly history
// when an exporter is configured.
func (w *ReconcileWorker) Sweep(ctx context.Context) error {
	users, err := w.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	corrected := 0
	for i := 0; i < len(users); i += w.batchSize {
		end := min(i+w.batchSize, len(users))
		for _, u := range users[i:end] {
			fixed, err := w.reconcileUserReport(ctx, u.ID)
			if err != nil {
				w.logger.ErrorContext(ctx, "User reconciliation failed",
					applog.FieldUserID, u.ID, applog.FieldError, err)
				continue
			}
			if fixed {
				corrected++
			}
		}
	}

	w.logger.InfoContext(ctx, "Sweep completed",
		applog.FieldOperation, applog.OpReconcile,
		"users", len(users), "corrected", corrected)

	if w.exporter != nil {
		if err := w.exportHistory(ctx, users); err != nil {
			w.logger.ErrorContext(ctx, "History export failed", applog.FieldError, err)
		}
	}
	return nil
}

func (w *ReconcileWorker) reconcileUser(ctx context.Context, userID int64) error {
	_, err := w.reconcileUserReport(ctx, userID)
	return err
}

// reconcileUserReport compares the ledger sum with the stored balance and
// overwrites the stored value on mismatch. Reports whether a correction was
// made.
func (w *ReconcileWorker) reconcileUserReport(ctx context.Context, userID int64) (bool, error) {
	user, err := w.store.GetUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load user: %w", err)
	}

	expected, err := w.store.SumSignedAmounts(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("sum ledger: %w", err)
	}

	if user.TotalBalance == expected {
		return false, nil
	}

	w.logger.WarnContext(ctx, "Balance drift detected",
		applog.FieldUserID, userID,
		"stored", user.TotalBalance, "expected", expected)

	if err := w.store.SetBalance(ctx, userID, expected); err != nil {
		return false, fmt.Errorf("correct balance: %w", err)
	}
	return true, nil
}

func (w *ReconcileWorker) exportHistory(ctx context.Context, users []core.User) error {
	allTx, err := w.store.ListTransactions(ctx, store.TransactionFilter{})
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	months := core.MonthlyHistory(users, allTx)
	return w.exporter.WriteHistory(ctx, months)
}
