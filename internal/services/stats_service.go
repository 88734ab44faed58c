package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tandem/internal/core"
	applog "tandem/internal/log"
	"tandem/internal/store"
)

// StatsService assembles dashboard views. It only reads: all aggregation is
// recomputed from the ledger on every call, never cached.
type StatsService struct {
	store  store.Store
	logger *applog.Logger
	now    func() time.Time
}

func NewStatsService(st store.Store, logger *applog.Logger) *StatsService {
	return &StatsService{
		store:  st,
		logger: logger.WithComponent(applog.ComponentStats),
		now:    time.Now,
	}
}

// Dashboard is everything the overview page needs in one response.
type Dashboard struct {
	Users      []core.UserSummary    `json:"users"`
	Budgets    []core.BudgetStatus   `json:"budgets"`
	Categories []core.CategoryStat   `json:"categories"`
	Recent     []core.Transaction    `json:"recent_transactions"`
	Settings   core.AppSettings      `json:"settings"`
}

// Dashboard loads the pieces in parallel and folds them through the pure
// aggregation functions.
func (s *StatsService) Dashboard(ctx context.Context) (Dashboard, error) {
	start, end := core.MonthRange(s.now())
	monthFilter := store.TransactionFilter{From: &start, To: &end}

	var (
		users     []core.User
		cats      []core.Category
		monthTx   []core.Transaction
		overrides []core.LimitOverride
		recent    []core.Transaction
		settings  core.AppSettings
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = s.store.ListUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		cats, err = s.store.ListCategories(gctx)
		return err
	})
	g.Go(func() (err error) {
		monthTx, err = s.store.ListTransactions(gctx, monthFilter)
		return err
	})
	g.Go(func() (err error) {
		overrides, err = s.store.ListLimitOverrides(gctx)
		return err
	})
	g.Go(func() (err error) {
		recent, err = s.store.RecentTransactions(gctx, 10)
		return err
	})
	g.Go(func() (err error) {
		settings, err = s.store.GetSettings(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, fmt.Errorf("load dashboard data: %w", err)
	}

	monthExpenses := filterByType(monthTx, core.Expense)

	return Dashboard{
		Users:      core.SummarizeUsers(users, monthTx),
		Budgets:    core.BudgetStatuses(cats, monthExpenses, users, overrides),
		Categories: core.CategoryExpenseStats(monthExpenses, cats, users),
		Recent:     recent,
		Settings:   settings,
	}, nil
}

// Summaries returns the per-user income/expense/saving-rate cards for the
// current month.
func (s *StatsService) Summaries(ctx context.Context) ([]core.UserSummary, error) {
	start, end := core.MonthRange(s.now())

	var (
		users   []core.User
		monthTx []core.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = s.store.ListUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		monthTx, err = s.store.ListTransactions(gctx, store.TransactionFilter{From: &start, To: &end})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load summary data: %w", err)
	}

	return core.SummarizeUsers(users, monthTx), nil
}

// Budgets returns per-user budget rows for the current month's expenses.
func (s *StatsService) Budgets(ctx context.Context) ([]core.BudgetStatus, error) {
	start, end := core.MonthRange(s.now())
	expense := core.Expense

	var (
		users     []core.User
		cats      []core.Category
		monthTx   []core.Transaction
		overrides []core.LimitOverride
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = s.store.ListUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		cats, err = s.store.ListCategories(gctx)
		return err
	})
	g.Go(func() (err error) {
		monthTx, err = s.store.ListTransactions(gctx, store.TransactionFilter{From: &start, To: &end, Type: &expense})
		return err
	})
	g.Go(func() (err error) {
		overrides, err = s.store.ListLimitOverrides(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load budget data: %w", err)
	}

	return core.BudgetStatuses(cats, monthTx, users, overrides), nil
}

// History returns the full month-by-month income and expense series.
func (s *StatsService) History(ctx context.Context) ([]core.HistoryMonth, error) {
	var (
		users []core.User
		allTx []core.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = s.store.ListUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		allTx, err = s.store.ListTransactions(gctx, store.TransactionFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load history data: %w", err)
	}

	return core.MonthlyHistory(users, allTx), nil
}

// CategoryStats returns the current month's expense breakdown by category.
func (s *StatsService) CategoryStats(ctx context.Context) ([]core.CategoryStat, error) {
	start, end := core.MonthRange(s.now())
	expense := core.Expense

	var (
		users   []core.User
		cats    []core.Category
		monthTx []core.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = s.store.ListUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		cats, err = s.store.ListCategories(gctx)
		return err
	})
	g.Go(func() (err error) {
		monthTx, err = s.store.ListTransactions(gctx, store.TransactionFilter{From: &start, To: &end, Type: &expense})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load category stats data: %w", err)
	}

	return core.CategoryExpenseStats(monthTx, cats, users), nil
}

// Comparison returns the trailing six-month per-user expense series.
func (s *StatsService) Comparison(ctx context.Context) ([]core.ComparisonMonth, error) {
	var (
		users []core.User
		allTx []core.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = s.store.ListUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		allTx, err = s.store.ListTransactions(gctx, store.TransactionFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load comparison data: %w", err)
	}

	return core.MonthlyUserComparison(users, allTx, s.now()), nil
}

func filterByType(txs []core.Transaction, t core.TransactionType) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Type == t {
			out = append(out, tx)
		}
	}
	return out
}
