package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"tandem/internal/amqp"
	"tandem/internal/core"
	applog "tandem/internal/log"
	"tandem/internal/store"
)

// EventPublisher is the slice of the AMQP client the ledger needs. A nil
// publisher disables events without disabling the ledger.
type EventPublisher interface {
	PublishBalanceEvent(ctx context.Context, userID int64, cause string) error
}

// LedgerService owns every write that can move a balance. Each mutation is
// an insert followed by one atomic increment on the owner's stored balance;
// the service never reads a balance to compute the next one.
type LedgerService struct {
	store     store.Store
	events    EventPublisher
	quickKeys map[string]string // api key -> user email
	logger    *applog.Logger
}

func NewLedgerService(st store.Store, events EventPublisher, quickKeys map[string]string, logger *applog.Logger) *LedgerService {
	return &LedgerService{
		store:     st,
		events:    events,
		quickKeys: quickKeys,
		logger:    logger.WithComponent(applog.ComponentLedger),
	}
}

// AddTransaction validates and records a transaction, then applies its
// signed amount to the owner's balance.
func (s *LedgerService) AddTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	category, err := s.store.GetCategory(ctx, tx.CategoryID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("load category: %w", err)
	}
	if category.Type != tx.Type {
		return core.Transaction{}, fmt.Errorf("category %q is %s, transaction is %s: %w",
			category.Name, category.Type, tx.Type, core.ErrInvalidType)
	}

	created, err := s.store.CreateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("record transaction: %w", err)
	}

	if err := s.store.ApplyBalanceDelta(ctx, created.UserID, created.SignedDelta()); err != nil {
		return core.Transaction{}, fmt.Errorf("apply balance delta: %w", err)
	}

	s.publishEvent(ctx, created.UserID, amqp.CauseTransaction)
	return created, nil
}

// QuickAdd is the API-key ingestion path. Checks run in a fixed order so a
// client holding no key learns nothing about the rest of the request.
func (s *LedgerService) QuickAdd(ctx context.Context, apiKey, amountRaw, typeRaw, note string) (core.Transaction, error) {
	if apiKey == "" {
		return core.Transaction{}, fmt.Errorf("missing API key: %w", core.ErrUnauthenticated)
	}
	if len(s.quickKeys) == 0 {
		return core.Transaction{}, fmt.Errorf("quick-add keys are not configured")
	}
	email, ok := s.quickKeys[apiKey]
	if !ok {
		return core.Transaction{}, fmt.Errorf("invalid API key: %w", core.ErrUnauthenticated)
	}

	if amountRaw == "" {
		return core.Transaction{}, fmt.Errorf("amount is required: %w", core.ErrInvalidAmount)
	}
	txType := core.TransactionType(typeRaw)
	if typeRaw == "" {
		txType = core.Expense
	}
	if !txType.Valid() {
		return core.Transaction{}, core.ErrInvalidType
	}
	amount, err := core.ParseAmount(amountRaw)
	if err != nil {
		return core.Transaction{}, err
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("user for key: %w", err)
	}

	category, err := s.quickAddSink(ctx, txType)
	if err != nil {
		return core.Transaction{}, err
	}

	if note == "" {
		note = "Quick add"
	}

	return s.AddTransaction(ctx, core.Transaction{
		UserID:     user.ID,
		CategoryID: category.ID,
		Amount:     amount,
		Type:       txType,
		Note:       note,
	})
}

// quickAddSink finds or lazily creates the catch-all category for the type.
func (s *LedgerService) quickAddSink(ctx context.Context, txType core.TransactionType) (core.Category, error) {
	name, icon := core.CategoryUncategorized, core.IconUncategorized
	if txType == core.Income {
		name, icon = core.CategoryOtherIncome, core.IconOtherIncome
	}

	category, err := s.store.FindCategoryByName(ctx, name, txType)
	if err == nil {
		return category, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.Category{}, fmt.Errorf("find sink category: %w", err)
	}

	created, err := s.store.CreateCategory(ctx, core.Category{Name: name, Icon: icon, Type: txType})
	if err != nil {
		// Lost the race with a concurrent quick-add; the row is there now.
		if errors.Is(err, core.ErrConflict) {
			return s.store.FindCategoryByName(ctx, name, txType)
		}
		return core.Category{}, fmt.Errorf("create sink category: %w", err)
	}

	s.logger.InfoContext(ctx, "Created quick-add sink category",
		applog.FieldCategory, created.Name, applog.FieldTxType, txType)
	return created, nil
}

// AdjustStash moves money between the spendable view and the stash. Only
// the stashed amount changes; the total balance is untouched.
func (s *LedgerService) AdjustStash(ctx context.Context, userID, delta int64) (core.User, error) {
	if delta == 0 {
		return core.User{}, fmt.Errorf("stash adjustment cannot be zero: %w", core.ErrInvalidAmount)
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return core.User{}, err
	}
	if delta > 0 && delta > user.SpendableBalance() {
		return core.User{}, fmt.Errorf("cannot stash more than the spendable balance: %w", core.ErrValidation)
	}
	if delta < 0 && -delta > user.StashedAmount {
		return core.User{}, fmt.Errorf("cannot withdraw more than the stashed amount: %w", core.ErrValidation)
	}

	if err := s.store.ApplyStashDelta(ctx, userID, delta); err != nil {
		return core.User{}, fmt.Errorf("apply stash delta: %w", err)
	}

	s.logger.InfoContext(ctx, "Stash adjusted", applog.FieldUserID, userID, applog.FieldDelta, delta)
	return s.store.GetUser(ctx, userID)
}

// EditBalance overwrites a user's stored balance. The operation is gated by
// the allow_balance_edit toggle, read fresh on every call.
func (s *LedgerService) EditBalance(ctx context.Context, userID, balance int64) error {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !settings.AllowBalanceEdit {
		return fmt.Errorf("balance editing is disabled: %w", core.ErrUnauthorized)
	}

	if err := s.store.SetBalance(ctx, userID, balance); err != nil {
		return err
	}

	s.publishEvent(ctx, userID, amqp.CauseBalanceEdit)
	s.logger.InfoContext(ctx, "Balance edited", applog.FieldUserID, userID, applog.FieldAmount, balance)
	return nil
}

// RecategorizeTransaction moves a transaction to another category of the
// same type. Balances never move: the signed amount is unchanged.
func (s *LedgerService) RecategorizeTransaction(ctx context.Context, txID, categoryID int64) error {
	tx, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}

	category, err := s.store.GetCategory(ctx, categoryID)
	if err != nil {
		return fmt.Errorf("load category: %w", err)
	}
	if category.Type != tx.Type {
		return fmt.Errorf("category %q is %s, transaction is %s: %w",
			category.Name, category.Type, tx.Type, core.ErrInvalidType)
	}

	return s.store.UpdateTransactionCategory(ctx, txID, categoryID)
}

// --- debts ---

// AddDebt records money lent out. Recording a debt does not touch any
// balance; only resolution does.
func (s *LedgerService) AddDebt(ctx context.Context, d core.Debt) (core.Debt, error) {
	if err := d.Validate(); err != nil {
		return core.Debt{}, err
	}
	if _, err := s.store.GetUser(ctx, d.UserID); err != nil {
		return core.Debt{}, fmt.Errorf("load creditor: %w", err)
	}
	return s.store.CreateDebt(ctx, d)
}

// ResolveDebt marks a pending debt repaid, records the repayment as income
// and credits the creditor's balance exactly once. The repayment income
// category must already exist; resolution refuses to invent it.
func (s *LedgerService) ResolveDebt(ctx context.Context, debtID int64) (core.Debt, error) {
	debt, err := s.store.GetDebt(ctx, debtID)
	if err != nil {
		return core.Debt{}, err
	}
	if debt.Status != core.DebtPending {
		return core.Debt{}, fmt.Errorf("debt %d is already resolved: %w", debtID, core.ErrNotFound)
	}

	category, err := s.store.FindCategoryByName(ctx, core.CategoryDebtRepayment, core.Income)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Debt{}, fmt.Errorf("income category %q must exist before resolving debts: %w",
				core.CategoryDebtRepayment, core.ErrValidation)
		}
		return core.Debt{}, fmt.Errorf("find repayment category: %w", err)
	}

	// The conditional update is the idempotency gate: a concurrent resolve
	// of the same debt loses here and neither inserts income nor credits.
	resolvedAt := time.Now()
	if err := s.store.MarkDebtResolved(ctx, debtID, resolvedAt); err != nil {
		return core.Debt{}, err
	}

	note := fmt.Sprintf("Debt repaid by %s", debt.DebtorName)
	if _, err := s.store.CreateTransaction(ctx, core.Transaction{
		UserID:     debt.UserID,
		CategoryID: category.ID,
		Amount:     debt.Amount,
		Type:       core.Income,
		Note:       note,
	}); err != nil {
		return core.Debt{}, fmt.Errorf("record repayment income: %w", err)
	}

	if err := s.store.ApplyBalanceDelta(ctx, debt.UserID, debt.Amount.Units); err != nil {
		return core.Debt{}, fmt.Errorf("credit repayment: %w", err)
	}

	s.publishEvent(ctx, debt.UserID, amqp.CauseDebtResolved)
	s.logger.InfoContext(ctx, "Debt resolved",
		applog.FieldDebtID, debtID, applog.FieldUserID, debt.UserID, applog.FieldAmount, debt.Amount.Units)

	return s.store.GetDebt(ctx, debtID)
}

func (s *LedgerService) ListDebts(ctx context.Context, status *core.DebtStatus) ([]core.Debt, error) {
	return s.store.ListDebts(ctx, status)
}

// --- categories and limits ---

func (s *LedgerService) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	return s.store.CreateCategory(ctx, c)
}

func (s *LedgerService) UpdateCategory(ctx context.Context, id int64, upd store.CategoryUpdate) error {
	if upd.Name != nil && *upd.Name == "" {
		return core.ErrEmptyName
	}
	if upd.MonthlyLimit != nil && *upd.MonthlyLimit < 0 {
		return core.ErrInvalidLimit
	}
	return s.store.UpdateCategory(ctx, id, upd)
}

func (s *LedgerService) DeleteCategory(ctx context.Context, id int64) error {
	return s.store.DeleteCategory(ctx, id)
}

func (s *LedgerService) ListCategories(ctx context.Context) ([]core.Category, error) {
	return s.store.ListCategories(ctx)
}

// SetUserLimit pins a per-user monthly limit for an expense category.
func (s *LedgerService) SetUserLimit(ctx context.Context, userID, categoryID, limit int64) error {
	if limit < 0 {
		return core.ErrInvalidLimit
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	category, err := s.store.GetCategory(ctx, categoryID)
	if err != nil {
		return fmt.Errorf("load category: %w", err)
	}
	if category.Type != core.Expense {
		return fmt.Errorf("limits apply to expense categories only: %w", core.ErrInvalidType)
	}
	return s.store.UpsertLimitOverride(ctx, core.LimitOverride{
		UserID: userID, CategoryID: categoryID, Limit: limit,
	})
}

// --- reads ---

func (s *LedgerService) ListTransactions(ctx context.Context, f store.TransactionFilter) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, f)
}

// UncategorizedTransactions lists everything still sitting in a quick-add
// sink category, newest first, ready for recategorization.
func (s *LedgerService) UncategorizedTransactions(ctx context.Context) ([]core.Transaction, error) {
	sinks := []struct {
		name string
		typ  core.TransactionType
	}{
		{core.CategoryUncategorized, core.Expense},
		{core.CategoryOtherIncome, core.Income},
	}

	var out []core.Transaction
	for _, sink := range sinks {
		cat, err := s.store.FindCategoryByName(ctx, sink.name, sink.typ)
		if errors.Is(err, core.ErrNotFound) {
			// Sink never used, nothing to list.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("find sink category: %w", err)
		}
		txs, err := s.store.ListTransactions(ctx, store.TransactionFilter{CategoryID: &cat.ID})
		if err != nil {
			return nil, fmt.Errorf("list sink transactions: %w", err)
		}
		out = append(out, txs...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *LedgerService) RecentTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.RecentTransactions(ctx, limit)
}

func (s *LedgerService) GetUser(ctx context.Context, id int64) (core.User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *LedgerService) ListUsers(ctx context.Context) ([]core.User, error) {
	return s.store.ListUsers(ctx)
}

func (s *LedgerService) publishEvent(ctx context.Context, userID int64, cause string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishBalanceEvent(ctx, userID, cause); err != nil {
		// The ledger write already succeeded; the periodic sweep covers a
		// lost event.
		s.logger.WarnContext(ctx, "Failed to publish balance event",
			applog.FieldUserID, userID, applog.FieldError, err)
	}
}
