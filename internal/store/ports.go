// Package store defines the ports for the persistence layer.
//
// Every operation takes a context and returns wrapped sentinel errors from
// core (ErrNotFound for missing rows, ErrConflict for guarded writes).
// Referential integrity is enforced here, at the access layer, not assumed
// of the underlying storage.
package store

import (
	"context"
	"time"

	"tandem/internal/core"
)

// TransactionFilter narrows ListTransactions. Nil fields are ignored. The To
// bound is exclusive of the following day, matching the dashboard's
// date-picker semantics.
type TransactionFilter struct {
	UserID     *int64
	CategoryID *int64
	Type       *core.TransactionType
	From       *time.Time
	To         *time.Time
}

// CategoryUpdate is a partial update; nil fields are left untouched.
type CategoryUpdate struct {
	Name         *string
	Icon         *string
	MonthlyLimit *int64
}

type (
	UserStore interface {
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		GetUser(ctx context.Context, id int64) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		GetUserByAuthID(ctx context.Context, authID string) (core.User, error)
		// ListUsers returns all users ordered by name.
		ListUsers(ctx context.Context) ([]core.User, error)
		UpdateUser(ctx context.Context, id int64, name string, totalBalance int64) error
		UpdateProfile(ctx context.Context, authID string, name, avatar *string) error

		// ApplyBalanceDelta atomically adds delta to the stored balance.
		// There is deliberately no read-modify-write variant.
		ApplyBalanceDelta(ctx context.Context, userID int64, delta int64) error
		// ApplyStashDelta atomically adds delta to the stashed amount.
		ApplyStashDelta(ctx context.Context, userID int64, delta int64) error
		// SetBalance overwrites the stored balance; used by the reconciler
		// and the admin balance edit.
		SetBalance(ctx context.Context, userID int64, balance int64) error
	}

	CategoryStore interface {
		CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
		GetCategory(ctx context.Context, id int64) (core.Category, error)
		// FindCategoryByName looks a category up by exact name and type.
		FindCategoryByName(ctx context.Context, name string, t core.TransactionType) (core.Category, error)
		// ListCategories returns all categories ordered by type, then name.
		ListCategories(ctx context.Context) ([]core.Category, error)
		UpdateCategory(ctx context.Context, id int64, upd CategoryUpdate) error
		// DeleteCategory removes an unreferenced category. Deleting one that
		// transactions still point at fails with ErrConflict.
		DeleteCategory(ctx context.Context, id int64) error
	}

	TransactionStore interface {
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
		// ListTransactions returns matching transactions newest first.
		ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)
		RecentTransactions(ctx context.Context, limit int) ([]core.Transaction, error)
		UpdateTransactionCategory(ctx context.Context, txID, categoryID int64) error
		CountByCategory(ctx context.Context, categoryID int64) (int64, error)
		// SumSignedAmounts folds the user's whole ledger: income positive,
		// expense negative. The reconciler compares this against the stored
		// balance.
		SumSignedAmounts(ctx context.Context, userID int64) (int64, error)
	}

	DebtStore interface {
		CreateDebt(ctx context.Context, d core.Debt) (core.Debt, error)
		GetDebt(ctx context.Context, id int64) (core.Debt, error)
		// ListDebts returns debts newest first, optionally filtered by status.
		ListDebts(ctx context.Context, status *core.DebtStatus) ([]core.Debt, error)
		// MarkDebtResolved flips a pending debt to resolved, stamping
		// resolvedAt. It fails with ErrNotFound when no pending debt with
		// that id exists, which is what makes resolution retry-safe.
		MarkDebtResolved(ctx context.Context, id int64, resolvedAt time.Time) error
	}

	SettingsStore interface {
		GetSettings(ctx context.Context) (core.AppSettings, error)
		SetSetting(ctx context.Context, key, value string) error
	}

	LimitStore interface {
		// UpsertLimitOverride is idempotent on (user, category).
		UpsertLimitOverride(ctx context.Context, o core.LimitOverride) error
		ListLimitOverrides(ctx context.Context) ([]core.LimitOverride, error)
	}

	// Store is the full persistence contract the services are written
	// against.
	Store interface {
		UserStore
		CategoryStore
		TransactionStore
		DebtStore
		SettingsStore
		LimitStore
	}
)

// Settings keys as persisted in the app_settings table.
const (
	SettingRegistrationEnabled = "registration_enabled"
	SettingAllowBalanceEdit    = "allow_balance_edit"
	SettingStashName           = "stash_name"
)
