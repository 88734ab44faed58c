package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tandem/internal/core"
	"tandem/internal/store"

	_ "modernc.org/sqlite"
)

// SQLiteRepository implements store.Store on a single SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- users ---

const userColumns = "id, auth_id, email, name, avatar, total_balance, stashed_amount, is_admin, created_at, updated_at"

func scanUser(row interface{ Scan(...any) error }) (core.User, error) {
	var u core.User
	err := row.Scan(&u.ID, &u.AuthID, &u.Email, &u.Name, &u.Avatar,
		&u.TotalBalance, &u.StashedAmount, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("user: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	now := time.Now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (auth_id, email, name, avatar, total_balance, stashed_amount, is_admin, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.AuthID, u.Email, u.Name, u.Avatar, u.TotalBalance, u.StashedAmount, u.IsAdmin, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return core.User{}, fmt.Errorf("email %s already registered: %w", u.Email, core.ErrConflict)
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("user insert id: %w", err)
	}
	u.ID = id
	u.CreatedAt, u.UpdatedAt = now, now

	slog.InfoContext(ctx, "User created", "user_id", id, "email", u.Email)
	return u, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
	return scanUser(row)
}

func (r *SQLiteRepository) GetUserByAuthID(ctx context.Context, authID string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE auth_id = ?", authID)
	return scanUser(row)
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *SQLiteRepository) UpdateUser(ctx context.Context, id int64, name string, totalBalance int64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET name = ?, total_balance = ?, updated_at = ? WHERE id = ?",
		name, totalBalance, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return requireRow(res, "user")
}

func (r *SQLiteRepository) UpdateProfile(ctx context.Context, authID string, name, avatar *string) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now()}
	if name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *name)
	}
	if avatar != nil {
		sets = append(sets, "avatar = ?")
		args = append(args, *avatar)
	}
	args = append(args, authID)

	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET "+strings.Join(sets, ", ")+" WHERE auth_id = ?", args...)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return requireRow(res, "user")
}

// ApplyBalanceDelta is a single server-side increment, never a read-modify-write,
// so concurrent writers cannot lose updates.
func (r *SQLiteRepository) ApplyBalanceDelta(ctx context.Context, userID int64, delta int64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET total_balance = total_balance + ?, updated_at = ? WHERE id = ?",
		delta, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("apply balance delta: %w", err)
	}
	if err := requireRow(res, "user"); err != nil {
		return err
	}

	slog.DebugContext(ctx, "Balance delta applied", "user_id", userID, "delta", delta)
	return nil
}

func (r *SQLiteRepository) ApplyStashDelta(ctx context.Context, userID int64, delta int64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET stashed_amount = stashed_amount + ?, updated_at = ? WHERE id = ?",
		delta, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("apply stash delta: %w", err)
	}
	return requireRow(res, "user")
}

func (r *SQLiteRepository) SetBalance(ctx context.Context, userID int64, balance int64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET total_balance = ?, updated_at = ? WHERE id = ?",
		balance, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return requireRow(res, "user")
}

// --- categories ---

const categoryColumns = "id, name, icon, type, monthly_limit, created_at"

func scanCategory(row interface{ Scan(...any) error }) (core.Category, error) {
	var c core.Category
	err := row.Scan(&c.ID, &c.Name, &c.Icon, &c.Type, &c.MonthlyLimit, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("scan category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	now := time.Now()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO categories (name, icon, type, monthly_limit, created_at) VALUES (?, ?, ?, ?, ?)",
		c.Name, c.Icon, c.Type, c.MonthlyLimit, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return core.Category{}, fmt.Errorf("category %q (%s) already exists: %w", c.Name, c.Type, core.ErrConflict)
		}
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Category{}, fmt.Errorf("category insert id: %w", err)
	}
	c.ID = id
	c.CreatedAt = now
	return c, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+categoryColumns+" FROM categories WHERE id = ?", id)
	return scanCategory(row)
}

func (r *SQLiteRepository) FindCategoryByName(ctx context.Context, name string, t core.TransactionType) (core.Category, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE name = ? AND type = ?", name, t)
	return scanCategory(row)
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+categoryColumns+" FROM categories ORDER BY type, name")
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, id int64, upd store.CategoryUpdate) error {
	var sets []string
	var args []any
	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Icon != nil {
		sets = append(sets, "icon = ?")
		args = append(args, *upd.Icon)
	}
	if upd.MonthlyLimit != nil {
		sets = append(sets, "monthly_limit = ?")
		args = append(args, *upd.MonthlyLimit)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := r.db.ExecContext(ctx,
		"UPDATE categories SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return requireRow(res, "category")
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id int64) error {
	count, err := r.CountByCategory(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("category %d is referenced by %d transactions: %w", id, count, core.ErrConflict)
	}

	res, err := r.db.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return requireRow(res, "category")
}

// --- transactions ---

const txColumns = "id, user_id, category_id, amount, type, note, created_at"

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var t core.Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.CategoryID, &t.Amount.Units, &t.Type, &t.Note, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO transactions (user_id, category_id, amount, type, note, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		t.UserID, t.CategoryID, t.Amount.Units, t.Type, t.Note, t.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return core.Transaction{}, fmt.Errorf("transaction references: %w", core.ErrNotFound)
		}
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction insert id: %w", err)
	}
	t.ID = id

	slog.InfoContext(ctx, "Transaction recorded",
		"tx_id", id, "user_id", t.UserID, "tx_type", t.Type, "amount", t.Amount.Units)
	return t, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+txColumns+" FROM transactions WHERE id = ?", id)
	return scanTransaction(row)
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f store.TransactionFilter) ([]core.Transaction, error) {
	query := "SELECT " + txColumns + " FROM transactions WHERE 1=1"
	var args []any
	if f.UserID != nil {
		query += " AND user_id = ?"
		args = append(args, *f.UserID)
	}
	if f.CategoryID != nil {
		query += " AND category_id = ?"
		args = append(args, *f.CategoryID)
	}
	if f.Type != nil {
		query += " AND type = ?"
		args = append(args, *f.Type)
	}
	if f.From != nil {
		query += " AND created_at >= ?"
		args = append(args, *f.From)
	}
	if f.To != nil {
		query += " AND created_at < ?"
		args = append(args, *f.To)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *SQLiteRepository) RecentTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+txColumns+" FROM transactions ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("recent transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *SQLiteRepository) UpdateTransactionCategory(ctx context.Context, txID, categoryID int64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE transactions SET category_id = ? WHERE id = ?", categoryID, txID)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return fmt.Errorf("category %d: %w", categoryID, core.ErrNotFound)
		}
		return fmt.Errorf("update transaction category: %w", err)
	}
	return requireRow(res, "transaction")
}

func (r *SQLiteRepository) CountByCategory(ctx context.Context, categoryID int64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE category_id = ?", categoryID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions by category: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) SumSignedAmounts(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN type = 'income' THEN amount ELSE -amount END), 0)
		 FROM transactions WHERE user_id = ?`, userID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum signed amounts: %w", err)
	}
	return sum, nil
}

// --- debts ---

const debtColumns = "id, user_id, debtor_name, amount, note, status, resolved_at, created_at"

func scanDebt(row interface{ Scan(...any) error }) (core.Debt, error) {
	var d core.Debt
	var resolvedAt sql.NullTime
	err := row.Scan(&d.ID, &d.UserID, &d.DebtorName, &d.Amount.Units, &d.Note, &d.Status, &resolvedAt, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Debt{}, fmt.Errorf("debt: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.Debt{}, fmt.Errorf("scan debt: %w", err)
	}
	if resolvedAt.Valid {
		d.ResolvedAt = &resolvedAt.Time
	}
	return d, nil
}

func (r *SQLiteRepository) CreateDebt(ctx context.Context, d core.Debt) (core.Debt, error) {
	now := time.Now()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO debts (user_id, debtor_name, amount, note, status, created_at) VALUES (?, ?, ?, ?, 'pending', ?)",
		d.UserID, d.DebtorName, d.Amount.Units, d.Note, now)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return core.Debt{}, fmt.Errorf("user %d: %w", d.UserID, core.ErrNotFound)
		}
		return core.Debt{}, fmt.Errorf("insert debt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Debt{}, fmt.Errorf("debt insert id: %w", err)
	}
	d.ID = id
	d.Status = core.DebtPending
	d.CreatedAt = now
	return d, nil
}

func (r *SQLiteRepository) GetDebt(ctx context.Context, id int64) (core.Debt, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+debtColumns+" FROM debts WHERE id = ?", id)
	return scanDebt(row)
}

func (r *SQLiteRepository) ListDebts(ctx context.Context, status *core.DebtStatus) ([]core.Debt, error) {
	query := "SELECT " + debtColumns + " FROM debts"
	var args []any
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, *status)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	defer rows.Close()

	var debts []core.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		debts = append(debts, d)
	}
	return debts, rows.Err()
}

// MarkDebtResolved is a conditional update: the status guard in the WHERE
// clause is what blocks a concurrent or repeated resolution from matching.
func (r *SQLiteRepository) MarkDebtResolved(ctx context.Context, id int64, resolvedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE debts SET status = 'resolved', resolved_at = ? WHERE id = ? AND status = 'pending'",
		resolvedAt, id)
	if err != nil {
		return fmt.Errorf("mark debt resolved: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark debt resolved rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("pending debt %d: %w", id, core.ErrNotFound)
	}

	slog.InfoContext(ctx, "Debt resolved", "debt_id", id)
	return nil
}

// --- settings ---

func (r *SQLiteRepository) GetSettings(ctx context.Context) (core.AppSettings, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT key, value FROM app_settings")
	if err != nil {
		return core.AppSettings{}, fmt.Errorf("get settings: %w", err)
	}
	defer rows.Close()

	// Defaults when a key has never been written.
	settings := core.AppSettings{RegistrationEnabled: true, AllowBalanceEdit: true}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return core.AppSettings{}, fmt.Errorf("scan setting: %w", err)
		}
		switch key {
		case store.SettingRegistrationEnabled:
			settings.RegistrationEnabled = value == "true"
		case store.SettingAllowBalanceEdit:
			settings.AllowBalanceEdit = value == "true"
		case store.SettingStashName:
			settings.StashName = value
		}
	}
	return settings, rows.Err()
}

func (r *SQLiteRepository) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO app_settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now())
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// --- limit overrides ---

func (r *SQLiteRepository) UpsertLimitOverride(ctx context.Context, o core.LimitOverride) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_category_limits (user_id, category_id, monthly_limit) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, category_id) DO UPDATE SET monthly_limit = excluded.monthly_limit`,
		o.UserID, o.CategoryID, o.Limit)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return fmt.Errorf("limit override references: %w", core.ErrNotFound)
		}
		return fmt.Errorf("upsert limit override: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListLimitOverrides(ctx context.Context) ([]core.LimitOverride, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT user_id, category_id, monthly_limit FROM user_category_limits ORDER BY user_id, category_id")
	if err != nil {
		return nil, fmt.Errorf("list limit overrides: %w", err)
	}
	defer rows.Close()

	var out []core.LimitOverride
	for rows.Next() {
		var o core.LimitOverride
		if err := rows.Scan(&o.UserID, &o.CategoryID, &o.Limit); err != nil {
			return nil, fmt.Errorf("scan limit override: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", entity, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", entity, core.ErrNotFound)
	}
	return nil
}
