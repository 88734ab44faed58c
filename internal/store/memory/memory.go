// Package memory is an in-memory store implementation, used as the default
// backend for local development and as the fake in service and handler tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tandem/internal/core"
	"tandem/internal/store"
)

type Store struct {
	mu sync.Mutex

	users        map[int64]core.User
	categories   map[int64]core.Category
	transactions map[int64]core.Transaction
	debts        map[int64]core.Debt
	settings     map[string]string
	overrides    map[string]core.LimitOverride

	nextID int64
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:        make(map[int64]core.User),
		categories:   make(map[int64]core.Category),
		transactions: make(map[int64]core.Transaction),
		debts:        make(map[int64]core.Debt),
		settings: map[string]string{
			store.SettingRegistrationEnabled: "true",
			store.SettingAllowBalanceEdit:    "true",
		},
		overrides: make(map[string]core.LimitOverride),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func overrideKey(userID, categoryID int64) string {
	return fmt.Sprintf("%d:%d", userID, categoryID)
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return core.User{}, fmt.Errorf("email %s: %w", u.Email, core.ErrConflict)
		}
	}
	u.ID = s.id()
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return core.User{}, fmt.Errorf("user %s: %w", email, core.ErrNotFound)
}

func (s *Store) GetUserByAuthID(_ context.Context, authID string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.AuthID == authID {
			return u, nil
		}
	}
	return core.User{}, fmt.Errorf("auth %s: %w", authID, core.ErrNotFound)
}

func (s *Store) ListUsers(_ context.Context) ([]core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]core.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

func (s *Store) UpdateUser(_ context.Context, id int64, name string, totalBalance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	u.Name = name
	u.TotalBalance = totalBalance
	u.UpdatedAt = time.Now()
	s.users[id] = u
	return nil
}

func (s *Store) UpdateProfile(_ context.Context, authID string, name, avatar *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		if u.AuthID != authID {
			continue
		}
		if name != nil {
			u.Name = *name
		}
		if avatar != nil {
			u.Avatar = *avatar
		}
		u.UpdatedAt = time.Now()
		s.users[id] = u
		return nil
	}
	return fmt.Errorf("auth %s: %w", authID, core.ErrNotFound)
}

func (s *Store) ApplyBalanceDelta(_ context.Context, userID int64, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %d: %w", userID, core.ErrNotFound)
	}
	u.TotalBalance += delta
	u.UpdatedAt = time.Now()
	s.users[userID] = u
	return nil
}

func (s *Store) ApplyStashDelta(_ context.Context, userID int64, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %d: %w", userID, core.ErrNotFound)
	}
	u.StashedAmount += delta
	u.UpdatedAt = time.Now()
	s.users[userID] = u
	return nil
}

func (s *Store) SetBalance(_ context.Context, userID int64, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %d: %w", userID, core.ErrNotFound)
	}
	u.TotalBalance = balance
	u.UpdatedAt = time.Now()
	s.users[userID] = u
	return nil
}

// --- categories ---

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.categories {
		if existing.Name == c.Name && existing.Type == c.Type {
			return core.Category{}, fmt.Errorf("category %q (%s): %w", c.Name, c.Type, core.ErrConflict)
		}
	}
	c.ID = s.id()
	c.CreatedAt = time.Now()
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) GetCategory(_ context.Context, id int64) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return core.Category{}, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	return c, nil
}

func (s *Store) FindCategoryByName(_ context.Context, name string, t core.TransactionType) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.Name == name && c.Type == t {
			return c, nil
		}
	}
	return core.Category{}, fmt.Errorf("category %q (%s): %w", name, t, core.ErrNotFound)
}

func (s *Store) ListCategories(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cats := make([]core.Category, 0, len(s.categories))
	for _, c := range s.categories {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].Type != cats[j].Type {
			return cats[i].Type < cats[j].Type
		}
		return cats[i].Name < cats[j].Name
	})
	return cats, nil
}

func (s *Store) UpdateCategory(_ context.Context, id int64, upd store.CategoryUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	if upd.Name != nil {
		c.Name = *upd.Name
	}
	if upd.Icon != nil {
		c.Icon = *upd.Icon
	}
	if upd.MonthlyLimit != nil {
		c.MonthlyLimit = *upd.MonthlyLimit
	}
	s.categories[id] = c
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	for _, tx := range s.transactions {
		if tx.CategoryID == id {
			return fmt.Errorf("category %d is referenced by transactions: %w", id, core.ErrConflict)
		}
	}
	delete(s.categories, id)
	return nil
}

// --- transactions ---

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[t.UserID]; !ok {
		return core.Transaction{}, fmt.Errorf("user %d: %w", t.UserID, core.ErrNotFound)
	}
	if _, ok := s.categories[t.CategoryID]; !ok {
		return core.Transaction{}, fmt.Errorf("category %d: %w", t.CategoryID, core.ErrNotFound)
	}
	t.ID = s.id()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	s.transactions[t.ID] = t
	return t, nil
}

func (s *Store) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return tx, nil
}

func (s *Store) ListTransactions(_ context.Context, f store.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.transactions {
		if f.UserID != nil && tx.UserID != *f.UserID {
			continue
		}
		if f.CategoryID != nil && tx.CategoryID != *f.CategoryID {
			continue
		}
		if f.Type != nil && tx.Type != *f.Type {
			continue
		}
		if f.From != nil && tx.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !tx.CreatedAt.Before(*f.To) {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) RecentTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	all, err := s.ListTransactions(ctx, store.TransactionFilter{})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) UpdateTransactionCategory(_ context.Context, txID, categoryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[txID]
	if !ok {
		return fmt.Errorf("transaction %d: %w", txID, core.ErrNotFound)
	}
	if _, ok := s.categories[categoryID]; !ok {
		return fmt.Errorf("category %d: %w", categoryID, core.ErrNotFound)
	}
	tx.CategoryID = categoryID
	s.transactions[txID] = tx
	return nil
}

func (s *Store) CountByCategory(_ context.Context, categoryID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, tx := range s.transactions {
		if tx.CategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

func (s *Store) SumSignedAmounts(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, tx := range s.transactions {
		if tx.UserID == userID {
			sum += tx.SignedDelta()
		}
	}
	return sum, nil
}

// --- debts ---

func (s *Store) CreateDebt(_ context.Context, d core.Debt) (core.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[d.UserID]; !ok {
		return core.Debt{}, fmt.Errorf("user %d: %w", d.UserID, core.ErrNotFound)
	}
	d.ID = s.id()
	d.Status = core.DebtPending
	d.CreatedAt = time.Now()
	s.debts[d.ID] = d
	return d, nil
}

func (s *Store) GetDebt(_ context.Context, id int64) (core.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.debts[id]
	if !ok {
		return core.Debt{}, fmt.Errorf("debt %d: %w", id, core.ErrNotFound)
	}
	return d, nil
}

func (s *Store) ListDebts(_ context.Context, status *core.DebtStatus) ([]core.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Debt
	for _, d := range s.debts {
		if status != nil && d.Status != *status {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) MarkDebtResolved(_ context.Context, id int64, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.debts[id]
	if !ok || d.Status != core.DebtPending {
		return fmt.Errorf("pending debt %d: %w", id, core.ErrNotFound)
	}
	d.Status = core.DebtResolved
	d.ResolvedAt = &resolvedAt
	s.debts[id] = d
	return nil
}

// --- settings ---

func (s *Store) GetSettings(_ context.Context) (core.AppSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.AppSettings{
		RegistrationEnabled: s.settings[store.SettingRegistrationEnabled] == "true",
		AllowBalanceEdit:    s.settings[store.SettingAllowBalanceEdit] == "true",
		StashName:           s.settings[store.SettingStashName],
	}, nil
}

func (s *Store) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

// --- limit overrides ---

func (s *Store) UpsertLimitOverride(_ context.Context, o core.LimitOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[o.UserID]; !ok {
		return fmt.Errorf("user %d: %w", o.UserID, core.ErrNotFound)
	}
	if _, ok := s.categories[o.CategoryID]; !ok {
		return fmt.Errorf("category %d: %w", o.CategoryID, core.ErrNotFound)
	}
	s.overrides[overrideKey(o.UserID, o.CategoryID)] = o
	return nil
}

func (s *Store) ListLimitOverrides(_ context.Context) ([]core.LimitOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.LimitOverride, 0, len(s.overrides))
	for _, o := range s.overrides {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		return overrideKey(out[i].UserID, out[i].CategoryID) < overrideKey(out[j].UserID, out[j].CategoryID)
	})
	return out, nil
}
