package core

import (
	"strconv"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	DebtPending  DebtStatus = "pending"
	DebtResolved DebtStatus = "resolved"
)

// Reserved category names. The quick-add sinks are created lazily on first
// use; the debt repayment category must already exist before a debt can be
// resolved. The asymmetry is inherited behavior, not an accident worth fixing
// silently.
const (
	CategoryUncategorized = "Uncategorized"
	CategoryOtherIncome   = "Other Income"
	CategoryDebtRepayment = "Debt Repayment"

	IconUncategorized = "❓"
	IconOtherIncome   = "💵"
)

type (
	TransactionType string
	DebtStatus      string

	// Money is an amount in the smallest currency unit. It marshals as a bare
	// integer on the wire.
	Money struct {
		Units int64
	}

	// User is a household member. TotalBalance is the materialized running
	// total of every signed transaction amount for the user; StashedAmount is
	// the slice of that balance hidden from the spendable view.
	User struct {
		ID            int64     `json:"id"`
		AuthID        string    `json:"-"`
		Email         string    `json:"email"`
		Name          string    `json:"name"`
		Avatar        string    `json:"avatar"`
		TotalBalance  int64     `json:"total_balance"`
		StashedAmount int64     `json:"stashed_amount"`
		IsAdmin       bool      `json:"is_admin"`
		CreatedAt     time.Time `json:"created_at"`
		UpdatedAt     time.Time `json:"updated_at"`
	}

	Category struct {
		ID           int64           `json:"id"`
		Name         string          `json:"name"`
		Icon         string          `json:"icon"`
		Type         TransactionType `json:"type"`
		MonthlyLimit int64           `json:"monthly_limit"` // 0 = no limit set
		CreatedAt    time.Time       `json:"created_at"`
	}

	// Transaction is one entry in the append-only ledger. Amount is always
	// positive; Type decides the sign of its balance effect.
	Transaction struct {
		ID         int64           `json:"id"`
		UserID     int64           `json:"user_id"`
		CategoryID int64           `json:"category_id"`
		Amount     Money           `json:"amount"`
		Type       TransactionType `json:"type"`
		Note       string          `json:"note"`
		CreatedAt  time.Time       `json:"created_at"`
	}

	// Debt is money lent to someone outside the household. DebtorName is free
	// text, not a user reference.
	Debt struct {
		ID         int64      `json:"id"`
		UserID     int64      `json:"user_id"`
		DebtorName string     `json:"debtor_name"`
		Amount     Money      `json:"amount"`
		Note       string     `json:"note"`
		Status     DebtStatus `json:"status"`
		ResolvedAt *time.Time `json:"resolved_at,omitempty"`
		CreatedAt  time.Time  `json:"created_at"`
	}

	// AppSettings is read fresh from the store on every gated operation so
	// that toggles take effect across server instances immediately.
	AppSettings struct {
		RegistrationEnabled bool   `json:"registration_enabled"`
		AllowBalanceEdit    bool   `json:"allow_balance_edit"`
		StashName           string `json:"stash_name"`
	}

	// LimitOverride is a per-user monthly limit for one category, layered on
	// top of the category's shared limit.
	LimitOverride struct {
		UserID     int64 `json:"user_id"`
		CategoryID int64 `json:"category_id"`
		Limit      int64 `json:"limit"`
	}
)

// MarshalJSON renders the amount as a plain integer of minor units.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(m.Units, 10)), nil
}

// UnmarshalJSON accepts a plain integer of minor units.
func (m *Money) UnmarshalJSON(data []byte) error {
	units, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return ErrInvalidAmount
	}
	m.Units = units
	return nil
}

// SignedDelta returns the transaction's effect on the owner's balance.
func (t Transaction) SignedDelta() int64 {
	if t.Type == Income {
		return t.Amount.Units
	}
	return -t.Amount.Units
}

// SpendableBalance is the balance shown on the dashboard: lifetime balance
// minus whatever is locked in the stash.
func (u User) SpendableBalance() int64 {
	return u.TotalBalance - u.StashedAmount
}

func (tt TransactionType) Valid() bool {
	return tt == Income || tt == Expense
}

func (m Money) Validate() error {
	if m.Units <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.UserID <= 0 {
		return ErrMissingUser
	}
	if t.CategoryID <= 0 {
		return ErrMissingCategory
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if len(t.Note) > 200 {
		return ErrNoteTooLong
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return ErrNameTooLong
	}
	if !c.Type.Valid() {
		return ErrInvalidType
	}
	if c.MonthlyLimit < 0 {
		return ErrInvalidLimit
	}
	return nil
}

func (d Debt) Validate() error {
	if d.UserID <= 0 {
		return ErrMissingUser
	}
	if strings.TrimSpace(d.DebtorName) == "" {
		return ErrEmptyDebtorName
	}
	if len(d.DebtorName) > 100 {
		return ErrNameTooLong
	}
	if err := d.Amount.Validate(); err != nil {
		return err
	}
	if len(d.Note) > 200 {
		return ErrNoteTooLong
	}
	return nil
}
