package core

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// chartPalette is cycled through by descending spend rank so the same rank
// always gets the same color.
var chartPalette = []string{
	"#6366f1", "#ec4899", "#f59e0b", "#10b981", "#3b82f6",
	"#8b5cf6", "#ef4444", "#14b8a6", "#f97316", "#06b6d4",
	"#84cc16", "#e879f9", "#fb923c", "#22d3ee", "#a78bfa",
}

// userPalette colors the two household members in comparison charts.
var userPalette = []string{"#6366f1", "#ec4899"}

type (
	// UserSummary pairs a user with their current-month totals. Balance is
	// lifetime, the income/expense stats are month-windowed.
	UserSummary struct {
		User         User  `json:"user"`
		TotalIncome  int64 `json:"total_income"`
		TotalExpense int64 `json:"total_expense"`
		Balance      int64 `json:"balance"`
		Spendable    int64 `json:"spendable"`
		SavingRate   int   `json:"saving_rate"`
	}

	// UserBudget is the per-user slice of a category budget. Limit is the
	// user's override when one exists, otherwise 0.
	UserBudget struct {
		UserID     int64  `json:"user_id"`
		UserName   string `json:"user_name"`
		Spent      int64  `json:"spent"`
		Limit      int64  `json:"limit"`
		Percentage int    `json:"percentage"`
	}

	// BudgetStatus reports current-month spend against one expense category's
	// monthly limit.
	BudgetStatus struct {
		Category   Category     `json:"category"`
		Spent      int64        `json:"spent"`
		Limit      int64        `json:"limit"`
		Percentage int          `json:"percentage"`
		PerUser    []UserBudget `json:"per_user"`
	}

	UserMonth struct {
		UserID   int64  `json:"user_id"`
		UserName string `json:"user_name"`
		Income   int64  `json:"income"`
		Expense  int64  `json:"expense"`
		Net      int64  `json:"net"`
	}

	// HistoryMonth aggregates one calendar month across all users.
	HistoryMonth struct {
		Month        string      `json:"month"` // YYYY-MM
		Label        string      `json:"label"`
		TotalIncome  int64       `json:"total_income"`
		TotalExpense int64       `json:"total_expense"`
		NetChange    int64       `json:"net_change"`
		PerUser      []UserMonth `json:"per_user"`
	}

	UserShare struct {
		UserID   int64  `json:"user_id"`
		UserName string `json:"user_name"`
		Amount   int64  `json:"amount"`
	}

	// CategoryStat is one slice of the current-month expense breakdown.
	CategoryStat struct {
		Category string      `json:"category"`
		Icon     string      `json:"icon"`
		Amount   int64       `json:"amount"`
		Color    string      `json:"color"`
		PerUser  []UserShare `json:"per_user"`
	}

	UserExpense struct {
		UserID   int64  `json:"user_id"`
		UserName string `json:"user_name"`
		Expense  int64  `json:"expense"`
		Color    string `json:"color"`
	}

	// ComparisonMonth is one bucket of the six-month expense comparison.
	ComparisonMonth struct {
		Month string        `json:"month"` // YYYY-MM
		Label string        `json:"label"`
		Users []UserExpense `json:"users"`
	}
)

// MonthRange returns the first and last instant of now's calendar month,
// both inclusive.
func MonthRange(now time.Time) (start, end time.Time) {
	start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end = start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end
}

// MonthKey formats t as the YYYY-MM bucket key.
func MonthKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// InMonth reports whether t falls in now's calendar month.
func InMonth(t, now time.Time) bool {
	return t.Year() == now.Year() && t.Month() == now.Month()
}

// roundPct rounds a ratio (numerator over denominator) to a whole percent.
// Callers must guard denominator > 0.
func roundPct(num, den int64) int {
	return int(math.Round(float64(num) / float64(den) * 100))
}

// SummarizeUsers computes the per-user monthly summary. monthTx must already
// be windowed to the current month; transactions belonging to unknown users
// are ignored.
func SummarizeUsers(users []User, monthTx []Transaction) []UserSummary {
	income := make(map[int64]int64, len(users))
	expense := make(map[int64]int64, len(users))
	for _, tx := range monthTx {
		switch tx.Type {
		case Income:
			income[tx.UserID] += tx.Amount.Units
		case Expense:
			expense[tx.UserID] += tx.Amount.Units
		}
	}

	summaries := make([]UserSummary, 0, len(users))
	for _, u := range users {
		in, out := income[u.ID], expense[u.ID]
		rate := 0
		if in > 0 {
			rate = roundPct(in-out, in)
			if rate < 0 {
				rate = 0
			}
		}
		summaries = append(summaries, UserSummary{
			User:         u,
			TotalIncome:  in,
			TotalExpense: out,
			Balance:      u.TotalBalance,
			Spendable:    u.SpendableBalance(),
			SavingRate:   rate,
		})
	}
	return summaries
}

// BudgetStatuses computes spend against limit for every expense category.
// monthExpenseTx must be current-month expense transactions. overrides maps
// (userID, categoryID) to a personal limit; users without an override get
// limit 0 in their row. A limit of 0 always yields percentage 0.
func BudgetStatuses(categories []Category, monthExpenseTx []Transaction, users []User, overrides []LimitOverride) []BudgetStatus {
	type key struct{ user, cat int64 }
	limitFor := make(map[key]int64, len(overrides))
	for _, o := range overrides {
		limitFor[key{o.UserID, o.CategoryID}] = o.Limit
	}

	spentByCat := make(map[int64]int64)
	spentByUserCat := make(map[key]int64)
	for _, tx := range monthExpenseTx {
		if tx.Type != Expense {
			continue
		}
		spentByCat[tx.CategoryID] += tx.Amount.Units
		spentByUserCat[key{tx.UserID, tx.CategoryID}] += tx.Amount.Units
	}

	statuses := make([]BudgetStatus, 0, len(categories))
	for _, cat := range categories {
		if cat.Type != Expense {
			continue
		}
		status := BudgetStatus{
			Category: cat,
			Spent:    spentByCat[cat.ID],
			Limit:    cat.MonthlyLimit,
		}
		if status.Limit > 0 {
			status.Percentage = roundPct(status.Spent, status.Limit)
		}
		for _, u := range users {
			spent := spentByUserCat[key{u.ID, cat.ID}]
			limit := limitFor[key{u.ID, cat.ID}]
			ub := UserBudget{UserID: u.ID, UserName: u.Name, Spent: spent, Limit: limit}
			if limit > 0 {
				ub.Percentage = roundPct(spent, limit)
			}
			status.PerUser = append(status.PerUser, ub)
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// MonthlyHistory groups the whole ledger into calendar-month buckets,
// oldest first. Every known user appears in every bucket.
func MonthlyHistory(users []User, allTx []Transaction) []HistoryMonth {
	type flows struct {
		income  map[int64]int64
		expense map[int64]int64
	}
	byMonth := make(map[string]*flows)
	for _, tx := range allTx {
		k := MonthKey(tx.CreatedAt)
		f, ok := byMonth[k]
		if !ok {
			f = &flows{income: make(map[int64]int64), expense: make(map[int64]int64)}
			byMonth[k] = f
		}
		if tx.Type == Income {
			f.income[tx.UserID] += tx.Amount.Units
		} else {
			f.expense[tx.UserID] += tx.Amount.Units
		}
	}

	keys := make([]string, 0, len(byMonth))
	for k := range byMonth {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	months := make([]HistoryMonth, 0, len(keys))
	for _, k := range keys {
		f := byMonth[k]
		m := HistoryMonth{Month: k, Label: monthLabel(k)}
		for _, u := range users {
			in, out := f.income[u.ID], f.expense[u.ID]
			m.PerUser = append(m.PerUser, UserMonth{
				UserID:   u.ID,
				UserName: u.Name,
				Income:   in,
				Expense:  out,
				Net:      in - out,
			})
			m.TotalIncome += in
			m.TotalExpense += out
		}
		m.NetChange = m.TotalIncome - m.TotalExpense
		months = append(months, m)
	}
	return months
}

// CategoryExpenseStats breaks the current month's expenses down by category,
// largest first, with palette colors assigned by rank. Transactions whose
// category is missing fall into a fallback bucket instead of being dropped.
func CategoryExpenseStats(monthExpenseTx []Transaction, categories []Category, users []User) []CategoryStat {
	catByID := make(map[int64]Category, len(categories))
	for _, c := range categories {
		catByID[c.ID] = c
	}
	userNames := make(map[int64]string, len(users))
	for _, u := range users {
		userNames[u.ID] = u.Name
	}

	type bucket struct {
		name    string
		icon    string
		amount  int64
		perUser map[int64]int64
	}
	buckets := make(map[int64]*bucket)
	for _, tx := range monthExpenseTx {
		if tx.Type != Expense {
			continue
		}
		b, ok := buckets[tx.CategoryID]
		if !ok {
			name, icon := "Other", IconUncategorized
			if cat, found := catByID[tx.CategoryID]; found {
				name, icon = cat.Name, cat.Icon
			}
			b = &bucket{name: name, icon: icon, perUser: make(map[int64]int64)}
			buckets[tx.CategoryID] = b
		}
		b.amount += tx.Amount.Units
		b.perUser[tx.UserID] += tx.Amount.Units
	}

	stats := make([]CategoryStat, 0, len(buckets))
	for _, b := range buckets {
		stat := CategoryStat{Category: b.name, Icon: b.icon, Amount: b.amount}
		for _, u := range users {
			if amt := b.perUser[u.ID]; amt > 0 {
				stat.PerUser = append(stat.PerUser, UserShare{UserID: u.ID, UserName: u.Name, Amount: amt})
			}
		}
		stats = append(stats, stat)
	}
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Amount != stats[j].Amount {
			return stats[i].Amount > stats[j].Amount
		}
		return stats[i].Category < stats[j].Category
	})
	for i := range stats {
		stats[i].Color = chartPalette[i%len(chartPalette)]
	}
	return stats
}

// MonthlyUserComparison returns exactly six month buckets ending at now's
// month, expense totals only, every user present in every bucket even when
// the total is zero.
func MonthlyUserComparison(users []User, tx []Transaction, now time.Time) []ComparisonMonth {
	expenseByUserMonth := make(map[string]map[int64]int64)
	for _, t := range tx {
		if t.Type != Expense {
			continue
		}
		k := MonthKey(t.CreatedAt)
		if expenseByUserMonth[k] == nil {
			expenseByUserMonth[k] = make(map[int64]int64)
		}
		expenseByUserMonth[k][t.UserID] += t.Amount.Units
	}

	months := make([]ComparisonMonth, 0, 6)
	for i := 5; i >= 0; i-- {
		d := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -i, 0)
		k := MonthKey(d)
		cm := ComparisonMonth{Month: k, Label: d.Format("Jan 2006")}
		for idx, u := range users {
			cm.Users = append(cm.Users, UserExpense{
				UserID:   u.ID,
				UserName: u.Name,
				Expense:  expenseByUserMonth[k][u.ID],
				Color:    userPalette[idx%len(userPalette)],
			})
		}
		months = append(months, cm)
	}
	return months
}

// monthLabel turns "2026-03" into "Mar 2026". Falls back to the raw key when
// the key is malformed.
func monthLabel(key string) string {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return key
	}
	return t.Format("Jan 2006")
}
