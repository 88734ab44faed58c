package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"tandem/internal/core"
	"tandem/internal/store"
)

// pathID parses the named path segment as a positive integer id.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, core.ErrValidation)
	}
	return id, nil
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.ledger.ListUsers(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, users)
}

type editBalanceRequest struct {
	Balance int64 `json:"balance"`
}

func (s *Server) handleEditBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req editBalanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	if err := s.ledger.EditBalance(r.Context(), userID, req.Balance); err != nil {
		writeErr(w, r, err)
		return
	}
	user, err := s.ledger.GetUser(r.Context(), userID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, user)
}

type adjustStashRequest struct {
	Delta int64 `json:"delta"`
}

func (s *Server) handleAdjustStash(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req adjustStashRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	user, err := s.ledger.AdjustStash(r.Context(), userID, req.Delta)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, user)
}

type addTransactionRequest struct {
	UserID     int64  `json:"user_id"`
	CategoryID int64  `json:"category_id"`
	Amount     int64  `json:"amount"`
	Type       string `json:"type"`
	Note       string `json:"note"`
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var req addTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	userID := req.UserID
	if userID == 0 {
		userID = currentUser(r).ID
	}
	tx, err := s.ledger.AddTransaction(r.Context(), core.Transaction{
		UserID:     userID,
		CategoryID: req.CategoryID,
		Amount:     core.Money{Units: req.Amount},
		Type:       core.TransactionType(req.Type),
		Note:       req.Note,
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeCreated(w, r, tx)
}

// parseTransactionFilter reads the optional query parameters. Invalid values
// fail the request rather than being silently dropped.
func parseTransactionFilter(r *http.Request) (store.TransactionFilter, error) {
	var f store.TransactionFilter
	q := r.URL.Query()

	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return f, fmt.Errorf("invalid user_id %q: %w", raw, core.ErrValidation)
		}
		f.UserID = &id
	}
	if raw := q.Get("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return f, fmt.Errorf("invalid category_id %q: %w", raw, core.ErrValidation)
		}
		f.CategoryID = &id
	}
	if raw := q.Get("type"); raw != "" {
		t := core.TransactionType(raw)
		if !t.Valid() {
			return f, fmt.Errorf("invalid type %q: %w", raw, core.ErrValidation)
		}
		f.Type = &t
	}
	if raw := q.Get("from"); raw != "" {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return f, fmt.Errorf("invalid from date %q: %w", raw, core.ErrValidation)
		}
		f.From = &day
	}
	if raw := q.Get("to"); raw != "" {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return f, fmt.Errorf("invalid to date %q: %w", raw, core.ErrValidation)
		}
		end := day.AddDate(0, 0, 1)
		f.To = &end
	}
	return f, nil
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTransactionFilter(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	txs, err := s.ledger.ListTransactions(r.Context(), filter)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, txs)
}

func (s *Server) handleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeErr(w, r, fmt.Errorf("invalid limit %q: %w", raw, core.ErrValidation))
			return
		}
		limit = n
	}
	txs, err := s.ledger.RecentTransactions(r.Context(), limit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, txs)
}

func (s *Server) handleUncategorized(w http.ResponseWriter, r *http.Request) {
	txs, err := s.ledger.UncategorizedTransactions(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, txs)
}

type recategorizeRequest struct {
	CategoryID int64 `json:"category_id"`
}

func (s *Server) handleRecategorize(w http.ResponseWriter, r *http.Request) {
	txID, err := pathID(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req recategorizeRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	if err := s.ledger.RecategorizeTransaction(r.Context(), txID, req.CategoryID); err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, map[string]string{"status": "recategorized"})
}

type categoryRequest struct {
	Name         string `json:"name"`
	Icon         string `json:"icon"`
	Type         string `json:"type"`
	MonthlyLimit int64  `json:"monthly_limit"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	cat, err := s.ledger.CreateCategory(r.Context(), core.Category{
		Name:         req.Name,
		Icon:         req.Icon,
		Type:         core.TransactionType(req.Type),
		MonthlyLimit: req.MonthlyLimit,
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeCreated(w, r, cat)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.ledger.ListCategories(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, cats)
}

type updateCategoryRequest struct {
	Name         *string `json:"name,omitempty"`
	Icon         *string `json:"icon,omitempty"`
	MonthlyLimit *int64  `json:"monthly_limit,omitempty"`
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req updateCategoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	upd := store.CategoryUpdate{Name: req.Name, Icon: req.Icon, MonthlyLimit: req.MonthlyLimit}
	if err := s.ledger.UpdateCategory(r.Context(), id, upd); err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, map[string]string{"status": "updated"})
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := s.ledger.DeleteCategory(r.Context(), id); err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, map[string]string{"status": "deleted"})
}

type setLimitRequest struct {
	Limit int64 `json:"limit"`
}

func (s *Server) handleSetUserLimit(w http.ResponseWriter, r *http.Request) {
	categoryID, err := pathID(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	userID, err := pathID(r, "userID")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req setLimitRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	if err := s.ledger.SetUserLimit(r.Context(), userID, categoryID, req.Limit); err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, core.LimitOverride{UserID: userID, CategoryID: categoryID, Limit: req.Limit})
}

type addDebtRequest struct {
	UserID     int64  `json:"user_id"`
	DebtorName string `json:"debtor_name"`
	Amount     int64  `json:"amount"`
	Note       string `json:"note"`
}

func (s *Server) handleAddDebt(w http.ResponseWriter, r *http.Request) {
	var req addDebtRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	userID := req.UserID
	if userID == 0 {
		userID = currentUser(r).ID
	}
	debt, err := s.ledger.AddDebt(r.Context(), core.Debt{
		UserID:     userID,
		DebtorName: req.DebtorName,
		Amount:     core.Money{Units: req.Amount},
		Note:       req.Note,
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeCreated(w, r, debt)
}

func (s *Server) handleListDebts(w http.ResponseWriter, r *http.Request) {
	var status *core.DebtStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := core.DebtStatus(raw)
		if st != core.DebtPending && st != core.DebtResolved {
			writeErr(w, r, fmt.Errorf("invalid status %q: %w", raw, core.ErrValidation))
			return
		}
		status = &st
	}
	debts, err := s.ledger.ListDebts(r.Context(), status)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, debts)
}

func (s *Server) handleResolveDebt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	debt, err := s.ledger.ResolveDebt(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, debt)
}
