package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	applog "tandem/internal/log"
	"tandem/internal/services"
	"tandem/internal/store/memory"

	localauth "tandem/internal/auth"
)

type apiFixture struct {
	handler http.Handler
	ledger  *services.LedgerService
	token   string
	userID  int64
}

type fakePublisher struct{}

func (fakePublisher) PublishBalanceEvent(context.Context, int64, string) error { return nil }

func testLogger() *applog.Logger {
	return applog.NewWithHandler("test", slog.NewTextHandler(io.Discard, nil))
}

// newAPIFixture builds a server over the in-memory store with one signed-in
// admin user and two seeded categories.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	st := memory.New()
	logger := testLogger()
	quickKeys := map[string]string{"secret1": "anna@example.com"}

	ledger := services.NewLedgerService(st, fakePublisher{}, quickKeys, logger)
	stats := services.NewStatsService(st, logger)
	auth := services.NewAuthService(st, localauth.NewLocalProvider(), logger)
	settings := services.NewSettingsService(st, logger)

	srv := NewServer(ledger, stats, auth, settings, logger, "0")
	handler := srv.Handler()
	t.Cleanup(func() { srv.limiter.Stop() })

	fx := &apiFixture{handler: handler, ledger: ledger}

	resp := fx.do(t, "POST", "/api/auth/signup", "", map[string]any{
		"email": "anna@example.com", "password": "hunter22", "name": "Anna",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body %s", resp.Code, resp.Body.String())
	}

	resp = fx.do(t, "POST", "/api/auth/signin", "", map[string]any{
		"email": "anna@example.com", "password": "hunter22",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("signin status = %d, body %s", resp.Code, resp.Body.String())
	}
	var signIn struct {
		Data struct {
			User struct {
				ID int64 `json:"id"`
			} `json:"user"`
			Token string `json:"token"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &signIn)
	fx.token = signIn.Data.Token
	fx.userID = signIn.Data.User.ID

	for _, c := range []map[string]any{
		{"name": "Groceries", "icon": "🛒", "type": "expense", "monthly_limit": 50000},
		{"name": "Salary", "icon": "💰", "type": "income"},
	} {
		resp := fx.do(t, "POST", "/api/categories", fx.token, c)
		if resp.Code != http.StatusCreated {
			t.Fatalf("seed category status = %d, body %s", resp.Code, resp.Body.String())
		}
	}
	return fx
}

func (fx *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %s: %v", rec.Body.String(), err)
	}
}

func (fx *apiFixture) categoryID(t *testing.T, name string) int64 {
	t.Helper()
	resp := fx.do(t, "GET", "/api/categories", fx.token, nil)
	var out struct {
		Data []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &out)
	for _, c := range out.Data {
		if c.Name == name {
			return c.ID
		}
	}
	t.Fatalf("category %q not found", name)
	return 0
}

func TestHealthEndpoints(t *testing.T) {
	fx := newAPIFixture(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp := fx.do(t, "GET", path, "", nil)
		if resp.Code != http.StatusOK {
			t.Errorf("GET %s status = %d", path, resp.Code)
		}
	}
}

func TestAuthRequired(t *testing.T) {
	fx := newAPIFixture(t)

	tests := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"bogus token", "not-a-session"},
	}
	for _, tc := range tests {
		resp := fx.do(t, "GET", "/api/transactions", tc.token, nil)
		if resp.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", tc.name, resp.Code)
		}
		var out struct {
			Success bool `json:"success"`
		}
		decodeResponse(t, resp, &out)
		if out.Success {
			t.Errorf("%s: success = true on auth failure", tc.name)
		}
	}
}

func TestTransactionLifecycle(t *testing.T) {
	fx := newAPIFixture(t)
	salaryID := fx.categoryID(t, "Salary")
	groceriesID := fx.categoryID(t, "Groceries")

	resp := fx.do(t, "POST", "/api/transactions", fx.token, map[string]any{
		"category_id": salaryID, "amount": 300000, "type": "income", "note": "August salary",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("income status = %d, body %s", resp.Code, resp.Body.String())
	}

	resp = fx.do(t, "POST", "/api/transactions", fx.token, map[string]any{
		"category_id": groceriesID, "amount": 45000, "type": "expense",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expense status = %d, body %s", resp.Code, resp.Body.String())
	}

	resp = fx.do(t, "GET", "/api/auth/me", fx.token, nil)
	var me struct {
		Data struct {
			TotalBalance int64 `json:"total_balance"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &me)
	if me.Data.TotalBalance != 255000 {
		t.Errorf("balance after income and expense = %d, want 255000", me.Data.TotalBalance)
	}

	resp = fx.do(t, "GET", fmt.Sprintf("/api/transactions?type=expense&user_id=%d", fx.userID), fx.token, nil)
	var list struct {
		Data []struct {
			Amount int64  `json:"amount"`
			Type   string `json:"type"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &list)
	if len(list.Data) != 1 || list.Data[0].Amount != 45000 {
		t.Errorf("expense list = %+v, want one 45000 entry", list.Data)
	}
}

func TestTransactionValidationStatus(t *testing.T) {
	fx := newAPIFixture(t)
	groceriesID := fx.categoryID(t, "Groceries")

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"zero amount", map[string]any{"category_id": groceriesID, "amount": 0, "type": "expense"}, http.StatusBadRequest},
		{"bad type", map[string]any{"category_id": groceriesID, "amount": 100, "type": "transfer"}, http.StatusBadRequest},
		{"missing category", map[string]any{"amount": 100, "type": "expense"}, http.StatusBadRequest},
		{"unknown category", map[string]any{"category_id": 999, "amount": 100, "type": "expense"}, http.StatusNotFound},
	}
	for _, tc := range tests {
		resp := fx.do(t, "POST", "/api/transactions", fx.token, tc.body)
		if resp.Code != tc.want {
			t.Errorf("%s: status = %d, want %d (body %s)", tc.name, resp.Code, tc.want, resp.Body.String())
		}
	}
}

func TestStashEndpoint(t *testing.T) {
	fx := newAPIFixture(t)
	salaryID := fx.categoryID(t, "Salary")

	fx.do(t, "POST", "/api/transactions", fx.token, map[string]any{
		"category_id": salaryID, "amount": 100000, "type": "income",
	})

	resp := fx.do(t, "POST", fmt.Sprintf("/api/users/%d/stash", fx.userID), fx.token, map[string]any{"delta": 40000})
	if resp.Code != http.StatusOK {
		t.Fatalf("stash status = %d, body %s", resp.Code, resp.Body.String())
	}
	var out struct {
		Data struct {
			TotalBalance  int64 `json:"total_balance"`
			StashedAmount int64 `json:"stashed_amount"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &out)
	if out.Data.TotalBalance != 100000 || out.Data.StashedAmount != 40000 {
		t.Errorf("after stash: balance %d stashed %d, want 100000/40000", out.Data.TotalBalance, out.Data.StashedAmount)
	}

	// Stashing beyond the spendable balance must fail with a validation status.
	resp = fx.do(t, "POST", fmt.Sprintf("/api/users/%d/stash", fx.userID), fx.token, map[string]any{"delta": 70000})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("overstash status = %d, want 400", resp.Code)
	}
}

func TestBalanceEditGate(t *testing.T) {
	fx := newAPIFixture(t)

	resp := fx.do(t, "PUT", fmt.Sprintf("/api/users/%d/balance", fx.userID), fx.token, map[string]any{"balance": 123456})
	if resp.Code != http.StatusOK {
		t.Fatalf("balance edit status = %d, body %s", resp.Code, resp.Body.String())
	}

	// Flip the gate off; the next edit must be refused.
	resp = fx.do(t, "PUT", "/api/settings/balance-edit", fx.token, map[string]any{"enabled": false})
	if resp.Code != http.StatusOK {
		t.Fatalf("toggle status = %d, body %s", resp.Code, resp.Body.String())
	}
	resp = fx.do(t, "PUT", fmt.Sprintf("/api/users/%d/balance", fx.userID), fx.token, map[string]any{"balance": 0})
	if resp.Code != http.StatusForbidden {
		t.Errorf("gated balance edit status = %d, want 403", resp.Code)
	}
}

func TestDebtResolutionFlow(t *testing.T) {
	fx := newAPIFixture(t)

	resp := fx.do(t, "POST", "/api/debts", fx.token, map[string]any{
		"debtor_name": "Marco", "amount": 20000, "note": "Concert ticket",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("add debt status = %d, body %s", resp.Code, resp.Body.String())
	}
	var created struct {
		Data struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &created)
	if created.Data.Status != "pending" {
		t.Fatalf("new debt status = %q, want pending", created.Data.Status)
	}

	// Resolution needs the repayment income category.
	resolvePath := fmt.Sprintf("/api/debts/%d/resolve", created.Data.ID)
	resp = fx.do(t, "POST", resolvePath, fx.token, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("resolve without repayment category status = %d, want 400", resp.Code)
	}

	fx.do(t, "POST", "/api/categories", fx.token, map[string]any{
		"name": "Debt Repayment", "icon": "🤝", "type": "income",
	})

	resp = fx.do(t, "POST", resolvePath, fx.token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("resolve status = %d, body %s", resp.Code, resp.Body.String())
	}
	var resolved struct {
		Data struct {
			Status     string  `json:"status"`
			ResolvedAt *string `json:"resolved_at"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &resolved)
	if resolved.Data.Status != "resolved" || resolved.Data.ResolvedAt == nil {
		t.Errorf("resolved debt = %+v", resolved.Data)
	}

	// Resolving twice must not credit again.
	resp = fx.do(t, "POST", resolvePath, fx.token, nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("second resolve status = %d, want 404", resp.Code)
	}
}

func TestCategoryDeleteConflict(t *testing.T) {
	fx := newAPIFixture(t)
	groceriesID := fx.categoryID(t, "Groceries")

	fx.do(t, "POST", "/api/transactions", fx.token, map[string]any{
		"category_id": groceriesID, "amount": 500, "type": "expense",
	})

	resp := fx.do(t, "DELETE", fmt.Sprintf("/api/categories/%d", groceriesID), fx.token, nil)
	if resp.Code != http.StatusConflict {
		t.Errorf("delete referenced category status = %d, want 409", resp.Code)
	}
}

func TestUserLimitEndpoint(t *testing.T) {
	fx := newAPIFixture(t)
	groceriesID := fx.categoryID(t, "Groceries")

	resp := fx.do(t, "PUT",
		fmt.Sprintf("/api/categories/%d/limits/%d", groceriesID, fx.userID),
		fx.token, map[string]any{"limit": 25000})
	if resp.Code != http.StatusOK {
		t.Fatalf("set limit status = %d, body %s", resp.Code, resp.Body.String())
	}

	// Income categories cannot carry spending limits.
	salaryID := fx.categoryID(t, "Salary")
	resp = fx.do(t, "PUT",
		fmt.Sprintf("/api/categories/%d/limits/%d", salaryID, fx.userID),
		fx.token, map[string]any{"limit": 25000})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("limit on income category status = %d, want 400", resp.Code)
	}
}

func TestStatsEndpoints(t *testing.T) {
	fx := newAPIFixture(t)
	salaryID := fx.categoryID(t, "Salary")
	fx.do(t, "POST", "/api/transactions", fx.token, map[string]any{
		"category_id": salaryID, "amount": 100000, "type": "income",
	})

	for _, path := range []string{
		"/api/stats/dashboard",
		"/api/stats/summaries",
		"/api/stats/budgets",
		"/api/stats/history",
		"/api/stats/categories",
		"/api/stats/comparison",
	} {
		resp := fx.do(t, "GET", path, fx.token, nil)
		if resp.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, body %s", path, resp.Code, resp.Body.String())
		}
	}

	resp := fx.do(t, "GET", "/api/stats/summaries", fx.token, nil)
	var out struct {
		Data []struct {
			TotalIncome int64 `json:"total_income"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &out)
	if len(out.Data) != 1 || out.Data[0].TotalIncome != 100000 {
		t.Errorf("summaries = %+v, want one row with income 100000", out.Data)
	}
}

func TestRegistrationGate(t *testing.T) {
	fx := newAPIFixture(t)

	resp := fx.do(t, "PUT", "/api/settings/registration", fx.token, map[string]any{"enabled": false})
	if resp.Code != http.StatusOK {
		t.Fatalf("toggle status = %d, body %s", resp.Code, resp.Body.String())
	}

	resp = fx.do(t, "POST", "/api/auth/signup", "", map[string]any{
		"email": "ben@example.com", "password": "hunter22", "name": "Ben",
	})
	if resp.Code != http.StatusForbidden {
		t.Errorf("signup with registration off status = %d, want 403", resp.Code)
	}
}

func TestMagicLinkFlow(t *testing.T) {
	fx := newAPIFixture(t)

	resp := fx.do(t, "POST", "/api/auth/magic-link", "", map[string]any{"email": "anna@example.com"})
	if resp.Code != http.StatusOK {
		t.Fatalf("magic link status = %d, body %s", resp.Code, resp.Body.String())
	}
	var issued struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &issued)
	if issued.Data.Token == "" {
		t.Fatal("magic link token is empty")
	}

	resp = fx.do(t, "POST", "/api/auth/magic-link/redeem", "", map[string]any{"token": issued.Data.Token})
	if resp.Code != http.StatusOK {
		t.Fatalf("redeem status = %d, body %s", resp.Code, resp.Body.String())
	}
	var redeemed struct {
		Data struct {
			Token string `json:"token"`
			User  struct {
				Email string `json:"email"`
			} `json:"user"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &redeemed)
	if redeemed.Data.User.Email != "anna@example.com" {
		t.Errorf("redeemed user = %q", redeemed.Data.User.Email)
	}

	// The session works and the link is single use.
	me := fx.do(t, "GET", "/api/auth/me", redeemed.Data.Token, nil)
	if me.Code != http.StatusOK {
		t.Errorf("session from magic link status = %d", me.Code)
	}
	resp = fx.do(t, "POST", "/api/auth/magic-link/redeem", "", map[string]any{"token": issued.Data.Token})
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("second redeem status = %d, want 401", resp.Code)
	}

	// Unknown emails must not mint tokens.
	resp = fx.do(t, "POST", "/api/auth/magic-link", "", map[string]any{"email": "stranger@example.com"})
	if resp.Code != http.StatusNotFound {
		t.Errorf("magic link for unknown email status = %d, want 404", resp.Code)
	}
}

func TestUncategorizedListing(t *testing.T) {
	fx := newAPIFixture(t)

	// Nothing quick-added yet.
	resp := fx.do(t, "GET", "/api/transactions/uncategorized", fx.token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("uncategorized status = %d, body %s", resp.Code, resp.Body.String())
	}
	var empty struct {
		Data []struct{} `json:"data"`
	}
	decodeResponse(t, resp, &empty)
	if len(empty.Data) != 0 {
		t.Fatalf("uncategorized count = %d, want 0", len(empty.Data))
	}

	if rec := fx.quickAdd(t, "secret1", url.Values{"amount": {"700"}}); rec.Code != http.StatusCreated {
		t.Fatalf("quick add status = %d", rec.Code)
	}

	resp = fx.do(t, "GET", "/api/transactions/uncategorized", fx.token, nil)
	var out struct {
		Data []struct {
			Amount int64 `json:"amount"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &out)
	if len(out.Data) != 1 || out.Data[0].Amount != 700 {
		t.Errorf("uncategorized = %+v, want one 700 entry", out.Data)
	}

	// A regular categorized expense stays out of the listing.
	groceriesID := fx.categoryID(t, "Groceries")
	fx.do(t, "POST", "/api/transactions", fx.token, map[string]any{
		"category_id": groceriesID, "amount": 100, "type": "expense",
	})
	resp = fx.do(t, "GET", "/api/transactions/uncategorized", fx.token, nil)
	decodeResponse(t, resp, &out)
	if len(out.Data) != 1 {
		t.Errorf("uncategorized count after categorized expense = %d, want 1", len(out.Data))
	}
}

func TestSecurityHeaders(t *testing.T) {
	fx := newAPIFixture(t)

	resp := fx.do(t, "GET", "/healthz", "", nil)
	if got := resp.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := resp.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}
