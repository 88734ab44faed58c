package http

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
)

// apiKeyHeader carries the shortcut key for ingestion requests.
const apiKeyHeader = "X-Api-Key"

type quickAddRequest struct {
	Amount json.Number `json:"amount"`
	Type   string      `json:"type"`
	Note   string      `json:"note"`
}

// quickAddParams pulls amount, type and note out of the request. JSON bodies
// and form/query values are both accepted so that the dumbest possible
// client can call it.
func quickAddParams(r *http.Request) (amount, txType, note string, err error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req quickAddRequest
		if err := decodeBody(r, &req); err != nil {
			return "", "", "", err
		}
		return req.Amount.String(), req.Type, req.Note, nil
	}
	return r.FormValue("amount"), r.FormValue("type"), r.FormValue("note"), nil
}

// handleQuickAdd ingests a transaction from a phone shortcut.
func (s *Server) handleQuickAdd(w http.ResponseWriter, r *http.Request) {
	amount, txType, note, err := quickAddParams(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	tx, err := s.ledger.QuickAdd(r.Context(), r.Header.Get(apiKeyHeader), amount, txType, note)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	message := fmt.Sprintf("Recorded %s of %d.%02d", tx.Type, tx.Amount.Units/100, tx.Amount.Units%100)
	if user, err := s.ledger.GetUser(r.Context(), tx.UserID); err == nil {
		message += " for " + user.Name
	}
	NewResponse().Status(http.StatusCreated).Message(message).Data(tx).Write(w, r)
}

// handleQuickAddUsage documents the endpoint for anyone poking it with a
// browser while setting up their shortcut.
func (s *Server) handleQuickAddUsage(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, map[string]any{
		"endpoint": "POST /api/quick-add",
		"headers": map[string]string{
			apiKeyHeader: "personal API key (required)",
		},
		"body": map[string]string{
			"amount": "positive amount, decimal separators allowed (required)",
			"type":   "income or expense, defaults to expense",
			"note":   "free text, defaults to \"Quick add\"",
		},
		"formats": "JSON body, form values or query parameters",
	})
}
