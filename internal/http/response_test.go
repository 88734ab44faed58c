package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"tandem/internal/core"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", core.ErrValidation, http.StatusBadRequest},
		{"wrapped validation sentinel", core.ErrInvalidAmount, http.StatusBadRequest},
		{"unauthenticated", core.ErrUnauthenticated, http.StatusUnauthorized},
		{"unauthorized", core.ErrUnauthorized, http.StatusForbidden},
		{"not found", fmt.Errorf("load user: %w", core.ErrNotFound), http.StatusNotFound},
		{"conflict", core.ErrConflict, http.StatusConflict},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("%s: statusFor() = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestResponseEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/x", nil)
	NewResponse().
		Status(http.StatusCreated).
		Message("done").
		Data(map[string]int{"id": 7}).
		Write(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var env struct {
		Success bool           `json:"success"`
		Message string         `json:"message"`
		Data    map[string]int `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !env.Success || env.Message != "done" || env.Data["id"] != 7 {
		t.Errorf("envelope = %+v", env)
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/x", nil)
	NewResponse().Err(errors.New("dsn=postgres://user:hunter22@db")).Write(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var env struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Success || env.Error != "internal error" {
		t.Errorf("envelope = %+v, want generic internal error", env)
	}
}

func TestDomainErrorsAreEchoed(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/x", nil)
	NewResponse().Err(fmt.Errorf("debt 3 is already resolved: %w", core.ErrNotFound)).Write(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var env struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error != "debt 3 is already resolved: not found" {
		t.Errorf("error = %q", env.Error)
	}
}
