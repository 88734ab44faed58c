package http

import (
	"net/http"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := s.stats.Dashboard(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, dashboard)
}

func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.stats.Summaries(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, summaries)
}

func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.stats.Budgets(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, budgets)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.stats.History(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, history)
}

func (s *Server) handleCategoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.CategoryStats(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, stats)
}

func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	comparison, err := s.stats.Comparison(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, comparison)
}
