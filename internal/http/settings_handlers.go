package http

import (
	"net/http"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settings.Get(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, settings)
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetRegistration(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	if err := s.settings.SetRegistrationEnabled(r.Context(), currentUser(r), req.Enabled); err != nil {
		writeErr(w, r, err)
		return
	}
	s.writeSettings(w, r)
}

func (s *Server) handleSetBalanceEdit(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	if err := s.settings.SetAllowBalanceEdit(r.Context(), currentUser(r), req.Enabled); err != nil {
		writeErr(w, r, err)
		return
	}
	s.writeSettings(w, r)
}

type stashNameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSetStashName(w http.ResponseWriter, r *http.Request) {
	var req stashNameRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	if err := s.settings.SetStashName(r.Context(), req.Name); err != nil {
		writeErr(w, r, err)
		return
	}
	s.writeSettings(w, r)
}

// writeSettings echoes the fresh settings after a mutation.
func (s *Server) writeSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settings.Get(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, settings)
}
