package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"tandem/internal/core"
)

type contextKey string

const userContextKey contextKey = "current_user"

// requireUser authenticates the bearer token and puts the user on the
// request context.
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		user, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("missing authorization header: %w", core.ErrUnauthenticated)
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", fmt.Errorf("malformed authorization header: %w", core.ErrUnauthenticated)
	}
	return token, nil
}

// currentUser returns the authenticated user placed on the context by
// requireUser.
func currentUser(r *http.Request) core.User {
	user, _ := r.Context().Value(userContextKey).(core.User)
	return user
}

// decodeBody decodes a JSON request body into dst, rejecting unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", core.ErrValidation)
	}
	return nil
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	user, err := s.auth.SignUp(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeCreated(w, r, user)
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	User      core.User `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt string    `json:"expires_at"`
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	user, session, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, signInResponse{
		User:      user,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

type magicLinkRequest struct {
	Email string `json:"email"`
}

// handleMagicLink issues a single-use sign-in token. With the local provider
// the token is returned directly; a hosted deployment would mail it instead.
func (s *Server) handleMagicLink(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	token, err := s.auth.MagicLink(r.Context(), req.Email)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, map[string]string{"token": token})
}

type redeemMagicLinkRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleRedeemMagicLink(w http.ResponseWriter, r *http.Request) {
	var req redeemMagicLinkRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	user, session, err := s.auth.RedeemMagicLink(r.Context(), req.Token)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, signInResponse{
		User:      user,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := s.auth.SignOut(r.Context(), token); err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, map[string]string{"status": "signed out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, currentUser(r))
}

type updateProfileRequest struct {
	Name   *string `json:"name,omitempty"`
	Avatar *string `json:"avatar,omitempty"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	user := currentUser(r)
	if err := s.auth.UpdateProfile(r.Context(), user.AuthID, req.Name, req.Avatar); err != nil {
		writeErr(w, r, err)
		return
	}
	updated, err := s.ledger.GetUser(r.Context(), user.ID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, updated)
}

type changePasswordRequest struct {
	NewPassword string `json:"new_password"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	if err := s.auth.ChangePassword(r.Context(), currentUser(r).AuthID, req.NewPassword); err != nil {
		writeErr(w, r, err)
		return
	}
	writeData(w, r, map[string]string{"status": "password changed"})
}
