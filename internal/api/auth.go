package api

import (
	"net/http"
	"time"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type validateResponse struct {
	Valid            bool      `json:"valid"`
	UserID           string    `json:"user_id"`
	AuthenticationID string    `json:"authentication_id"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// handleLogin exchanges credentials for a token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	pair, err := s.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeDomainError(w, r, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// handleRefresh issues a new access token for a refresh token.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	pair, err := s.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeDomainError(w, r, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// handleLogout ends the session of the presented access token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(r.Context(), bearerToken(r)); err != nil {
		s.writeDomainError(w, r, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleValidate echoes the principal the middleware resolved.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	writeJSON(w, http.StatusOK, validateResponse{
		Valid:            true,
		UserID:           p.UserID.String(),
		AuthenticationID: p.AuthenticationID.String(),
		ExpiresAt:        p.ExpiresAt,
	})
}

// handleMe returns the caller's account with its roles.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())

	user, err := s.accounts.Get(r.Context(), p.UserID)
	if err != nil {
		s.writeDomainError(w, r, "loading current user", err)
		return
	}
	roles, err := s.rbac.RolesForUser(r.Context(), p.UserID)
	if err != nil {
		s.writeDomainError(w, r, "loading current user roles", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":       user,
		"roles":      roles,
		"expires_at": p.ExpiresAt,
	})
}
