package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
	"github.com/nerrad567/gray-logic-identity/internal/rbac"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// updateProfileRequest leaves a field unchanged when it is omitted.
type updateProfileRequest struct {
	Name        *string `json:"name"`
	PhoneNumber *string `json:"phone_number"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// handleRegister creates an ACTIVE account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := s.accounts.Register(r.Context(), auth.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		s.writeDomainError(w, r, "register user", err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// handleListUsers returns a page of users.
//
// Query parameters: status (ACTIVE|INACTIVE), search, limit, offset.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := auth.UserFilter{Search: q.Get("search")}
	if v := q.Get("status"); v != "" {
		status, err := auth.ParseUserStatus(v)
		if err != nil {
			s.writeDomainError(w, r, "list users", err)
			return
		}
		filter.Status = status
	}
	filter.Limit, filter.Offset = queryInt(r, "limit"), queryInt(r, "offset")

	list, err := s.accounts.List(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, r, "list users", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	user, err := s.accounts.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, "get user", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleLookupUser finds an account by ?email=.
func (s *Server) handleLookupUser(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeBadRequest(w, "email query parameter is required")
		return
	}
	user, err := s.accounts.GetByEmail(r.Context(), email)
	if err != nil {
		s.writeDomainError(w, r, "lookup user", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == nil && req.PhoneNumber == nil {
		writeBadRequest(w, "name or phone_number is required")
		return
	}

	user, err := s.accounts.UpdateProfile(r.Context(), id, auth.ProfileUpdate{
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		s.writeDomainError(w, r, "update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleActivateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	user, err := s.accounts.Activate(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, "activate user", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleDeactivateUser deactivates the account and ends its session.
func (s *Server) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	user, err := s.accounts.Deactivate(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, "deactivate user", err)
		return
	}
	if err := s.sessions.RevokeUser(r.Context(), id); err != nil {
		s.writeDomainError(w, r, "revoke deactivated user session", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeBadRequest(w, "current_password and new_password are required")
		return
	}

	if err := s.accounts.ChangePassword(r.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		s.writeDomainError(w, r, "change password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUserRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	roles, err := s.rbac.RolesForUser(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, "list user roles", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles, "count": len(roles)})
}

func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	s.changeAssignment(w, r, "assign role", s.rbac.AssignRole)
}

func (s *Server) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	s.changeAssignment(w, r, "revoke role", s.rbac.RevokeRole)
}

func (s *Server) changeAssignment(w http.ResponseWriter, r *http.Request, op string,
	apply func(context.Context, auth.UserID, rbac.RoleID) error,
) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	roleID, err := rbac.ParseRoleID(chi.URLParam(r, "rid"))
	if err != nil {
		s.writeDomainError(w, r, op, err)
		return
	}
	if err := apply(r.Context(), id, roleID); err != nil {
		s.writeDomainError(w, r, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCheckRole answers whether the user holds ?role=, given as a role
// id or a role name.
func (s *Server) handleCheckRole(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	role := r.URL.Query().Get("role")
	if role == "" {
		writeBadRequest(w, "role query parameter is required")
		return
	}

	has, err := s.rbac.UserHasRole(r.Context(), id, rbac.RoleID(role))
	if err == nil && !has {
		has, err = s.rbac.UserHasRoleByName(r.Context(), id, role)
	}
	if err != nil {
		s.writeDomainError(w, r, "check role", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": id, "role": role, "has_role": has})
}

// handleCheckPermission evaluates ?resource_type=&action= for the user.
func (s *Server) handleCheckPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	resourceType, action := q.Get("resource_type"), q.Get("action")

	allowed, err := s.rbac.EvaluatePermission(r.Context(), id, resourceType, action)
	if err != nil {
		s.writeDomainError(w, r, "check permission", err)
		return
	}
	s.metrics.ObservePermissionCheck(allowed)
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":       id,
		"resource_type": resourceType,
		"action":        action,
		"allowed":       allowed,
	})
}

func (s *Server) handleEffectivePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	perms, err := s.rbac.EffectivePermissions(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, "effective permissions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms, "count": len(perms)})
}

func (s *Server) userIDParam(w http.ResponseWriter, r *http.Request) (auth.UserID, bool) {
	id, err := auth.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, "parse user id", err)
		return "", false
	}
	return id, true
}

// queryInt reads an integer query parameter. Missing or malformed values
// read as zero and the callee applies its default.
func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}
