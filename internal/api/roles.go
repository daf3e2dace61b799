package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-identity/internal/rbac"
)

type roleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	list, err := s.rbac.ListRoles(r.Context(), pageFrom(r))
	if err != nil {
		s.writeDomainError(w, r, "list roles", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	role, err := s.rbac.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		s.writeDomainError(w, r, "create role", err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := s.roleIDParam(w, r)
	if !ok {
		return
	}
	role, err := s.rbac.GetRole(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, "get role", err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := s.roleIDParam(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	role, err := s.rbac.UpdateRole(r.Context(), id, req.Name, req.Description)
	if err != nil {
		s.writeDomainError(w, r, "update role", err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := s.roleIDParam(w, r)
	if !ok {
		return
	}
	if err := s.rbac.DeleteRole(r.Context(), id); err != nil {
		s.writeDomainError(w, r, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.roleIDParam(w, r)
	if !ok {
		return
	}
	perms, err := s.rbac.PermissionsForRole(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, "list role permissions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms, "count": len(perms)})
}

func (s *Server) handleAddRolePermission(w http.ResponseWriter, r *http.Request) {
	s.editRolePermission(w, r, "add role permission", s.rbac.AddPermissionToRole)
}

func (s *Server) handleRemoveRolePermission(w http.ResponseWriter, r *http.Request) {
	s.editRolePermission(w, r, "remove role permission", s.rbac.RemovePermissionFromRole)
}

func (s *Server) editRolePermission(w http.ResponseWriter, r *http.Request, op string,
	apply func(context.Context, rbac.RoleID, rbac.PermissionID) (*rbac.Role, error),
) {
	roleID, ok := s.roleIDParam(w, r)
	if !ok {
		return
	}
	permID, ok := s.permissionIDParam(w, r, "pid")
	if !ok {
		return
	}
	role, err := apply(r.Context(), roleID, permID)
	if err != nil {
		s.writeDomainError(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (s *Server) roleIDParam(w http.ResponseWriter, r *http.Request) (rbac.RoleID, bool) {
	id, err := rbac.ParseRoleID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, "parse role id", err)
		return "", false
	}
	return id, true
}
