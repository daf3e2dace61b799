package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-identity/internal/rbac"
)

type createPermissionRequest struct {
	Name         string `json:"name"`
	ResourceType string `json:"resource_type"`
	Action       string `json:"action"`
	Description  string `json:"description"`
}

type updatePermissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleListPermissions returns a page of permissions.
//
// Query parameters: search, offset, limit.
func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	list, err := s.rbac.ListPermissions(r.Context(), pageFrom(r))
	if err != nil {
		s.writeDomainError(w, r, "list permissions", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreatePermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	perm, err := s.rbac.CreatePermission(r.Context(), rbac.CreatePermissionRequest{
		Name:         req.Name,
		ResourceType: req.ResourceType,
		Action:       req.Action,
		Description:  req.Description,
	})
	if err != nil {
		s.writeDomainError(w, r, "create permission", err)
		return
	}
	writeJSON(w, http.StatusCreated, perm)
}

func (s *Server) handleGetPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := s.permissionIDParam(w, r, "id")
	if !ok {
		return
	}
	perm, err := s.rbac.GetPermission(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, "get permission", err)
		return
	}
	writeJSON(w, http.StatusOK, perm)
}

func (s *Server) handleUpdatePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := s.permissionIDParam(w, r, "id")
	if !ok {
		return
	}
	var req updatePermissionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	perm, err := s.rbac.UpdatePermission(r.Context(), id, rbac.UpdatePermissionRequest{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		s.writeDomainError(w, r, "update permission", err)
		return
	}
	writeJSON(w, http.StatusOK, perm)
}

func (s *Server) handleDeletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := s.permissionIDParam(w, r, "id")
	if !ok {
		return
	}
	if err := s.rbac.DeletePermission(r.Context(), id); err != nil {
		s.writeDomainError(w, r, "delete permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePermissionsByResourceType(w http.ResponseWriter, r *http.Request) {
	perms, err := s.rbac.PermissionsByResourceType(r.Context(), chi.URLParam(r, "type"))
	if err != nil {
		s.writeDomainError(w, r, "list permissions by resource type", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms, "count": len(perms)})
}

func (s *Server) permissionIDParam(w http.ResponseWriter, r *http.Request, key string) (rbac.PermissionID, bool) {
	id, err := rbac.ParsePermissionID(chi.URLParam(r, key))
	if err != nil {
		s.writeDomainError(w, r, "parse permission id", err)
		return "", false
	}
	return id, true
}

func pageFrom(r *http.Request) rbac.Page {
	return rbac.Page{
		Offset: queryInt(r, "offset"),
		Limit:  queryInt(r, "limit"),
		Search: r.URL.Query().Get("search"),
	}
}
