package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-identity/internal/rbac"
)

// healthCheckTimeout bounds each dependency check in GET /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.metrics.Instrument)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.Get(wsPath, s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/validate", s.handleValidate)
			r.Get("/auth/me", s.handleMe)

			r.Route("/permissions", func(r chi.Router) {
				read := s.requirePermission(rbac.ResourcePermission, rbac.ActionRead)
				manage := s.requirePermission(rbac.ResourcePermission, rbac.ActionManage)

				r.With(read).Get("/", s.handleListPermissions)
				r.With(manage).Post("/", s.handleCreatePermission)
				r.With(read).Get("/resource/{type}", s.handlePermissionsByResourceType)
				r.With(read).Get("/{id}", s.handleGetPermission)
				r.With(manage).Patch("/{id}", s.handleUpdatePermission)
				r.With(manage).Delete("/{id}", s.handleDeletePermission)
			})

			r.Route("/roles", func(r chi.Router) {
				read := s.requirePermission(rbac.ResourceRole, rbac.ActionRead)
				manage := s.requirePermission(rbac.ResourceRole, rbac.ActionManage)

				r.With(read).Get("/", s.handleListRoles)
				r.With(manage).Post("/", s.handleCreateRole)

				r.Route("/{id}", func(r chi.Router) {
					r.With(read).Get("/", s.handleGetRole)
					r.With(manage).Patch("/", s.handleUpdateRole)
					r.With(manage).Delete("/", s.handleDeleteRole)
					r.With(read).Get("/permissions", s.handleRolePermissions)
					r.With(manage).Put("/permissions/{pid}", s.handleAddRolePermission)
					r.With(manage).Delete("/permissions/{pid}", s.handleRemoveRolePermission)
				})
			})

			r.With(s.requirePermission(rbac.ResourceAudit, rbac.ActionRead)).Get("/audit", s.handleListAudit)
		})

		// Registration is public; everything else under /users needs a
		// token. One subtree so the public POST is not shadowed.
		r.Route("/users", func(r chi.Router) {
			r.Post("/", s.handleRegister)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				read := s.requirePermission(rbac.ResourceUser, rbac.ActionRead)
				manage := s.requirePermission(rbac.ResourceUser, rbac.ActionManage)
				selfOrRead := s.requireSelfOrPermission(rbac.ResourceUser, rbac.ActionRead)
				selfOrManage := s.requireSelfOrPermission(rbac.ResourceUser, rbac.ActionManage)
				assign := s.requirePermission(rbac.ResourceRole, rbac.ActionManage)

				r.With(read).Get("/", s.handleListUsers)
				r.With(read).Get("/lookup", s.handleLookupUser)

				r.Route("/{id}", func(r chi.Router) {
					r.With(selfOrRead).Get("/", s.handleGetUser)
					r.With(selfOrManage).Patch("/", s.handleUpdateProfile)
					r.With(manage).Post("/activate", s.handleActivateUser)
					r.With(manage).Post("/deactivate", s.handleDeactivateUser)
					r.With(selfOrManage).Put("/password", s.handleChangePassword)
					r.With(selfOrRead).Get("/roles", s.handleUserRoles)
					r.With(selfOrRead).Get("/roles/check", s.handleCheckRole)
					r.With(assign).Put("/roles/{rid}", s.handleAssignRole)
					r.With(assign).Delete("/roles/{rid}", s.handleRevokeRole)
					r.With(selfOrRead).Get("/permissions", s.handleEffectivePermissions)
					r.With(selfOrRead).Get("/permissions/check", s.handleCheckPermission)
				})
			})
		})
	})

	return r
}

// handleHealth reports the server version and the state of each
// registered dependency. Any failing dependency turns the response 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	checks := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.health[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("health check failed", "dependency", name, "error", err)
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":            status,
		"version":           s.version,
		"checks":            checks,
		"websocket_clients": s.hub.ClientCount(),
	})
}
