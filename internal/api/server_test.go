package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/audit"
	"github.com/nerrad567/gray-logic-identity/internal/auth"
	"github.com/nerrad567/gray-logic-identity/internal/clock"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-identity/internal/rbac"
	"github.com/nerrad567/gray-logic-identity/internal/session"
	_ "github.com/nerrad567/gray-logic-identity/migrations"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const (
	testEmail    = "ada@example.com"
	testPassword = "Secret1!"
)

type testEnv struct {
	srv      *Server
	handler  http.Handler
	clock    *clock.Fake
	audit    *audit.SQLiteRepository
	metrics  *metrics.Metrics
	accounts *auth.Accounts
	rbac     *rbac.Engine
}

type stubCheck struct{ err error }

func (f stubCheck) HealthCheck(context.Context) error { return f.err }

// newTestEnv wires a Server over real services backed by a temporary
// SQLite database.
func newTestEnv(t *testing.T, health map[string]HealthChecker) *testEnv {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "api-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}

	log := logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
	clk := clock.NewFake(testEpoch)
	verifier, err := auth.NewVerifier(auth.AlgorithmBcrypt, auth.Bcrypt{Cost: 4})
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	m := metrics.New("identity_test")
	users := auth.NewUserRepository(db.DB)

	accounts := auth.NewAccounts(auth.AccountsDeps{
		Users:    users,
		Verifier: verifier,
		Clock:    clk,
		Logger:   log.Component("accounts"),
	})
	engine := rbac.NewEngine(rbac.EngineDeps{
		Permissions: rbac.NewPermissionRepository(db.DB),
		Roles:       rbac.NewRoleRepository(db.DB),
		Assignments: rbac.NewAssignmentRepository(db.DB, clk.Now),
		Clock:       clk,
		Logger:      log.Component("rbac"),
	})
	sessions := session.NewService(session.Deps{
		Sessions: auth.NewAuthenticationRepository(db.DB),
		Users:    users,
		Verifier: verifier,
		Clock:    clk,
		Metrics:  m,
		Logger:   log.Component("session"),
	})
	auditRepo := audit.NewSQLiteRepository(db.DB)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			CORS: config.CORSConfig{AllowedOrigins: []string{"https://admin.example.com"}},
		},
		WS: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:   log,
		Sessions: sessions,
		Accounts: accounts,
		RBAC:     engine,
		Audit:    auditRepo,
		Metrics:  m,
		Health:   health,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return &testEnv{
		srv:      srv,
		handler:  srv.Handler(),
		clock:    clk,
		audit:    auditRepo,
		metrics:  m,
		accounts: accounts,
		rbac:     engine,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		r = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) register(t *testing.T, email, password string) *auth.User {
	t.Helper()
	user, err := e.accounts.Register(context.Background(), auth.RegisterRequest{
		Email:    email,
		Password: password,
		Name:     "Ada",
	})
	if err != nil {
		t.Fatalf("Register(%q) error = %v", email, err)
	}
	return user
}

func (e *testEnv) login(t *testing.T, email, password string) session.TokenPair {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: email, Password: password})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[session.TokenPair](t, w)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

// ─── Health and plumbing ───────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := newTestEnv(t, map[string]HealthChecker{"database": stubCheck{}})

	w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestHealth_Degraded(t *testing.T) {
	env := newTestEnv(t, map[string]HealthChecker{
		"database": stubCheck{},
		"mqtt":     stubCheck{err: errors.New("not connected")},
	})

	w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	resp := decode[struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}](t, w)
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if resp.Checks["database"] != "ok" || resp.Checks["mqtt"] != "not connected" {
		t.Errorf("checks = %v", resp.Checks)
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want req-123", got)
	}

	w = env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if got := w.Header().Get("X-Request-ID"); got == "" {
		t.Error("X-Request-ID not generated")
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name       string
		origin     string
		wantHeader string
	}{
		{"allowed origin", "https://admin.example.com", "https://admin.example.com"},
		{"foreign origin", "https://evil.example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/roles", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			env.handler.ServeHTTP(w, req)

			if w.Code != http.StatusNoContent {
				t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantHeader {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantHeader)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, testEmail, testPassword)
	env.login(t, testEmail, testPassword)

	w := env.do(t, http.MethodGet, "/api/v1/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`identity_test_logins_total{result="succeeded"} 1`,
		`identity_test_http_requests_total{method="POST",route="/api/v1/auth/login",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestBodyLimits(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"malformed JSON", "{", http.StatusBadRequest},
		{"oversized body", `{"email":"` + strings.Repeat("a", maxRequestBodySize) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/auth/login", "", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	env := newTestEnv(t, nil)
	h := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		if got := bearerToken(req); got != tt.want {
			t.Errorf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestServerLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start = nil, want error")
	}
	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() before Start error = %v", err)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New(Deps{}) error = nil, want error")
	}
}
