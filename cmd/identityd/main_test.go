package main

import (
	"context"
	"fmt"
	"bytes"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/lock"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-identity/internal/rbac"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRun_InvalidConfigPath(t *testing.T) {
	t.Setenv("IDENTITY_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("IDENTITY_CONFIG", writeConfig(t, `
database:
  path: ""
security:
  password_algorithm: md5
`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with an invalid config")
	}
	if !strings.Contains(err.Error(), "database.path") {
		t.Errorf("run() error = %v, want it to name database.path", err)
	}
}

// TestRun_StartupAndShutdown boots the service with every optional
// backend disabled and stops it through context cancellation.
func TestRun_StartupAndShutdown(t *testing.T) {
	port := freePort(t)
	dir := t.TempDir()
	t.Setenv("IDENTITY_CONFIG", writeConfig(t, fmt.Sprintf(`
site:
  id: test-site
database:
  path: %q
api:
  host: "127.0.0.1"
  port: %d
logging:
  level: error
  format: text
security:
  password_algorithm: bcrypt
  bcrypt_cost: 4
bootstrap:
  admin_email: admin@example.com
`, filepath.Join(dir, "identity.db"), port)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	base := fmt.Sprintf("http://127.0.0.1:%d/api/v1", port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not come up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	resp, err := http.Post(base+"/auth/login", "application/json",
		strings.NewReader(`{"email":"admin@example.com","password":"Wrong1!x"}`))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("login status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run() error = %v, want nil on shutdown", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

func TestRunMigrate(t *testing.T) {
	t.Setenv("IDENTITY_CONFIG", writeConfig(t, fmt.Sprintf(`
site:
  id: test-site
database:
  path: %q
`, filepath.Join(t.TempDir(), "identity.db"))))
	ctx := context.Background()

	steps := []struct {
		args []string
		want string
	}{
		{[]string{"status"}, "pending"},
		{nil, "migrations applied"},
		{[]string{"status"}, "identity_schema"},
		{[]string{"down"}, "rolled back 20260301_090000"},
		{[]string{"down"}, "nothing to roll back"},
		{[]string{"up"}, "migrations applied"},
	}
	for _, step := range steps {
		var out bytes.Buffer
		if err := runMigrate(ctx, step.args, &out); err != nil {
			t.Fatalf("runMigrate(%v) error = %v", step.args, err)
		}
		if !strings.Contains(out.String(), step.want) {
			t.Errorf("runMigrate(%v) output = %q, want %q", step.args, out.String(), step.want)
		}
	}

	var out bytes.Buffer
	if err := runMigrate(ctx, []string{"status"}, &out); err != nil {
		t.Fatalf("runMigrate(status) error = %v", err)
	}
	if strings.Contains(out.String(), "pending") {
		t.Errorf("status after up still pending:\n%s", out.String())
	}

	if err := runMigrate(ctx, []string{"sideways"}, io.Discard); err == nil {
		t.Error("runMigrate(sideways) error = nil")
	}
}

func TestNewTokenGenerator(t *testing.T) {
	if _, ok := newTokenGenerator(config.SecurityConfig{TokenFormat: config.TokenFormatOpaque}).(auth.OpaqueTokenGenerator); !ok {
		t.Error("opaque format did not yield OpaqueTokenGenerator")
	}

	gen := newTokenGenerator(config.SecurityConfig{
		TokenFormat: config.TokenFormatJWT,
		JWT:         config.JWTConfig{Secret: strings.Repeat("k", 32), Issuer: "identityd"},
	})
	jwtGen, ok := gen.(auth.JWTTokenGenerator)
	if !ok {
		t.Fatalf("jwt format yielded %T", gen)
	}
	if jwtGen.Issuer != "identityd" {
		t.Errorf("issuer = %q, want identityd", jwtGen.Issuer)
	}
}

func TestNewVerifier(t *testing.T) {
	v, err := newVerifier(config.SecurityConfig{PasswordAlgorithm: auth.AlgorithmBcrypt, BcryptCost: 4})
	if err != nil {
		t.Fatalf("newVerifier() error = %v", err)
	}
	if v.DefaultAlgorithm() != auth.AlgorithmBcrypt {
		t.Errorf("DefaultAlgorithm() = %q, want bcrypt", v.DefaultAlgorithm())
	}

	if _, err := newVerifier(config.SecurityConfig{PasswordAlgorithm: "md5"}); err == nil {
		t.Error("newVerifier(md5) error = nil, want error")
	}
}

func TestNewLocker_Disabled(t *testing.T) {
	log := logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard)

	l, closeFn, err := newLocker(context.Background(), config.RedisConfig{}, time.Second, log)
	if err != nil {
		t.Fatalf("newLocker() error = %v", err)
	}
	defer closeFn()
	if _, ok := l.(*lock.LocalLocker); !ok {
		t.Errorf("newLocker() = %T, want *lock.LocalLocker", l)
	}
}

func TestNewLocker_Unreachable(t *testing.T) {
	log := logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := newLocker(ctx, config.RedisConfig{Enabled: true, URL: "redis://127.0.0.1:1/0"}, time.Second, log); err == nil {
		t.Error("newLocker() with unreachable Redis error = nil, want error")
	}
}

func TestGrantAdministrator(t *testing.T) {
	ctx := context.Background()
	db, err := openDatabase(ctx, config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "identity.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("openDatabase() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	log := logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard)
	verifier, err := newVerifier(config.SecurityConfig{PasswordAlgorithm: auth.AlgorithmBcrypt, BcryptCost: 4})
	if err != nil {
		t.Fatalf("newVerifier() error = %v", err)
	}
	accounts := auth.NewAccounts(auth.AccountsDeps{Users: auth.NewUserRepository(db.DB), Verifier: verifier})
	engine := rbac.NewEngine(rbac.EngineDeps{
		Permissions: rbac.NewPermissionRepository(db.DB),
		Roles:       rbac.NewRoleRepository(db.DB),
		Assignments: rbac.NewAssignmentRepository(db.DB, time.Now),
	})

	if err := grantAdministrator(ctx, accounts, engine, "ghost@example.com", log); err != nil {
		t.Fatalf("grantAdministrator(unknown) error = %v, want nil", err)
	}

	admin, err := accounts.Register(ctx, auth.RegisterRequest{Email: "admin@example.com", Password: "Secret1!"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := grantAdministrator(ctx, accounts, engine, "Admin@example.com", log); err != nil {
			t.Fatalf("grantAdministrator() run %d error = %v", i+1, err)
		}
	}
	ok, err := engine.EvaluatePermission(ctx, admin.ID, rbac.ResourceRole, rbac.ActionManage)
	if err != nil || !ok {
		t.Errorf("EvaluatePermission(ROLE, MANAGE) = %v, %v; want true", ok, err)
	}
}
