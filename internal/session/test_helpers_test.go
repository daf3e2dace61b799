package session

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
	"github.com/nerrad567/gray-logic-identity/internal/clock"
	"github.com/nerrad567/gray-logic-identity/internal/event"
	"github.com/nerrad567/gray-logic-identity/internal/ids"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/lock"
	_ "github.com/nerrad567/gray-logic-identity/migrations"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const testPassword = "Secret1!"

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "session-test.db"),
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
	return db.DB
}

// plainVerifier compares against a marker-prefixed plaintext.
type plainVerifier struct{}

func (plainVerifier) Hash(raw, _ string) (auth.PasswordHash, error) {
	return auth.PasswordHash{Hash: "plain:" + raw, Algorithm: "plain"}, nil
}

func (plainVerifier) Verify(raw string, stored auth.PasswordHash) (bool, error) {
	return stored.Hash == "plain:"+raw, nil
}

func (plainVerifier) DefaultAlgorithm() string { return "plain" }

type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *recordingSink) Publish(_ context.Context, events []event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType()
	}
	return out
}

func (s *recordingSink) count(eventType string) int {
	n := 0
	for _, typ := range s.types() {
		if typ == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	svc   *Service
	sink  *recordingSink
	clock *clock.Fake
	db    *sql.DB
	users *auth.SQLiteUserRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testDB(t)
	f := &fixture{
		sink:  &recordingSink{},
		clock: clock.NewFake(testEpoch),
		db:    db,
		users: auth.NewUserRepository(db),
	}
	f.svc = f.service(lock.NewLocalLocker())
	return f
}

// service builds another Service over the same storage, as a second
// process would.
func (f *fixture) service(locker lock.Locker) *Service {
	return NewService(Deps{
		Sessions: auth.NewAuthenticationRepository(f.db),
		Users:    f.users,
		Verifier: plainVerifier{},
		Locker:   locker,
		Sink:     f.sink,
		IDs:      ids.NewULID(),
		Clock:    f.clock,
		Config:   Config{AccessTTL: 30 * time.Minute, RefreshTTL: 14 * 24 * time.Hour},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func (f *fixture) seedUser(t *testing.T, id, email string) *auth.User {
	t.Helper()
	addr, err := auth.NewEmail(email)
	if err != nil {
		t.Fatalf("NewEmail(%q) error = %v", email, err)
	}
	user, _, err := auth.RegisterUser(auth.UserID(id), addr, "Test User",
		auth.PasswordHash{Hash: "plain:" + testPassword, Algorithm: "plain"}, testEpoch)
	if err != nil {
		t.Fatalf("RegisterUser() error = %v", err)
	}
	if err := f.users.Save(context.Background(), user); err != nil {
		t.Fatalf("saving user: %v", err)
	}
	user.Drain()
	return user
}

func (f *fixture) sessionCount(t *testing.T) int {
	t.Helper()
	var n int
	if err := f.db.QueryRow("SELECT COUNT(*) FROM authentications").Scan(&n); err != nil {
		t.Fatalf("counting sessions: %v", err)
	}
	return n
}
