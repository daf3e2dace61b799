package auth

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/clock"
	"github.com/nerrad567/gray-logic-identity/internal/event"
	"github.com/nerrad567/gray-logic-identity/internal/ids"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-identity/migrations"
)

// testEpoch is a whole-second instant so stored timestamps round-trip exactly.
var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// testDB opens a temporary SQLite database with the identity schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "auth-test.db"),
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

// plainVerifier stores passwords with a marker prefix. Argon2id is too
// slow for tests that only need the wiring.
type plainVerifier struct{}

func (plainVerifier) Hash(raw, _ string) (PasswordHash, error) {
	return PasswordHash{Hash: "plain:" + raw, Algorithm: "plain"}, nil
}

func (plainVerifier) Verify(raw string, stored PasswordHash) (bool, error) {
	return stored.Hash == "plain:"+raw, nil
}

func (plainVerifier) DefaultAlgorithm() string { return "plain" }

// seedTestUser stores an ACTIVE user and returns it with its log drained.
func seedTestUser(t *testing.T, db *sql.DB, id, email string) *User {
	t.Helper()

	addr, err := NewEmail(email)
	if err != nil {
		t.Fatalf("NewEmail(%q) error = %v", email, err)
	}
	user, _, err := RegisterUser(UserID(id), addr, "Test User", PasswordHash{Hash: "plain:Secret1!", Algorithm: "plain"}, testEpoch)
	if err != nil {
		t.Fatalf("RegisterUser() error = %v", err)
	}
	if err := NewUserRepository(db).Save(context.Background(), user); err != nil {
		t.Fatalf("saving test user %s: %v", id, err)
	}
	user.Drain()
	return user
}

// recordingSink collects every published event.
type recordingSink struct {
	events []event.Event
}

func (s *recordingSink) Publish(_ context.Context, events []event.Event) error {
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSink) types() []string {
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType()
	}
	return out
}

// testAccounts wires Accounts over a fresh database with a fake clock.
func testAccounts(t *testing.T) (*Accounts, *recordingSink, *clock.Fake) {
	t.Helper()

	sink := &recordingSink{}
	clk := clock.NewFake(testEpoch)
	accounts := NewAccounts(AccountsDeps{
		Users:    NewUserRepository(testDB(t)),
		Verifier: plainVerifier{},
		Sink:     sink,
		IDs:      ids.NewSequence("usr"),
		Clock:    clk,
		Logger:   testLogger(),
	})
	return accounts, sink, clk
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
