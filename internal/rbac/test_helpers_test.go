package rbac

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

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "rbac-test.db"),
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

type recordingSink struct {
	events []event.Event
}

func (s *recordingSink) Publish(_ context.Context, events []event.Event) error {
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSink) reset() { s.events = nil }

func (s *recordingSink) types() []string {
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType()
	}
	return out
}

type engineFixture struct {
	engine *Engine
	sink   *recordingSink
	clock  *clock.Fake
	db     *sql.DB
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	db := testDB(t)
	clk := clock.NewFake(testEpoch)
	sink := &recordingSink{}
	engine := NewEngine(EngineDeps{
		Permissions: NewPermissionRepository(db),
		Roles:       NewRoleRepository(db),
		Assignments: NewAssignmentRepository(db, clk.Now),
		Sink:        sink,
		IDs:         ids.NewSequence("id"),
		Clock:       clk,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &engineFixture{engine: engine, sink: sink, clock: clk, db: db}
}

func (f *engineFixture) permission(t *testing.T, name, rt, action string) *Permission {
	t.Helper()
	p, err := f.engine.CreatePermission(context.Background(), CreatePermissionRequest{Name: name, ResourceType: rt, Action: action})
	if err != nil {
		t.Fatalf("CreatePermission(%s) error = %v", name, err)
	}
	return p
}

func (f *engineFixture) role(t *testing.T, name string) *Role {
	t.Helper()
	r, err := f.engine.CreateRole(context.Background(), name, "")
	if err != nil {
		t.Fatalf("CreateRole(%s) error = %v", name, err)
	}
	return r
}
