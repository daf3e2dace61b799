package rbac

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
	"github.com/nerrad567/gray-logic-identity/internal/errs"
	"github.com/nerrad567/gray-logic-identity/internal/event"
	"github.com/nerrad567/gray-logic-identity/internal/ids"
)

func TestEngine_CreateRole_DuplicateName(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	first := f.role(t, "editor")
	f.sink.reset()

	_, err := f.engine.CreateRole(ctx, "editor", "second attempt")
	if !errors.Is(err, ErrRoleExists) {
		t.Fatalf("CreateRole(duplicate) error = %v, want ErrRoleExists", err)
	}
	if !errors.Is(err, errs.ErrConflict) {
		t.Errorf("error kind = %v, want conflict", err)
	}
	if len(f.sink.events) != 0 {
		t.Errorf("events after failed create = %v, want none", f.sink.types())
	}

	stored, err := f.engine.GetRole(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetRole() error = %v", err)
	}
	if stored.Description != "" || stored.Name != "editor" {
		t.Errorf("first role modified: %+v", stored)
	}

	list, err := f.engine.ListRoles(ctx, Page{})
	if err != nil {
		t.Fatalf("ListRoles() error = %v", err)
	}
	if list.Total != 1 {
		t.Errorf("role count = %d, want 1", list.Total)
	}
}

func TestEngine_CreateRole_Validation(t *testing.T) {
	f := newEngineFixture(t)

	for _, name := range []string{"", "   ", strings.Repeat("r", MaxRoleNameLength+1)} {
		if _, err := f.engine.CreateRole(context.Background(), name, ""); !errors.Is(err, errs.ErrValidation) {
			t.Errorf("CreateRole(%q) error = %v, want validation error", name, err)
		}
	}
}

func TestEngine_EvaluatePermission_Scenario(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	user := auth.UserID("usr-1")

	edit := f.permission(t, "Edit articles", "ARTICLE", "EDIT")
	editor := f.role(t, "editor")
	if _, err := f.engine.AddPermissionToRole(ctx, editor.ID, edit.ID); err != nil {
		t.Fatalf("AddPermissionToRole() error = %v", err)
	}
	if err := f.engine.AssignRole(ctx, user, editor.ID); err != nil {
		t.Fatalf("AssignRole() error = %v", err)
	}

	check := func(rt, action string, want bool) {
		t.Helper()
		got, err := f.engine.EvaluatePermission(ctx, user, rt, action)
		if err != nil {
			t.Fatalf("EvaluatePermission(%s, %s) error = %v", rt, action, err)
		}
		if got != want {
			t.Errorf("EvaluatePermission(%s, %s) = %v, want %v", rt, action, got, want)
		}
	}

	check("ARTICLE", "EDIT", true)
	check("ARTICLE", "DELETE", false)
	check("article", "EDIT", false)

	if _, err := f.engine.RemovePermissionFromRole(ctx, editor.ID, edit.ID); err != nil {
		t.Fatalf("RemovePermissionFromRole() error = %v", err)
	}
	check("ARTICLE", "EDIT", false)
}

func TestEngine_EvaluatePermission_NoRoles(t *testing.T) {
	f := newEngineFixture(t)

	got, err := f.engine.EvaluatePermission(context.Background(), "usr-nobody", "ARTICLE", "EDIT")
	if err != nil {
		t.Fatalf("EvaluatePermission() error = %v", err)
	}
	if got {
		t.Error("EvaluatePermission() = true for a user without roles")
	}
}

func TestEngine_EvaluatePermission_AcrossRoles(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	user := auth.UserID("usr-1")

	read := f.permission(t, "Read articles", "ARTICLE", "READ")
	publish := f.permission(t, "Publish articles", "ARTICLE", "PUBLISH")
	reader := f.role(t, "reader")
	publisher := f.role(t, "publisher")

	mustAdd(t, f, reader.ID, read.ID)
	mustAdd(t, f, publisher.ID, read.ID)
	mustAdd(t, f, publisher.ID, publish.ID)
	mustAssign(t, f, user, reader.ID)
	mustAssign(t, f, user, publisher.ID)

	ok, err := f.engine.EvaluatePermission(ctx, user, "ARTICLE", "PUBLISH")
	if err != nil || !ok {
		t.Errorf("EvaluatePermission(PUBLISH) = %v, %v; want true", ok, err)
	}

	perms, err := f.engine.EffectivePermissions(ctx, user)
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}
	if len(perms) != 2 {
		t.Errorf("EffectivePermissions() = %d permissions, want 2 (deduplicated)", len(perms))
	}

	has, err := f.engine.UserHasPermission(ctx, user, publish.ID)
	if err != nil || !has {
		t.Errorf("UserHasPermission() = %v, %v; want true", has, err)
	}
	has, err = f.engine.UserHasRoleByName(ctx, user, "publisher")
	if err != nil || !has {
		t.Errorf("UserHasRoleByName() = %v, %v; want true", has, err)
	}
	has, err = f.engine.UserHasRoleByName(ctx, user, "admin")
	if err != nil || has {
		t.Errorf("UserHasRoleByName(admin) = %v, %v; want false", has, err)
	}
}

func TestEngine_CreatePermission_Conflicts(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.permission(t, "Edit articles", "ARTICLE", "EDIT")

	tests := []struct {
		name    string
		req     CreatePermissionRequest
		wantErr error
	}{
		{"same pair", CreatePermissionRequest{Name: "Other", ResourceType: "ARTICLE", Action: "EDIT"}, ErrPermissionPair},
		{"same name", CreatePermissionRequest{Name: "Edit articles", ResourceType: "ARTICLE", Action: "DELETE"}, ErrPermissionExists},
		{"lowercase type", CreatePermissionRequest{Name: "x", ResourceType: "article", Action: "EDIT"}, errs.ErrValidation},
		{"blank action", CreatePermissionRequest{Name: "x", ResourceType: "ARTICLE", Action: " "}, errs.ErrValidation},
		{"blank name", CreatePermissionRequest{Name: "", ResourceType: "ARTICLE", Action: "READ"}, errs.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.engine.CreatePermission(ctx, tt.req); !errors.Is(err, tt.wantErr) {
				t.Errorf("CreatePermission() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Same action on another resource type is a different permission.
	f.permission(t, "Edit users", "USER", "EDIT")
}

func TestEngine_UpdatePermission(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	edit := f.permission(t, "Edit articles", "ARTICLE", "EDIT")
	f.permission(t, "Delete articles", "ARTICLE", "DELETE")
	f.sink.reset()

	// Keeping its own name is not a conflict.
	f.clock.Advance(time.Minute)
	got, err := f.engine.UpdatePermission(ctx, edit.ID, UpdatePermissionRequest{Name: "Edit articles", Description: "any article"})
	if err != nil {
		t.Fatalf("UpdatePermission(same name) error = %v", err)
	}
	if got.Description != "any article" || !got.UpdatedAt.Equal(testEpoch.Add(time.Minute)) {
		t.Errorf("UpdatePermission() = %+v", got)
	}
	if types := f.sink.types(); len(types) != 1 || types[0] != EventPermissionUpdated {
		t.Errorf("events = %v, want [%s]", types, EventPermissionUpdated)
	}

	if _, err := f.engine.UpdatePermission(ctx, edit.ID, UpdatePermissionRequest{Name: "Delete articles"}); !errors.Is(err, ErrPermissionExists) {
		t.Errorf("UpdatePermission(taken name) error = %v, want ErrPermissionExists", err)
	}
	if _, err := f.engine.UpdatePermission(ctx, "missing", UpdatePermissionRequest{Name: "x"}); !errors.Is(err, ErrPermissionNotFound) {
		t.Errorf("UpdatePermission(missing) error = %v, want ErrPermissionNotFound", err)
	}
}

func TestEngine_UpdateRole(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	editor := f.role(t, "editor")
	f.role(t, "viewer")

	got, err := f.engine.UpdateRole(ctx, editor.ID, "editor", "writes things")
	if err != nil {
		t.Fatalf("UpdateRole(same name) error = %v", err)
	}
	if got.Description != "writes things" {
		t.Errorf("Description = %q", got.Description)
	}

	if _, err := f.engine.UpdateRole(ctx, editor.ID, "viewer", ""); !errors.Is(err, ErrRoleExists) {
		t.Errorf("UpdateRole(taken name) error = %v, want ErrRoleExists", err)
	}

	renamed, err := f.engine.UpdateRole(ctx, editor.ID, "author", "")
	if err != nil {
		t.Fatalf("UpdateRole(rename) error = %v", err)
	}
	if _, err := f.engine.GetRoleByName(ctx, "author"); err != nil {
		t.Errorf("GetRoleByName(author) error = %v", err)
	}
	if _, err := f.engine.GetRoleByName(ctx, "editor"); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("GetRoleByName(editor) error = %v, want ErrRoleNotFound", err)
	}
	if renamed.ID != editor.ID {
		t.Errorf("rename changed id: %s", renamed.ID)
	}
}

func TestEngine_RolePermissionEdits(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	edit := f.permission(t, "Edit articles", "ARTICLE", "EDIT")
	editor := f.role(t, "editor")
	f.sink.reset()

	mustAdd(t, f, editor.ID, edit.ID)
	mustAdd(t, f, editor.ID, edit.ID)
	if types := f.sink.types(); len(types) != 1 || types[0] != EventRolePermissionAdded {
		t.Errorf("events after double add = %v, want one %s", types, EventRolePermissionAdded)
	}

	perms, err := f.engine.PermissionsForRole(ctx, editor.ID)
	if err != nil {
		t.Fatalf("PermissionsForRole() error = %v", err)
	}
	if len(perms) != 1 || perms[0].ID != edit.ID {
		t.Errorf("PermissionsForRole() = %v, want [%s]", perms, edit.ID)
	}

	if _, err := f.engine.AddPermissionToRole(ctx, editor.ID, "missing"); !errors.Is(err, ErrPermissionNotFound) {
		t.Errorf("AddPermissionToRole(missing permission) error = %v, want ErrPermissionNotFound", err)
	}
	if _, err := f.engine.AddPermissionToRole(ctx, "missing", edit.ID); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("AddPermissionToRole(missing role) error = %v, want ErrRoleNotFound", err)
	}

	f.sink.reset()
	if _, err := f.engine.RemovePermissionFromRole(ctx, editor.ID, edit.ID); err != nil {
		t.Fatalf("RemovePermissionFromRole() error = %v", err)
	}
	if _, err := f.engine.RemovePermissionFromRole(ctx, editor.ID, edit.ID); err != nil {
		t.Fatalf("RemovePermissionFromRole(again) error = %v", err)
	}
	if types := f.sink.types(); len(types) != 1 || types[0] != EventRolePermissionRemoved {
		t.Errorf("events after double remove = %v, want one %s", types, EventRolePermissionRemoved)
	}
}

func TestEngine_ConcurrentPermissionGrants(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	role := f.role(t, "editor")

	const n = 8
	perms := make([]*Permission, n)
	for i := range perms {
		perms[i] = f.permission(t, fmt.Sprintf("perm %d", i), "ARTICLE", fmt.Sprintf("ACTION_%d", i))
	}

	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for _, p := range perms {
		wg.Add(1)
		go func(id PermissionID) {
			defer wg.Done()
			if _, err := f.engine.AddPermissionToRole(ctx, role.ID, id); err != nil {
				errCh <- err
			}
		}(p.ID)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("AddPermissionToRole() error = %v", err)
	}

	stored, err := f.engine.GetRole(ctx, role.ID)
	if err != nil {
		t.Fatalf("GetRole() error = %v", err)
	}
	if got := len(stored.PermissionIDs()); got != n {
		t.Errorf("stored permission set size = %d, want %d (no lost updates)", got, n)
	}
}

func TestEngine_ConcurrentCreateRole(t *testing.T) {
	f := newEngineFixture(t)

	const n = 6
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		losses int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.CreateRole(context.Background(), "editor", "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrRoleExists):
				losses++
			default:
				t.Errorf("CreateRole() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || losses != n-1 {
		t.Errorf("wins = %d, losses = %d; want 1 and %d", wins, losses, n-1)
	}
}

func TestEngine_DeletePermission_RemovesMemberships(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	user := auth.UserID("usr-1")

	edit := f.permission(t, "Edit articles", "ARTICLE", "EDIT")
	editor := f.role(t, "editor")
	mustAdd(t, f, editor.ID, edit.ID)
	mustAssign(t, f, user, editor.ID)
	f.sink.reset()

	if err := f.engine.DeletePermission(ctx, edit.ID); err != nil {
		t.Fatalf("DeletePermission() error = %v", err)
	}
	if types := f.sink.types(); len(types) != 1 || types[0] != EventPermissionDeleted {
		t.Errorf("events = %v, want [%s]", types, EventPermissionDeleted)
	}

	role, err := f.engine.GetRole(ctx, editor.ID)
	if err != nil {
		t.Fatalf("GetRole() error = %v", err)
	}
	if role.HasPermission(edit.ID) {
		t.Error("role still references deleted permission")
	}
	if ok, _ := f.engine.EvaluatePermission(ctx, user, "ARTICLE", "EDIT"); ok {
		t.Error("EvaluatePermission() = true after permission deleted")
	}

	if err := f.engine.DeletePermission(ctx, edit.ID); !errors.Is(err, ErrPermissionNotFound) {
		t.Errorf("DeletePermission(again) error = %v, want ErrPermissionNotFound", err)
	}
}

func TestEngine_DeleteRole_RemovesAssignments(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	user := auth.UserID("usr-1")

	edit := f.permission(t, "Edit articles", "ARTICLE", "EDIT")
	editor := f.role(t, "editor")
	mustAdd(t, f, editor.ID, edit.ID)
	mustAssign(t, f, user, editor.ID)

	if err := f.engine.DeleteRole(ctx, editor.ID); err != nil {
		t.Fatalf("DeleteRole() error = %v", err)
	}

	roles, err := f.engine.RolesForUser(ctx, user)
	if err != nil {
		t.Fatalf("RolesForUser() error = %v", err)
	}
	if len(roles) != 0 {
		t.Errorf("RolesForUser() = %d roles, want 0", len(roles))
	}
	if _, err := f.engine.GetPermission(ctx, edit.ID); err != nil {
		t.Errorf("permission removed with role: %v", err)
	}

	var n int
	if err := f.db.QueryRow("SELECT COUNT(*) FROM role_permissions").Scan(&n); err != nil {
		t.Fatalf("counting role_permissions: %v", err)
	}
	if n != 0 {
		t.Errorf("role_permissions rows = %d, want 0", n)
	}

	if err := f.engine.DeleteRole(ctx, editor.ID); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("DeleteRole(again) error = %v, want ErrRoleNotFound", err)
	}
}

func TestEngine_AssignAndRevoke(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	user := auth.UserID("usr-1")
	editor := f.role(t, "editor")
	f.sink.reset()

	mustAssign(t, f, user, editor.ID)
	mustAssign(t, f, user, editor.ID)
	if types := f.sink.types(); len(types) != 1 || types[0] != EventUserRoleAssigned {
		t.Fatalf("events after double assign = %v, want one %s", types, EventUserRoleAssigned)
	}
	if ev, ok := f.sink.events[0].(UserRoleChanged); !ok || ev.AggregateID() != string(user) || ev.RoleID != editor.ID {
		t.Errorf("assigned event = %+v", f.sink.events[0])
	}

	has, err := f.engine.UserHasRole(ctx, user, editor.ID)
	if err != nil || !has {
		t.Errorf("UserHasRole() = %v, %v; want true", has, err)
	}

	f.sink.reset()
	for i := 0; i < 2; i++ {
		if err := f.engine.RevokeRole(ctx, user, editor.ID); err != nil {
			t.Fatalf("RevokeRole() error = %v", err)
		}
	}
	if types := f.sink.types(); len(types) != 1 || types[0] != EventUserRoleRevoked {
		t.Errorf("events after double revoke = %v, want one %s", types, EventUserRoleRevoked)
	}

	if err := f.engine.AssignRole(ctx, user, "missing"); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("AssignRole(missing role) error = %v, want ErrRoleNotFound", err)
	}
	if err := f.engine.RevokeRole(ctx, user, "missing"); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("RevokeRole(missing role) error = %v, want ErrRoleNotFound", err)
	}
	if err := f.engine.AssignRole(ctx, " ", editor.ID); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("AssignRole(blank user) error = %v, want validation error", err)
	}
}

func TestEngine_ListPermissions(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		f.permission(t, fmt.Sprintf("perm %02d", i), "ARTICLE", fmt.Sprintf("A%02d", i))
	}
	f.permission(t, "Manage users", "USER", "MANAGE")

	tests := []struct {
		name      string
		page      Page
		wantItems int
		wantTotal int
		wantLimit int
		firstName PermissionName
	}{
		{"default limit", Page{}, 20, 26, DefaultPageLimit, "Manage users"},
		{"second page", Page{Offset: 20, Limit: 20}, 6, 26, 20, "perm 19"},
		{"clamped limit", Page{Limit: 1000}, 26, 26, MaxPageLimit, "Manage users"},
		{"search by type", Page{Search: "user"}, 1, 1, DefaultPageLimit, "Manage users"},
		{"search by name", Page{Search: "PERM 1", Limit: 5}, 5, 10, 5, "perm 10"},
		{"no match", Page{Search: "nothing"}, 0, 0, DefaultPageLimit, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := f.engine.ListPermissions(ctx, tt.page)
			if err != nil {
				t.Fatalf("ListPermissions() error = %v", err)
			}
			if len(list.Items) != tt.wantItems || list.Total != tt.wantTotal || list.Limit != tt.wantLimit {
				t.Errorf("ListPermissions() = %d items, total %d, limit %d; want %d, %d, %d",
					len(list.Items), list.Total, list.Limit, tt.wantItems, tt.wantTotal, tt.wantLimit)
			}
			if tt.firstName != "" && len(list.Items) > 0 && list.Items[0].Name != tt.firstName {
				t.Errorf("first item = %q, want %q", list.Items[0].Name, tt.firstName)
			}
		})
	}

	byType, err := f.engine.PermissionsByResourceType(ctx, "USER")
	if err != nil {
		t.Fatalf("PermissionsByResourceType() error = %v", err)
	}
	if len(byType) != 1 {
		t.Errorf("PermissionsByResourceType(USER) = %d, want 1", len(byType))
	}
	if _, err := f.engine.PermissionsByResourceType(ctx, "user"); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("PermissionsByResourceType(lowercase) error = %v, want validation error", err)
	}
}

func TestEngine_ListRoles_Search(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	for _, name := range []string{"admin", "editor", "viewer", "site_editor"} {
		f.role(t, name)
	}

	list, err := f.engine.ListRoles(ctx, Page{Search: "EDIT"})
	if err != nil {
		t.Fatalf("ListRoles() error = %v", err)
	}
	if list.Total != 2 || len(list.Items) != 2 || list.Items[0].Name != "editor" {
		t.Errorf("ListRoles(EDIT) = %d/%d first %v", len(list.Items), list.Total, list.Items)
	}

	// Underscore is literal, not a LIKE wildcard.
	list, err = f.engine.ListRoles(ctx, Page{Search: "e_"})
	if err != nil {
		t.Fatalf("ListRoles() error = %v", err)
	}
	if list.Total != 1 || list.Items[0].Name != "site_editor" {
		t.Errorf("ListRoles(e_) total = %d, want only site_editor", list.Total)
	}
}

func TestEngine_PublishFailureDoesNotFailWrite(t *testing.T) {
	db := testDB(t)
	engine := NewEngine(EngineDeps{
		Permissions: NewPermissionRepository(db),
		Roles:       NewRoleRepository(db),
		Assignments: NewAssignmentRepository(db, nil),
		Sink: event.SinkFunc(func(context.Context, []event.Event) error {
			return errors.New("broker down")
		}),
		IDs:    ids.NewSequence("id"),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	role, err := engine.CreateRole(context.Background(), "editor", "")
	if err != nil {
		t.Fatalf("CreateRole() error = %v", err)
	}
	if role.Len() != 0 {
		t.Errorf("pending events after publish = %d, want drained", role.Len())
	}
	if _, err := engine.GetRole(context.Background(), role.ID); err != nil {
		t.Errorf("GetRole() error = %v", err)
	}
}

func mustAdd(t *testing.T, f *engineFixture, roleID RoleID, permID PermissionID) {
	t.Helper()
	if _, err := f.engine.AddPermissionToRole(context.Background(), roleID, permID); err != nil {
		t.Fatalf("AddPermissionToRole(%s, %s) error = %v", roleID, permID, err)
	}
}

func mustAssign(t *testing.T, f *engineFixture, userID auth.UserID, roleID RoleID) {
	t.Helper()
	if err := f.engine.AssignRole(context.Background(), userID, roleID); err != nil {
		t.Fatalf("AssignRole(%s, %s) error = %v", userID, roleID, err)
	}
}
