package rbac

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/event"
)

func eventTypes(events []event.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.EventType()
	}
	return out
}

func newTestRole(t *testing.T) *Role {
	t.Helper()
	r, events, err := NewRole("role-1", "editor", " Edits articles ", testEpoch)
	if err != nil {
		t.Fatalf("NewRole() error = %v", err)
	}
	if len(events) != 1 || events[0].EventType() != EventRoleCreated {
		t.Fatalf("NewRole() events = %v, want [%s]", eventTypes(events), EventRoleCreated)
	}
	r.Drain()
	return r
}

func TestNewRole(t *testing.T) {
	r := newTestRole(t)

	if r.Description != "Edits articles" {
		t.Errorf("Description = %q, want trimmed", r.Description)
	}
	if len(r.PermissionIDs()) != 0 {
		t.Errorf("PermissionIDs() = %v, want empty", r.PermissionIDs())
	}
	if !r.CreatedAt.Equal(testEpoch) || !r.UpdatedAt.Equal(testEpoch) {
		t.Errorf("timestamps = %v/%v, want %v", r.CreatedAt, r.UpdatedAt, testEpoch)
	}

	if _, _, err := NewRole("", "editor", "", testEpoch); err == nil {
		t.Error("NewRole(blank id) error = nil, want error")
	}
}

func TestRole_PermissionSetSemantics(t *testing.T) {
	r := newTestRole(t)
	later := testEpoch.Add(time.Minute)

	if got := eventTypes(r.AddPermission("perm-1", later)); len(got) != 1 || got[0] != EventRolePermissionAdded {
		t.Fatalf("AddPermission() events = %v, want [%s]", got, EventRolePermissionAdded)
	}
	if !r.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", r.UpdatedAt, later)
	}

	// Second add of the same id is a no-op.
	if got := r.AddPermission("perm-1", later.Add(time.Minute)); len(got) != 0 {
		t.Errorf("duplicate AddPermission() events = %v, want none", eventTypes(got))
	}
	if !r.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt moved on duplicate add: %v", r.UpdatedAt)
	}

	r.AddPermission("perm-0", later)
	ids := r.PermissionIDs()
	if len(ids) != 2 || ids[0] != "perm-0" || ids[1] != "perm-1" {
		t.Errorf("PermissionIDs() = %v, want sorted [perm-0 perm-1]", ids)
	}

	if got := eventTypes(r.RemovePermission("perm-1", later)); len(got) != 1 || got[0] != EventRolePermissionRemoved {
		t.Errorf("RemovePermission() events = %v, want [%s]", got, EventRolePermissionRemoved)
	}
	if got := r.RemovePermission("perm-1", later); len(got) != 0 {
		t.Errorf("RemovePermission(absent) events = %v, want none", eventTypes(got))
	}
	if r.HasPermission("perm-1") || !r.HasPermission("perm-0") {
		t.Errorf("HasPermission after remove: perm-1=%v perm-0=%v", r.HasPermission("perm-1"), r.HasPermission("perm-0"))
	}

	pending := eventTypes(r.Drain())
	want := []string{EventRolePermissionAdded, EventRolePermissionAdded, EventRolePermissionRemoved}
	if len(pending) != len(want) {
		t.Fatalf("pending = %v, want %v", pending, want)
	}
	for i := range want {
		if pending[i] != want[i] {
			t.Errorf("pending[%d] = %s, want %s", i, pending[i], want[i])
		}
	}
}

func TestRole_RestoredHasNoEvents(t *testing.T) {
	r := RestoreRole("role-1", "editor", "", []PermissionID{"b", "a", "a"}, testEpoch, testEpoch)
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
	if ids := r.PermissionIDs(); len(ids) != 2 {
		t.Errorf("PermissionIDs() = %v, want 2 distinct ids", ids)
	}
	if got := r.AddPermission("a", testEpoch); len(got) != 0 {
		t.Errorf("AddPermission(existing) events = %v, want none", eventTypes(got))
	}
}

func TestRole_MarshalJSON(t *testing.T) {
	r := RestoreRole("role-1", "editor", "", nil, testEpoch, testEpoch)
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	ids, ok := got["permission_ids"].([]any)
	if !ok || len(ids) != 0 {
		t.Errorf("permission_ids = %v, want empty array", got["permission_ids"])
	}
	if got["name"] != "editor" {
		t.Errorf("name = %v, want editor", got["name"])
	}
}

func TestPermission_Lifecycle(t *testing.T) {
	p, events, err := NewPermission("perm-1", "Edit articles", "ARTICLE", "EDIT", "", testEpoch)
	if err != nil {
		t.Fatalf("NewPermission() error = %v", err)
	}
	if len(events) != 1 || events[0].EventType() != EventPermissionCreated {
		t.Fatalf("NewPermission() events = %v", eventTypes(events))
	}

	later := testEpoch.Add(time.Hour)
	p.Update("Edit any article", "All of them", later)
	if p.Name != "Edit any article" || p.Description != "All of them" || !p.UpdatedAt.Equal(later) {
		t.Errorf("after Update() = %+v", p)
	}
	if p.ResourceType != "ARTICLE" || p.Action != "EDIT" {
		t.Errorf("Update() changed the pair: %s/%s", p.ResourceType, p.Action)
	}

	p.MarkDeleted(later)
	got := eventTypes(p.Drain())
	want := []string{EventPermissionCreated, EventPermissionUpdated, EventPermissionDeleted}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPermission_MatchesExactly(t *testing.T) {
	p := &Permission{ResourceType: "ARTICLE", Action: "EDIT"}

	tests := []struct {
		rt     ResourceType
		action Action
		want   bool
	}{
		{"ARTICLE", "EDIT", true},
		{"ARTICLE", "edit", false},
		{"ARTICLE", "DELETE", false},
		{"ARTICLES", "EDIT", false},
		{"", "", false},
	}
	for _, tt := range tests {
		if got := p.Matches(tt.rt, tt.action); got != tt.want {
			t.Errorf("Matches(%s, %s) = %v, want %v", tt.rt, tt.action, got, tt.want)
		}
	}
}

func TestEvaluate(t *testing.T) {
	edit := &Permission{ID: "p-edit", ResourceType: "ARTICLE", Action: "EDIT"}
	read := &Permission{ID: "p-read", ResourceType: "ARTICLE", Action: "READ"}
	users := &Permission{ID: "p-users", ResourceType: "USER", Action: "READ"}

	editor := RoleGrant{Role: &Role{ID: "editor"}, Permissions: []*Permission{edit, read}}
	auditor := RoleGrant{Role: &Role{ID: "auditor"}, Permissions: []*Permission{users}}
	empty := RoleGrant{Role: &Role{ID: "empty"}}

	tests := []struct {
		name   string
		grants []RoleGrant
		rt     ResourceType
		action Action
		want   bool
	}{
		{"no roles", nil, "ARTICLE", "EDIT", false},
		{"empty role", []RoleGrant{empty}, "ARTICLE", "EDIT", false},
		{"held", []RoleGrant{editor}, "ARTICLE", "EDIT", true},
		{"not held", []RoleGrant{editor}, "ARTICLE", "DELETE", false},
		{"from second role", []RoleGrant{editor, auditor}, "USER", "READ", true},
		{"same action other type", []RoleGrant{auditor}, "ARTICLE", "READ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.grants, tt.rt, tt.action); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_OrderIndependent(t *testing.T) {
	edit := &Permission{ResourceType: "ARTICLE", Action: "EDIT"}
	a := RoleGrant{Role: &Role{ID: "a"}, Permissions: []*Permission{edit}}
	b := RoleGrant{Role: &Role{ID: "b"}}
	c := RoleGrant{Role: &Role{ID: "c"}, Permissions: []*Permission{{ResourceType: "USER", Action: "READ"}}}

	orders := [][]RoleGrant{{a, b, c}, {c, b, a}, {b, a, c}, {b, c, a}}
	for _, pair := range []struct {
		rt     ResourceType
		action Action
	}{{"ARTICLE", "EDIT"}, {"USER", "READ"}, {"ARTICLE", "DELETE"}} {
		first := Evaluate(orders[0], pair.rt, pair.action)
		for i, grants := range orders[1:] {
			if got := Evaluate(grants, pair.rt, pair.action); got != first {
				t.Errorf("order %d: Evaluate(%s, %s) = %v, want %v", i+1, pair.rt, pair.action, got, first)
			}
		}
	}
}
