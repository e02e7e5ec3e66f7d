package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/chatline/chatline-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func mustCreateUser(t *testing.T, st *SQLiteStore, username string) *store.User {
	t.Helper()

	user, err := st.CreateUser(context.Background(), username, username+" name", username+"@example.com", "hash")
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

func TestUserLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	alice := mustCreateUser(t, st, "alice")
	if alice.ID == 0 || alice.Username != "alice" {
		t.Fatalf("unexpected user: %+v", alice)
	}
	if alice.Online {
		t.Fatal("new user should be offline")
	}

	if _, err := st.CreateUser(ctx, "alice", "other", "other@example.com", "hash"); err == nil {
		t.Fatal("expected duplicate username to fail")
	}

	byName, err := st.GetUserByUsername(ctx, "alice")
	if err != nil || byName.ID != alice.ID {
		t.Fatalf("get by username: %v, %+v", err, byName)
	}

	if _, err := st.GetUserByID(ctx, 9999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := st.UpdatePresence(ctx, alice.ID, true, "conn-1"); err != nil {
		t.Fatalf("presence online: %v", err)
	}
	got, _ := st.GetUserByID(ctx, alice.ID)
	if !got.Online || got.ConnID != "conn-1" {
		t.Fatalf("presence not recorded: %+v", got)
	}

	if err := st.UpdatePresence(ctx, alice.ID, false, ""); err != nil {
		t.Fatalf("presence offline: %v", err)
	}
	got, _ = st.GetUserByID(ctx, alice.ID)
	if got.Online || got.ConnID != "" {
		t.Fatalf("presence not cleared: %+v", got)
	}

	if err := st.UpdatePassword(ctx, alice.ID, "newhash"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	got, _ = st.GetUserByID(ctx, alice.ID)
	if got.PasswordHash != "newhash" {
		t.Fatalf("password not updated: %+v", got)
	}
	if err := st.UpdatePassword(ctx, 9999, "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := st.UpdateFullName(ctx, alice.ID, "Alice Q"); err != nil {
		t.Fatalf("update full name: %v", err)
	}
	if err := st.UpdateEmail(ctx, alice.ID, "alice.q@example.com"); err != nil {
		t.Fatalf("update email: %v", err)
	}
	got, _ = st.GetUserByID(ctx, alice.ID)
	if got.FullName != "Alice Q" || got.Email != "alice.q@example.com" {
		t.Fatalf("profile not updated: %+v", got)
	}
	if err := st.UpdateEmail(ctx, 9999, "x@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Emails stay unique across updates.
	bob := mustCreateUser(t, st, "bobby")
	if err := st.UpdateEmail(ctx, bob.ID, "alice.q@example.com"); err == nil {
		t.Fatal("expected duplicate email to fail")
	}
}

func TestSearchUsers(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	mustCreateUser(t, st, "alice")
	mustCreateUser(t, st, "alicia")
	mustCreateUser(t, st, "bob")

	users, err := st.SearchUsers(ctx, "ali")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(users))
	}
	if users[0].Username != "alice" || users[1].Username != "alicia" {
		t.Fatalf("unexpected order: %s, %s", users[0].Username, users[1].Username)
	}
}

func TestCreateGroupMembership(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	admin := mustCreateUser(t, st, "admin")
	member := mustCreateUser(t, st, "member")

	room, err := st.CreateGroup(ctx, "g-1", "devs", admin.ID, []int64{member.ID})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if !room.IsGroup || room.AdminID == nil || *room.AdminID != admin.ID {
		t.Fatalf("unexpected room: %+v", room)
	}

	for _, id := range []int64{admin.ID, member.ID} {
		ok, err := st.IsMember(ctx, room.ID, id)
		if err != nil || !ok {
			t.Fatalf("user %d should be a member: %v", id, err)
		}
	}

	// Adding an existing member is a no-op.
	extra := mustCreateUser(t, st, "extra")
	if err := st.AddMembers(ctx, room.ID, []int64{member.ID, extra.ID}); err != nil {
		t.Fatalf("add members: %v", err)
	}
	members, err := st.ListMembers(ctx, room.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(members))
	}

	if err := st.RemoveMember(ctx, room.ID, extra.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	ok, _ := st.IsMember(ctx, room.ID, extra.ID)
	if ok {
		t.Fatal("extra should no longer be a member")
	}

	rooms, err := st.ListRoomsForUser(ctx, member.ID)
	if err != nil || len(rooms) != 1 || rooms[0].GroupID != "g-1" {
		t.Fatalf("list rooms: %v, %+v", err, rooms)
	}
}

func TestCreateGroupDuplicateName(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	admin := mustCreateUser(t, st, "admin")
	if _, err := st.CreateGroup(ctx, "g-1", "devs", admin.ID, nil); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := st.CreateGroup(ctx, "g-2", "devs", admin.ID, nil); err == nil {
		t.Fatal("expected duplicate group name to fail")
	}
}

func TestRenameRoom(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	admin := mustCreateUser(t, st, "admin")
	room, err := st.CreateGroup(ctx, "g-1", "devs", admin.ID, nil)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := st.CreateGroup(ctx, "g-2", "ops", admin.ID, nil); err != nil {
		t.Fatalf("create second group: %v", err)
	}

	if err := st.RenameRoom(ctx, room.ID, "platform"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	got, _ := st.GetRoomByGroupID(ctx, "g-1")
	if got.Name != "platform" {
		t.Fatalf("name not updated: %+v", got)
	}

	// Renaming onto another group's name hits the unique index.
	if err := st.RenameRoom(ctx, room.ID, "ops"); err == nil {
		t.Fatal("expected duplicate name to fail")
	}
	if err := st.RenameRoom(ctx, 9999, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDirectRoomNameOutsideGroupNamespace(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	alice := mustCreateUser(t, st, "alice")
	bob := mustCreateUser(t, st, "bobby")
	carol := mustCreateUser(t, st, "carol")

	// A group whose name collides with a derived direct-chat name must
	// not block the direct chat, and vice versa.
	if _, err := st.CreateGroup(ctx, "g-1", "alice-bobby", alice.ID, nil); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := st.CreateDirectRoom(ctx, "dm:1:2", "g-dm-1", "alice-bobby", alice.ID, bob.ID); err != nil {
		t.Fatalf("direct chat blocked by group name: %v", err)
	}

	// Direct rooms may repeat names; only the direct key dedupes them.
	if _, err := st.CreateDirectRoom(ctx, "dm:1:3", "g-dm-2", "alice-bobby", alice.ID, carol.ID); err != nil {
		t.Fatalf("second direct room with same name: %v", err)
	}
}

func TestDirectRoomDedupe(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	alice := mustCreateUser(t, st, "alice")
	bob := mustCreateUser(t, st, "bob")

	first, err := st.CreateDirectRoom(ctx, "dm:1:2", "g-dm-1", "alice-bob", alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("create direct room: %v", err)
	}
	if first.IsGroup || first.AdminID != nil {
		t.Fatalf("unexpected direct room: %+v", first)
	}

	second, err := st.CreateDirectRoom(ctx, "dm:1:2", "g-dm-2", "bob-alice", bob.ID, alice.ID)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.ID != first.ID || second.GroupID != first.GroupID {
		t.Fatalf("expected existing room back, got %+v vs %+v", second, first)
	}

	members, err := st.ListMembers(ctx, first.ID)
	if err != nil || len(members) != 2 {
		t.Fatalf("expected 2 members: %v, %d", err, len(members))
	}
}

func TestSaveMessageAssignsID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	msg := &store.Message{GroupID: "g-1", SenderID: 1, Content: "hi"}
	if err := st.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("save: %v", err)
	}
	if msg.ID == 0 {
		t.Fatal("id not assigned")
	}
	if msg.ContentKind != store.ContentKindText {
		t.Fatalf("expected default text kind, got %q", msg.ContentKind)
	}
	if msg.CreatedAt.IsZero() {
		t.Fatal("created_at not assigned")
	}
}

func TestListMessagesPagination(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Same timestamp for every row, so ordering falls back to insertion
	// order and pages must still be stable and non-overlapping.
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 1; i <= 40; i++ {
		msg := &store.Message{
			GroupID:   "g-1",
			SenderID:  1,
			Content:   fmt.Sprintf("msg-%d", i),
			CreatedAt: at,
		}
		if err := st.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	seen := make(map[int64]bool)
	var prev int64
	for page := 1; page <= 3; page++ {
		msgs, err := st.ListMessages(ctx, "g-1", page, 15)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		want := 15
		if page == 3 {
			want = 10
		}
		if len(msgs) != want {
			t.Fatalf("page %d: expected %d messages, got %d", page, want, len(msgs))
		}
		for _, m := range msgs {
			if seen[m.ID] {
				t.Fatalf("message %d appeared on two pages", m.ID)
			}
			seen[m.ID] = true
			if prev != 0 && m.ID >= prev {
				t.Fatalf("ordering broken: %d after %d", m.ID, prev)
			}
			prev = m.ID
		}
	}

	// Newest first: page 1 starts with the last message written.
	firstPage, _ := st.ListMessages(ctx, "g-1", 1, 15)
	if firstPage[0].Content != "msg-40" {
		t.Fatalf("expected msg-40 first, got %s", firstPage[0].Content)
	}

	// Past the end is an empty page, not an error.
	empty, err := st.ListMessages(ctx, "g-1", 10, 15)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty page: %v, %d", err, len(empty))
	}

	if _, err := st.ListMessages(ctx, "g-1", 0, 15); err == nil {
		t.Fatal("expected page validation error")
	}
	if _, err := st.ListMessages(ctx, "g-1", 1, 0); err == nil {
		t.Fatal("expected limit validation error")
	}
}

func TestAddSeen(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	msg := &store.Message{GroupID: "g-1", SenderID: 1, Content: "hi"}
	if err := st.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := st.AddSeen(ctx, msg.ID, 2)
	if err != nil {
		t.Fatalf("add seen: %v", err)
	}
	if len(got.SeenBy) != 1 || got.SeenBy[0] != 2 {
		t.Fatalf("unexpected seen set: %v", got.SeenBy)
	}

	// Second mark by the same user does not grow the set.
	got, err = st.AddSeen(ctx, msg.ID, 2)
	if err != nil {
		t.Fatalf("second add seen: %v", err)
	}
	if len(got.SeenBy) != 1 {
		t.Fatalf("seen set grew on repeat: %v", got.SeenBy)
	}

	got, err = st.AddSeen(ctx, msg.ID, 3)
	if err != nil {
		t.Fatalf("third add seen: %v", err)
	}
	if len(got.SeenBy) != 2 {
		t.Fatalf("expected 2 viewers: %v", got.SeenBy)
	}

	if _, err := st.AddSeen(ctx, 9999, 2); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRoomCascades(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	admin := mustCreateUser(t, st, "admin")
	room, err := st.CreateGroup(ctx, "g-1", "devs", admin.ID, nil)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	msg := &store.Message{GroupID: room.GroupID, SenderID: admin.ID, Content: "hi"}
	if err := st.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := st.AddSeen(ctx, msg.ID, admin.ID); err != nil {
		t.Fatalf("add seen: %v", err)
	}

	if err := st.DeleteRoom(ctx, room.ID); err != nil {
		t.Fatalf("delete room: %v", err)
	}

	if _, err := st.GetRoomByGroupID(ctx, room.GroupID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("room should be gone, got %v", err)
	}
	msgs, err := st.ListMessages(ctx, room.GroupID, 1, 10)
	if err != nil || len(msgs) != 0 {
		t.Fatalf("messages should be gone: %v, %d", err, len(msgs))
	}
	if err := st.DeleteRoom(ctx, room.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
