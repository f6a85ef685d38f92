package userrepo

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestRepo(t *testing.T) *sqliteRepo {
	t.Helper()
	r, err := newSQLite(filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatalf("newSQLite: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func seedUser(t *testing.T, r *sqliteRepo, id int32, name string) {
	t.Helper()
	_, err := r.db.Exec(`INSERT INTO users (id, name, name_unicode, password_argon2, country) VALUES (?, ?, '', 'x', 'US')`, id, name)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestGetUserByUsernameNotFound(t *testing.T) {
	t.Parallel()
	r := newTestRepo(t)
	if _, err := r.GetUserByUsername(context.Background(), "nobody"); err != ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestGetUserByUsernameFound(t *testing.T) {
	t.Parallel()
	r := newTestRepo(t)
	seedUser(t, r, 1001, "cookiezi")

	u, err := r.GetUserByUsername(context.Background(), "cookiezi")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u.ID != 1001 || u.Name != "cookiezi" {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestAddFriendIsIdempotent(t *testing.T) {
	t.Parallel()
	r := newTestRepo(t)
	ctx := context.Background()

	if err := r.AddFriend(ctx, 1, 2); err != nil {
		t.Fatalf("AddFriend: %v", err)
	}
	if err := r.AddFriend(ctx, 1, 2); err != nil {
		t.Fatalf("AddFriend (repeat): %v", err)
	}
	friends, err := r.Friends(ctx, 1)
	if err != nil {
		t.Fatalf("Friends: %v", err)
	}
	if len(friends) != 1 || friends[0] != 2 {
		t.Fatalf("expected exactly one friend [2], got %v", friends)
	}
}

func TestAddFriendIgnoresSystemUser(t *testing.T) {
	t.Parallel()
	r := newTestRepo(t)
	ctx := context.Background()

	if err := r.AddFriend(ctx, 1, -1); err != nil {
		t.Fatalf("AddFriend: %v", err)
	}
	friends, err := r.Friends(ctx, 1)
	if err != nil {
		t.Fatalf("Friends: %v", err)
	}
	if len(friends) != 0 {
		t.Fatalf("expected no friends recorded for target -1, got %v", friends)
	}
}

func TestRemoveFriendClearsEntry(t *testing.T) {
	t.Parallel()
	r := newTestRepo(t)
	ctx := context.Background()

	if err := r.AddFriend(ctx, 1, 2); err != nil {
		t.Fatalf("AddFriend: %v", err)
	}
	if err := r.RemoveFriend(ctx, 1, 2); err != nil {
		t.Fatalf("RemoveFriend: %v", err)
	}
	friends, err := r.Friends(ctx, 1)
	if err != nil {
		t.Fatalf("Friends: %v", err)
	}
	if len(friends) != 0 {
		t.Fatalf("expected no friends after removal, got %v", friends)
	}
}
