package reaper

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"banchod/internal/authn"
	"banchod/internal/bancho"
	"banchod/internal/channel"
	"banchod/internal/idgen"
	"banchod/internal/session"
	"banchod/internal/token"
	"banchod/internal/userrepo"
)

type stubRepo struct{}

func (stubRepo) GetUserByUsername(context.Context, string) (userrepo.User, error) {
	return userrepo.User{}, userrepo.ErrUserNotFound
}
func (stubRepo) AddFriend(context.Context, int32, int32) error    { return nil }
func (stubRepo) RemoveFriend(context.Context, int32, int32) error { return nil }
func (stubRepo) Friends(context.Context, int32) ([]int32, error)  { return nil, nil }
func (stubRepo) Close() error                                     { return nil }

func newService(t *testing.T) *bancho.Service {
	t.Helper()
	signer, err := token.New()
	if err != nil {
		t.Fatalf("token.New: %v", err)
	}
	return bancho.New(stubRepo{}, signer, channel.NewRegistry(), nil, slog.Default())
}

// TestSessionReaperIdleEviction is spec.md Scenario E: create a session,
// advance time past the dead threshold with no activity, run one reaper
// iteration, expect eviction plus a logout broadcast.
func TestSessionReaperIdleEviction(t *testing.T) {
	svc := newService(t)
	ids := idgen.NewSource()

	t0 := time.Now()
	sess := session.New(ids.New(t0), 30, "rex", t0)
	svc.Store.Create(sess)

	r := &SessionReaper{Svc: svc, Dead: time.Second, Interval: time.Second, Log: slog.Default()}
	r.sweep(context.Background(), t0.Add(3*time.Second))

	if svc.Store.Length() != 0 {
		t.Fatalf("expected store length 0 after eviction, got %d", svc.Store.Length())
	}
	if _, ok := svc.Global.Receive(999, ulid.ULID{}, 0); !ok {
		t.Fatalf("expected a logout broadcast to land in the global notify queue")
	}
}

// TestSessionReaperNotifyGC is spec.md Scenario F.
func TestSessionReaperNotifyGC(t *testing.T) {
	svc := newService(t)
	ids := idgen.NewSource()
	now := time.Now()

	sess40 := session.New(ids.New(now), 40, "forty", now)
	sess50 := session.New(ids.New(now), 50, "fifty", now)
	svc.Store.Create(sess40)
	svc.Store.Create(sess50)

	for i := 0; i < 100; i++ {
		svc.Global.Push([]byte("x"), nil)
	}

	// Session 40 reads everything; session 50 stays at the zero cursor.
	if _, cur, ok := svc.Global.Receive(40, ulid.ULID{}, 0); ok {
		sess40.AdvanceCursor(cur)
	}

	r := &SessionReaper{Svc: svc, Dead: time.Hour, Interval: time.Second, Log: slog.Default()}
	r.sweep(context.Background(), now)

	if svc.Global.Len() != 100 {
		t.Fatalf("min-cursor is session 50's zero cursor: expected no removals, got len=%d", svc.Global.Len())
	}

	// Advance session 50 to the 50th message, then sweep again.
	payloads, cur50, ok := svc.Global.Receive(50, ulid.ULID{}, 50)
	if !ok || len(payloads) != 50 {
		t.Fatalf("expected 50 payloads for session 50, got %d ok=%v", len(payloads), ok)
	}
	sess50.AdvanceCursor(cur50)

	r.sweep(context.Background(), now)
	if svc.Global.Len() != 50 {
		t.Fatalf("expected 50 messages remaining after GC to session 50's cursor, got %d", svc.Global.Len())
	}
}

func TestNotifyReaperRemovesInvalidated(t *testing.T) {
	svc := newService(t)
	valid := true
	svc.Global.Push([]byte("x"), func() bool { return valid })

	r := &NotifyReaper{Svc: svc, Interval: time.Second, Log: slog.Default()}
	r.sweep()
	if svc.Global.Len() != 1 {
		t.Fatalf("still-valid message should survive a sweep")
	}

	valid = false
	r.sweep()
	if svc.Global.Len() != 0 {
		t.Fatalf("invalidated message should be removed by a sweep")
	}
}

func TestPasswordCacheReaperSweepsExpired(t *testing.T) {
	hash, err := authn.HashMD5Password("deadbeef")
	if err != nil {
		t.Fatalf("HashMD5Password: %v", err)
	}
	cache := authn.NewCache(time.Millisecond, time.Hour)
	if _, err := cache.Verify("deadbeef", hash); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected one cached entry, got %d", cache.Len())
	}
	time.Sleep(5 * time.Millisecond)

	r := &PasswordCacheReaper{Cache: cache, Interval: time.Second, Log: slog.Default()}
	r.sweep()

	if cache.Len() != 0 {
		t.Fatalf("expected expired entry swept, got %d remaining", cache.Len())
	}
}
