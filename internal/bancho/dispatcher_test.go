package bancho

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"banchod/internal/authn"
	"banchod/internal/bpacket"
	"banchod/internal/channel"
	"banchod/internal/geoip"
	"banchod/internal/session"
	"banchod/internal/token"
	"banchod/internal/userrepo"
)

// memRepo is an in-memory userrepo.Repository stand-in for the
// dispatcher's end-to-end scenarios (spec.md's lettered seeds).
type memRepo struct {
	users   map[string]userrepo.User
	friends map[int32][]int32
}

func newMemRepo() *memRepo {
	return &memRepo{users: map[string]userrepo.User{}, friends: map[int32][]int32{}}
}

func (r *memRepo) GetUserByUsername(_ context.Context, name string) (userrepo.User, error) {
	u, ok := r.users[name]
	if !ok {
		return userrepo.User{}, userrepo.ErrUserNotFound
	}
	return u, nil
}
func (r *memRepo) AddFriend(_ context.Context, userID, targetID int32) error {
	r.friends[userID] = append(r.friends[userID], targetID)
	return nil
}
func (r *memRepo) RemoveFriend(context.Context, int32, int32) error { return nil }
func (r *memRepo) Friends(_ context.Context, userID int32) ([]int32, error) {
	return r.friends[userID], nil
}
func (r *memRepo) Close() error { return nil }

func newTestDispatcher(t *testing.T, repo *memRepo) *Dispatcher {
	t.Helper()
	signer, err := token.New()
	if err != nil {
		t.Fatalf("token.New: %v", err)
	}
	svc := New(repo, signer, channel.NewRegistry(), nil, slog.Default())
	noop, err := geoip.New("", "")
	if err != nil {
		t.Fatalf("geoip.New: %v", err)
	}
	return NewDispatcher(svc, noop, authn.NewCache(0, 0), time.Second)
}

func loginBody(username, passwordMD5 string) []byte {
	return []byte(username + "\n" + passwordMD5 + "\n20230101|8|1|hash1:hash2|0")
}

// TestLoginThenIdlePoll is spec.md Scenario A.
func TestLoginThenIdlePoll(t *testing.T) {
	repo := newMemRepo()
	hash, err := authn.HashMD5Password("5f4dcc3b5aa765d61d8327deb882cf99")
	if err != nil {
		t.Fatalf("HashMD5Password: %v", err)
	}
	repo.users["alice"] = userrepo.User{ID: 1001, Name: "alice", PasswordArgon2: hash}

	d := newTestDispatcher(t, repo)
	now := time.Now()

	tok, body, err := d.Handle(context.Background(), "", loginBody("alice", "5f4dcc3b5aa765d61d8327deb882cf99"), net.ParseIP("203.0.113.1"), now)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if tok == "" {
		t.Fatalf("expected a non-empty cho-token on successful login")
	}

	pkts := bpacket.Decode(body)
	if len(pkts) == 0 {
		t.Fatalf("expected a non-empty welcome packet stream")
	}
	if pkts[0].ID != bpacket.ServerLoginReply {
		t.Fatalf("first packet: got id %v, want ServerLoginReply", pkts[0].ID)
	}
	r := bpacket.NewReader(pkts[0].Payload)
	userID, _ := r.ReadI32()
	if userID != 1001 {
		t.Fatalf("LoginReply user id: got %d, want 1001", userID)
	}

	var sawProtocolVersion, sawNotification, sawPrivileges, sawChannelInfo, sawChannelInfoEnd, sawFriendsList bool
	for _, p := range pkts[1:] {
		switch p.ID {
		case bpacket.ServerProtocolVersion:
			sawProtocolVersion = true
		case bpacket.ServerNotification:
			sawNotification = true
		case bpacket.ServerPrivileges:
			sawPrivileges = true
		case bpacket.ServerChannelInfo:
			sawChannelInfo = true
		case bpacket.ServerChannelInfoEnd:
			sawChannelInfoEnd = true
		case bpacket.ServerFriendsList:
			sawFriendsList = true
			fr := bpacket.NewReader(p.Payload)
			ids, ok := fr.ReadI32Slice()
			if !ok || len(ids) != 1 || ids[0] != 1001 {
				t.Fatalf("FriendsList: got %v ok=%v, want [1001]", ids, ok)
			}
		}
	}
	if !sawProtocolVersion || !sawNotification || !sawPrivileges || !sawChannelInfoEnd || !sawFriendsList {
		t.Fatalf("missing expected welcome packet(s): version=%v notif=%v priv=%v chend=%v friends=%v",
			sawProtocolVersion, sawNotification, sawPrivileges, sawChannelInfoEnd, sawFriendsList)
	}
	_ = sawChannelInfo
}

// TestLoginLogoutReconnect is spec.md Scenario B.
func TestLoginLogoutReconnect(t *testing.T) {
	repo := newMemRepo()
	hash, _ := authn.HashMD5Password("5f4dcc3b5aa765d61d8327deb882cf99")
	repo.users["alice"] = userrepo.User{ID: 1001, Name: "alice", PasswordArgon2: hash}

	d := newTestDispatcher(t, repo)
	now := time.Now()

	tok, _, err := d.Handle(context.Background(), "", loginBody("alice", "5f4dcc3b5aa765d61d8327deb882cf99"), net.ParseIP("203.0.113.1"), now)
	if err != nil {
		t.Fatalf("login Handle: %v", err)
	}

	logoutBody := bpacket.Encode(bpacket.ClientLogout, nil)
	// Advance past the logout grace period so the logout actually takes effect.
	after := now.Add(2 * time.Second)
	if _, _, err := d.Handle(context.Background(), tok, logoutBody, net.ParseIP("203.0.113.1"), after); err != nil {
		t.Fatalf("logout Handle: %v", err)
	}

	if d.Svc.Store.Length() != 0 {
		t.Fatalf("expected store length 0 after logout, got %d", d.Svc.Store.Length())
	}

	if _, _, err := d.Handle(context.Background(), tok, nil, net.ParseIP("203.0.113.1"), after); err == nil {
		t.Fatalf("expected an error polling with a token whose session no longer exists")
	}
}

// TestPrivateChatWithBlock is spec.md Scenario C.
func TestPrivateChatWithBlock(t *testing.T) {
	repo := newMemRepo()
	d := newTestDispatcher(t, repo)
	now := time.Now()

	alice := session.New(mustID(t), 10, "alice", now)
	bob := session.New(mustID(t), 20, "bob", now)
	bob.SetBlockNonFriendDMs(true)
	d.Svc.Store.Create(alice)
	d.Svc.Store.Create(bob)
	// 10 is not among bob's friends (repo.friends[20] is empty).

	w := bpacket.NewWriter()
	w.WriteString("alice")
	w.WriteString("hi")
	w.WriteString("bob")
	w.WriteI32(10)
	stream := bpacket.Encode(bpacket.ClientSendPrivateMessage, w.Bytes())

	d.dispatchStream(context.Background(), alice, stream, now)

	if len(bob.Outbound.Drain()) != 0 {
		t.Fatalf("bob's outbound queue should be unchanged when DMs are blocked")
	}

	drained := alice.Outbound.Drain()
	pkts := bpacket.Decode(drained)
	found := false
	for _, p := range pkts {
		if p.ID == bpacket.ServerUserDmBlocked {
			r := bpacket.NewReader(p.Payload)
			msg, ok := r.ReadMessage()
			if !ok || msg.Target != "bob" {
				t.Fatalf("UserDmBlocked target: got %q ok=%v, want %q", msg.Target, ok, "bob")
			}
			found = true
		}
	}
	if !found {
		t.Fatalf("expected alice's drain to contain a UserDmBlocked packet, got %d packets", len(pkts))
	}
}

// TestPresenceBroadcastOnLogin is spec.md Scenario D.
func TestPresenceBroadcastOnLogin(t *testing.T) {
	repo := newMemRepo()
	hash, _ := authn.HashMD5Password("bobpw")
	repo.users["bob"] = userrepo.User{ID: 20, Name: "bob", PasswordArgon2: hash}

	d := newTestDispatcher(t, repo)
	now := time.Now()

	ten := session.New(mustID(t), 10, "ten", now)
	d.Svc.CreateUserSession(context.Background(), ten)
	ten.Outbound.Drain() // discard ten's own login-time self packets

	_, twentyBody, err := d.Handle(context.Background(), "", loginBody("bob", "bobpw"), net.ParseIP("203.0.113.2"), now)
	if err != nil {
		t.Fatalf("bob login Handle: %v", err)
	}

	// Ten's next poll should observe bob's presence-single broadcast.
	ten.Touch(now)
	d.pullBroadcasts(ten)
	tenPkts := bpacket.Decode(ten.Outbound.Drain())
	sawPresenceSingle := false
	for _, p := range tenPkts {
		if p.ID == bpacket.ServerUserPresenceSingle {
			r := bpacket.NewReader(p.Payload)
			id, _ := r.ReadI32()
			if id == 20 {
				sawPresenceSingle = true
			}
		}
	}
	if !sawPresenceSingle {
		t.Fatalf("expected ten's poll to observe a UserPresenceSingle(20) broadcast")
	}

	// Bob's own login drain should contain a presence bundle listing ten.
	bundlePkts := bpacket.Decode(twentyBody)
	sawBundle := false
	for _, p := range bundlePkts {
		if p.ID == bpacket.ServerUserPresenceBundle {
			r := bpacket.NewReader(p.Payload)
			ids, ok := r.ReadI32Slice()
			if !ok {
				t.Fatalf("UserPresenceBundle: malformed payload")
			}
			for _, id := range ids {
				if id == 10 {
					sawBundle = true
				}
			}
		}
	}
	if !sawBundle {
		t.Fatalf("expected bob's login drain to contain a UserPresenceBundle listing user 10")
	}
}

func mustID(t *testing.T) ulid.ULID {
	t.Helper()
	return ulid.Make()
}
