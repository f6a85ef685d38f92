package bancho

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"banchod/internal/authn"
	"banchod/internal/bpacket"
	"banchod/internal/channel"
	"banchod/internal/geoip"
	"banchod/internal/idgen"
	"banchod/internal/session"
	"banchod/internal/token"
	"banchod/internal/userrepo"
)

// ErrSessionNotFound is returned by Handle when a token refers to a
// session the store no longer has (spec §7: "session not found on a
// polling request surfaces as a transport-level 4xx").
var ErrSessionNotFound = errors.New("bancho: session not found")

const protocolVersion int32 = 19

// defaultPrivileges is the privilege bitmask granted on a successful
// login. The user repository contract (spec §6) carries no privilege or
// ban/restriction fields, so every authenticated login is an ordinary
// player; richer privilege/ban sourcing is a repository concern outside
// this core.
const defaultPrivileges int32 = 1

// Dispatcher implements the login path and the per-packet handler table
// (spec §4.6) on top of a Service.
type Dispatcher struct {
	Svc         *Service
	Geo         geoip.Resolver
	Passwords   *authn.Cache
	Ids         *idgen.Source
	LogoutGrace time.Duration
}

// NewDispatcher builds a Dispatcher. A zero or negative logoutGrace
// defaults to 1s.
func NewDispatcher(svc *Service, geo geoip.Resolver, passwords *authn.Cache, logoutGrace time.Duration) *Dispatcher {
	if logoutGrace <= 0 {
		logoutGrace = time.Second
	}
	return &Dispatcher{
		Svc:         svc,
		Geo:         geo,
		Passwords:   passwords,
		Ids:         idgen.NewSource(),
		LogoutGrace: logoutGrace,
	}
}

// Handle processes one POST / request. authToken is the osu-token header
// value (empty for a login request). clientIP is the request's source
// address. Returns the cho-token header value (empty on failure or a
// non-login request) and the response body. err is non-nil only when a
// non-login request's token does not resolve to a live session (it wraps
// ErrSessionNotFound and maps to a 4xx); login failures return a nil err
// with a LoginReply body.
func (d *Dispatcher) Handle(ctx context.Context, authToken string, body []byte, clientIP net.IP, now time.Time) (newToken string, resp []byte, err error) {
	if authToken == "" {
		return d.handleLogin(ctx, body, clientIP, now)
	}

	userID, sessionID, perr := d.Svc.Signer.Parse(authToken)
	if perr != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrSessionNotFound, perr)
	}
	sess, ok := d.Svc.Store.Get(session.QuerySessionID(sessionID))
	if !ok || sess.UserID != userID {
		return "", nil, ErrSessionNotFound
	}

	sess.Touch(now)
	d.dispatchStream(ctx, sess, body, now)
	d.pullBroadcasts(sess)

	return "", sess.Outbound.Drain(), nil
}

// handleLogin implements spec §4.6.1.
func (d *Dispatcher) handleLogin(ctx context.Context, body []byte, clientIP net.IP, now time.Time) (string, []byte, error) {
	norm := strings.ReplaceAll(string(body), "\r\n", "\n")
	lines := strings.SplitN(norm, "\n", 3)
	if len(lines) < 3 {
		return "", bpacket.LoginReply(bpacket.LoginServerError), nil
	}
	username, passwordMD5, clientInfo := lines[0], lines[1], lines[2]

	fields := strings.Split(strings.TrimRight(clientInfo, "\n"), "|")
	if len(fields) < 5 {
		return "", bpacket.LoginReply(bpacket.LoginServerError), nil
	}
	clientVersion := fields[0]
	utcOffset, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", bpacket.LoginReply(bpacket.LoginOutdatedClient), nil
	}
	displayCity := fields[2] == "1"
	blockNonFriendDMs := len(fields) > 4 && fields[4] == "1"

	user, err := d.Svc.Repo.GetUserByUsername(ctx, username)
	if errors.Is(err, userrepo.ErrUserNotFound) {
		return "", bpacket.LoginReply(bpacket.LoginInvalidCredentials), nil
	}
	if err != nil {
		d.Svc.Log.Error("login: repository lookup failed", "username", username, "err", err)
		return "", bpacket.LoginReply(bpacket.LoginServerError), nil
	}

	ok, err := d.Passwords.Verify(passwordMD5, user.PasswordArgon2)
	if err != nil {
		d.Svc.Log.Error("login: password verification failed", "username", username, "err", err)
		return "", bpacket.LoginReply(bpacket.LoginServerError), nil
	}
	if !ok {
		if d.Svc.Metrics != nil {
			d.Svc.Metrics.IncLoginFailure("invalid_credentials")
		}
		return "", bpacket.LoginReply(bpacket.LoginInvalidCredentials), nil
	}

	loc, err := d.Geo.Lookup(clientIP)
	if err != nil {
		loc = geoip.Location{}
	}

	sessID := d.Ids.New(now)
	sess := session.New(sessID, user.ID, user.Name, now)
	sess.UsernameUnicode = user.NameUnicode
	sess.ClientVersion = clientVersion
	sess.UTCOffset = int8(utcOffset)
	sess.SetDisplayCity(displayCity)
	sess.SetBlockNonFriendDMs(blockNonFriendDMs)
	sess.SetPrivileges(defaultPrivileges)
	sess.SetGeo(session.GeoInfo{
		CountryCode: loc.CountryCode,
		Latitude:    float32(loc.Latitude),
		Longitude:   float32(loc.Longitude),
	})

	friends, err := d.Svc.Repo.Friends(ctx, user.ID)
	if err != nil {
		d.Svc.Log.Warn("login: friends lookup failed", "user_id", user.ID, "err", err)
	}
	// Resolved open question: the login friends list always includes the
	// logging-in user themself, ahead of their repository-recorded friends.
	friendIDs := append([]int32{user.ID}, friends...)

	var welcome [][]byte
	welcome = append(welcome,
		bpacket.LoginReply(user.ID),
		bpacket.ProtocolVersion(protocolVersion),
		bpacket.Notification("welcome"),
		bpacket.BanchoPrivileges(sess.Privileges()),
	)
	for _, ch := range d.Svc.Channels.Public() {
		ch.AddUser(user.ID, channel.Bancho)
		welcome = append(welcome, bpacket.ChannelInfo(ch.Name, ch.Description, int16(ch.UserCount())))
	}
	welcome = append(welcome,
		bpacket.ChannelInfoEnd(),
		bpacket.FriendsList(friendIDs),
		bpacket.MainMenuIcon("", ""),
		bpacket.SilenceEnd(0),
	)
	sess.Outbound.EnqueueAll(welcome...)

	d.Svc.CreateUserSession(ctx, sess)

	return d.Svc.Signer.Token(user.ID, sessID), sess.Outbound.Drain(), nil
}

// dispatchStream decodes body as a packet stream and invokes a handler
// per packet, sequentially, on the dispatching goroutine (spec §4.6
// ordering rule: no re-entrancy on the same session within one request).
func (d *Dispatcher) dispatchStream(ctx context.Context, sess *session.Session, body []byte, now time.Time) {
	for _, pkt := range bpacket.Decode(body) {
		d.dispatchOne(ctx, sess, pkt, now)
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, sess *session.Session, pkt bpacket.Packet, now time.Time) {
	if d.Svc.Metrics != nil {
		if bpacket.Known(pkt.ID) {
			d.Svc.Metrics.IncDispatched()
		} else {
			d.Svc.Metrics.IncUnknown()
		}
	}

	r := bpacket.NewReader(pkt.Payload)
	switch pkt.ID {
	case bpacket.ClientChangeAction:
		d.handleChangeAction(sess, r)
	case bpacket.ClientSendPublicMessage:
		d.handleSendPublicMessage(r)
	case bpacket.ClientSendPrivateMessage:
		d.handleSendPrivateMessage(sess, r)
	case bpacket.ClientChannelJoin:
		d.handleChannelJoin(sess, r)
	case bpacket.ClientChannelPart:
		d.handleChannelPart(sess, r)
	case bpacket.ClientRequestStatusUpdate:
		d.handleRequestStatusUpdate(sess)
	case bpacket.ClientStatsRequest:
		d.handleStatsRequest(sess, r)
	case bpacket.ClientPresenceRequest:
		d.handlePresenceRequest(sess, r)
	case bpacket.ClientPresenceRequestAll:
		d.handlePresenceRequestAll(sess)
	case bpacket.ClientReceiveUpdates:
		d.handleReceiveUpdates(sess, r)
	case bpacket.ClientToggleBlockNonFriend:
		d.handleToggleBlockNonFriendDMs(sess, r)
	case bpacket.ClientLogout:
		d.handleLogout(ctx, sess, now)
	case bpacket.ClientFriendAdd:
		d.handleFriendAdd(ctx, sess, r)
	case bpacket.ClientFriendRemove:
		d.handleFriendRemove(ctx, sess, r)
	case bpacket.ClientSpectateStart:
		d.handleSpectateStart(sess, r)
	case bpacket.ClientSpectateStop:
		d.handleSpectateStop(sess)
	case bpacket.ClientSpectateCant:
		d.handleSpectateCant(sess)
	case bpacket.ClientSpectateFrames:
		d.handleSpectateFrames(sess, r)
	case bpacket.ClientJoinLobby:
		sess.ToggleLobby(true)
	case bpacket.ClientPartLobby:
		sess.ToggleLobby(false)
	case bpacket.ClientPing:
		// no-op: presence alone answers the poll.
	default:
		d.Svc.Log.Debug("dispatch: unhandled packet", "id", pkt.ID, "user_id", sess.UserID)
	}
}

func (d *Dispatcher) handleChangeAction(sess *session.Session, r *bpacket.Reader) {
	action, _ := r.ReadU8()
	info, _ := r.ReadString()
	beatmapMD5, _ := r.ReadString()
	mods, _ := r.ReadU32()
	mode, _ := r.ReadU8()
	beatmapID, _ := r.ReadI32()

	sess.SetStatus(session.Status{
		Action:     action,
		Info:       info,
		BeatmapMD5: beatmapMD5,
		BeatmapID:  beatmapID,
		Mods:       mods,
		Mode:       mode,
	})
	d.Svc.Global.PushExcludes(bpacket.UserStatsPacket(statsPacketFor(sess, mode)), []int32{sess.UserID}, func() bool {
		_, ok := d.Svc.Store.Get(session.QueryUserID(sess.UserID))
		return ok
	})
}

func (d *Dispatcher) handleSendPublicMessage(r *bpacket.Reader) {
	msg, ok := r.ReadMessage()
	if !ok {
		return
	}
	ch, exists := d.Svc.Channels.GetByName(msg.Target)
	if !exists {
		return
	}
	ch.History.PushExcludes(bpacket.SendMessage(msg), []int32{msg.SenderID}, nil)
}

func (d *Dispatcher) handleSendPrivateMessage(sender *session.Session, r *bpacket.Reader) {
	msg, ok := r.ReadMessage()
	if !ok {
		return
	}
	recipient, exists := d.Svc.Store.Get(session.QueryUsername(msg.Target))
	if !exists {
		return
	}
	if recipient.BlockNonFriendDMs() && !d.isFriend(recipient, sender.UserID) {
		sender.Outbound.Enqueue(bpacket.UserDmBlocked(msg.Target))
		return
	}
	recipient.Outbound.Enqueue(bpacket.SendMessage(msg))
}

// isFriend reports whether senderID is among recipient's recorded
// friends. The block-non-friend-DM check is the only place this core
// needs a live friends lookup outside of login.
func (d *Dispatcher) isFriend(recipient *session.Session, senderID int32) bool {
	friends, err := d.Svc.Repo.Friends(context.Background(), recipient.UserID)
	if err != nil {
		return false
	}
	for _, id := range friends {
		if id == senderID {
			return true
		}
	}
	return false
}

func (d *Dispatcher) handleChannelJoin(sess *session.Session, r *bpacket.Reader) {
	name, ok := r.ReadString()
	if !ok {
		return
	}
	ch, exists := d.Svc.Channels.GetByName(name)
	if !exists {
		return
	}
	ch.AddUser(sess.UserID, channel.Bancho)
	sess.Outbound.Enqueue(bpacket.ChannelJoinSuccess(name))
}

func (d *Dispatcher) handleChannelPart(sess *session.Session, r *bpacket.Reader) {
	name, ok := r.ReadString()
	if !ok {
		return
	}
	ch, exists := d.Svc.Channels.GetByName(name)
	if !exists {
		return
	}
	ch.RemovePlatforms(sess.UserID, channel.Bancho)
	sess.Outbound.Enqueue(bpacket.ChannelKick(name))
}

func (d *Dispatcher) handleRequestStatusUpdate(sess *session.Session) {
	sess.Outbound.Enqueue(bpacket.UserStatsPacket(statsPacketFor(sess, sess.Status().Mode)))
}

func (d *Dispatcher) handleStatsRequest(sess *session.Session, r *bpacket.Reader) {
	ids, ok := r.ReadI32Slice()
	if !ok {
		return
	}
	for _, id := range ids {
		if target, exists := d.Svc.Store.Get(session.QueryUserID(id)); exists {
			sess.Outbound.Enqueue(bpacket.UserStatsPacket(statsPacketFor(target, target.Status().Mode)))
		}
	}
}

func (d *Dispatcher) handlePresenceRequest(sess *session.Session, r *bpacket.Reader) {
	ids, ok := r.ReadI32Slice()
	if !ok {
		return
	}
	for _, id := range ids {
		if target, exists := d.Svc.Store.Get(session.QueryUserID(id)); exists {
			sess.Outbound.Enqueue(bpacket.UserPresencePacket(presencePacketFor(target)))
		}
	}
}

func (d *Dispatcher) handlePresenceRequestAll(sess *session.Session) {
	for _, target := range d.Svc.Store.All() {
		sess.Outbound.Enqueue(bpacket.UserPresencePacket(presencePacketFor(target)))
	}
}

func (d *Dispatcher) handleReceiveUpdates(sess *session.Session, r *bpacket.Reader) {
	filter, ok := r.ReadI32()
	if !ok {
		return
	}
	sess.SetPresenceFilter(session.PresenceFilter(filter))
}

func (d *Dispatcher) handleToggleBlockNonFriendDMs(sess *session.Session, r *bpacket.Reader) {
	v, ok := r.ReadI32()
	if !ok {
		return
	}
	sess.SetBlockNonFriendDMs(v != 0)
}

// handleLogout deletes the session unless it has been online for less
// than the configured grace period, tolerating a spurious early logout
// (spec §4.6).
func (d *Dispatcher) handleLogout(ctx context.Context, sess *session.Session, now time.Time) {
	if sess.Age(now) < d.LogoutGrace {
		return
	}
	d.Svc.DeleteUserSession(ctx, session.QuerySessionID(sess.SessionID))
}

func (d *Dispatcher) handleFriendAdd(ctx context.Context, sess *session.Session, r *bpacket.Reader) {
	targetID, ok := r.ReadI32()
	if !ok || targetID == -1 {
		return
	}
	if err := d.Svc.Repo.AddFriend(ctx, sess.UserID, targetID); err != nil {
		d.Svc.Log.Warn("friend add failed", "user_id", sess.UserID, "target_id", targetID, "err", err)
	}
}

func (d *Dispatcher) handleFriendRemove(ctx context.Context, sess *session.Session, r *bpacket.Reader) {
	targetID, ok := r.ReadI32()
	if !ok || targetID == -1 {
		return
	}
	if err := d.Svc.Repo.RemoveFriend(ctx, sess.UserID, targetID); err != nil {
		d.Svc.Log.Warn("friend remove failed", "user_id", sess.UserID, "target_id", targetID, "err", err)
	}
}

func spectatorChannelName(hostID int32) string {
	return fmt.Sprintf("#spec_%d", hostID)
}

func (d *Dispatcher) handleSpectateStart(sess *session.Session, r *bpacket.Reader) {
	hostID, ok := r.ReadI32()
	if !ok {
		return
	}
	host, exists := d.Svc.Store.Get(session.QueryUserID(hostID))
	if !exists {
		sess.Outbound.Enqueue(bpacket.SpectatorCantSpectate(hostID))
		return
	}
	name := spectatorChannelName(hostID)
	ch, _ := d.Svc.Channels.Create(name, channel.Spectator, "spectator channel")
	ch.AddUser(sess.UserID, channel.Bancho)
	ch.AddUser(hostID, channel.Bancho)
	host.Outbound.Enqueue(bpacket.SpectatorJoined(sess.UserID))
}

func (d *Dispatcher) handleSpectateStop(sess *session.Session) {
	for _, ch := range d.Svc.Channels.All() {
		if ch.Kind != channel.Spectator || !ch.HasUser(sess.UserID) {
			continue
		}
		ch.RemoveUser(sess.UserID)
		for _, memberID := range ch.Members() {
			if member, exists := d.Svc.Store.Get(session.QueryUserID(memberID)); exists {
				member.Outbound.Enqueue(bpacket.SpectatorLeft(sess.UserID))
			}
		}
		if ch.UserCount() == 0 {
			d.Svc.Channels.Remove(ch.ID)
		}
	}
}

func (d *Dispatcher) handleSpectateCant(sess *session.Session) {
	for _, ch := range d.Svc.Channels.All() {
		if ch.Kind != channel.Spectator || !ch.HasUser(sess.UserID) {
			continue
		}
		for _, memberID := range ch.Members() {
			if memberID == sess.UserID {
				continue
			}
			if member, exists := d.Svc.Store.Get(session.QueryUserID(memberID)); exists {
				member.Outbound.Enqueue(bpacket.SpectatorCantSpectate(sess.UserID))
			}
		}
	}
}

func (d *Dispatcher) handleSpectateFrames(sess *session.Session, r *bpacket.Reader) {
	data := r.Rest()
	frame := bpacket.SpectateFrames(data)
	for _, ch := range d.Svc.Channels.All() {
		if ch.Kind != channel.Spectator || !ch.HasUser(sess.UserID) {
			continue
		}
		for _, memberID := range ch.Members() {
			if memberID == sess.UserID {
				continue
			}
			if member, exists := d.Svc.Store.Get(session.QueryUserID(memberID)); exists {
				member.Outbound.Enqueue(frame)
			}
		}
	}
}

// pullBroadcasts drains everything new since sess's notify cursor — the
// global queue plus every channel sess currently belongs to — into its
// outbound queue (spec §4.6: "after the stream is fully consumed").
func (d *Dispatcher) pullBroadcasts(sess *session.Session) {
	cursor := sess.NotifyCursor()
	if payloads, last, ok := d.Svc.Global.Receive(sess.UserID, cursor, 0); ok {
		sess.Outbound.EnqueueAll(payloads...)
		sess.AdvanceCursor(last)
	} else if last.Compare(ulid.ULID{}) != 0 {
		sess.AdvanceCursor(last)
	}

	for _, ch := range d.Svc.Channels.All() {
		if !ch.HasUser(sess.UserID) {
			continue
		}
		if payloads, _, ok := ch.History.Receive(sess.UserID, ulid.ULID{}, 0); ok {
			sess.Outbound.EnqueueAll(payloads...)
		}
	}
}
