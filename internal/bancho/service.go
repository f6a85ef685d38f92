// Package bancho is the service core: it wraps the session store, the
// global broadcast notify queue, and the channel registry to add the
// fan-out behavior session create/delete require (spec §4.2), exposes
// that behavior as a set of RPC-mirroring methods (spec §6's gRPC
// surface), and implements the packet dispatcher (spec §4.6) on top.
package bancho

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"banchod/internal/bpacket"
	"banchod/internal/channel"
	banchometrics "banchod/internal/metrics"
	"banchod/internal/queue"
	"banchod/internal/session"
	"banchod/internal/token"
	"banchod/internal/userrepo"
)

// FieldMask selects a subset of a session's fields for
// GetUserSessionWithFields, mirroring the gRPC surface's bitmask.
type FieldMask uint8

const (
	FieldSessionID FieldMask = 1 << iota
	FieldUserID
	FieldUsername
	FieldUsernameUnicode
)

// PartialSession is the bitmask-selected subset of a session's identity
// fields returned by GetUserSessionWithFields.
type PartialSession struct {
	SessionID       ulid.ULID
	UserID          int32
	Username        string
	UsernameUnicode string
}

// Service owns every piece of global, shared-by-reference state: the
// session store, the global notify queue, the channel registry, and the
// external collaborators (spec §9: "owned by a single top-level service
// value created at startup and passed by shared reference").
type Service struct {
	Store    *session.Store
	Global   *queue.Notify
	Channels *channel.Registry
	Repo     userrepo.Repository
	Signer   *token.Signer
	Metrics  *banchometrics.Collector
	Log      *slog.Logger
}

// New constructs a Service. metrics and log may be nil; a nil logger
// falls back to slog.Default().
func New(repo userrepo.Repository, signer *token.Signer, channels *channel.Registry, metrics *banchometrics.Collector, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		Store:    session.NewStore(),
		Global:   queue.NewNotify(),
		Channels: channels,
		Repo:     repo,
		Signer:   signer,
		Metrics:  metrics,
		Log:      log,
	}
}

// CreateUserSession inserts sess into the store and performs the
// create-time fan-out described in spec §4.2: an evicted prior session
// (same user_id) is logged out globally, a presence-single for sess is
// broadcast to everyone else, and sess itself receives its own
// stats+presence packets followed by a presence bundle covering every
// currently online user.
func (s *Service) CreateUserSession(ctx context.Context, sess *session.Session) {
	evicted := s.Store.Create(sess)
	if evicted != nil {
		s.Global.Push(bpacket.UserLogoutPacket(evicted.UserID), nil)
	}
	s.Global.PushExcludes(bpacket.UserPresenceSingle(sess.UserID), []int32{sess.UserID}, nil)

	sess.Outbound.Enqueue(bpacket.UserStatsPacket(statsPacketFor(sess, sess.Status().Mode)))
	sess.Outbound.Enqueue(bpacket.UserPresencePacket(presencePacketFor(sess)))

	all := s.Store.All()
	ids := make([]int32, 0, len(all))
	for _, other := range all {
		ids = append(ids, other.UserID)
	}
	sess.Outbound.EnqueueAll(bpacket.ShardPresenceBundles(ids)...)
	if s.Metrics != nil {
		s.Metrics.SetSessions(s.Store.Length())
	}
}

// DeleteUserSession resolves query, removes the session from the store,
// and broadcasts its logout globally (spec §4.2 delete).
func (s *Service) DeleteUserSession(ctx context.Context, q session.Query) (*session.Session, bool) {
	sess, ok := s.Store.Delete(q)
	if !ok {
		return nil, false
	}
	s.Global.Push(bpacket.UserLogoutPacket(sess.UserID), nil)
	if s.Metrics != nil {
		s.Metrics.SetSessions(s.Store.Length())
	}
	return sess, true
}

func (s *Service) CheckUserSessionExists(ctx context.Context, q session.Query) bool {
	return s.Store.Exists(q)
}

func (s *Service) GetUserSession(ctx context.Context, q session.Query) (*session.Session, bool) {
	return s.Store.Get(q)
}

// GetUserSessionWithFields returns only the fields selected by mask.
func (s *Service) GetUserSessionWithFields(ctx context.Context, q session.Query, mask FieldMask) (PartialSession, bool) {
	sess, ok := s.Store.Get(q)
	if !ok {
		return PartialSession{}, false
	}
	var out PartialSession
	if mask&FieldSessionID != 0 {
		out.SessionID = sess.SessionID
	}
	if mask&FieldUserID != 0 {
		out.UserID = sess.UserID
	}
	if mask&FieldUsername != 0 {
		out.Username = sess.Username
	}
	if mask&FieldUsernameUnicode != 0 {
		out.UsernameUnicode = sess.UsernameUnicode
	}
	return out, true
}

func (s *Service) GetAllSessions(ctx context.Context) []*session.Session {
	return s.Store.All()
}

// EnqueueBanchoPackets appends packets to a single session's outbound
// queue in one lock acquisition.
func (s *Service) EnqueueBanchoPackets(ctx context.Context, q session.Query, packets ...[]byte) bool {
	sess, ok := s.Store.Get(q)
	if !ok {
		return false
	}
	sess.Outbound.EnqueueAll(packets...)
	return true
}

// BatchEnqueueBanchoPackets enqueues the same packets onto every session
// named by queries, skipping any that no longer resolve.
func (s *Service) BatchEnqueueBanchoPackets(ctx context.Context, queries []session.Query, packets ...[]byte) {
	for _, q := range queries {
		if sess, ok := s.Store.Get(q); ok {
			sess.Outbound.EnqueueAll(packets...)
		}
	}
}

// DequeueBanchoPackets drains and returns a session's pending packets.
func (s *Service) DequeueBanchoPackets(ctx context.Context, q session.Query) ([]byte, bool) {
	sess, ok := s.Store.Get(q)
	if !ok {
		return nil, false
	}
	return sess.Outbound.Drain(), true
}

// BroadcastBanchoPackets pushes packets onto the global notify queue so
// every session eventually observes them via its own cursor.
func (s *Service) BroadcastBanchoPackets(ctx context.Context, excludeUserID int32, packets ...[]byte) {
	var excludes []int32
	if excludeUserID != 0 {
		excludes = []int32{excludeUserID}
	}
	for _, p := range packets {
		s.Global.PushExcludes(p, excludes, nil)
	}
}

func (s *Service) UpdatePresenceFilter(ctx context.Context, q session.Query, filter session.PresenceFilter) bool {
	sess, ok := s.Store.Get(q)
	if !ok {
		return false
	}
	sess.SetPresenceFilter(filter)
	return true
}

// SendUserStatsPacket builds and enqueues sess's own stats packet for
// mode onto its own outbound queue.
func (s *Service) SendUserStatsPacket(ctx context.Context, q session.Query, mode uint8) bool {
	sess, ok := s.Store.Get(q)
	if !ok {
		return false
	}
	sess.Outbound.Enqueue(bpacket.UserStatsPacket(statsPacketFor(sess, mode)))
	return true
}

// SendAllPresences enqueues a UserPresence packet for every online
// session onto target's outbound queue.
func (s *Service) SendAllPresences(ctx context.Context, q session.Query) bool {
	target, ok := s.Store.Get(q)
	if !ok {
		return false
	}
	for _, other := range s.Store.All() {
		target.Outbound.Enqueue(bpacket.UserPresencePacket(presencePacketFor(other)))
	}
	return true
}

// BatchSendUserStatsPacket enqueues mode's stats packet for every session
// named by queries onto its own outbound queue.
func (s *Service) BatchSendUserStatsPacket(ctx context.Context, queries []session.Query, mode uint8) {
	for _, q := range queries {
		if sess, ok := s.Store.Get(q); ok {
			sess.Outbound.Enqueue(bpacket.UserStatsPacket(statsPacketFor(sess, mode)))
		}
	}
}

func statsPacketFor(sess *session.Session, mode uint8) bpacket.UserStats {
	st, _ := sess.StatsFor(mode)
	status := sess.Status()
	return bpacket.UserStats{
		UserID:      sess.UserID,
		Action:      status.Action,
		Info:        status.Info,
		BeatmapMD5:  status.BeatmapMD5,
		Mods:        status.Mods,
		Mode:        status.Mode,
		BeatmapID:   status.BeatmapID,
		RankedScore: st.RankedScore,
		Accuracy:    st.Accuracy,
		PlayCount:   st.PlayCount,
		TotalScore:  st.TotalScore,
		Rank:        st.Rank,
		PP:          st.PP,
	}
}

func presencePacketFor(sess *session.Session) bpacket.UserPresence {
	geo := sess.Geo()
	st, _ := sess.StatsFor(sess.Status().Mode)
	return bpacket.UserPresence{
		UserID:      sess.UserID,
		Username:    sess.Username,
		UTCOffset:   uint8(sess.UTCOffset),
		CountryCode: geo.CountryCode,
		Privileges:  sess.Privileges(),
		Longitude:   geo.Longitude,
		Latitude:    geo.Latitude,
		Rank:        st.Rank,
	}
}
