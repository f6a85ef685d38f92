// Package session implements the live-player session entity and the
// four-index concurrent store that indexes it.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"banchod/internal/queue"
)

// PresenceFilter controls which presence updates a session wants pushed
// to it (UserReceiveUpdates).
type PresenceFilter int32

const (
	PresenceNone PresenceFilter = iota
	PresenceFriends
	PresenceAll
)

// Status is the player's current in-game action, replaced wholesale on
// every UserChangeAction packet — a single atomic.Pointer swap rather
// than per-field atomics, since the fields always change together.
type Status struct {
	Action     uint8
	Info       string
	BeatmapMD5 string
	BeatmapID  int32
	Mods       uint32
	Mode       uint8
}

// GeoInfo is the GeoIP-derived connection info resolved at login.
type GeoInfo struct {
	CountryCode uint8
	Latitude    float32
	Longitude   float32
}

// ModeStats is a player's ranking statistics for one game mode.
type ModeStats struct {
	RankedScore int64
	Accuracy    float32
	PlayCount   int32
	TotalScore  int64
	Rank        int32
	PP          int16
}

// Session is one live client's authenticated connection state.
// High-churn fields (status, last-active, notify cursor, flags) are
// atomics so a request only needs the store's lock to resolve the
// session handle, never to mutate it.
type Session struct {
	SessionID       ulid.ULID
	UserID          int32
	Username        string
	UsernameUnicode string // falls back to Username if empty (spec §4.2)
	ClientVersion   string
	UTCOffset       int8
	CreatedAt       time.Time

	privileges atomic.Int64 // int32 bitmask stored widened
	lastActive atomic.Int64 // unix nano

	status  atomic.Pointer[Status]
	geo     atomic.Pointer[GeoInfo]
	cursor  atomic.Pointer[ulid.ULID] // notify-queue read cursor

	displayCity       atomic.Bool
	blockNonFriendDMs atomic.Bool
	inLobby           atomic.Bool
	presenceFilter    atomic.Int32

	statsMu sync.RWMutex
	stats   map[uint8]ModeStats

	Outbound *queue.Outbound
}

// New constructs a Session with zeroed extensions; CreatedAt and
// LastActiveAt are both set to now.
func New(id ulid.ULID, userID int32, username string, now time.Time) *Session {
	s := &Session{
		SessionID: id,
		UserID:    userID,
		Username:  username,
		CreatedAt: now,
		stats:     make(map[uint8]ModeStats),
		Outbound:  queue.NewOutbound(),
	}
	s.lastActive.Store(now.UnixNano())
	s.status.Store(&Status{})
	s.geo.Store(&GeoInfo{})
	zero := ulid.ULID{}
	s.cursor.Store(&zero)
	return s
}

// EffectiveUnicodeName returns UsernameUnicode, falling back to the
// ASCII username when no unicode name is set (spec §4.2 index note).
func (s *Session) EffectiveUnicodeName() string {
	if s.UsernameUnicode == "" {
		return s.Username
	}
	return s.UsernameUnicode
}

func (s *Session) Privileges() int32        { return int32(s.privileges.Load()) }
func (s *Session) SetPrivileges(v int32)    { s.privileges.Store(int64(v)) }

func (s *Session) LastActiveAt() time.Time {
	return time.Unix(0, s.lastActive.Load())
}
func (s *Session) Touch(now time.Time) { s.lastActive.Store(now.UnixNano()) }

func (s *Session) Status() Status   { return *s.status.Load() }
func (s *Session) SetStatus(st Status) { s.status.Store(&st) }

func (s *Session) Geo() GeoInfo      { return *s.geo.Load() }
func (s *Session) SetGeo(g GeoInfo)  { s.geo.Store(&g) }

// NotifyCursor returns the session's last-read notify-queue ULID.
func (s *Session) NotifyCursor() ulid.ULID { return *s.cursor.Load() }

// AdvanceCursor stores a new cursor value. Callers (the dispatcher, after
// a notify queue Receive) are responsible for only ever advancing it
// monotonically.
func (s *Session) AdvanceCursor(id ulid.ULID) { s.cursor.Store(&id) }

func (s *Session) DisplayCity() bool       { return s.displayCity.Load() }
func (s *Session) SetDisplayCity(v bool)   { s.displayCity.Store(v) }

func (s *Session) BlockNonFriendDMs() bool     { return s.blockNonFriendDMs.Load() }
func (s *Session) SetBlockNonFriendDMs(v bool) { s.blockNonFriendDMs.Store(v) }

func (s *Session) InLobby() bool      { return s.inLobby.Load() }
func (s *Session) ToggleLobby(v bool) { s.inLobby.Store(v) }

func (s *Session) PresenceFilter() PresenceFilter {
	return PresenceFilter(s.presenceFilter.Load())
}
func (s *Session) SetPresenceFilter(f PresenceFilter) { s.presenceFilter.Store(int32(f)) }

// StatsFor returns the session's recorded stats for mode, if any.
func (s *Session) StatsFor(mode uint8) (ModeStats, bool) {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	st, ok := s.stats[mode]
	return st, ok
}

func (s *Session) SetStatsFor(mode uint8, st ModeStats) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats[mode] = st
}

// Age reports how long this session has existed as of now.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}
