package session

import (
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

// QueryKind selects which index a Query resolves against.
type QueryKind int

const (
	BySessionID QueryKind = iota
	ByUserID
	ByUsername
	ByUsernameUnicode
)

// Query identifies a session by exactly one of its indexed attributes.
type Query struct {
	Kind      QueryKind
	SessionID ulid.ULID
	UserID    int32
	Username  string
}

func QuerySessionID(id ulid.ULID) Query { return Query{Kind: BySessionID, SessionID: id} }
func QueryUserID(id int32) Query        { return Query{Kind: ByUserID, UserID: id} }
func QueryUsername(name string) Query   { return Query{Kind: ByUsername, Username: name} }
func QueryUsernameUnicode(name string) Query {
	return Query{Kind: ByUsernameUnicode, Username: name}
}

// Store is the four-index concurrent session table (spec §4.2): by
// session id (ULID, supports range scans for the reaper), by user id, by
// username, and by unicode username. A single RWMutex guards the four
// index maps; it is held only for the duration of the index mutation
// itself, never across external I/O. Per-session mutable state is
// mutated through the Session's own atomics without touching this lock.
type Store struct {
	mu                sync.RWMutex
	bySessionID       map[ulid.ULID]*Session
	byUserID          map[int32]*Session
	byUsername        map[string]*Session
	byUsernameUnicode map[string]*Session
	length            atomic.Int64
}

func NewStore() *Store {
	return &Store{
		bySessionID:       make(map[ulid.ULID]*Session),
		byUserID:          make(map[int32]*Session),
		byUsername:        make(map[string]*Session),
		byUsernameUnicode: make(map[string]*Session),
	}
}

// Create inserts session into all four indexes, first deleting any prior
// session sharing its user_id (duplicate-login eviction, spec §3
// invariant). Returns the evicted session, if any. Fan-out (notify
// broadcast, welcome packets) is the caller's responsibility — see
// internal/bancho.Service, which wraps Store to add it.
func (s *Store) Create(sess *Session) (evicted *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, ok := s.byUserID[sess.UserID]; ok {
		s.removeLocked(prior)
		evicted = prior
	}
	s.insertLocked(sess)
	return evicted
}

func (s *Store) insertLocked(sess *Session) {
	s.bySessionID[sess.SessionID] = sess
	s.byUserID[sess.UserID] = sess
	s.byUsername[sess.Username] = sess
	s.byUsernameUnicode[sess.EffectiveUnicodeName()] = sess
	s.length.Add(1)
}

func (s *Store) removeLocked(sess *Session) {
	delete(s.bySessionID, sess.SessionID)
	delete(s.byUserID, sess.UserID)
	if s.byUsername[sess.Username] == sess {
		delete(s.byUsername, sess.Username)
	}
	unicodeKey := sess.EffectiveUnicodeName()
	if s.byUsernameUnicode[unicodeKey] == sess {
		delete(s.byUsernameUnicode, unicodeKey)
	}
	s.length.Add(-1)
}

// Delete resolves query to a session, removes it from all four indexes,
// and returns it. Idempotent: deleting an already-absent session is a
// no-op returning ok=false.
func (s *Store) Delete(q Query) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.resolveLocked(q)
	if !ok {
		return nil, false
	}
	s.removeLocked(sess)
	return sess, true
}

// Get resolves query to a session handle, or ok=false.
func (s *Store) Get(q Query) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(q)
}

// Exists reports whether query currently resolves to a session.
func (s *Store) Exists(q Query) bool {
	_, ok := s.Get(q)
	return ok
}

func (s *Store) resolveLocked(q Query) (*Session, bool) {
	switch q.Kind {
	case BySessionID:
		sess, ok := s.bySessionID[q.SessionID]
		return sess, ok
	case ByUserID:
		sess, ok := s.byUserID[q.UserID]
		return sess, ok
	case ByUsername:
		// by_username never falls back to by_username_unicode — the two
		// indexes are independent even when a unicode name collides with
		// someone else's ASCII username (see SPEC_FULL.md resolved open
		// question 1).
		sess, ok := s.byUsername[q.Username]
		return sess, ok
	case ByUsernameUnicode:
		sess, ok := s.byUsernameUnicode[q.Username]
		return sess, ok
	default:
		return nil, false
	}
}

// Clear empties all four indexes and resets length to zero.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySessionID = make(map[ulid.ULID]*Session)
	s.byUserID = make(map[int32]*Session)
	s.byUsername = make(map[string]*Session)
	s.byUsernameUnicode = make(map[string]*Session)
	s.length.Store(0)
}

// Length returns the current session count.
func (s *Store) Length() int64 { return s.length.Load() }

// All returns a snapshot slice of every live session, for fan-out and
// reaper sweeps. The slice is a point-in-time copy; it is safe to range
// over without holding the store lock.
func (s *Store) All() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.bySessionID))
	for _, sess := range s.bySessionID {
		out = append(out, sess)
	}
	return out
}

// RangeBySessionID returns every live session whose SessionID is <= max;
// order is unspecified. The reapers sweep via All, not this method.
func (s *Store) RangeBySessionID(max ulid.ULID) []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Session
	for id, sess := range s.bySessionID {
		if id.Compare(max) <= 0 {
			out = append(out, sess)
		}
	}
	return out
}
