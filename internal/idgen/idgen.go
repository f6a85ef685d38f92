// Package idgen generates the monotonic 128-bit ULIDs used as session
// ids and broadcast-notify-queue keys.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Source produces monotonically non-decreasing ULIDs even when called
// faster than the millisecond clock advances, guarded by its own mutex
// so a single Source can be shared across goroutines.
type Source struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewSource returns a ULID source seeded from crypto/rand.
func NewSource() *Source {
	return &Source{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// New returns a fresh ULID timestamped at now.
func (s *Source) New(now time.Time) ulid.ULID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), s.entropy)
}

// Zero is the minimum possible ULID, used as the initial notify cursor
// for a session that has not yet read anything.
var Zero = ulid.ULID{}

// Max is the maximum possible ULID.
var Max = func() ulid.ULID {
	var u ulid.ULID
	for i := range u {
		u[i] = 0xFF
	}
	return u
}()

// Parse parses the canonical 26-character ULID string form.
func Parse(s string) (ulid.ULID, error) {
	return ulid.ParseStrict(s)
}
