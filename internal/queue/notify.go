package queue

import (
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"banchod/internal/idgen"
)

// Validator reports whether a message is still eligible for delivery
// (e.g. "recipient still online?"). A nil validator is always valid.
type Validator func() bool

type message struct {
	payload   []byte
	read      map[int32]struct{}
	validator Validator
}

func (m *message) valid() bool {
	return m.validator == nil || m.validator()
}

// Notify is an ordered map keyed by ULID -> Message, used for one-to-many
// fan-out with per-reader acknowledgment and bounded storage. One Notify
// instance backs the global broadcast log and one backs each channel's
// per-channel history.
type Notify struct {
	mu       sync.RWMutex
	ids      []ulid.ULID // ascending; source is monotonic so appends stay sorted
	messages map[ulid.ULID]*message
	source   *idgen.Source
}

func NewNotify() *Notify {
	return &Notify{
		messages: make(map[ulid.ULID]*message),
		source:   idgen.NewSource(),
	}
}

// Push allocates a fresh ULID >= all existing keys and inserts payload
// with an empty read-set.
func (n *Notify) Push(payload []byte, validator Validator) ulid.ULID {
	return n.push(payload, nil, validator)
}

// PushExcludes is Push but pre-seeds the read-set with excludes, so those
// readers never observe the message (used to exclude the sender of a
// broadcast from its own fan-out).
func (n *Notify) PushExcludes(payload []byte, excludes []int32, validator Validator) ulid.ULID {
	return n.push(payload, excludes, validator)
}

func (n *Notify) push(payload []byte, excludes []int32, validator Validator) ulid.ULID {
	read := make(map[int32]struct{}, len(excludes))
	for _, id := range excludes {
		read[id] = struct{}{}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.source.New(time.Now())
	n.messages[id] = &message{payload: payload, read: read, validator: validator}
	n.ids = append(n.ids, id)
	return id
}

// Receive iterates keys >= fromCursor ascending; for each message that
// is valid and not yet read by readerID, it marks it read and collects
// the payload, stopping at max messages (0 = unbounded) or end of queue.
// Returns ok=false if nothing was collected (fromCursor past the last
// key, or every candidate message was already read/invalid).
func (n *Notify) Receive(readerID int32, fromCursor ulid.ULID, max int) (payloads [][]byte, lastCursor ulid.ULID, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	start := sort.Search(len(n.ids), func(i int) bool {
		return n.ids[i].Compare(fromCursor) >= 0
	})

	lastCursor = fromCursor
	for i := start; i < len(n.ids); i++ {
		id := n.ids[i]
		msg, exists := n.messages[id]
		if !exists {
			continue
		}
		lastCursor = id
		if _, already := msg.read[readerID]; already {
			continue
		}
		if !msg.valid() {
			continue
		}
		msg.read[readerID] = struct{}{}
		payloads = append(payloads, msg.payload)
		if max > 0 && len(payloads) >= max {
			break
		}
	}
	if len(payloads) == 0 {
		return nil, lastCursor, false
	}
	return payloads, lastCursor, true
}

// Remove deletes each listed ULID from the map (gaps are left behind;
// keys are dense only logically).
func (n *Notify) Remove(ids []ulid.ULID) {
	if len(ids) == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, id := range ids {
		delete(n.messages, id)
	}
	n.compact()
}

// RemoveBefore removes every key <= id — the reaper's shorthand for
// remove_range(..=id) using the global minimum read cursor.
func (n *Notify) RemoveBefore(id ulid.ULID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, k := range n.ids {
		if k.Compare(id) <= 0 {
			delete(n.messages, k)
		} else {
			break
		}
	}
	n.compact()
}

// CollectInvalid returns every key whose validator currently reports
// false, for the notify reaper to remove.
func (n *Notify) CollectInvalid() []ulid.ULID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out []ulid.ULID
	for _, id := range n.ids {
		if msg, ok := n.messages[id]; ok && !msg.valid() {
			out = append(out, id)
		}
	}
	return out
}

// Len reports the number of live messages.
func (n *Notify) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.messages)
}

// compact drops tombstoned ids from the head of n.ids; must be called
// with the write lock held. It only trims the prefix of already-deleted
// ids; when it trims, it copies the remaining ids into a new slice.
// Deleted ids behind the first live one stay in n.ids until they reach
// the head.
func (n *Notify) compact() {
	i := 0
	for i < len(n.ids) {
		if _, ok := n.messages[n.ids[i]]; ok {
			break
		}
		i++
	}
	if i > 0 {
		n.ids = append([]ulid.ULID(nil), n.ids[i:]...)
	}
}
