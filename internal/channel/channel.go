// Package channel implements chat channels: the three-index registry
// (spec §4.5) and per-channel membership with platform-bitmask
// semantics.
package channel

import (
	"sync"
	"time"

	"banchod/internal/queue"
)

// Kind is the channel's type.
type Kind int

const (
	Public Kind = iota
	Private
	Group
	Multiplayer
	Spectator
)

// Platform is a bit in a membership bitmask.
type Platform uint8

const (
	Bancho Platform = 1 << iota
	Lazer
	Web
)

// Channel is a chat room: membership set, per-channel message history
// (its own notify queue), and metadata.
type Channel struct {
	ID          int64
	Name        string // unique
	Kind        Kind
	Description string
	CreatedAt   time.Time

	History *queue.Notify // per-channel broadcast notify queue

	mu      sync.RWMutex
	members map[int32]Platform // user_id -> platform bitmask
}

func newChannel(id int64, name string, kind Kind, description string, now time.Time) *Channel {
	return &Channel{
		ID:          id,
		Name:        name,
		Kind:        kind,
		Description: description,
		CreatedAt:   now,
		History:     queue.NewNotify(),
		members:     make(map[int32]Platform),
	}
}

// AddUser sets or ORs userID's membership bitmask with platforms.
func (c *Channel) AddUser(userID int32, platforms Platform) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members[userID] |= platforms
}

// RemovePlatforms ANDs userID's bitmask with the complement of
// platforms; if the result is zero the membership is dropped entirely.
func (c *Channel) RemovePlatforms(userID int32, platforms Platform) {
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining := c.members[userID] &^ platforms
	if remaining == 0 {
		delete(c.members, userID)
		return
	}
	c.members[userID] = remaining
}

// RemoveUser drops userID's membership entirely, regardless of bitmask.
func (c *Channel) RemoveUser(userID int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.members, userID)
}

// HasUser reports whether userID currently has any platform bit set.
func (c *Channel) HasUser(userID int32) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.members[userID] != 0
}

// UserCount returns the number of present members (|members|).
func (c *Channel) UserCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// Members returns a snapshot of every member user id.
func (c *Channel) Members() []int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]int32, 0, len(c.members))
	for id := range c.members {
		out = append(out, id)
	}
	return out
}
