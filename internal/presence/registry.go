package presence

import (
	"sort"
	"sync"
)

// Channel is a live push connection owned by the transport layer.
type Channel interface {
	ID() string
	Push(payload []byte) error
}

type closer interface {
	Close()
}

// Registry maps each connected user to its single live channel.
// The most recent registration wins.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]Channel),
	}
}

// Register binds ch to userID and returns the channel it replaced, if any.
// Closing the replaced channel is left to the caller.
func (r *Registry) Register(userID string, ch Channel) Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.channels[userID]
	r.channels[userID] = ch
	if old != nil && old.ID() == ch.ID() {
		return nil
	}
	return old
}

// Unregister removes the binding only if it still points at ch, so a late
// disconnect from a replaced connection cannot evict its successor.
func (r *Registry) Unregister(userID string, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.channels[userID]
	if !ok || current.ID() != ch.ID() {
		return false
	}
	delete(r.channels, userID)
	return true
}

func (r *Registry) Lookup(userID string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[userID]
	return ch, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// OnlineUsers lists the users with a registered channel, sorted.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.channels))
	for id := range r.channels {
		users = append(users, id)
	}
	r.mu.RUnlock()

	sort.Strings(users)
	return users
}

// CloseAll empties the registry and closes every channel that supports it.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	channels := r.channels
	r.channels = make(map[string]Channel)
	r.mu.Unlock()

	for _, ch := range channels {
		if c, ok := ch.(closer); ok {
			c.Close()
		}
	}
}
