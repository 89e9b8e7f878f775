package pool

import (
	"errors"
	"sort"
	"sync"
)

// ErrRegistryConflict means the channel already has a live session.
var ErrRegistryConflict = errors.New("channel is already being recorded")

// Entry binds a channel to its session and owning identity.
type Entry[S any] struct {
	ChannelID string
	GroupID   string
	Identity  string
	Session   S
}

// Registry maps channel ids to live sessions, at most one per channel.
type Registry[S any] struct {
	mu      sync.Mutex
	entries map[string]Entry[S]
}

// NewRegistry builds an empty registry.
func NewRegistry[S any]() *Registry[S] {
	return &Registry[S]{entries: make(map[string]Entry[S])}
}

// Register inserts entry unless its channel is present; the check and insert
// happen under one lock.
func (r *Registry[S]) Register(entry Entry[S]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[entry.ChannelID]; exists {
		return ErrRegistryConflict
	}
	r.entries[entry.ChannelID] = entry
	return nil
}

// Unregister removes channelID and returns what was removed.
func (r *Registry[S]) Unregister(channelID string) (Entry[S], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[channelID]
	if ok {
		delete(r.entries, channelID)
	}
	return entry, ok
}

// Lookup returns the entry for channelID.
func (r *Registry[S]) Lookup(channelID string) (Entry[S], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[channelID]
	return entry, ok
}

// Entries lists all entries ordered by channel id.
func (r *Registry[S]) Entries() []Entry[S] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry[S], 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}
