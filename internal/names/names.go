// Package names resolves speaker ids to human-readable display names.
package names

import (
	"context"
	"strings"
	"sync"
)

const fallbackPrefix = "USER_"

// Source is one tier of display-name lookup.
type Source interface {
	DisplayName(ctx context.Context, speakerID string) (string, bool)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(context.Context, string) (string, bool)

func (f SourceFunc) DisplayName(ctx context.Context, speakerID string) (string, bool) {
	return f(ctx, speakerID)
}

// Resolve tries sources in order and returns the first non-blank name.
// When every source misses, the deterministic fallback is returned.
func Resolve(ctx context.Context, speakerID string, sources ...Source) string {
	for _, source := range sources {
		if source == nil {
			continue
		}
		name, ok := source.DisplayName(ctx, speakerID)
		if !ok {
			continue
		}
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}
	return Fallback(speakerID)
}

// Fallback is the synthesized placeholder for an unresolved speaker.
func Fallback(speakerID string) string {
	return fallbackPrefix + speakerID
}

// IsFallback reports whether name is the synthesized placeholder for speakerID.
func IsFallback(name string, speakerID string) bool {
	return name == "" || name == Fallback(speakerID)
}

// Cache is a concurrency-safe in-memory Source.
type Cache struct {
	mu    sync.RWMutex
	names map[string]string
}

// NewCache builds an empty cache.
func NewCache() *Cache {
	return &Cache{names: make(map[string]string)}
}

// Remember stores a resolved name; blank names are ignored.
func (c *Cache) Remember(speakerID string, name string) {
	name = strings.TrimSpace(name)
	if speakerID == "" || name == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[speakerID] = name
}

func (c *Cache) DisplayName(_ context.Context, speakerID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.names[speakerID]
	return name, ok
}
