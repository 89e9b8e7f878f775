package names

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveFirstHitWins(t *testing.T) {
	primary := NewCache()
	secondary := NewCache()
	primary.Remember("42", "Alice")
	secondary.Remember("42", "alice_old")

	require.Equal(t, "Alice", Resolve(context.Background(), "42", primary, secondary))
}

func TestResolveSkipsMissesAndBlankNames(t *testing.T) {
	blank := SourceFunc(func(context.Context, string) (string, bool) { return "   ", true })
	miss := SourceFunc(func(context.Context, string) (string, bool) { return "", false })
	cache := NewCache()
	cache.Remember("7", "Bob")

	require.Equal(t, "Bob", Resolve(context.Background(), "7", nil, miss, blank, cache))
}

func TestResolveFallsBackDeterministically(t *testing.T) {
	name := Resolve(context.Background(), "99")
	require.Equal(t, "USER_99", name)
	require.True(t, IsFallback(name, "99"))
	require.True(t, IsFallback("", "99"))
	require.False(t, IsFallback("Carol", "99"))
}

func TestCacheIgnoresBlankEntries(t *testing.T) {
	cache := NewCache()
	cache.Remember("", "x")
	cache.Remember("1", "  ")

	_, ok := cache.DisplayName(context.Background(), "1")
	require.False(t, ok)
}
