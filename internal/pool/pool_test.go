package pool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func readyPool(ids ...string) *WorkerPool {
	p := NewWorkerPool(ids...)
	for _, id := range ids {
		p.SetReady(id, true)
	}
	return p
}

func TestAssignPrefersPriorityOrderAndSkipsUnready(t *testing.T) {
	p := NewWorkerPool("primary", "worker-1", "worker-2")
	_, err := p.Assign("g1")
	require.ErrorIs(t, err, ErrPoolExhausted)

	p.SetReady("worker-2", true)
	p.SetReady("worker-1", true)
	id, err := p.Assign("g1")
	require.NoError(t, err)
	require.Equal(t, "worker-1", id)

	p.SetReady("primary", true)
	id, err = p.Assign("g1")
	require.NoError(t, err)
	require.Equal(t, "primary", id)
	require.Equal(t, 3, p.Ready())
}

func TestAssignNeverReturnsIdentityOccupyingGroup(t *testing.T) {
	p := readyPool("a", "b")

	first, err := p.Acquire("g1", "c1")
	require.NoError(t, err)
	require.Equal(t, "a", first)

	second, err := p.Assign("g1")
	require.NoError(t, err)
	require.Equal(t, "b", second)

	_, err = p.Acquire("g1", "c2")
	require.NoError(t, err)
	_, err = p.Assign("g1")
	require.ErrorIs(t, err, ErrPoolExhausted)

	other, err := p.Assign("g2")
	require.NoError(t, err)
	require.Equal(t, "a", other, "identity is only exclusive within a group")

	p.Release("a", "g1")
	p.Release("a", "g1")
	again, err := p.Assign("g1")
	require.NoError(t, err)
	require.Equal(t, "a", again)
}

func TestConcurrentAcquireHandsOutDistinctIdentities(t *testing.T) {
	p := readyPool("a", "b", "c")

	var wg sync.WaitGroup
	var exhausted atomic.Int32
	got := make(chan string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := p.Acquire("g1", "c")
			if errors.Is(err, ErrPoolExhausted) {
				exhausted.Add(1)
				return
			}
			got <- id
		}()
	}
	wg.Wait()
	close(got)

	seen := map[string]bool{}
	for id := range got {
		require.False(t, seen[id], "identity %s handed out twice", id)
		seen[id] = true
	}
	require.Len(t, seen, 3)
	require.Equal(t, int32(7), exhausted.Load())
}

func TestSnapshotIsCopy(t *testing.T) {
	p := readyPool("a", "a", "")
	_, err := p.Acquire("g", "c")
	require.NoError(t, err)

	snap := p.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, map[string]string{"g": "c"}, snap[0].Occupied)

	snap[0].Occupied["g"] = "mutated"
	require.Equal(t, "c", p.Snapshot()[0].Occupied["g"])
}

func TestRegistryRegisterIsTestAndSet(t *testing.T) {
	r := NewRegistry[int]()

	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			err := r.Register(Entry[int]{ChannelID: "c1", Session: n})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrRegistryConflict):
				conflicts.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, int32(1), conflicts.Load())
	require.Len(t, r.Entries(), 1)
}

func TestRegistryConflictDoesNotMutate(t *testing.T) {
	r := NewRegistry[string]()
	require.NoError(t, r.Register(Entry[string]{ChannelID: "c1", Identity: "a", Session: "first"}))
	require.ErrorIs(t, r.Register(Entry[string]{ChannelID: "c1", Identity: "b", Session: "second"}), ErrRegistryConflict)

	entry, ok := r.Lookup("c1")
	require.True(t, ok)
	require.Equal(t, "first", entry.Session)
	require.Equal(t, "a", entry.Identity)
}

func TestRegistryUnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry[string]()
	require.NoError(t, r.Register(Entry[string]{ChannelID: "c2", Session: "x"}))
	require.NoError(t, r.Register(Entry[string]{ChannelID: "c1", Session: "y"}))

	entries := r.Entries()
	require.Equal(t, "c1", entries[0].ChannelID)
	require.Equal(t, "c2", entries[1].ChannelID)

	removed, ok := r.Unregister("c1")
	require.True(t, ok)
	require.Equal(t, "y", removed.Session)

	_, ok = r.Unregister("c1")
	require.False(t, ok)
	_, ok = r.Lookup("c1")
	require.False(t, ok)
	require.NoError(t, r.Register(Entry[string]{ChannelID: "c1", Session: "z"}))
}
