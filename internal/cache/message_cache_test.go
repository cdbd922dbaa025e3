package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetActiveEntryReturnsOnlyOneActive(t *testing.T) {
	mc := NewMessageCache("sess-1", "alpha", "beta")
	first := mc.CreateEntry(KindTell, "first")
	require.Equal(t, first, mc.GetActiveEntry())

	first.Complete()
	assert.Nil(t, mc.GetActiveEntry())

	second := mc.CreateEntry(KindTell, "second")
	assert.Equal(t, second, mc.GetActiveEntry())
}

func TestClearTerminatesActiveEntryButKeepsCacheUsable(t *testing.T) {
	mc := NewMessageCache("sess-1", "alpha", "beta")
	active := mc.CreateEntry(KindTell, "first")

	mc.Clear()

	assert.Equal(t, StatusTerminated, active.Status())
	assert.Empty(t, mc.Entries())

	mc.CreateEntry(KindTell, "after-clear")
	assert.Len(t, mc.Entries(), 1)
}

func TestGetStatsCountsByKindAndStatus(t *testing.T) {
	mc := NewMessageCache("sess-1", "alpha", "beta")
	spawn := mc.CreateEntry(KindSpawn, "ping")
	spawn.Complete()
	mc.CreateEntry(KindTell, "hello")

	stats := mc.GetStats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByKind[KindSpawn])
	assert.Equal(t, 1, stats.ByKind[KindTell])
	assert.Equal(t, 1, stats.ByStatus[StatusCompleted])
	assert.Equal(t, 1, stats.ByStatus[StatusActive])
}

func TestSubscribeEntriesReplaysThenStreams(t *testing.T) {
	mc := NewMessageCache("sess-1", "alpha", "beta")
	existing := mc.CreateEntry(KindTell, "existing")

	ch := mc.SubscribeEntries()
	assert.Equal(t, existing, <-ch)

	fresh := mc.CreateEntry(KindTell, "fresh")
	assert.Equal(t, fresh, <-ch)
}

func TestDestroyCompletesActiveEntriesAndClosesSubscribers(t *testing.T) {
	mc := NewMessageCache("sess-1", "alpha", "beta")
	active := mc.CreateEntry(KindTell, "first")
	ch := mc.SubscribeEntries()
	<-ch // drain replay of "first"

	mc.Destroy()

	assert.Equal(t, StatusCompleted, active.Status())
	_, ok := <-ch
	assert.False(t, ok)
}
