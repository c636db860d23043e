package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/promptforge/pkg/core"
)

func TestKey(t *testing.T) {
	base := Key("gemini-2.0-flash", "Write a haiku")

	assert.Equal(t, base, Key("gemini-2.0-flash", "Write a haiku"))
	assert.NotEqual(t, base, Key("gemini-2.0-flash", "Write a sonnet"))
	assert.NotEqual(t, base, Key("gpt-4o-mini", "Write a haiku"))
	assert.NotEqual(t, base, Key("gemini-2.0-flash", "Write a haiku", core.WithTemperature(0.1)))
	assert.NotEqual(t, base, Key("gemini-2.0-flash", "Write a haiku", core.WithMaxTokens(16)))
	assert.NotEqual(t, base, Key("gemini-2.0-flash", "Write a haiku", core.WithStopSequences("END")))
	assert.True(t, strings.HasPrefix(base, "gemini-2.0-flash_"))
}

func TestMemoryGetSet(t *testing.T) {
	m := NewMemory(MemoryConfig{})
	defer m.Close()
	ctx := context.Background()

	_, ok, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", []byte("value"), 0))

	data, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("value"), data)

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, int64(1), stats.Entries)
	assert.Equal(t, int64(5), stats.Bytes)
}

func TestMemoryTTL(t *testing.T) {
	m := NewMemory(MemoryConfig{})
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(0), m.Stats().Entries)
}

func TestMemoryLRUEviction(t *testing.T) {
	m := NewMemory(MemoryConfig{MaxBytes: 10})
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", []byte("aaaa"), 0))
	require.NoError(t, m.Set(ctx, "b", []byte("bbbb"), 0))

	// Touch a so b becomes the eviction candidate.
	_, ok, err := m.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.Set(ctx, "c", []byte("cccc"), 0))

	_, ok, _ = m.Get(ctx, "b")
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, "a")
	assert.True(t, ok)
	_, ok, _ = m.Get(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, int64(1), m.Stats().Evictions)
}

func TestMemoryReplace(t *testing.T) {
	m := NewMemory(MemoryConfig{})
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("long value"), 0))
	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))

	data, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), data)

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.Entries)
	assert.Equal(t, int64(1), stats.Bytes)
}

func TestMemoryClear(t *testing.T) {
	m := NewMemory(MemoryConfig{})
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, m.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, m.Clear(ctx))

	_, ok, _ := m.Get(ctx, "a")
	assert.False(t, ok)

	stats := m.Stats()
	assert.Equal(t, int64(0), stats.Entries)
	assert.Equal(t, int64(0), stats.Bytes)
	assert.Equal(t, int64(2), stats.Sets)
}

func TestMemorySweeper(t *testing.T) {
	m := NewMemory(MemoryConfig{CleanupInterval: 5 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Millisecond))

	require.Eventually(t, func() bool {
		return m.Stats().Entries == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}
