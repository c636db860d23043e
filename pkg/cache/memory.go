package cache

import (
	"context"
	"sync"
	"time"
)

const defaultMaxBytes = 100 * 1024 * 1024

// MemoryConfig configures the in-memory cache.
type MemoryConfig struct {
	MaxBytes        int64         // Value bytes kept before LRU eviction (default 100MB)
	CleanupInterval time.Duration // How often expired entries are swept; 0 disables the sweeper
}

// Memory is an in-memory cache with TTL expiry and LRU eviction.
type Memory struct {
	mu        sync.Mutex
	entries   map[string]*memoryEntry
	lru       *lruList
	bytes     int64
	maxBytes  int64
	stats     Stats
	closeOnce sync.Once
	closeChan chan struct{}
	sweepWG   sync.WaitGroup
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
	element   *lruElement
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemory returns an in-memory cache. Expired entries are dropped on
// access; a positive CleanupInterval additionally sweeps them in the
// background.
func NewMemory(config MemoryConfig) *Memory {
	if config.MaxBytes <= 0 {
		config.MaxBytes = defaultMaxBytes
	}

	m := &Memory{
		entries:   make(map[string]*memoryEntry),
		lru:       newLRUList(),
		maxBytes:  config.MaxBytes,
		stats:     Stats{MaxBytes: config.MaxBytes},
		closeChan: make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		m.sweepWG.Add(1)
		go m.sweep(config.CleanupInterval)
	}
	return m
}

// Get retrieves a cached value, refreshing its recency.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		m.stats.Misses++
		return nil, false, nil
	}
	if entry.expired(time.Now()) {
		m.remove(key, entry)
		m.stats.Misses++
		return nil, false, nil
	}

	m.lru.moveToFront(entry.element)
	m.stats.Hits++
	return entry.value, true, nil
}

// Set stores value under key, evicting least recently used entries once the
// byte budget is exceeded.
func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[key]; ok {
		m.remove(key, existing)
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	m.entries[key] = &memoryEntry{
		value:     value,
		expiresAt: expiresAt,
		element:   m.lru.pushFront(key),
	}
	m.bytes += int64(len(value))
	m.stats.Sets++

	for m.bytes > m.maxBytes {
		oldest := m.lru.back()
		if oldest == nil || oldest.key == key {
			break
		}
		m.remove(oldest.key, m.entries[oldest.key])
		m.stats.Evictions++
	}
	return nil
}

// Clear removes all cached values. Cumulative counters are preserved.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*memoryEntry)
	m.lru = newLRUList()
	m.bytes = 0
	return nil
}

// Stats returns a snapshot of the cache counters.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.stats
	stats.Entries = int64(len(m.entries))
	stats.Bytes = m.bytes
	return stats
}

// Close stops the background sweeper. The cache itself stays usable.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() {
		close(m.closeChan)
	})
	m.sweepWG.Wait()
	return nil
}

// remove must be called with the mutex held.
func (m *Memory) remove(key string, entry *memoryEntry) {
	delete(m.entries, key)
	m.lru.remove(entry.element)
	m.bytes -= int64(len(entry.value))
}

func (m *Memory) sweep(interval time.Duration) {
	defer m.sweepWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.closeChan:
			return
		case <-ticker.C:
			m.removeExpired()
		}
	}
}

func (m *Memory) removeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for key, entry := range m.entries {
		if entry.expired(now) {
			m.remove(key, entry)
		}
	}
}

// lruList is a doubly linked recency list with sentinel ends. The front
// holds the most recently used key.
type lruList struct {
	head *lruElement
	tail *lruElement
}

type lruElement struct {
	key  string
	prev *lruElement
	next *lruElement
}

func newLRUList() *lruList {
	head := &lruElement{}
	tail := &lruElement{}
	head.next = tail
	tail.prev = head
	return &lruList{head: head, tail: tail}
}

func (l *lruList) pushFront(key string) *lruElement {
	elem := &lruElement{key: key, prev: l.head, next: l.head.next}
	l.head.next.prev = elem
	l.head.next = elem
	return elem
}

func (l *lruList) moveToFront(elem *lruElement) {
	if l.head.next == elem {
		return
	}
	elem.prev.next = elem.next
	elem.next.prev = elem.prev
	elem.prev = l.head
	elem.next = l.head.next
	l.head.next.prev = elem
	l.head.next = elem
}

func (l *lruList) remove(elem *lruElement) {
	elem.prev.next = elem.next
	elem.next.prev = elem.prev
}

func (l *lruList) back() *lruElement {
	if l.tail.prev == l.head {
		return nil
	}
	return l.tail.prev
}
