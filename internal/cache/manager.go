package cache

import "sync"

// Manager keeps a sessionId -> MessageCache table and manages its lifecycle,
// grounded on the teacher's handler/store split (internal/orchestrator/acp)
// generalized from a single task-keyed buffer to a session-keyed table.
type Manager struct {
	mu     sync.Mutex
	caches map[string]*MessageCache
}

// NewManager creates an empty Cache Manager.
func NewManager() *Manager {
	return &Manager{caches: make(map[string]*MessageCache)}
}

// GetOrCreateCache returns the existing cache for sessionID, or creates one
// for the given team pair.
func (m *Manager) GetOrCreateCache(sessionID, fromTeam, toTeam string) *MessageCache {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.caches[sessionID]; ok {
		return c
	}
	c := NewMessageCache(sessionID, fromTeam, toTeam)
	m.caches[sessionID] = c
	return c
}

// GetCache returns the cache for sessionID, if any.
func (m *Manager) GetCache(sessionID string) (*MessageCache, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.caches[sessionID]
	return c, ok
}

// DeleteCache destroys and removes the cache for sessionID.
func (m *Manager) DeleteCache(sessionID string) {
	m.mu.Lock()
	c, ok := m.caches[sessionID]
	delete(m.caches, sessionID)
	m.mu.Unlock()
	if ok {
		c.Destroy()
	}
}

// DestroyAll destroys every managed cache.
func (m *Manager) DestroyAll() {
	m.mu.Lock()
	caches := m.caches
	m.caches = make(map[string]*MessageCache)
	m.mu.Unlock()
	for _, c := range caches {
		c.Destroy()
	}
}
