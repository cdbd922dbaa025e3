package cache

import "sync"

// Stats summarizes a Message Cache's entries by kind and status.
type Stats struct {
	ByKind   map[EntryKind]int
	ByStatus map[Status]int
	Total    int
}

// MessageCache is the per-session ordered sequence of Cache Entries. At most
// one entry is ACTIVE at a time.
type MessageCache struct {
	SessionID string
	FromTeam  string
	ToTeam    string

	mu      sync.Mutex
	entries []*Entry

	entrySubs map[int]chan *Entry
	nextSubID int
}

// NewMessageCache creates an empty cache for the given session and team pair.
func NewMessageCache(sessionID, fromTeam, toTeam string) *MessageCache {
	return &MessageCache{
		SessionID: sessionID,
		FromTeam:  fromTeam,
		ToTeam:    toTeam,
		entrySubs: make(map[int]chan *Entry),
	}
}

// CreateEntry appends a new entry, publishing it to every entries$
// subscriber, and returns it.
func (c *MessageCache) CreateEntry(kind EntryKind, tellString string) *Entry {
	e := NewEntry(kind, tellString)
	c.mu.Lock()
	c.entries = append(c.entries, e)
	for _, ch := range c.entrySubs {
		select {
		case ch <- e:
		default:
		}
	}
	c.mu.Unlock()
	return e
}

// GetActiveEntry returns the lone ACTIVE entry, if any.
func (c *MessageCache) GetActiveEntry() *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.entries) - 1; i >= 0; i-- {
		if c.entries[i].Status() == StatusActive {
			return c.entries[i]
		}
	}
	return nil
}

// Entries returns a copy of the ordered entry list.
func (c *MessageCache) Entries() []*Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Clear removes all entries, terminating any still-active one with
// MANUAL_TERMINATION. It does
// not close the entries$ stream — the cache remains usable afterward.
func (c *MessageCache) Clear() {
	c.mu.Lock()
	entries := c.entries
	c.entries = nil
	c.mu.Unlock()
	for _, e := range entries {
		if e.Status() == StatusActive {
			e.Terminate(ReasonManualTermination)
		}
	}
}

// GetStats returns counts by kind and status across all entries.
func (c *MessageCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := Stats{ByKind: make(map[EntryKind]int), ByStatus: make(map[Status]int)}
	for _, e := range c.entries {
		stats.ByKind[e.Kind]++
		stats.ByStatus[e.Status()]++
		stats.Total++
	}
	return stats
}

// SubscribeEntries returns a channel that replays existing entries and then
// streams every subsequently created one.
func (c *MessageCache) SubscribeEntries() <-chan *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan *Entry, len(c.entries)+8)
	for _, e := range c.entries {
		ch <- e
	}
	id := c.nextSubID
	c.nextSubID++
	c.entrySubs[id] = ch
	return ch
}

// Destroy completes any still-active entries and closes the entries$ stream.
func (c *MessageCache) Destroy() {
	c.mu.Lock()
	entries := c.entries
	subs := c.entrySubs
	c.entrySubs = make(map[int]chan *Entry)
	c.mu.Unlock()

	for _, e := range entries {
		if e.Status() == StatusActive {
			e.Complete()
		}
	}
	for _, ch := range subs {
		close(ch)
	}
}
