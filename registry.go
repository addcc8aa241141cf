package redisub

import "sync"

// callbackHolder pairs the handlers registered for one channel or pattern.
type callbackHolder struct {
	onMessage MessageHandler
	onAck     AckHandler // optional
}

// callbackTable is one keyed handler table of the subscription registry.
//
// The mutex doubles as the fence the reconnect loop holds to block caller
// mutations while the subscription set is replayed; the *Locked variants
// exist for that window.
type callbackTable struct {
	mu      sync.Mutex
	entries map[string]callbackHolder
}

func newCallbackTable() *callbackTable {
	return &callbackTable{entries: make(map[string]callbackHolder)}
}

func (t *callbackTable) insertLocked(name string, h callbackHolder) {
	t.entries[name] = h
}

func (t *callbackTable) removeLocked(name string) bool {
	if _, ok := t.entries[name]; !ok {
		return false
	}
	delete(t.entries, name)
	return true
}

func (t *callbackTable) lookupLocked(name string) (callbackHolder, bool) {
	h, ok := t.entries[name]
	return h, ok
}

// registry holds the channel and pattern subscription tables.
//
// Lock ordering: when both tables are locked, the channel lock is
// acquired before the pattern lock. Only the reconnect path takes both.
type registry struct {
	channels *callbackTable
	patterns *callbackTable
}

func newRegistry() *registry {
	return &registry{
		channels: newCallbackTable(),
		patterns: newCallbackTable(),
	}
}

// drainLocked empties both tables and returns their prior contents.
// Both table locks must be held.
func (r *registry) drainLocked() (channels, patterns map[string]callbackHolder) {
	channels = r.channels.entries
	patterns = r.patterns.entries
	r.channels.entries = make(map[string]callbackHolder)
	r.patterns.entries = make(map[string]callbackHolder)
	return channels, patterns
}

// clearLocked empties both tables. Both table locks must be held.
func (r *registry) clearLocked() {
	r.channels.entries = make(map[string]callbackHolder)
	r.patterns.entries = make(map[string]callbackHolder)
}
