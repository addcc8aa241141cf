package redisub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryInsertRemoveLookup(t *testing.T) {
	r := newRegistry()

	r.channels.mu.Lock()
	r.channels.insertLocked("news", callbackHolder{onMessage: func(string, string) {}})
	_, ok := r.channels.lookupLocked("news")
	assert.True(t, ok)
	_, ok = r.channels.lookupLocked("other")
	assert.False(t, ok)

	assert.True(t, r.channels.removeLocked("news"))
	assert.False(t, r.channels.removeLocked("news"))
	r.channels.mu.Unlock()
}

func TestRegistryTablesAreIndependent(t *testing.T) {
	r := newRegistry()

	r.channels.mu.Lock()
	r.channels.insertLocked("name", callbackHolder{})
	r.channels.mu.Unlock()

	r.patterns.mu.Lock()
	_, ok := r.patterns.lookupLocked("name")
	r.patterns.mu.Unlock()
	assert.False(t, ok)
}

func TestRegistryDrain(t *testing.T) {
	r := newRegistry()

	r.channels.mu.Lock()
	r.patterns.mu.Lock()
	r.channels.insertLocked("a", callbackHolder{})
	r.channels.insertLocked("b", callbackHolder{})
	r.patterns.insertLocked("p.*", callbackHolder{})

	channels, patterns := r.drainLocked()
	require.Len(t, channels, 2)
	require.Len(t, patterns, 1)
	assert.Contains(t, channels, "a")
	assert.Contains(t, channels, "b")
	assert.Contains(t, patterns, "p.*")

	// The tables are empty after the drain.
	_, ok := r.channels.lookupLocked("a")
	assert.False(t, ok)
	_, ok = r.patterns.lookupLocked("p.*")
	assert.False(t, ok)
	r.patterns.mu.Unlock()
	r.channels.mu.Unlock()
}

func TestRegistryClear(t *testing.T) {
	r := newRegistry()

	r.channels.mu.Lock()
	r.patterns.mu.Lock()
	r.channels.insertLocked("a", callbackHolder{})
	r.patterns.insertLocked("p.*", callbackHolder{})
	r.clearLocked()

	_, ok := r.channels.lookupLocked("a")
	assert.False(t, ok)
	_, ok = r.patterns.lookupLocked("p.*")
	assert.False(t, ok)
	r.patterns.mu.Unlock()
	r.channels.mu.Unlock()
}
