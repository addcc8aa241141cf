package redisub

import (
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"
)

// fakeTransport records every command the subscriber issues and lets
// tests inject server pushes and connection drops.
type fakeTransport struct {
	mu           sync.Mutex
	connected    bool
	failConnects int // fail the next N Connect calls

	connects  []string   // one host:port per Connect attempt
	pending   [][]string // buffered by Send, moved by Commit
	committed [][]string // flushed commands in wire order
	commits   int

	onDisconnect DisconnectHandler
	onReceive    ReceiveHandler
}

func (f *fakeTransport) Connect(host string, port int, onDisconnect DisconnectHandler, onReceive ReceiveHandler, _ time.Duration, _ *tls.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connects = append(f.connects, net.JoinHostPort(host, strconv.Itoa(port)))
	if f.failConnects > 0 {
		f.failConnects--
		return errors.New("connection refused")
	}
	f.connected = true
	f.onDisconnect = onDisconnect
	f.onReceive = onReceive
	return nil
}

func (f *fakeTransport) Send(args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := make([]string, len(args))
	copy(cmd, args)
	f.pending = append(f.pending, cmd)
	return nil
}

func (f *fakeTransport) Commit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	f.committed = append(f.committed, f.pending...)
	f.pending = nil
	f.commits++
	return nil
}

func (f *fakeTransport) Disconnect(bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// inject delivers a parsed reply the way the receive goroutine would.
func (f *fakeTransport) inject(reply Reply) {
	f.mu.Lock()
	onReceive := f.onReceive
	f.mu.Unlock()
	onReceive(reply)
}

// drop simulates an unexpected connection loss. It runs the
// subscriber's whole reconnect machinery before returning, exactly like
// the real receive goroutine would.
func (f *fakeTransport) drop() {
	f.mu.Lock()
	f.connected = false
	onDisconnect := f.onDisconnect
	f.mu.Unlock()
	onDisconnect()
}

func (f *fakeTransport) sentCommands() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.pending))
	copy(out, f.pending)
	return out
}

func (f *fakeTransport) committedCommands() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.committed))
	copy(out, f.committed)
	return out
}

func (f *fakeTransport) connectAttempts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.connects))
	copy(out, f.connects)
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = nil
	f.committed = nil
	f.commits = 0
	f.connects = nil
}
