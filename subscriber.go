package redisub

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Subscriber is a resilient pub/sub client for a Redis-compatible
// server. It owns a single long-lived connection dedicated to
// subscription traffic, routes server pushes to per-channel and
// per-pattern handlers, and transparently rebuilds its subscription
// state on a fresh connection when the server drops it.
//
// All command methods are pipelined: they buffer the command and return
// immediately, and nothing hits the wire until Commit is called.
// Handlers are invoked on the transport's receive goroutine, one reply
// at a time; they may call back into Subscribe/Unsubscribe but should
// not block for long.
//
// Example:
//
//	sub := redisub.New(redisub.WithMaxReconnects(-1),
//	    redisub.WithReconnectInterval(time.Second))
//	if err := sub.Connect("localhost", 6379); err != nil {
//	    log.Fatal(err)
//	}
//	defer sub.Disconnect(true)
//
//	sub.Subscribe("news", func(channel, message string) {
//	    fmt.Printf("%s: %s\n", channel, message)
//	}, nil)
//	if err := sub.Commit(); err != nil {
//	    log.Fatal(err)
//	}
type Subscriber struct {
	opts      *subscriberOptions
	transport Transport
	sentinel  *Sentinel

	registry *registry

	// Ping FIFO. Pongs come back in request order, so the queue head
	// always pairs with the next pong. The mutex also fences new pings
	// out of the reconnect window.
	pingMu    sync.Mutex
	pingQueue []ReplyHandler

	// One-shot reply slots for AUTH and CLIENT SETNAME, armed by the
	// caller and consumed exactly once by the dispatcher.
	authReply    atomic.Pointer[ReplyHandler]
	setNameReply atomic.Pointer[ReplyHandler]

	// Connection descriptor, written at Connect time and by the
	// reconnect loop only. Cached so a reconnect can replay the
	// authentication and naming handshake.
	host       string
	port       int
	masterName string
	password   string
	clientName string

	reconnecting atomic.Bool
	cancel       atomic.Bool
	// closed is set by Disconnect and cleared by Connect. It stops the
	// reconnection loop, so an explicit disconnect cannot be undone by
	// an in-flight reconnect reviving the connection.
	closed   atomic.Bool
	attempts int

	// Tracks synthetic-failure deliveries so Disconnect(true) can
	// drain them before returning.
	wg sync.WaitGroup
}

// New creates a subscriber. It does not connect; call Connect or
// ConnectMaster next.
func New(opts ...Option) *Subscriber {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	options.Logger = options.Logger.With("lib", "redisub")

	s := &Subscriber{
		opts:     options,
		registry: newRegistry(),
	}
	s.sentinel = NewSentinel(options.Logger)
	s.transport = options.Transport
	if s.transport == nil {
		s.transport = newTCPTransport(options.Logger)
	}
	return s
}

// Connect opens the subscription connection. It blocks until the
// transport handshake completes and reports ConnectStart before dialing
// and ConnectOK after.
func (s *Subscriber) Connect(host string, port int) error {
	s.host, s.port = host, port
	s.closed.Store(false)

	s.opts.Logger.Debug("connecting", "host", host, "port", port)
	s.notify(ConnectStart)

	err := s.transport.Connect(host, port, s.handleDisconnect, s.onReceive,
		s.opts.ConnectTimeout, s.opts.TLSConfig)
	if err != nil {
		return err
	}

	s.notify(ConnectOK)
	s.opts.Logger.Info("connected", "host", host, "port", port)
	return nil
}

// ConnectMaster resolves the current master of the named replica set
// through the configured sentinels and connects to it. The master name
// is remembered: every later reconnect re-resolves the master, so the
// subscriber follows failovers.
func (s *Subscriber) ConnectMaster(name string) error {
	s.masterName = name

	if len(s.sentinel.Endpoints()) == 0 {
		return ErrNoSentinels
	}
	host, port, ok := s.sentinel.MasterAddrByName(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrMasterNotFound, name)
	}
	return s.Connect(host, port)
}

// Auth buffers an AUTH command and arms cb as its one-shot reply
// handler. The password is cached and replayed automatically after a
// reconnect, before any subscriptions are re-established.
func (s *Subscriber) Auth(password string, cb ReplyHandler) error {
	s.opts.Logger.Debug("sending AUTH")

	s.password = password
	s.arm(&s.authReply, cb)

	return s.transport.Send("AUTH", password)
}

// ClientSetName buffers a CLIENT SETNAME command and arms cb as its
// one-shot reply handler. The name is cached and replayed after a
// reconnect: the server only accepts CLIENT SETNAME between AUTH and
// the first SUBSCRIBE, a window the application layer never sees, so
// the subscriber has to own the replay.
func (s *Subscriber) ClientSetName(name string, cb ReplyHandler) error {
	s.opts.Logger.Debug("sending CLIENT SETNAME", "name", name)

	s.clientName = name
	s.arm(&s.setNameReply, cb)

	return s.transport.Send("CLIENT", "SETNAME", name)
}

// arm stores cb into a one-shot slot, or disarms the slot when cb is nil.
func (s *Subscriber) arm(slot *atomic.Pointer[ReplyHandler], cb ReplyHandler) {
	if cb == nil {
		slot.Store(nil)
		return
	}
	slot.Store(&cb)
}

// Subscribe registers handler for a channel and buffers the SUBSCRIBE
// command. ack, if non-nil, is invoked with the server's subscription
// count when the subscribe is acknowledged. Subscribing twice to the
// same channel replaces the previous handlers.
func (s *Subscriber) Subscribe(channel string, handler MessageHandler, ack AckHandler) error {
	t := s.registry.channels
	t.mu.Lock()
	defer t.mu.Unlock()

	s.opts.Logger.Debug("subscribing", "channel", channel)
	return s.subscribeLocked(channel, handler, ack)
}

func (s *Subscriber) subscribeLocked(channel string, handler MessageHandler, ack AckHandler) error {
	s.registry.channels.insertLocked(channel, callbackHolder{onMessage: handler, onAck: ack})
	return s.transport.Send("SUBSCRIBE", channel)
}

// PSubscribe registers handler for a glob-style channel pattern and
// buffers the PSUBSCRIBE command.
func (s *Subscriber) PSubscribe(pattern string, handler MessageHandler, ack AckHandler) error {
	t := s.registry.patterns
	t.mu.Lock()
	defer t.mu.Unlock()

	s.opts.Logger.Debug("psubscribing", "pattern", pattern)
	return s.psubscribeLocked(pattern, handler, ack)
}

func (s *Subscriber) psubscribeLocked(pattern string, handler MessageHandler, ack AckHandler) error {
	s.registry.patterns.insertLocked(pattern, callbackHolder{onMessage: handler, onAck: ack})
	return s.transport.Send("PSUBSCRIBE", pattern)
}

// Unsubscribe removes the channel registration and buffers the
// UNSUBSCRIBE command. Unknown channels are a no-op: nothing is sent.
func (s *Subscriber) Unsubscribe(channel string) error {
	t := s.registry.channels
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.lookupLocked(channel); !ok {
		s.opts.Logger.Debug("not subscribed", "channel", channel)
		return nil
	}

	s.opts.Logger.Debug("unsubscribing", "channel", channel)
	err := s.transport.Send("UNSUBSCRIBE", channel)
	t.removeLocked(channel)
	return err
}

// PUnsubscribe removes the pattern registration and buffers the
// PUNSUBSCRIBE command. Unknown patterns are a no-op.
func (s *Subscriber) PUnsubscribe(pattern string) error {
	t := s.registry.patterns
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.lookupLocked(pattern); !ok {
		s.opts.Logger.Debug("not psubscribed", "pattern", pattern)
		return nil
	}

	s.opts.Logger.Debug("punsubscribing", "pattern", pattern)
	err := s.transport.Send("PUNSUBSCRIBE", pattern)
	t.removeLocked(pattern)
	return err
}

// Ping buffers a PING command (with message as its argument when
// non-empty) and queues cb for the matching pong. The queue push and
// the send are one atomic step with respect to other pings, which is
// what keeps pong pairing exact.
//
// If the connection is torn down before the pong arrives, cb receives
// an error reply carrying "network failure".
func (s *Subscriber) Ping(message string, cb ReplyHandler) error {
	s.pingMu.Lock()
	defer s.pingMu.Unlock()

	s.opts.Logger.Debug("sending PING", "message", message)

	var err error
	if message == "" {
		err = s.transport.Send("PING")
	} else {
		err = s.transport.Send("PING", message)
	}
	if err != nil {
		return err
	}

	s.pingQueue = append(s.pingQueue, cb)
	return nil
}

// Commit flushes all buffered commands to the wire in the order they
// were issued.
func (s *Subscriber) Commit() error {
	s.opts.Logger.Debug("committing pipelined commands")
	return s.transport.Commit()
}

// Disconnect closes the connection and synthetically fails every ping
// still waiting for a pong. A reconnection loop that is running stops
// at its next iteration boundary and discards the subscriptions. With
// wait set Disconnect blocks until the receive goroutine and the
// in-flight failure callbacks have drained.
func (s *Subscriber) Disconnect(wait bool) {
	s.opts.Logger.Debug("disconnecting")
	s.closed.Store(true)
	s.transport.Disconnect(wait)

	s.pingMu.Lock()
	pending := s.pingQueue
	s.pingQueue = nil
	s.pingMu.Unlock()
	s.deliverPingFailures(pending)

	if wait {
		s.wg.Wait()
	}
	s.opts.Logger.Info("disconnected")
}

// CancelReconnect stops the reconnection loop at its next iteration
// boundary; an in-progress transport connect is not interrupted. The
// flag is sticky: a cancelled subscriber will not reconnect again.
func (s *Subscriber) CancelReconnect() {
	s.cancel.Store(true)
}

// IsConnected reports whether the subscription connection is established.
func (s *Subscriber) IsConnected() bool {
	return s.transport.IsConnected()
}

// IsReconnecting reports whether the reconnection loop is running.
func (s *Subscriber) IsReconnecting() bool {
	return s.reconnecting.Load()
}

// AddSentinel registers a sentinel endpoint for master lookups, using
// the subscriber's connect timeout and TLS configuration.
func (s *Subscriber) AddSentinel(host string, port int) {
	s.sentinel.Add(host, port, s.opts.ConnectTimeout, s.opts.TLSConfig)
}

// ClearSentinels removes all registered sentinel endpoints.
func (s *Subscriber) ClearSentinels() {
	s.sentinel.Clear()
}

// Sentinel returns the sentinel client used for master lookups.
func (s *Subscriber) Sentinel() *Sentinel {
	return s.sentinel
}

// notify reports a connection state transition to the caller's handler.
func (s *Subscriber) notify(state ConnectState) {
	if s.opts.OnConnectionState != nil {
		s.opts.OnConnectionState(s.host, s.port, state)
	}
}

// deliverPingFailures invokes the queued ping callbacks with a synthetic
// network-failure reply. Delivery happens on a tracked goroutine so no
// core lock is held when user code runs.
func (s *Subscriber) deliverPingFailures(pending []ReplyHandler) {
	if len(pending) == 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		reply := networkFailureReply()
		for _, cb := range pending {
			if cb != nil {
				cb(reply)
			}
		}
	}()
}

// handleDisconnect is the transport's disconnect handler and runs the
// whole reconnection state machine on the receive goroutine of the
// connection that just died.
func (s *Subscriber) handleDisconnect() {
	// A second drop while the loop is running is a no-op.
	if s.reconnecting.Swap(true) {
		return
	}
	s.attempts = 0

	s.opts.Logger.Warn("connection dropped", "host", s.host, "port", s.port)
	s.notify(ConnectDropped)

	// Fence: hold the ping lock and both table locks across the loop so
	// caller-issued commands stall until the replay has committed. The
	// pending pings can never be answered on the dead connection; move
	// them out and fail them off-thread.
	s.pingMu.Lock()
	pending := s.pingQueue
	s.pingQueue = nil
	s.deliverPingFailures(pending)

	s.registry.channels.mu.Lock()
	s.registry.patterns.mu.Lock()

	for s.shouldReconnect() {
		s.sleepBeforeRetry()
		// Re-check after the wait: a Disconnect or CancelReconnect
		// issued while sleeping must not produce another dial.
		if !s.shouldReconnect() {
			break
		}
		s.reconnect()
	}

	if !s.transport.IsConnected() {
		s.opts.Logger.Warn("giving up reconnecting", "attempts", s.attempts)
		s.registry.clearLocked()
		s.notify(ConnectStopped)
	}

	s.reconnecting.Store(false)
	s.registry.patterns.mu.Unlock()
	s.registry.channels.mu.Unlock()
	s.pingMu.Unlock()
}

// shouldReconnect gates each loop iteration: stop once connected,
// cancelled, explicitly disconnected, or out of attempts. MaxReconnects
// of -1 means unlimited.
func (s *Subscriber) shouldReconnect() bool {
	return !s.transport.IsConnected() &&
		!s.cancel.Load() &&
		!s.closed.Load() &&
		(s.opts.MaxReconnects == -1 || s.attempts < s.opts.MaxReconnects)
}

func (s *Subscriber) sleepBeforeRetry() {
	if s.opts.ReconnectInterval <= 0 {
		return
	}
	s.notify(ConnectSleeping)
	time.Sleep(s.opts.ReconnectInterval)
}

// reconnect runs one reconnection attempt: refresh the master address
// when sentinel-driven, re-establish the transport, then replay the
// handshake and the subscription set in the order the server demands.
func (s *Subscriber) reconnect() {
	s.attempts++

	// Never reuse a cached master address across reconnects; the master
	// may have moved since the connection dropped.
	if s.masterName != "" {
		host, port, ok := s.sentinel.MasterAddrByName(s.masterName)
		if !ok {
			s.opts.Logger.Warn("sentinel lookup failed", "master", s.masterName)
			s.notify(ConnectLookupFailed)
			return
		}
		s.host, s.port = host, port
	}

	s.notify(ConnectStart)
	err := s.transport.Connect(s.host, s.port, s.handleDisconnect, s.onReceive,
		s.opts.ConnectTimeout, s.opts.TLSConfig)
	if err != nil {
		s.opts.Logger.Debug("reconnection attempt failed",
			"attempt", s.attempts, "error", err)
		s.notify(ConnectFailed)
		return
	}
	s.notify(ConnectOK)
	s.opts.Logger.Info("reconnected", "host", s.host, "port", s.port)

	s.reAuth()
	// The server only accepts CLIENT SETNAME between AUTH and the first
	// SUBSCRIBE, so the naming replay has to sit exactly here.
	s.reClientSetName()
	s.reSubscribe()

	if err := s.Commit(); err != nil {
		s.opts.Logger.Warn("failed to commit replayed commands", "error", err)
	}
}

func (s *Subscriber) reAuth() {
	if s.password == "" {
		return
	}

	err := s.Auth(s.password, func(reply Reply) {
		if reply.IsString() && reply.AsString() == "OK" {
			s.opts.Logger.Info("re-authenticated")
		} else {
			s.opts.Logger.Warn("re-authentication failed", "reply", reply.String())
		}
	})
	if err != nil {
		s.opts.Logger.Warn("could not replay AUTH", "error", err)
	}
}

func (s *Subscriber) reClientSetName() {
	if s.clientName == "" {
		return
	}

	err := s.ClientSetName(s.clientName, func(reply Reply) {
		if reply.IsString() && reply.AsString() == "OK" {
			s.opts.Logger.Info("re-sent client name")
		} else {
			s.opts.Logger.Warn("replaying client name failed", "reply", reply.String())
		}
	})
	if err != nil {
		s.opts.Logger.Warn("could not replay CLIENT SETNAME", "error", err)
	}
}

// reSubscribe replays the whole subscription set on the new connection.
// Draining and re-inserting under the held fence guarantees the on-wire
// set equals the registry when the replay commits.
func (s *Subscriber) reSubscribe() {
	channels, patterns := s.registry.drainLocked()

	for channel, holder := range channels {
		if err := s.subscribeLocked(channel, holder.onMessage, holder.onAck); err != nil {
			s.opts.Logger.Warn("could not replay SUBSCRIBE", "channel", channel, "error", err)
		}
	}
	for pattern, holder := range patterns {
		if err := s.psubscribeLocked(pattern, holder.onMessage, holder.onAck); err != nil {
			s.opts.Logger.Warn("could not replay PSUBSCRIBE", "pattern", pattern, "error", err)
		}
	}
}
