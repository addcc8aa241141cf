package redisub

import (
	"crypto/tls"
	"io"
	"log/slog"
	"time"
)

// ConnectState describes a transition of the subscriber connection,
// reported through the handler installed with WithConnectionStateHandler.
type ConnectState int

const (
	// ConnectStart is emitted before a connection attempt begins.
	ConnectStart ConnectState = iota
	// ConnectOK is emitted after a connection attempt succeeds.
	ConnectOK
	// ConnectDropped is emitted when an established connection is lost.
	ConnectDropped
	// ConnectSleeping is emitted before the wait between reconnection
	// attempts.
	ConnectSleeping
	// ConnectFailed is emitted when a reconnection attempt fails.
	ConnectFailed
	// ConnectLookupFailed is emitted when the sentinel lookup preceding
	// a reconnection attempt fails.
	ConnectLookupFailed
	// ConnectStopped is emitted when the subscriber gives up
	// reconnecting; all subscriptions have been discarded.
	ConnectStopped
)

var connectStateNames = map[ConnectState]string{
	ConnectStart:        "start",
	ConnectOK:           "ok",
	ConnectDropped:      "dropped",
	ConnectSleeping:     "sleeping",
	ConnectFailed:       "failed",
	ConnectLookupFailed: "lookup_failed",
	ConnectStopped:      "stopped",
}

func (s ConnectState) String() string {
	if name, ok := connectStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// ConnectHandler receives connection state transitions together with the
// address the transition applies to. It runs on whichever goroutine
// drives the state change, so it must not block for long.
type ConnectHandler func(host string, port int, state ConnectState)

// MessageHandler is called for each message received on a subscribed
// channel or matching pattern. For pattern subscriptions channel is the
// concrete channel the message was published to, not the pattern.
type MessageHandler func(channel, message string)

// AckHandler is called with the server's post-change subscription count
// when a subscribe or psubscribe is acknowledged.
type AckHandler func(count int64)

// ReplyHandler is called with the raw server reply to AUTH, CLIENT
// SETNAME and PING commands.
type ReplyHandler func(reply Reply)

// subscriberOptions holds configuration for the subscriber.
type subscriberOptions struct {
	// Connection timeout for the initial connect and each reconnection
	// attempt.
	ConnectTimeout time.Duration

	// Maximum number of reconnection attempts after a drop.
	// 0 disables reconnection, -1 retries forever.
	MaxReconnects int

	// Wait between reconnection attempts. 0 retries immediately.
	ReconnectInterval time.Duration

	// TLS configuration (optional). When set, connections to the server
	// and to sentinels are encrypted.
	TLSConfig *tls.Config

	// Connection state handler (optional).
	OnConnectionState ConnectHandler

	// Logger for subscriber events (optional, defaults to discarding logs).
	Logger *slog.Logger

	// Transport overrides the default TCP/TLS transport (optional).
	Transport Transport
}

// Option is a functional option for configuring the subscriber.
type Option func(*subscriberOptions)

// WithConnectTimeout sets the connection timeout used for the initial
// connect and for each reconnection attempt (default: 30s).
func WithConnectTimeout(d time.Duration) Option {
	return func(o *subscriberOptions) {
		o.ConnectTimeout = d
	}
}

// WithMaxReconnects sets how many reconnection attempts are made after
// the connection drops before the subscriber gives up and discards its
// subscriptions. 0 (the default) disables reconnection, -1 retries
// forever.
func WithMaxReconnects(n int) Option {
	return func(o *subscriberOptions) {
		o.MaxReconnects = n
	}
}

// WithReconnectInterval sets the wait between reconnection attempts
// (default: 0, retry immediately).
func WithReconnectInterval(d time.Duration) Option {
	return func(o *subscriberOptions) {
		o.ReconnectInterval = d
	}
}

// WithTLS sets the TLS configuration for encrypted connections.
// Pass a *tls.Config to enable TLS for the server connection and for
// sentinel lookups made on the subscriber's behalf.
func WithTLS(config *tls.Config) Option {
	return func(o *subscriberOptions) {
		o.TLSConfig = config
	}
}

// WithConnectionStateHandler installs a handler for connection state
// transitions (connected, dropped, reconnecting, gave up). See
// ConnectState for the possible transitions.
func WithConnectionStateHandler(h ConnectHandler) Option {
	return func(o *subscriberOptions) {
		o.OnConnectionState = h
	}
}

// WithLogger sets the logger for subscriber events. By default all logs
// are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(o *subscriberOptions) {
		o.Logger = logger
	}
}

// WithTransport replaces the default TCP/TLS transport. Mostly useful
// for tests and for tunnelled connections.
func WithTransport(t Transport) Option {
	return func(o *subscriberOptions) {
		o.Transport = t
	}
}

// defaultOptions returns the default subscriber options.
func defaultOptions() *subscriberOptions {
	return &subscriberOptions{
		ConnectTimeout:    30 * time.Second,
		MaxReconnects:     0,
		ReconnectInterval: 0,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}
