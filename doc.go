// Package redisub provides a resilient, pipelined pub/sub client for
// Redis-compatible servers.
//
// The library owns a single long-lived connection dedicated to
// subscription traffic and exposes an asynchronous callback surface:
// register interest in channels and glob patterns, issue maintenance
// commands (AUTH, CLIENT SETNAME, PING) and receive messages through
// per-channel handlers. When the connection drops, the subscriber
// transparently replays authentication, client naming and the full
// subscription set on a freshly established connection, optionally
// resolving the server through Redis Sentinel first.
//
// # Features
//
//   - Channel (SUBSCRIBE) and glob pattern (PSUBSCRIBE) subscriptions
//   - Command pipelining: buffered sends, flushed by Commit
//   - Automatic reconnection with configurable attempt count and interval
//   - Sentinel-mediated master resolution, refreshed on every reconnect
//   - AUTH and CLIENT SETNAME replayed in the server-mandated order
//   - Pipelined PING with FIFO-paired pong callbacks
//   - TLS/SSL encrypted connections
//   - Clean, idiomatic Go API with functional options
//   - Zero third-party dependencies (main library)
//
// # Quick Start
//
// Connect, subscribe and receive:
//
//	sub := redisub.New()
//	if err := sub.Connect("localhost", 6379); err != nil {
//	    log.Fatal(err)
//	}
//	defer sub.Disconnect(true)
//
//	sub.Subscribe("news", func(channel, message string) {
//	    fmt.Printf("%s: %s\n", channel, message)
//	}, func(count int64) {
//	    fmt.Printf("subscribed (%d active)\n", count)
//	})
//	if err := sub.Commit(); err != nil {
//	    log.Fatal(err)
//	}
//
// Pattern subscriptions work the same way through PSubscribe; the
// handler receives the concrete channel a message was published to.
//
// # Reconnection
//
// Reconnection is configured at construction time:
//
//	sub := redisub.New(
//	    redisub.WithMaxReconnects(-1),             // retry forever
//	    redisub.WithReconnectInterval(time.Second),
//	    redisub.WithConnectionStateHandler(func(host string, port int, st redisub.ConnectState) {
//	        log.Printf("%s:%d %s", host, port, st)
//	    }))
//
// While the loop runs, caller-issued subscription commands block; once
// the connection is re-established the subscriber replays AUTH, CLIENT
// SETNAME and every SUBSCRIBE/PSUBSCRIBE before releasing them. If the
// loop gives up, all subscriptions are discarded and the state handler
// receives ConnectStopped.
//
// # Sentinel
//
// With sentinels registered, ConnectMaster resolves the master of a
// named replica set and the reconnect loop re-resolves it on every
// attempt, so the subscriber follows failovers:
//
//	sub.AddSentinel("sentinel-1", 26379)
//	sub.AddSentinel("sentinel-2", 26379)
//	if err := sub.ConnectMaster("mymaster"); err != nil {
//	    log.Fatal(err)
//	}
//
// # Delivery semantics
//
// The broker has no replay: messages published while the subscriber is
// reconnecting are lost. Handlers run on the transport's receive
// goroutine, one reply at a time, and may call back into the subscriber;
// they should not block for long.
package redisub
