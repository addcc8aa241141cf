package redisub

// Reply demultiplexing. Everything here runs on the transport's receive
// goroutine, one reply at a time. Handlers are always invoked after the
// relevant lock has been released: handlers are allowed to call back into
// Subscribe/Unsubscribe, and invoking them under a table lock would
// deadlock on re-entry.

// onReceive classifies a server push and routes it to the right handler.
//
// A subscriber connection only ever produces arrays, with one exception:
// replies to AUTH and CLIENT SETNAME, which are out-of-band scalars
// consumed by the armed one-shot slots. Anything that matches no rule is
// dropped; the server can legitimately interleave frames we do not model
// and resilience beats strictness here.
func (s *Subscriber) onReceive(reply Reply) {
	s.opts.Logger.Debug("received reply", "reply", reply.String())

	if !reply.IsArray() {
		s.dispatchOOB(reply)
		return
	}

	elems := reply.AsArray()
	switch {
	case len(elems) == 3 && elems[2].IsInteger():
		s.dispatchAck(elems)
	case len(elems) == 3 && elems[2].IsString():
		s.dispatchMessage(elems)
	case len(elems) == 4:
		s.dispatchPMessage(elems)
	case len(elems) == 2 && elems[0].IsString() && elems[1].IsString() &&
		elems[0].AsString() == "pong":
		s.dispatchPong(reply)
	default:
		s.opts.Logger.Debug("discarding unexpected reply", "size", len(elems))
	}
}

// dispatchOOB consumes a non-array reply with the armed one-shot slots,
// AUTH before CLIENT SETNAME. Both commands answer with scalars on the
// subscriber connection, so arrival order is the only way to tell them
// apart when both are armed.
func (s *Subscriber) dispatchOOB(reply Reply) {
	if cb := s.authReply.Swap(nil); cb != nil {
		s.opts.Logger.Debug("executing auth callback")
		(*cb)(reply)
		return
	}
	if cb := s.setNameReply.Swap(nil); cb != nil {
		s.opts.Logger.Debug("executing client setname callback")
		(*cb)(reply)
		return
	}
	s.opts.Logger.Debug("discarding out-of-band reply", "reply", reply.String())
}

// dispatchAck handles [subscribe|psubscribe, name, count] acknowledgements.
func (s *Subscriber) dispatchAck(elems []Reply) {
	title, name, count := elems[0], elems[1], elems[2]
	if !title.IsString() || !name.IsString() {
		return
	}

	var table *callbackTable
	switch title.AsString() {
	case "subscribe":
		table = s.registry.channels
	case "psubscribe":
		table = s.registry.patterns
	default:
		return
	}

	table.mu.Lock()
	holder, ok := table.lookupLocked(name.AsString())
	table.mu.Unlock()

	// A missing entry means the caller raced an unsubscribe; drop.
	if !ok || holder.onAck == nil {
		return
	}
	s.opts.Logger.Debug("executing acknowledgement callback", "name", name.AsString())
	holder.onAck(count.AsInteger())
}

// dispatchMessage handles [message, channel, payload].
func (s *Subscriber) dispatchMessage(elems []Reply) {
	title, channel, payload := elems[0], elems[1], elems[2]
	if !title.IsString() || !channel.IsString() || title.AsString() != "message" {
		return
	}

	s.registry.channels.mu.Lock()
	holder, ok := s.registry.channels.lookupLocked(channel.AsString())
	s.registry.channels.mu.Unlock()

	if !ok || holder.onMessage == nil {
		return
	}
	s.opts.Logger.Debug("executing message callback", "channel", channel.AsString())
	holder.onMessage(channel.AsString(), payload.AsString())
}

// dispatchPMessage handles [pmessage, pattern, channel, payload]. The
// handler receives the concrete channel, not the pattern it was looked
// up by.
func (s *Subscriber) dispatchPMessage(elems []Reply) {
	title, pattern, channel, payload := elems[0], elems[1], elems[2], elems[3]
	if !title.IsString() || !pattern.IsString() || !channel.IsString() || !payload.IsString() {
		return
	}
	if title.AsString() != "pmessage" {
		return
	}

	s.registry.patterns.mu.Lock()
	holder, ok := s.registry.patterns.lookupLocked(pattern.AsString())
	s.registry.patterns.mu.Unlock()

	if !ok || holder.onMessage == nil {
		return
	}
	s.opts.Logger.Debug("executing pattern message callback",
		"pattern", pattern.AsString(), "channel", channel.AsString())
	holder.onMessage(channel.AsString(), payload.AsString())
}

// dispatchPong pops the head of the ping FIFO and hands it the full
// reply. Pongs come back in the order the pings were sent, so FIFO
// pairing is exact on a stable connection.
func (s *Subscriber) dispatchPong(reply Reply) {
	var cb ReplyHandler
	s.pingMu.Lock()
	if len(s.pingQueue) > 0 {
		cb = s.pingQueue[0]
		s.pingQueue = s.pingQueue[1:]
	}
	s.pingMu.Unlock()

	// Empty queue means a stray pong; drop.
	if cb == nil {
		return
	}
	s.opts.Logger.Debug("executing ping callback")
	cb(reply)
}
