package redisub

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gonzalop/redisub/internal/resp"
)

// DisconnectHandler is invoked by a Transport when an established
// connection is lost for any reason other than an explicit Disconnect.
type DisconnectHandler func()

// ReceiveHandler is invoked by a Transport for each reply parsed off the
// wire. It runs on the transport's receive goroutine.
type ReceiveHandler func(reply Reply)

// Transport is the connection layer the subscriber drives. Commands
// passed to Send are buffered locally and hit the wire only on Commit,
// which is what lets the subscriber pipeline a batch of subscription
// commands into a single write.
//
// The default implementation speaks RESP over TCP or TLS; replace it
// with WithTransport for tests or tunnelled connections.
type Transport interface {
	// Connect establishes a session and starts delivering parsed
	// replies to onReceive until the connection is torn down.
	// onDisconnect fires only for unexpected drops.
	Connect(host string, port int, onDisconnect DisconnectHandler, onReceive ReceiveHandler, timeout time.Duration, tlsConfig *tls.Config) error

	// Send buffers one command for the next Commit.
	Send(args ...string) error

	// Commit flushes all buffered commands to the wire in the order
	// they were sent.
	Commit() error

	// Disconnect closes the session. With wait set it blocks until the
	// receive goroutine has drained.
	Disconnect(wait bool)

	// IsConnected reports whether a session is currently established.
	IsConnected() bool
}

// tcpTransport is the default RESP-over-TCP/TLS transport.
type tcpTransport struct {
	logger *slog.Logger

	mu      sync.Mutex // guards conn and pending
	conn    net.Conn
	pending []byte

	connected atomic.Bool
	closing   atomic.Bool
	wg        sync.WaitGroup
}

func newTCPTransport(logger *slog.Logger) *tcpTransport {
	return &tcpTransport{logger: logger}
}

func (t *tcpTransport) Connect(host string, port int, onDisconnect DisconnectHandler, onReceive ReceiveHandler, timeout time.Duration, tlsConfig *tls.Config) error {
	if t.connected.Load() {
		return ErrAlreadyConnected
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	t.logger.Debug("dialing server", "addr", addr, "tls", tlsConfig != nil)

	var conn net.Conn
	var err error
	if tlsConfig != nil {
		dialer := &tls.Dialer{
			NetDialer: &net.Dialer{Timeout: timeout},
			Config:    tlsConfig,
		}
		conn, err = dialer.Dial("tcp", addr)
	} else {
		conn, err = net.DialTimeout("tcp", addr, timeout)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.pending = nil
	t.mu.Unlock()

	t.closing.Store(false)
	t.connected.Store(true)

	t.wg.Add(1)
	go t.readLoop(conn, onDisconnect, onReceive)

	t.logger.Debug("connection established", "addr", addr)
	return nil
}

// readLoop parses replies off the wire until the connection fails, then
// reports the drop unless it was requested through Disconnect.
func (t *tcpTransport) readLoop(conn net.Conn, onDisconnect DisconnectHandler, onReceive ReceiveHandler) {
	defer t.wg.Done()

	br := bufio.NewReader(conn)
	for {
		reply, err := resp.Read(br)
		if err != nil {
			t.logger.Debug("read error, closing connection", "error", err)
			break
		}
		if onReceive != nil {
			onReceive(fromWire(reply))
		}
	}

	t.connected.Store(false)
	conn.Close()

	if !t.closing.Load() && onDisconnect != nil {
		onDisconnect()
	}
}

func (t *tcpTransport) Send(args ...string) error {
	if len(args) == 0 {
		return nil
	}
	t.mu.Lock()
	t.pending = resp.AppendCommand(t.pending, args...)
	t.mu.Unlock()
	return nil
}

func (t *tcpTransport) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.pending) == 0 {
		return nil
	}
	if t.conn == nil || !t.connected.Load() {
		return ErrNotConnected
	}

	if _, err := t.conn.Write(t.pending); err != nil {
		return fmt.Errorf("failed to flush commands: %w", err)
	}
	t.pending = nil
	return nil
}

func (t *tcpTransport) Disconnect(wait bool) {
	t.closing.Store(true)
	t.connected.Store(false)

	t.mu.Lock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.pending = nil
	t.mu.Unlock()

	if wait {
		t.wg.Wait()
	}
}

func (t *tcpTransport) IsConnected() bool {
	return t.connected.Load()
}

// fromWire converts a parsed RESP reply into the public variant.
func fromWire(r resp.Reply) Reply {
	switch r.Type {
	case resp.SimpleString, resp.BulkString:
		return StringReply(r.Str)
	case resp.Error:
		return ErrorReply(r.Str)
	case resp.Integer:
		return IntegerReply(r.Int)
	case resp.Array:
		elems := make([]Reply, len(r.Elems))
		for i, e := range r.Elems {
			elems[i] = fromWire(e)
		}
		return ArrayReply(elems...)
	default:
		return NilReply()
	}
}
