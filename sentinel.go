package redisub

import (
	"bufio"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gonzalop/redisub/internal/resp"
)

// Sentinel resolves the current master of a named replica set by asking
// a list of Redis Sentinel endpoints in order. Lookups use short-lived
// connections, so a sentinel that is down only costs one timeout and
// never wedges the subscriber.
type Sentinel struct {
	logger *slog.Logger

	mu        sync.Mutex
	endpoints []sentinelEndpoint
}

type sentinelEndpoint struct {
	host      string
	port      int
	timeout   time.Duration
	tlsConfig *tls.Config
}

// NewSentinel creates a sentinel client. A nil logger discards logs.
func NewSentinel(logger *slog.Logger) *Sentinel {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sentinel{logger: logger}
}

// Add registers a sentinel endpoint. Endpoints are consulted in the
// order they were added.
func (s *Sentinel) Add(host string, port int, timeout time.Duration, tlsConfig *tls.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints = append(s.endpoints, sentinelEndpoint{
		host:      host,
		port:      port,
		timeout:   timeout,
		tlsConfig: tlsConfig,
	})
}

// Clear removes all registered endpoints.
func (s *Sentinel) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints = nil
}

// Endpoints returns the registered endpoints as host:port strings.
func (s *Sentinel) Endpoints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]string, len(s.endpoints))
	for i, ep := range s.endpoints {
		addrs[i] = net.JoinHostPort(ep.host, strconv.Itoa(ep.port))
	}
	return addrs
}

// MasterAddrByName asks each configured sentinel for the address of the
// master known under name. The first sentinel that answers wins;
// sentinels that are unreachable or do not know the master are skipped.
// ok is false when no sentinel could name a master.
func (s *Sentinel) MasterAddrByName(name string) (host string, port int, ok bool) {
	s.mu.Lock()
	endpoints := make([]sentinelEndpoint, len(s.endpoints))
	copy(endpoints, s.endpoints)
	s.mu.Unlock()

	if len(endpoints) == 0 {
		s.logger.Warn("master lookup with no sentinels configured", "master", name)
		return "", 0, false
	}

	for _, ep := range endpoints {
		host, port, err := ep.masterAddr(name)
		if err != nil {
			s.logger.Debug("sentinel lookup failed",
				"sentinel", net.JoinHostPort(ep.host, strconv.Itoa(ep.port)),
				"master", name, "error", err)
			continue
		}
		s.logger.Debug("sentinel resolved master",
			"master", name, "host", host, "port", port)
		return host, port, true
	}
	return "", 0, false
}

// masterAddr performs one SENTINEL get-master-addr-by-name round trip.
func (ep sentinelEndpoint) masterAddr(name string) (string, int, error) {
	addr := net.JoinHostPort(ep.host, strconv.Itoa(ep.port))

	var conn net.Conn
	var err error
	if ep.tlsConfig != nil {
		dialer := &tls.Dialer{
			NetDialer: &net.Dialer{Timeout: ep.timeout},
			Config:    ep.tlsConfig,
		}
		conn, err = dialer.Dial("tcp", addr)
	} else {
		conn, err = net.DialTimeout("tcp", addr, ep.timeout)
	}
	if err != nil {
		return "", 0, err
	}
	defer conn.Close()

	if ep.timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(ep.timeout)); err != nil {
			return "", 0, err
		}
	}

	cmd := resp.AppendCommand(nil, "SENTINEL", "get-master-addr-by-name", name)
	if _, err := conn.Write(cmd); err != nil {
		return "", 0, err
	}

	reply, err := resp.Read(bufio.NewReader(conn))
	if err != nil {
		return "", 0, err
	}
	// A sentinel that does not know the master answers with a null
	// array; anything but [host, port] is treated as unknown.
	if reply.Type != resp.Array || len(reply.Elems) != 2 {
		return "", 0, ErrMasterNotFound
	}

	host := reply.Elems[0].Str
	port, err := strconv.Atoi(reply.Elems[1].Str)
	if err != nil {
		return "", 0, ErrMasterNotFound
	}
	return host, port, nil
}
