package redisub

import "errors"

// Standard errors returned by the subscriber.
var (
	// ErrAlreadyConnected is returned by Connect when a transport
	// session is already established.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrNotConnected is returned when a command cannot be flushed
	// because no transport session is established.
	ErrNotConnected = errors.New("not connected")

	// ErrMasterNotFound is returned by ConnectMaster when none of the
	// configured sentinels can name a master for the requested group.
	ErrMasterNotFound = errors.New("master not found")

	// ErrNoSentinels is returned when a sentinel lookup is attempted
	// with no sentinel endpoints configured.
	ErrNoSentinels = errors.New("no sentinels configured")
)
