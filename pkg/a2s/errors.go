package a2s

import (
	"errors"
	"net"
)

var (
	// ErrBrokenMessage indicates a response that does not match the wire
	// format: an unknown packet header, a truncated fragment, or a response
	// type the active query does not accept.
	ErrBrokenMessage = errors.New("broken response message")

	// ErrChallengeLoop indicates the server kept answering with challenge
	// responses after the retry budget was spent. Distinct from
	// ErrBrokenMessage so callers can tell an uncooperative server apart
	// from garbage on the wire.
	ErrChallengeLoop = errors.New("server keeps sending challenge responses")

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("client is closed")
)

// IsTimeout reports whether err is a network timeout, meaning no datagram
// arrived within the configured window. Timeouts are never retried by the
// client, they surface unchanged to the caller.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
