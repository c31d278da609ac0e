// Package a2s implements a client for the Source Engine Query (A2S)
// protocol: A2S_INFO, A2S_PLAYER and A2S_RULES requests over UDP, including
// the challenge-response handshake and multi-packet response reassembly.
package a2s

import (
	"bytes"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding"
)

var (
	headerSimple = []byte{0xFF, 0xFF, 0xFF, 0xFF}
	headerMulti  = []byte{0xFE, 0xFF, 0xFF, 0xFF}
)

const (
	// DefaultTimeout is the receive deadline applied when none is set.
	DefaultTimeout = 3 * time.Second

	// DefaultBufferSize is the receive buffer for the first datagram of a
	// response. Continuation packets of a split response are read with the
	// smaller multiPacketBufferSize.
	DefaultBufferSize uint16 = 65535

	// DefaultRetries bounds the challenge-response loop. One logical query
	// sends at most DefaultRetries+1 requests.
	DefaultRetries = 5

	multiPacketBufferSize = 4096
)

// Client queries one game server over a dedicated UDP socket. A Client is
// not safe for concurrent use, run concurrent queries on separate clients.
type Client struct {
	// Encoding decodes strings in server responses. Nil means UTF-8.
	Encoding *encoding.Decoder

	conn net.Conn
	addr string

	// Timeout is the per-receive deadline. Expiry surfaces as a network
	// timeout error, never as an internal retry.
	Timeout time.Duration

	// BufferSize is the receive buffer for the first datagram of a response.
	BufferSize uint16

	// Retries bounds the challenge-response handshake loop.
	Retries int

	closed bool
}

// New creates a Client bound to the given host and port.
func New(host string, port int) (*Client, error) {
	return Dial(net.JoinHostPort(host, strconv.Itoa(port)))
}

// Dial creates a Client bound to a "host:port" address.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	return &Client{
		conn:       conn,
		addr:       addr,
		Timeout:    DefaultTimeout,
		BufferSize: DefaultBufferSize,
		Retries:    DefaultRetries,
	}, nil
}

// Addr returns the remote address the client queries.
func (c *Client) Addr() string {
	return c.addr
}

// Close releases the underlying socket. Safe to call more than once.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	return c.conn.Close()
}

// send frames payload with the simple-query marker and transmits it as one
// datagram. Requests always fit a single packet.
func (c *Client) send(payload []byte) error {
	if c.closed {
		return ErrClosed
	}

	packet := make([]byte, 0, len(headerSimple)+len(payload))
	packet = append(packet, headerSimple...)
	packet = append(packet, payload...)

	log.Trace().Str("server", c.addr).Int("size", len(packet)).Msg("Sending packet")

	if _, err := c.conn.Write(packet); err != nil {
		return fmt.Errorf("send to %s: %w", c.addr, err)
	}

	return nil
}

// recv blocks for one response and returns its payload with framing
// removed. Split responses are collected until the fragment count declared
// by the first received fragment is reached, then reassembled in fragment
// id order. A duplicated simple header left by some servers on the
// reassembled payload is stripped.
func (c *Client) recv() ([]byte, error) {
	if c.closed {
		return nil, ErrClosed
	}

	size := int(c.BufferSize)
	if size == 0 {
		size = int(DefaultBufferSize)
	}

	packet, err := c.readPacket(size)
	if err != nil {
		return nil, err
	}
	if len(packet) < len(headerSimple) {
		return nil, fmt.Errorf("%w: packet too short (%d bytes)", ErrBrokenMessage, len(packet))
	}

	header, data := packet[:4], packet[4:]

	switch {
	case bytes.Equal(header, headerSimple):
		log.Trace().Str("server", c.addr).Int("size", len(data)).Msg("Received single packet")
		return data, nil

	case bytes.Equal(header, headerMulti):
		return c.recvMulti(data)

	default:
		return nil, fmt.Errorf("%w: invalid packet header % X", ErrBrokenMessage, header)
	}
}

// recvMulti reassembles a split response. first is the body of the first
// received datagram, which declares how many fragments to expect.
func (c *Client) recvMulti(first []byte) ([]byte, error) {
	frag, err := decodeFragment(first)
	if err != nil {
		return nil, err
	}

	fragments := []*fragment{frag}
	for len(fragments) < int(fragments[0].count) {
		packet, err := c.readPacket(multiPacketBufferSize)
		if err != nil {
			return nil, err
		}
		if len(packet) < len(headerMulti) {
			return nil, fmt.Errorf("%w: continuation packet too short (%d bytes)", ErrBrokenMessage, len(packet))
		}

		frag, err := decodeFragment(packet[4:])
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, frag)
	}

	sort.Slice(fragments, func(i, j int) bool {
		return fragments[i].id < fragments[j].id
	})

	var buf bytes.Buffer
	for _, frag := range fragments {
		buf.Write(frag.payload)
	}

	// Some servers wrap the reassembled payload in another simple header
	data := buf.Bytes()
	data = bytes.TrimPrefix(data, headerSimple)

	log.Trace().
		Str("server", c.addr).
		Int("fragments", len(fragments)).
		Int("size", len(data)).
		Msg("Reassembled multi-packet response")

	return data, nil
}

// request performs one exchange: a single send followed by one logical
// receive (which may span several datagrams for split responses).
func (c *Client) request(payload []byte) ([]byte, error) {
	if err := c.send(payload); err != nil {
		return nil, err
	}

	return c.recv()
}

func (c *Client) readPacket(size int) ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout())); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	buf := make([]byte, size)
	n, err := c.conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("receive from %s: %w", c.addr, err)
	}

	return buf[:n], nil
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}

	return c.Timeout
}
