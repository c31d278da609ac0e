package a2s

import (
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qsrv/sourceq/pkg/bytepack"
)

// mockServer answers the nth received request with a scripted list of
// datagrams, and records every request it sees.
type mockServer struct {
	conn      net.PacketConn
	responses [][][]byte
	requests  [][]byte
	mu        sync.Mutex
}

func newMockServer(t *testing.T, responses ...[][]byte) *mockServer {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &mockServer{conn: conn, responses: responses}
	go s.serve()
	t.Cleanup(func() { _ = conn.Close() })

	return s
}

func (s *mockServer) serve() {
	buf := make([]byte, 2048)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			return // listener closed
		}

		s.mu.Lock()
		s.requests = append(s.requests, append([]byte(nil), buf[:n]...))
		idx := len(s.requests) - 1
		s.mu.Unlock()

		if idx < len(s.responses) {
			for _, datagram := range s.responses[idx] {
				_, _ = s.conn.WriteTo(datagram, addr)
			}
		}
	}
}

func (s *mockServer) addr() string {
	return s.conn.LocalAddr().String()
}

func (s *mockServer) request(i int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

func (s *mockServer) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func newTestClient(t *testing.T, s *mockServer) *Client {
	t.Helper()

	client, err := Dial(s.addr())
	require.NoError(t, err)
	client.Timeout = 500 * time.Millisecond
	t.Cleanup(func() { _ = client.Close() })

	return client
}

// simplePacket frames a payload with the single-packet marker.
func simplePacket(payload []byte) []byte {
	return append([]byte{0xFF, 0xFF, 0xFF, 0xFF}, payload...)
}

// multiPacket builds one fragment datagram of a split response.
func multiPacket(id, count byte, payload []byte) []byte {
	w := bytepack.NewWriter()
	w.Write([]byte{0xFE, 0xFF, 0xFF, 0xFF})
	w.WriteUint32(0x1234) // message id
	w.WriteUint8(count)
	w.WriteUint8(id)
	w.WriteUint16(1248) // split size
	w.Write(payload)

	return w.Bytes()
}

func TestRequestSinglePacket(t *testing.T) {
	payload := []byte{0x49, 'h', 'e', 'l', 'l', 'o'}
	server := newMockServer(t, [][]byte{simplePacket(payload)})
	client := newTestClient(t, server)

	data, err := client.request([]byte{0x54})
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	// The outgoing datagram carries the simple-query framing
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x54}, server.request(0))
}

func TestRequestMultiPacketShuffled(t *testing.T) {
	// Fragments arrive as 2, 0, 1 and must reassemble in id order
	server := newMockServer(t, [][]byte{
		multiPacket(2, 3, []byte("third")),
		multiPacket(0, 3, []byte("first")),
		multiPacket(1, 3, []byte("second")),
	})
	client := newTestClient(t, server)

	data, err := client.request([]byte{0x56})
	require.NoError(t, err)
	assert.Equal(t, []byte("firstsecondthird"), data)
}

func TestRequestMultiPacketStripsDoubledHeader(t *testing.T) {
	server := newMockServer(t, [][]byte{
		multiPacket(0, 2, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x45, 'a'}),
		multiPacket(1, 2, []byte{'b', 'c'}),
	})
	client := newTestClient(t, server)

	data, err := client.request([]byte{0x56})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x45, 'a', 'b', 'c'}, data)
}

func TestRequestInvalidHeader(t *testing.T) {
	server := newMockServer(t, [][]byte{{0xDE, 0xAD, 0xBE, 0xEF, 0x00}})
	client := newTestClient(t, server)

	_, err := client.request([]byte{0x54})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBrokenMessage)
	assert.Contains(t, err.Error(), "DE AD BE EF")
}

func TestRequestTimeout(t *testing.T) {
	server := newMockServer(t) // never answers
	client := newTestClient(t, server)
	client.Timeout = 50 * time.Millisecond

	_, err := client.request([]byte{0x54})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))

	// The socket is still released cleanly after a timeout
	require.NoError(t, client.Close())
}

func TestClientCloseIdempotent(t *testing.T) {
	server := newMockServer(t)
	client, err := Dial(server.addr())
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err = client.request([]byte{0x54})
	assert.ErrorIs(t, err, ErrClosed)
}

// testQuery is a minimal protocol kind for exercising the request driver.
type testQuery struct{}

func (testQuery) serializeRequest(challenge uint32) []byte {
	w := bytepack.NewWriter()
	w.WriteUint8(0x71)
	w.WriteUint32(challenge)

	return w.Bytes()
}

func (testQuery) validResponseType(responseType byte) bool {
	return responseType == 0x72
}

func challengePacket(challenge uint32) []byte {
	w := bytepack.NewWriter()
	w.WriteUint8(0x41)
	w.WriteUint32(challenge)

	return simplePacket(w.Bytes())
}

func TestExchangeChallengeRetry(t *testing.T) {
	server := newMockServer(t,
		[][]byte{challengePacket(0x12345678)},
		[][]byte{simplePacket([]byte{0x72, 0xAA})},
	)
	client := newTestClient(t, server)

	reader, responseType, ping, err := client.exchange(testQuery{})
	require.NoError(t, err)
	assert.Equal(t, byte(0x72), responseType)
	assert.Positive(t, ping)

	rest := reader.ReadAll()
	assert.Equal(t, []byte{0xAA}, rest)

	// Exactly two sends, the second carrying the issued challenge
	require.Equal(t, 2, server.requestCount())
	first := server.request(0)
	second := server.request(1)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(first[5:9]))
	assert.Equal(t, uint32(0x12345678), binary.LittleEndian.Uint32(second[5:9]))
}

func TestExchangeChallengeLoopExceeded(t *testing.T) {
	responses := make([][][]byte, 0, 4)
	for i := 0; i < 4; i++ {
		responses = append(responses, [][]byte{challengePacket(uint32(i + 1))})
	}

	server := newMockServer(t, responses...)
	client := newTestClient(t, server)
	client.Retries = 2

	_, _, _, err := client.exchange(testQuery{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChallengeLoop)

	// Initial request plus two retries, then the loop gives up
	assert.Equal(t, 3, server.requestCount())
}

func TestExchangeInvalidResponseType(t *testing.T) {
	server := newMockServer(t, [][]byte{simplePacket([]byte{0x7F, 0x00})})
	client := newTestClient(t, server)

	_, _, _, err := client.exchange(testQuery{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBrokenMessage)
	assert.Contains(t, err.Error(), "0x7f")
}

func TestExchangePingFrozenAcrossRetries(t *testing.T) {
	server := newMockServer(t,
		[][]byte{challengePacket(0xBEEF)},
		[][]byte{simplePacket([]byte{0x72})},
	)
	client := newTestClient(t, server)

	start := time.Now()
	_, _, ping, err := client.exchange(testQuery{})
	elapsed := time.Since(start)
	require.NoError(t, err)

	// Ping covers only the first round trip, not the whole exchange
	assert.Positive(t, ping)
	assert.LessOrEqual(t, ping, elapsed)
}

func TestGetInfoEndToEnd(t *testing.T) {
	server := newMockServer(t, [][]byte{simplePacket(buildSourceInfo())})
	client := newTestClient(t, server)

	info, err := client.GetInfo()
	require.NoError(t, err)

	assert.Equal(t, "Test Server", info.Name)
	assert.Equal(t, "de_dust2", info.Map)
	assert.Equal(t, "csgo", info.Folder)
	assert.Equal(t, "Counter-Strike 2", info.Game)
	assert.Equal(t, uint16(730), info.AppID)
	assert.Equal(t, uint8(12), info.Players)
	assert.Equal(t, uint8(24), info.MaxPlayers)
	assert.Equal(t, "Dedicated", info.ServerType.String())
	assert.Equal(t, "Linux", info.Environment.String())
	assert.True(t, info.VAC)
	assert.False(t, info.Visibility)
	assert.Equal(t, uint16(27015), info.Port)
	assert.Equal(t, "secure,128tick", info.Keywords)
	assert.Positive(t, info.Ping)
	assert.False(t, info.Legacy)
}

func TestGetInfoWithChallenge(t *testing.T) {
	server := newMockServer(t,
		[][]byte{challengePacket(0xCAFEBABE)},
		[][]byte{simplePacket(buildSourceInfo())},
	)
	client := newTestClient(t, server)

	info, err := client.GetInfo()
	require.NoError(t, err)
	assert.Equal(t, "Test Server", info.Name)

	require.Equal(t, 2, server.requestCount())
	second := server.request(1)
	// header(4) + type(1) + "Source Engine Query\0"(20) + challenge(4)
	require.Len(t, second, 29)
	assert.Equal(t, uint32(0xCAFEBABE), binary.LittleEndian.Uint32(second[25:29]))
}

func TestGetPlayersEndToEnd(t *testing.T) {
	w := bytepack.NewWriter()
	w.WriteUint8(0x44)
	w.WriteUint8(2)
	w.WriteUint8(0)
	w.WriteCString("alice")
	w.WriteInt32(31)
	w.WriteFloat32(512.5)
	w.WriteUint8(0)
	w.WriteCString("bob")
	w.WriteInt32(-2)
	w.WriteFloat32(77.25)

	server := newMockServer(t, [][]byte{simplePacket(w.Bytes())})
	client := newTestClient(t, server)

	players, err := client.GetPlayers()
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, "alice", players[0].Name)
	assert.Equal(t, int32(31), players[0].Score)
	assert.InDelta(t, 512.5, players[0].Duration, 0.001)
	assert.Equal(t, "bob", players[1].Name)
	assert.Equal(t, int32(-2), players[1].Score)
}

func TestGetRulesEndToEnd(t *testing.T) {
	w := bytepack.NewWriter()
	w.WriteUint8(0x45)
	w.WriteInt16(3)
	w.WriteCString("mp_friendlyfire")
	w.WriteCString("0")
	w.WriteCString("sv_gravity")
	w.WriteCString("800")
	w.WriteCString("sv_cheats")
	w.WriteCString("0")

	server := newMockServer(t, [][]byte{simplePacket(w.Bytes())})
	client := newTestClient(t, server)

	rules, err := client.GetRules()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"mp_friendlyfire": "0",
		"sv_gravity":      "800",
		"sv_cheats":       "0",
	}, rules)
}

func TestGetRulesMultiPacket(t *testing.T) {
	w := bytepack.NewWriter()
	w.WriteUint8(0x45)
	w.WriteInt16(2)
	w.WriteCString("sv_tags")
	w.WriteCString("community")
	w.WriteCString("sv_region")
	w.WriteCString("3")
	payload := w.Bytes()

	half := len(payload) / 2
	server := newMockServer(t, [][]byte{
		multiPacket(1, 2, payload[half:]),
		multiPacket(0, 2, payload[:half]),
	})
	client := newTestClient(t, server)

	rules, err := client.GetRules()
	require.NoError(t, err)
	assert.Equal(t, "community", rules["sv_tags"])
	assert.Equal(t, "3", rules["sv_region"])
}

func TestErrorsAreErrors(t *testing.T) {
	assert.False(t, IsTimeout(errors.New("plain")))
	assert.False(t, IsTimeout(nil))
}
