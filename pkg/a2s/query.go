package a2s

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/qsrv/sourceq/pkg/bytepack"
)

// challengeResponse is the response type the server answers with when the
// request must be repeated carrying the supplied challenge value.
const challengeResponse byte = 0x41

// query is the capability set shared by the three request kinds: build a
// request for the current challenge and decide which response types are
// acceptable. Deserialization lives next to each kind.
type query interface {
	serializeRequest(challenge uint32) []byte
	validResponseType(responseType byte) bool
}

// exchange drives one logical query to completion: send, receive, and
// repeat with the server-issued challenge value until real data arrives or
// the retry budget is spent. It returns a reader positioned after the
// response-type byte, the response type, and the round-trip time of the
// first attempt. Ping is frozen on the first attempt, challenge round trips
// never overwrite it.
func (c *Client) exchange(q query) (*bytepack.Reader, byte, time.Duration, error) {
	var (
		challenge uint32
		ping      time.Duration
	)

	for retries := 0; ; retries++ {
		sendTime := time.Now()

		data, err := c.request(q.serializeRequest(challenge))
		if err != nil {
			return nil, 0, 0, err
		}

		if retries == 0 {
			ping = time.Since(sendTime)
		}

		reader := bytepack.NewReaderWith(data, c.Encoding)

		responseType, err := reader.ReadUint8()
		if err != nil {
			return nil, 0, 0, fmt.Errorf("%w: empty response payload", ErrBrokenMessage)
		}

		if responseType == challengeResponse {
			if retries >= c.retries() {
				return nil, 0, 0, ErrChallengeLoop
			}

			challenge, err = reader.ReadUint32()
			if err != nil {
				return nil, 0, 0, fmt.Errorf("%w: truncated challenge response", ErrBrokenMessage)
			}

			log.Trace().
				Str("server", c.addr).
				Uint32("challenge", challenge).
				Int("retry", retries+1).
				Msg("Challenge received, resending request")

			continue
		}

		if !q.validResponseType(responseType) {
			return nil, 0, 0, fmt.Errorf("%w: invalid response type 0x%02x", ErrBrokenMessage, responseType)
		}

		return reader, responseType, ping, nil
	}
}

func (c *Client) retries() int {
	if c.Retries <= 0 {
		return DefaultRetries
	}

	return c.Retries
}
