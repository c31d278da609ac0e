package a2s

import (
	"github.com/qsrv/sourceq/pkg/bytepack"
)

const (
	rulesRequest  byte = 0x56
	rulesResponse byte = 0x45
)

type rulesQuery struct{}

func (rulesQuery) serializeRequest(challenge uint32) []byte {
	w := bytepack.NewWriter()
	w.WriteUint8(rulesRequest)
	w.WriteUint32(challenge)

	return w.Bytes()
}

func (rulesQuery) validResponseType(responseType byte) bool {
	return responseType == rulesResponse
}

// GetRules requests A2S_RULES and returns the server's rule table as a
// name to value mapping.
func (c *Client) GetRules() (map[string]string, error) {
	reader, _, _, err := c.exchange(rulesQuery{})
	if err != nil {
		return nil, err
	}

	count, err := reader.ReadInt16()
	if err != nil {
		return nil, err
	}

	rules := make(map[string]string, count)
	for i := 0; i < int(count); i++ {
		name, err := reader.ReadCString()
		if err != nil {
			return nil, err
		}

		value, err := reader.ReadCString()
		if err != nil {
			return nil, err
		}

		rules[name] = value
	}

	return rules, nil
}
