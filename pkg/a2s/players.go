package a2s

import (
	"github.com/qsrv/sourceq/pkg/bytepack"
)

const (
	playersRequest  byte = 0x55
	playersResponse byte = 0x44
)

// Player is one entry of an A2S_PLAYER response.
type Player struct {
	// Name of the player.
	Name string `json:"name"`

	// Score of the player, usually kills.
	Score int32 `json:"score"`

	// Duration in seconds the player has been connected.
	Duration float32 `json:"duration"`

	// Index of the entry, in practice always zero.
	Index uint8 `json:"index"`
}

type playersQuery struct{}

func (playersQuery) serializeRequest(challenge uint32) []byte {
	w := bytepack.NewWriter()
	w.WriteUint8(playersRequest)
	w.WriteUint32(challenge)

	return w.Bytes()
}

func (playersQuery) validResponseType(responseType byte) bool {
	return responseType == playersResponse
}

// GetPlayers requests A2S_PLAYER and returns the connected player list.
func (c *Client) GetPlayers() ([]Player, error) {
	reader, _, _, err := c.exchange(playersQuery{})
	if err != nil {
		return nil, err
	}

	count, err := reader.ReadUint8()
	if err != nil {
		return nil, err
	}

	players := make([]Player, 0, count)
	for i := 0; i < int(count); i++ {
		var p Player

		if p.Index, err = reader.ReadUint8(); err != nil {
			return nil, err
		}
		if p.Name, err = reader.ReadCString(); err != nil {
			return nil, err
		}
		if p.Score, err = reader.ReadInt32(); err != nil {
			return nil, err
		}
		if p.Duration, err = reader.ReadFloat32(); err != nil {
			return nil, err
		}

		players = append(players, p)
	}

	return players, nil
}
