package a2s

import (
	"errors"
	"time"

	"github.com/qsrv/sourceq/pkg/bytepack"
)

const (
	infoRequest        byte = 0x54
	infoResponse       byte = 0x49
	infoResponseLegacy byte = 0x6D

	infoRequestPayload = "Source Engine Query"
)

// Extra data field flags of the Source info response.
const (
	edfPort    = 0x80
	edfSteamID = 0x10
	edfSTV     = 0x40
	edfKeyword = 0x20
	edfGameID  = 0x01
)

// ServerType describes how the server is hosted.
type ServerType byte

// String returns a human readable server type name.
func (s ServerType) String() string {
	switch s {
	case 'd', 'D':
		return "Dedicated"
	case 'l', 'L':
		return "Non-Dedicated"
	case 'p', 'P':
		return "SourceTV"
	default:
		return "Unknown"
	}
}

// Environment describes the operating system the server runs on.
type Environment byte

// String returns a human readable operating system name.
func (e Environment) String() string {
	switch e {
	case 'l', 'L':
		return "Linux"
	case 'w', 'W':
		return "Windows"
	case 'm', 'M', 'o', 'O':
		return "Mac"
	default:
		return "Unknown"
	}
}

// Info is a decoded A2S_INFO response. Fields past EDF are optional and only
// populated when the corresponding extra-data flag is set. Mod is only
// populated for legacy GoldSrc responses from servers running a mod.
type Info struct {
	// Mod describes the Half-Life mod for legacy GoldSrc responses.
	Mod *ModInfo `json:"mod,omitempty"`

	// Name is the display name of the server.
	Name string `json:"name"`

	// Map is the currently loaded map.
	Map string `json:"map"`

	// Folder is the game directory name.
	Folder string `json:"folder"`

	// Game is the name of the game.
	Game string `json:"game"`

	// Version of the server software.
	Version string `json:"version,omitempty"`

	// Address is the IP and port reported by legacy GoldSrc servers.
	Address string `json:"address,omitempty"`

	// SourceTVName is the name of the SourceTV relay.
	SourceTVName string `json:"stv_name,omitempty"`

	// Keywords are tags describing the running game mode.
	Keywords string `json:"keywords,omitempty"`

	// Ping is the round-trip time of the first request attempt.
	Ping time.Duration `json:"ping"`

	// SteamID of the server.
	SteamID uint64 `json:"steam_id,omitempty"`

	// GameID for games whose app id does not fit 16 bits.
	GameID uint64 `json:"game_id,omitempty"`

	// AppID of the game required to connect.
	AppID uint16 `json:"app_id,omitempty"`

	// Port the game server listens on.
	Port uint16 `json:"port,omitempty"`

	// SourceTVPort is the port of the SourceTV relay.
	SourceTVPort uint16 `json:"stv_port,omitempty"`

	// Protocol version used by the server.
	Protocol byte `json:"protocol"`

	// Players currently connected.
	Players uint8 `json:"players"`

	// MaxPlayers slots available.
	MaxPlayers uint8 `json:"max_players"`

	// Bots on the server.
	Bots uint8 `json:"bots"`

	// ServerType of the host.
	ServerType ServerType `json:"server_type"`

	// Environment the server runs on.
	Environment Environment `json:"environment"`

	// EDF is the raw extra-data flags byte.
	EDF byte `json:"-"`

	// Visibility is true when the server requires a password.
	Visibility bool `json:"visibility"`

	// VAC is true when Valve Anti-Cheat is enabled.
	VAC bool `json:"vac"`

	// Legacy is true for GoldSrc (0x6D) responses.
	Legacy bool `json:"legacy,omitempty"`
}

// ModInfo is the mod section of a legacy GoldSrc info response.
type ModInfo struct {
	Website         string `json:"website,omitempty"`
	Download        string `json:"download,omitempty"`
	Version         uint32 `json:"version,omitempty"`
	Size            uint32 `json:"size,omitempty"`
	MultiplayerOnly bool   `json:"multiplayer_only,omitempty"`
	CustomDLL       bool   `json:"custom_dll,omitempty"`
}

type infoQuery struct{}

func (infoQuery) serializeRequest(challenge uint32) []byte {
	w := bytepack.NewWriter()
	w.WriteUint8(infoRequest)
	w.WriteCString(infoRequestPayload)
	if challenge != 0 {
		w.WriteUint32(challenge)
	}

	return w.Bytes()
}

func (infoQuery) validResponseType(responseType byte) bool {
	return responseType == infoResponse || responseType == infoResponseLegacy
}

// GetInfo requests A2S_INFO and returns the decoded server details.
func (c *Client) GetInfo() (*Info, error) {
	reader, responseType, ping, err := c.exchange(infoQuery{})
	if err != nil {
		return nil, err
	}

	if responseType == infoResponseLegacy {
		return parseGoldSrcInfo(reader, ping)
	}

	return parseSourceInfo(reader, ping)
}

func parseSourceInfo(r *bytepack.Reader, ping time.Duration) (info *Info, err error) {
	info = &Info{Ping: ping}

	if info.Protocol, err = r.ReadUint8(); err != nil {
		return nil, err
	}
	if info.Name, err = r.ReadCString(); err != nil {
		return nil, err
	}
	if info.Map, err = r.ReadCString(); err != nil {
		return nil, err
	}
	if info.Folder, err = r.ReadCString(); err != nil {
		return nil, err
	}
	if info.Game, err = r.ReadCString(); err != nil {
		return nil, err
	}
	if info.AppID, err = r.ReadUint16(); err != nil {
		return nil, err
	}
	if info.Players, err = r.ReadUint8(); err != nil {
		return nil, err
	}
	if info.MaxPlayers, err = r.ReadUint8(); err != nil {
		return nil, err
	}
	if info.Bots, err = r.ReadUint8(); err != nil {
		return nil, err
	}

	serverType, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	info.ServerType = ServerType(serverType)

	environment, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	info.Environment = Environment(environment)

	if info.Visibility, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if info.VAC, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if info.Version, err = r.ReadCString(); err != nil {
		return nil, err
	}

	// Old servers stop here, the extra data field itself is optional
	info.EDF, err = r.ReadUint8()
	if err != nil {
		if errors.Is(err, bytepack.ErrBufferExhausted) {
			return info, nil
		}
		return nil, err
	}

	if info.EDF&edfPort != 0 {
		if info.Port, err = r.ReadUint16(); err != nil {
			return nil, err
		}
	}
	if info.EDF&edfSteamID != 0 {
		if info.SteamID, err = r.ReadUint64(); err != nil {
			return nil, err
		}
	}
	if info.EDF&edfSTV != 0 {
		if info.SourceTVPort, err = r.ReadUint16(); err != nil {
			return nil, err
		}
		if info.SourceTVName, err = r.ReadCString(); err != nil {
			return nil, err
		}
	}
	if info.EDF&edfKeyword != 0 {
		if info.Keywords, err = r.ReadCString(); err != nil {
			return nil, err
		}
	}
	if info.EDF&edfGameID != 0 {
		if info.GameID, err = r.ReadUint64(); err != nil {
			return nil, err
		}
	}

	return info, nil
}

func parseGoldSrcInfo(r *bytepack.Reader, ping time.Duration) (info *Info, err error) {
	info = &Info{Ping: ping, Legacy: true}

	if info.Address, err = r.ReadCString(); err != nil {
		return nil, err
	}
	if info.Name, err = r.ReadCString(); err != nil {
		return nil, err
	}
	if info.Map, err = r.ReadCString(); err != nil {
		return nil, err
	}
	if info.Folder, err = r.ReadCString(); err != nil {
		return nil, err
	}
	if info.Game, err = r.ReadCString(); err != nil {
		return nil, err
	}
	if info.Players, err = r.ReadUint8(); err != nil {
		return nil, err
	}
	if info.MaxPlayers, err = r.ReadUint8(); err != nil {
		return nil, err
	}
	if info.Protocol, err = r.ReadUint8(); err != nil {
		return nil, err
	}

	serverType, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	info.ServerType = ServerType(serverType)

	environment, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	info.Environment = Environment(environment)

	if info.Visibility, err = r.ReadBool(); err != nil {
		return nil, err
	}

	isMod, err := r.ReadBool()
	if err != nil {
		return nil, err
	}

	// Some games omit the mod section even with the flag set
	if isMod && len(r.Peek(3)) > 2 {
		mod := &ModInfo{}
		if mod.Website, err = r.ReadCString(); err != nil {
			return nil, err
		}
		if mod.Download, err = r.ReadCString(); err != nil {
			return nil, err
		}
		if _, err = r.Read(1); err != nil { // NUL between strings and numbers
			return nil, err
		}
		if mod.Version, err = r.ReadUint32(); err != nil {
			return nil, err
		}
		if mod.Size, err = r.ReadUint32(); err != nil {
			return nil, err
		}
		if mod.MultiplayerOnly, err = r.ReadBool(); err != nil {
			return nil, err
		}
		if mod.CustomDLL, err = r.ReadBool(); err != nil {
			return nil, err
		}
		info.Mod = mod
	}

	if info.VAC, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if info.Bots, err = r.ReadUint8(); err != nil {
		return nil, err
	}

	return info, nil
}
