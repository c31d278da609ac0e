// Package models defines the data structures shared between the monitor and
// the persistence layer.
package models

import (
	"time"

	"github.com/qsrv/sourceq/pkg/a2s"
)

// Snapshot is one observed state of a monitored game server.
type Snapshot struct {
	QueriedAt   time.Time `json:"queried_at"`
	Address     string    `json:"address"`
	CountryCode string    `json:"country_code,omitempty"`
	ServerName  string    `json:"server_name"`
	MapName     string    `json:"map_name"`
	GameName    string    `json:"game_name"`
	GameVersion string    `json:"game_version"`
	ServerOS    string    `json:"server_os"`
	PingMs      int64     `json:"ping_ms"`
	Port        int       `json:"port"`
	Players     byte      `json:"players"`
	MaxPlayers  byte      `json:"max_players"`
	Bots        byte      `json:"bots"`
}

// FromInfo builds a Snapshot from a decoded A2S_INFO response.
func FromInfo(address string, port int, info *a2s.Info) Snapshot {
	return Snapshot{
		QueriedAt:   time.Now(),
		Address:     address,
		Port:        port,
		ServerName:  info.Name,
		MapName:     info.Map,
		GameName:    info.Game,
		GameVersion: info.Version,
		ServerOS:    info.Environment.String(),
		PingMs:      info.Ping.Milliseconds(),
		Players:     info.Players,
		MaxPlayers:  info.MaxPlayers,
		Bots:        info.Bots,
	}
}
