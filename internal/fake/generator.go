// Package fake provides utilities for generating random snapshot data for
// testing and development purposes.
package fake

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/qsrv/sourceq/internal/models"
	"github.com/qsrv/sourceq/internal/storage"
)

// GenerateData populates the storage with a specified number of randomized
// snapshot records. It simulates a handful of servers observed repeatedly
// over the last 30 days.
func GenerateData(store *storage.Repository, count int) {
	maps := []string{"de_dust2", "de_inferno", "cs_office", "de_nuke", "de_train", "de_mirage"}
	osTypes := []string{"Windows", "Linux"}
	games := []string{"Counter-Strike 2", "Team Fortress 2", "Garry's Mod"}
	versions := []string{"1.38.7.9", "1.39.1.1", "1.40.0.0"}

	type server struct {
		address string
		port    int
		name    string
		country string
	}

	countries := []string{"US", "DE", "RU", "BR", "FR", "GB", "PL", "SE", "NL", "AU"}

	servers := make([]server, 0, 16)
	for i := 0; i < 16; i++ {
		servers = append(servers, server{
			address: fmt.Sprintf("%d.%d.%d.%d", rand.Intn(220)+1, rand.Intn(255), rand.Intn(255), rand.Intn(255)),
			port:    27015 + rand.Intn(16),
			name:    fmt.Sprintf("Community Server #%d [128 tick]", rand.Intn(1000)),
			country: countries[rand.Intn(len(countries))],
		})
	}

	for i := 0; i < count; i++ {
		srv := servers[rand.Intn(len(servers))]

		daysAgo := rand.Intn(30)
		queried := time.Now().Add(-time.Duration(daysAgo) * 24 * time.Hour).
			Add(-time.Duration(rand.Intn(1440)) * time.Minute)

		maxPlayers := byte(16 + 8*rand.Intn(6))
		snapshot := models.Snapshot{
			QueriedAt:   queried,
			Address:     srv.address,
			Port:        srv.port,
			CountryCode: srv.country,
			ServerName:  srv.name,
			MapName:     maps[rand.Intn(len(maps))],
			GameName:    games[rand.Intn(len(games))],
			GameVersion: versions[rand.Intn(len(versions))],
			ServerOS:    osTypes[rand.Intn(len(osTypes))],
			PingMs:      int64(5 + rand.Intn(120)),
			Players:     byte(rand.Intn(int(maxPlayers) + 1)),
			MaxPlayers:  maxPlayers,
			Bots:        byte(rand.Intn(4)),
		}

		if err := store.InsertSnapshot(snapshot); err != nil {
			log.Warn().Err(err).Msg("Failed to generate fake snapshot")
		}
	}
}
