// main is the entry point of the sourceq tool.
// It initializes the configuration and logger, then either runs one-shot
// queries against the given servers or starts the periodic watch loop.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/qsrv/sourceq/internal/config"
	"github.com/qsrv/sourceq/internal/fake"
	"github.com/qsrv/sourceq/internal/geoip"
	"github.com/qsrv/sourceq/internal/logger"
	"github.com/qsrv/sourceq/internal/monitor"
	"github.com/qsrv/sourceq/internal/storage"
	"github.com/qsrv/sourceq/pkg/a2s"
)

func main() {
	cfg := config.Parse()
	logger.Setup(cfg.Logger)

	// Database
	var store *storage.Repository
	if cfg.Storage.Path != "" {
		var err error
		store, err = storage.New(cfg.Storage.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing database")
			}
		}()
	}

	// Data generation or database maintenance
	if cfg.Maintenance() {
		runMaintenance(cfg, store)
		return
	}

	targets, err := monitor.ParseTargets(cfg.Args.Servers)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid server address")
	}

	// GeoIP
	var geoProvider *geoip.Provider
	if cfg.GeoIP.Path != "" {
		if err := geoip.EnsureDB(cfg.GeoIP.Path, cfg.GeoIP.URL, cfg.GeoIP.Interval); err != nil {
			log.Error().Err(err).Msg("Failed to download GeoIP database")
		}

		geoProvider, err = geoip.Open(cfg.GeoIP.Path)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open GeoIP database, country detection disabled")
			geoProvider = nil
		} else {
			defer func() {
				if err := geoProvider.Close(); err != nil {
					log.Error().Err(err).Msg("Error closing GeoIP provider")
				}
			}()
		}
	}

	// Watch mode
	if cfg.Watch.Interval > 0 {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		monitor.New(targets, cfg, store, geoProvider).Run(ctx, cfg.Watch.Interval)
		return
	}

	// One-shot queries
	failed := 0
	for _, target := range targets {
		if !queryOne(cfg, target, geoProvider) {
			failed++
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}

// runMaintenance executes one-off database tasks selected by flags.
func runMaintenance(cfg *config.Config, store *storage.Repository) {
	if cfg.Storage.GenerateCount > 0 {
		fake.GenerateData(store, cfg.Storage.GenerateCount)
		return
	}

	cutoff := time.Now().Add(-cfg.Storage.Prune)
	log.Info().Time("cutoff", cutoff).Msg("Pruning old snapshots...")

	count, err := store.PruneBefore(cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune snapshots")
		return
	}

	log.Info().Int64("deleted", count).Msg("Prune finished")
}

// result is the one-shot output document for a single server.
type result struct {
	Rules   map[string]string `json:"rules,omitempty"`
	Server  string            `json:"server"`
	Country string            `json:"country,omitempty"`
	Error   string            `json:"error,omitempty"`
	Players []a2s.Player      `json:"players,omitempty"`
	Info    *a2s.Info         `json:"info,omitempty"`
}

// queryOne runs the requested queries against a single target and prints
// the result. It reports whether every query succeeded.
func queryOne(cfg *config.Config, target monitor.Target, geo *geoip.Provider) bool {
	res := result{Server: target.String()}

	client, err := monitor.NewClient(cfg.Query, target)
	if err != nil {
		res.Error = err.Error()
		printResult(cfg, res)
		return false
	}
	defer func() { _ = client.Close() }()

	kind := cfg.Query.Kind
	if kind == "info" || kind == "all" {
		if res.Info, err = client.GetInfo(); err != nil {
			res.Error = err.Error()
		}
	}
	if err == nil && (kind == "players" || kind == "all") {
		if res.Players, err = client.GetPlayers(); err != nil {
			res.Error = err.Error()
		}
	}
	if err == nil && (kind == "rules" || kind == "all") {
		if res.Rules, err = client.GetRules(); err != nil {
			res.Error = err.Error()
		}
	}

	if geo != nil {
		res.Country = geo.CountryCode(target.Host)
	}

	printResult(cfg, res)

	return res.Error == ""
}

func printResult(cfg *config.Config, res result) {
	if cfg.Query.JSON {
		if err := json.NewEncoder(os.Stdout).Encode(res); err != nil {
			log.Error().Err(err).Msg("Failed to encode result")
		}
		return
	}

	if res.Error != "" {
		fmt.Printf("%s: error: %s\n", res.Server, res.Error)
		return
	}

	if res.Info != nil {
		fmt.Printf("%s: %q\n", res.Server, res.Info.Name)
		fmt.Printf("  game:    %s (%s)\n", res.Info.Game, res.Info.Folder)
		fmt.Printf("  map:     %s\n", res.Info.Map)
		fmt.Printf("  players: %d/%d (%d bots)\n", res.Info.Players, res.Info.MaxPlayers, res.Info.Bots)
		fmt.Printf("  server:  %s on %s, version %s\n", res.Info.ServerType, res.Info.Environment, res.Info.Version)
		fmt.Printf("  ping:    %s\n", res.Info.Ping.Round(time.Millisecond))
		if res.Country != "" {
			fmt.Printf("  country: %s\n", res.Country)
		}
	}

	if res.Players != nil {
		fmt.Printf("%s: %d players\n", res.Server, len(res.Players))
		for _, p := range res.Players {
			connected := time.Duration(p.Duration) * time.Second
			fmt.Printf("  %-32q score %-6d connected %s\n", p.Name, p.Score, connected)
		}
	}

	if res.Rules != nil {
		fmt.Printf("%s: %d rules\n", res.Server, len(res.Rules))
		for name, value := range res.Rules {
			fmt.Printf("  %s = %s\n", name, value)
		}
	}
}
